package replication

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"
)

func TestFileSinkCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ContainerFileName(12))

	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if _, err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("final file exists before Commit")
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read committed file: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("committed file holds %q, want %q", got, "hello")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("staging file left behind after Commit")
	}

	// Commit is idempotent and Discard after Commit keeps the result.
	if err := s.Commit(); err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard after Commit failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("committed file gone after Discard: %v", err)
	}
}

func TestFileSinkCommitBeforeClose(t *testing.T) {
	s, err := NewFileSink(filepath.Join(t.TempDir(), ContainerFileName(1)))
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := s.Commit(); err == nil {
		t.Fatal("Commit before Close succeeded")
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
}

func TestFileSinkDiscard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ContainerFileName(2))

	t.Run("after close", func(t *testing.T) {
		s, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("NewFileSink failed: %v", err)
		}
		s.Write([]byte("partial"))
		if err := s.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := s.Discard(); err != nil {
			t.Fatalf("Discard failed: %v", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read dir: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("directory not empty after Discard: %v", entries)
		}
	})

	t.Run("without close", func(t *testing.T) {
		s, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("NewFileSink failed: %v", err)
		}
		s.Write([]byte("partial"))
		if err := s.Discard(); err != nil {
			t.Fatalf("Discard failed: %v", err)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Fatal("staging file still present")
		}
	})
}

func TestFileSinkRefusesSecondStaging(t *testing.T) {
	path := filepath.Join(t.TempDir(), ContainerFileName(3))
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	defer s.Discard()

	if _, err := NewFileSink(path); err == nil {
		t.Fatal("second sink over the same staging file succeeded")
	}
}

func TestFileSinkDoubleClose(t *testing.T) {
	s, err := NewFileSink(filepath.Join(t.TempDir(), ContainerFileName(4)))
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestLZ4SinkRoundTrip(t *testing.T) {
	inner := &recordSink{}
	z := NewLZ4Sink(inner)

	payload := bytes.Repeat([]byte("replica bytes "), 512)
	if _, err := z.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := z.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if inner.closes != 1 {
		t.Fatalf("inner sink closed %d times, want once", inner.closes)
	}
	if inner.buf.Len() >= len(payload) {
		t.Fatalf("compressed size %d not smaller than input %d", inner.buf.Len(), len(payload))
	}

	got, err := io.ReadAll(lz4.NewReader(bytes.NewReader(inner.buf.Bytes())))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("decompressed bytes differ from the input")
	}

	// Closing again must not close the inner sink a second time.
	if err := z.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if inner.closes != 1 {
		t.Fatalf("inner sink closed %d times after double close, want once", inner.closes)
	}
}

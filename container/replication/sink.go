package replication

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// ContainerFileName is the conventional on-disk name of a packed replica.
func ContainerFileName(containerID uint64) string {
	return fmt.Sprintf("container-%d.data", containerID)
}

// FileSink stages a replica download on disk. Writes land in <path>.tmp;
// once the download outcome is known the caller promotes the staging file
// with Commit or drops it with Discard. A partial download therefore
// never surfaces under the final name.
type FileSink struct {
	f         *os.File
	path      string
	tmpPath   string
	closed    bool
	committed bool
}

// NewFileSink creates the staging file for path. It fails if a staging
// file for the same path already exists, which points at a concurrent or
// abandoned download.
func NewFileSink(path string) (*FileSink, error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("replication: create staging file: %w", err)
	}
	return &FileSink{f: f, path: path, tmpPath: tmp}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Close syncs and closes the staging file. The data stays under the
// staging name until Commit. Closing twice is harmless.
func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("replication: sync staging file: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("replication: close staging file: %w", err)
	}
	return nil
}

// Commit atomically renames the staging file to its final path. It
// requires Close to have happened and is idempotent.
func (s *FileSink) Commit() error {
	if !s.closed {
		return fmt.Errorf("replication: commit of %s before close", s.tmpPath)
	}
	if s.committed {
		return nil
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("replication: promote staging file: %w", err)
	}
	s.committed = true
	return nil
}

// Discard removes the staging file. It closes first if needed, is a no-op
// after Commit, and tolerates the staging file being gone already, so it
// is safe on every failure path.
func (s *FileSink) Discard() error {
	if s.committed {
		return nil
	}
	if !s.closed {
		s.closed = true
		s.f.Close()
	}
	if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replication: remove staging file: %w", err)
	}
	return nil
}

// Path returns the final path the sink commits to.
func (s *FileSink) Path() string { return s.path }

// LZ4Sink compresses everything written to it before forwarding to an
// inner sink. Close flushes the compressor, then closes the inner sink.
type LZ4Sink struct {
	zw     *lz4.Writer
	inner  io.WriteCloser
	closed bool
}

// NewLZ4Sink wraps inner.
func NewLZ4Sink(inner io.WriteCloser) *LZ4Sink {
	return &LZ4Sink{zw: lz4.NewWriter(inner), inner: inner}
}

func (s *LZ4Sink) Write(p []byte) (int, error) {
	return s.zw.Write(p)
}

func (s *LZ4Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	zerr := s.zw.Close()
	cerr := s.inner.Close()
	if zerr != nil {
		return fmt.Errorf("replication: flush compressor: %w", zerr)
	}
	return cerr
}

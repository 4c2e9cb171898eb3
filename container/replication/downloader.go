package replication

import (
	"io"
)

// StreamDownloader drains one download stream into a sink. It moves from
// open to closed on the first terminal event, whether that is a clean end
// of stream, a stream error or a sink write failure, and it closes the
// sink exactly once as part of that transition. Anything arriving after
// the transition is dropped.
//
// A StreamDownloader serves a single stream and is driven by one
// goroutine; it is not safe for concurrent use.
type StreamDownloader struct {
	containerID uint64
	sink        io.WriteCloser
	written     int64
	closed      bool
}

// NewStreamDownloader builds a downloader that writes the replica of
// containerID to sink. The downloader owns sink from here on and will
// close it on every terminal path.
func NewStreamDownloader(containerID uint64, sink io.WriteCloser) *StreamDownloader {
	return &StreamDownloader{containerID: containerID, sink: sink}
}

// BytesWritten returns how many bytes have reached the sink.
func (d *StreamDownloader) BytesWritten() int64 { return d.written }

// Drain consumes stream until a terminal event and returns the download
// result: nil after a clean end of stream with the sink closed, an error
// after a stream or sink failure with the sink equally closed.
func (d *StreamDownloader) Drain(stream IntraDatanode_DownloadClient) error {
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return d.finish()
		}
		if err != nil {
			return d.fail(err)
		}
		if werr := d.onChunk(resp); werr != nil {
			return werr
		}
	}
}

// onChunk appends one chunk to the sink. A write failure closes the sink
// and poisons the downloader; chunks arriving after the terminal
// transition are dropped.
func (d *StreamDownloader) onChunk(resp *CopyContainerResponse) error {
	if d.closed {
		log.WithField("container", d.containerID).Debug("dropping chunk received after stream close")
		return nil
	}
	n, err := d.sink.Write(resp.Data)
	d.written += int64(n)
	if err != nil {
		d.closeSink()
		return wrapError(KindSinkWrite, err, "write chunk of container %d at offset %d", d.containerID, resp.ReadOffset)
	}
	return nil
}

// finish handles a clean end of stream. A sink close failure at this
// point still fails the download: the bytes may not all be durable.
func (d *StreamDownloader) finish() error {
	if err := d.closeSink(); err != nil {
		return wrapError(KindSinkWrite, err, "close sink of container %d", d.containerID)
	}
	return nil
}

// fail handles a stream failure. The sink is closed on the prefix written
// so far; a close failure on this path is logged, the stream failure is
// what the caller gets.
func (d *StreamDownloader) fail(cause error) error {
	if err := d.closeSink(); err != nil {
		log.WithError(err).WithField("container", d.containerID).
			Warn("closing sink after failed download also failed")
	}
	return streamError(d.containerID, cause)
}

func (d *StreamDownloader) closeSink() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sink.Close()
}

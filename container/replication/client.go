// Package replication moves container replicas between datanodes: a
// client that fetches the packed bytes of one container from a peer over a
// single gRPC server stream and hands them, in arrival order, to a local
// sink, plus the serving half that streams local replicas out.
//
// The wire protocol is the intra-datanode download call of the datanode
// container protocol. Replica payloads are opaque here; packing and
// unpacking them belongs to the layers above.
package replication

import (
	"context"
	"crypto/x509"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/Reidddddd/ozone/container"
	"github.com/Reidddddd/ozone/security"
)

var log = logrus.WithField("component", "replication")

// DefaultGracePeriod is how long Shutdown waits for an in-flight download
// before canceling it.
const DefaultGracePeriod = 5 * time.Second

// Options tunes a Client. The zero value picks the package defaults.
type Options struct {
	// MaxMessageSize bounds one inbound stream frame; values <= 0 mean
	// DefaultMaxMessageSize.
	MaxMessageSize int

	// GracePeriod bounds how long Shutdown waits for an in-flight
	// download; values <= 0 mean DefaultGracePeriod.
	GracePeriod time.Duration
}

// Client downloads container replicas from one peer datanode.
//
// A Client owns a single channel to its peer and runs one download at a
// time; a second Download while one is in flight fails with ErrInFlight
// rather than queueing behind it. All methods are safe for concurrent
// use.
type Client struct {
	target     string
	workingDir string
	grace      time.Duration

	cc   *grpc.ClientConn
	stub IntraDatanodeClient

	mu       sync.Mutex
	inFlight bool
	closed   bool
	cancel   context.CancelFunc
	active   sync.WaitGroup

	shutdownOnce sync.Once
}

// NewClient builds a replication client for the peer at host:port.
// workingDir is where staged downloads from this peer land, see
// Client.FileSink. Construction performs no network activity; a broken
// security profile is reported here, before any connection attempt.
func NewClient(host string, port int, workingDir string, sec *security.Config, trustAnchor *x509.Certificate, opts Options) (*Client, error) {
	cc, err := NewChannel(host, port, sec, trustAnchor, opts.MaxMessageSize)
	if err != nil {
		return nil, err
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Client{
		target:     net.JoinHostPort(host, strconv.Itoa(port)),
		workingDir: workingDir,
		grace:      grace,
		cc:         cc,
		stub:       NewIntraDatanodeClient(cc),
	}, nil
}

// Target returns the peer address the client talks to.
func (c *Client) Target() string { return c.target }

// WorkingDir returns the staging directory given at construction.
func (c *Client) WorkingDir() string { return c.workingDir }

// FileSink creates the staging file sink for cd under the client's
// working directory.
func (c *Client) FileSink(cd container.ContainerData) (*FileSink, error) {
	return NewFileSink(filepath.Join(c.workingDir, ContainerFileName(cd.ID)))
}

// Download fetches the full replica of cd from the peer and writes it to
// sink, blocking until the transfer reaches a terminal state. On success
// sink has received every chunk in arrival order and been closed exactly
// once. On failure sink holds a prefix of the replica, possibly empty,
// has still been closed exactly once, and the error says what went wrong:
// KindTransfer for stream failures, KindSinkWrite for local write
// failures. ctx cancellation aborts the stream and surfaces as a
// KindTransfer error.
//
// A Download while another is in flight returns ErrInFlight, and a
// Download after Shutdown returns ErrClosed; in both cases sink is not
// touched and the caller keeps ownership of it.
func (c *Client) Download(ctx context.Context, cd container.ContainerData, sink io.WriteCloser) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.cancel = cancel
	c.active.Add(1)
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.inFlight = false
		c.cancel = nil
		c.mu.Unlock()
		c.active.Done()
	}()

	log.WithFields(logrus.Fields{"container": cd.ID, "peer": c.target}).Debug("starting replica download")

	dl := NewStreamDownloader(cd.ID, sink)
	stream, err := c.stub.Download(ctx, &CopyContainerRequest{
		ContainerID: cd.ID,
		ReadOffset:  0,
		Length:      ReadToEnd,
	})
	if err != nil {
		return dl.fail(err)
	}
	if err := dl.Drain(stream); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"container": cd.ID,
		"peer":      c.target,
		"bytes":     dl.BytesWritten(),
	}).Debug("replica download complete")
	return nil
}

// Shutdown closes the client. It waits up to the grace period for an
// in-flight download to finish, cancels the download if the grace period
// expires, then closes the channel. Shutdown never fails; problems are
// logged. Download calls made after Shutdown return ErrClosed, and
// repeated Shutdown calls are no-ops that wait for the first to finish.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			c.active.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(c.grace):
			log.WithFields(logrus.Fields{"peer": c.target, "grace": c.grace}).
				Warn("download still running at end of shutdown grace period, canceling")
			c.mu.Lock()
			if c.cancel != nil {
				c.cancel()
			}
			c.mu.Unlock()
			select {
			case <-done:
			case <-time.After(c.grace):
				log.WithField("peer", c.target).Error("download did not stop after cancellation")
			}
		}

		if err := c.cc.Close(); err != nil {
			log.WithError(wrapError(KindShutdown, err, "close channel to %s", c.target)).
				Error("replication client shutdown failed")
		}
	})
}

// Close shuts the client down and reports no error. It exists so a Client
// fits io.Closer and the usual scoped cleanup helpers.
func (c *Client) Close() error {
	c.Shutdown()
	return nil
}

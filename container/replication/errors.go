package replication

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies replication failures by the stage that produced them.
type Kind string

const (
	// KindConfiguration covers invalid transport configuration, caught
	// before any network activity.
	KindConfiguration Kind = "configuration"
	// KindTLSSetup covers present but unusable TLS material.
	KindTLSSetup Kind = "tls-setup"
	// KindTransfer covers stream failures between request and final
	// chunk, including peers that reset, vanish or reject the request.
	KindTransfer Kind = "transfer"
	// KindSinkWrite covers local sink write and close failures.
	KindSinkWrite Kind = "sink-write"
	// KindShutdown covers failures while tearing a client down. They are
	// logged, never returned.
	KindShutdown Kind = "shutdown"
)

// Error is the error type surfaced by this package. Kind tells callers
// which stage failed without string matching; Cause preserves the
// underlying error for errors.Is and errors.As chains.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err is, or wraps, a replication Error of kind k.
func IsKind(err error, k Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == k
}

func wrapError(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

var (
	// ErrInFlight is returned by Download while another download on the
	// same client is still running.
	ErrInFlight = errors.New("replication: download already in flight")

	// ErrClosed is returned by Download after Shutdown.
	ErrClosed = errors.New("replication: client is shut down")

	// ErrContainerNotFound reports that the requested container does not
	// exist, locally for sources or on the peer for downloads.
	ErrContainerNotFound = errors.New("replication: container not found")
)

// streamError turns a raw stream failure into the error a Download caller
// sees. Status codes with a crisper meaning than "transfer failed" are
// translated; everything else is wrapped as a transfer failure.
func streamError(containerID uint64, cause error) error {
	if st, ok := status.FromError(cause); ok {
		switch st.Code() {
		case codes.NotFound:
			return wrapError(KindTransfer, ErrContainerNotFound, "download container %d", containerID)
		case codes.Canceled, codes.DeadlineExceeded:
			return wrapError(KindTransfer, cause, "download of container %d interrupted", containerID)
		}
	}
	return wrapError(KindTransfer, cause, "download container %d", containerID)
}

package replication

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultChunkSize is the frame size replicas are streamed out in. It sits
// far below the inbound message ceiling so a frame never trips a client's
// size guard.
const DefaultChunkSize = 1024 * 1024

// Server is the serving half of container replication: it answers
// download calls by streaming packed replica bytes out of a
// ContainerSource in fixed size chunks, honoring the request's read
// offset and length.
type Server struct {
	UnimplementedIntraDatanodeServer

	// Source provides local replicas. Required.
	Source ContainerSource

	// ChunkSize overrides DefaultChunkSize when positive.
	ChunkSize int
}

// Download implements IntraDatanodeServer.
func (s *Server) Download(req *CopyContainerRequest, stream IntraDatanode_DownloadServer) error {
	if s.Source == nil {
		return status.Error(codes.FailedPrecondition, "replication server has no container source")
	}
	if req.ReadOffset < 0 {
		return status.Error(codes.InvalidArgument, "negative read offset")
	}
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	rc, err := s.Source.Open(req.ContainerID)
	if errors.Is(err, ErrContainerNotFound) {
		return status.Errorf(codes.NotFound, "container %d not found", req.ContainerID)
	}
	if err != nil {
		return status.Errorf(codes.Internal, "open container %d: %v", req.ContainerID, err)
	}
	defer rc.Close()

	log.WithFields(logrus.Fields{
		"container": req.ContainerID,
		"offset":    req.ReadOffset,
		"length":    req.Length,
	}).Debug("streaming replica to peer")

	offset := req.ReadOffset
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
			if err == io.EOF {
				// Offset at or past the end of the replica: nothing to send.
				return nil
			}
			return status.Errorf(codes.Internal, "seek container %d: %v", req.ContainerID, err)
		}
	}

	// A negative length means everything up to the end of the replica.
	remaining := req.Length

	buf := make([]byte, chunk)
	for remaining != 0 {
		readLen := int64(chunk)
		if remaining > 0 && remaining < readLen {
			readLen = remaining
		}
		n, rerr := rc.Read(buf[:readLen])
		if n > 0 {
			resp := &CopyContainerResponse{
				ContainerID: req.ContainerID,
				ReadOffset:  offset,
				Data:        buf[:n],
			}
			if serr := stream.Send(resp); serr != nil {
				return serr
			}
			offset += int64(n)
			if remaining > 0 {
				remaining -= int64(n)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return status.Errorf(codes.Internal, "read container %d: %v", req.ContainerID, rerr)
		}
	}
	return nil
}

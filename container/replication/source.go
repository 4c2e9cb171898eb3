package replication

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ContainerSource is what a replication server serves from: a way to open
// the packed bytes of a local container replica.
type ContainerSource interface {
	// Open returns a reader over the packed replica of containerID. It
	// returns an error wrapping ErrContainerNotFound when the container
	// is not present locally.
	Open(containerID uint64) (io.ReadCloser, error)
}

// DirectorySource serves packed replicas straight from files in one
// directory, laid out by ContainerFileName. It pairs with FileSink: a
// directory of committed downloads can be served on to further peers
// as-is.
type DirectorySource struct {
	dir string
}

// NewDirectorySource builds a source over dir, which must exist.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("replication: source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("replication: source path %s is not a directory", dir)
	}
	return &DirectorySource{dir: dir}, nil
}

// Open implements ContainerSource.
func (s *DirectorySource) Open(containerID uint64) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, ContainerFileName(containerID)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: container %d in %s", ErrContainerNotFound, containerID, s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("replication: open container %d: %w", containerID, err)
	}
	return f, nil
}

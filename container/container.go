// Package container carries the minimal description of a storage container
// that replication needs, plus a small ledger of replication attempts.
package container

import "fmt"

// ContainerData identifies one container replica to download. The replica
// payload itself is opaque to replication; only the numeric ID travels on
// the wire.
type ContainerData struct {
	// ID is the cluster wide container identifier.
	ID uint64

	// OriginNodeID names the node the replica is fetched from. It is
	// bookkeeping only and never sent to the peer.
	OriginNodeID string
}

func (c ContainerData) String() string {
	return fmt.Sprintf("container #%d", c.ID)
}

package replication

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire messages of the download call. They are hand encoded with protowire
// so this package carries no protoc or codegen toolchain, and the field
// numbers are fixed so the frames stay readable by standard protobuf
// tooling.

// ReadToEnd, used as a request length, asks the peer for everything from
// the read offset to the end of the replica.
const ReadToEnd int64 = -1

// CopyContainerRequest asks a peer to stream the packed bytes of one
// container replica.
type CopyContainerRequest struct {
	ContainerID uint64
	ReadOffset  int64
	Length      int64
}

func (m *CopyContainerRequest) marshal(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.ContainerID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ReadOffset))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Length))
	return b
}

func (m *CopyContainerRequest) unmarshal(b []byte) error {
	*m = CopyContainerRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ContainerID = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ReadOffset = int64(v)
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Length = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// CopyContainerResponse carries one chunk of replica data. Chunks arrive
// in offset order and a clean end of stream is the end of data signal, so
// there is no explicit EOF field.
type CopyContainerResponse struct {
	ContainerID uint64
	ReadOffset  int64
	Data        []byte
}

func (m *CopyContainerResponse) marshal(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.ContainerID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ReadOffset))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Data)
	return b
}

func (m *CopyContainerResponse) unmarshal(b []byte) error {
	*m = CopyContainerResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ContainerID = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ReadOffset = int64(v)
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// codecName is the gRPC content subtype both halves of the download call
// use. The client requests it per call; the server resolves it from the
// codec registry.
const codecName = "ozone"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

type wireMessage interface {
	marshal([]byte) []byte
	unmarshal([]byte) error
}

type wireCodec struct{}

func (wireCodec) Name() string { return codecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("replication: codec cannot marshal %T", v)
	}
	return m.marshal(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("replication: codec cannot unmarshal %T", v)
	}
	return m.unmarshal(data)
}

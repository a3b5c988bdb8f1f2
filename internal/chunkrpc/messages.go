package chunkrpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every request and reply of the chunk service.
// Encoding follows the protobuf wire format so the service stays readable by
// any protobuf tooling given the field numbers below.
type Message interface {
	MarshalWire() []byte
	UnmarshalWire(b []byte) error
}

type PutChunkRequest struct {
	ChunkID  string // 1
	Data     []byte // 2
	Checksum string // 3
}

type PutChunkReply struct {
	Used int64 // 1
}

type GetChunkRequest struct {
	ChunkID string // 1
}

type GetChunkReply struct {
	Data     []byte // 1
	Checksum string // 2
}

type DeleteChunkRequest struct {
	ChunkID string // 1
}

type DeleteChunkReply struct {
	Existed bool // 1
}

type ListChunksRequest struct{}

type ListChunksReply struct {
	ChunkIDs []string // 1, repeated
}

type StatRequest struct{}

type StatReply struct {
	NodeID   string // 1
	Capacity int64  // 2
	Used     int64  // 3
	Chunks   int64  // 4
}

// ChunkRecord is the node's on-disk value for one chunk.
type ChunkRecord struct {
	Checksum string // 1
	Data     []byte // 2
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// fields walks b calling fn for each field; fn returns the bytes it consumed
// or 0 to let the field be skipped.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("chunkrpc: wire type %v for string field", typ)
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("chunkrpc: wire type %v for bytes field", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("chunkrpc: wire type %v for varint field", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func (m *PutChunkRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.ChunkID)
	b = appendBytes(b, 2, m.Data)
	b = appendString(b, 3, m.Checksum)
	return b
}

func (m *PutChunkRequest) UnmarshalWire(b []byte) error {
	*m = PutChunkRequest{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.ChunkID)
		case 2:
			return consumeBytes(typ, b, &m.Data)
		case 3:
			return consumeString(typ, b, &m.Checksum)
		}
		return 0, nil
	})
}

func (m *PutChunkReply) MarshalWire() []byte {
	return appendVarint(nil, 1, uint64(m.Used))
}

func (m *PutChunkReply) UnmarshalWire(b []byte) error {
	*m = PutChunkReply{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			m.Used = int64(v)
			return n, err
		}
		return 0, nil
	})
}

func (m *GetChunkRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.ChunkID)
}

func (m *GetChunkRequest) UnmarshalWire(b []byte) error {
	*m = GetChunkRequest{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.ChunkID)
		}
		return 0, nil
	})
}

func (m *GetChunkReply) MarshalWire() []byte {
	var b []byte
	b = appendBytes(b, 1, m.Data)
	b = appendString(b, 2, m.Checksum)
	return b
}

func (m *GetChunkReply) UnmarshalWire(b []byte) error {
	*m = GetChunkReply{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Data)
		case 2:
			return consumeString(typ, b, &m.Checksum)
		}
		return 0, nil
	})
}

func (m *DeleteChunkRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.ChunkID)
}

func (m *DeleteChunkRequest) UnmarshalWire(b []byte) error {
	*m = DeleteChunkRequest{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.ChunkID)
		}
		return 0, nil
	})
}

func (m *DeleteChunkReply) MarshalWire() []byte {
	if !m.Existed {
		return nil
	}
	return appendVarint(nil, 1, 1)
}

func (m *DeleteChunkReply) UnmarshalWire(b []byte) error {
	*m = DeleteChunkReply{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			m.Existed = v != 0
			return n, err
		}
		return 0, nil
	})
}

func (m *ListChunksRequest) MarshalWire() []byte { return nil }

func (m *ListChunksRequest) UnmarshalWire(b []byte) error {
	return fields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil })
}

func (m *ListChunksReply) MarshalWire() []byte {
	var b []byte
	for _, id := range m.ChunkIDs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	return b
}

func (m *ListChunksReply) UnmarshalWire(b []byte) error {
	*m = ListChunksReply{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			var id string
			n, err := consumeString(typ, b, &id)
			m.ChunkIDs = append(m.ChunkIDs, id)
			return n, err
		}
		return 0, nil
	})
}

func (m *StatRequest) MarshalWire() []byte { return nil }

func (m *StatRequest) UnmarshalWire(b []byte) error {
	return fields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil })
}

func (m *StatReply) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.NodeID)
	b = appendVarint(b, 2, uint64(m.Capacity))
	b = appendVarint(b, 3, uint64(m.Used))
	b = appendVarint(b, 4, uint64(m.Chunks))
	return b
}

func (m *StatReply) UnmarshalWire(b []byte) error {
	*m = StatReply{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			return consumeString(typ, b, &m.NodeID)
		case 2:
			n, err = consumeVarint(typ, b, &v)
			m.Capacity = int64(v)
		case 3:
			n, err = consumeVarint(typ, b, &v)
			m.Used = int64(v)
		case 4:
			n, err = consumeVarint(typ, b, &v)
			m.Chunks = int64(v)
		}
		return n, err
	})
}

func (m *ChunkRecord) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Checksum)
	b = appendBytes(b, 2, m.Data)
	return b
}

func (m *ChunkRecord) UnmarshalWire(b []byte) error {
	*m = ChunkRecord{}
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Checksum)
		case 2:
			return consumeBytes(typ, b, &m.Data)
		}
		return 0, nil
	})
}

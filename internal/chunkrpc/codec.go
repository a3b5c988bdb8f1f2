package chunkrpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "dfswire"

// wireCodec lets gRPC carry Message values without generated stubs.
type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("chunkrpc: cannot marshal %T", v)
	}
	return m.MarshalWire(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("chunkrpc: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

func (wireCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(wireCodec{})
}

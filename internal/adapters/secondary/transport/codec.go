// Package transport provides the gRPC plumbing shared by the certifier
// service and the applications of certified nodes: the protobuf wire codec,
// connection options and the mutually authenticated secure channel.
package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the protobuf wire codec. Both
// sides select it with the "application/grpc+protowire" content type.
const CodecName = "protowire"

// WireMessage is a message that encodes itself in protobuf wire format.
type WireMessage interface {
	AppendWire(b []byte) []byte
	ConsumeWire(b []byte) error
}

type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(WireMessage)
	if !ok {
		return nil, fmt.Errorf("%s codec: cannot marshal %T", CodecName, v)
	}
	return m.AppendWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(WireMessage)
	if !ok {
		return fmt.Errorf("%s codec: cannot unmarshal into %T", CodecName, v)
	}
	if err := m.ConsumeWire(data); err != nil {
		return fmt.Errorf("%s codec: %w", CodecName, err)
	}
	return nil
}

func (wireCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}

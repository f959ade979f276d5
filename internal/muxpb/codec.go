package muxpb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as the content-subtype used on every call this
// package makes or serves, via grpc.CallContentSubtype(codecName) on the
// client side and automatically on the server side once registered.
const codecName = "json"

// jsonCodec implements encoding.Codec over Go's standard JSON encoder. It
// stands in for the protobuf wire codec protoc-gen-go would normally
// generate: there is no .proto source for this service's superset surface,
// so messages are plain Go structs (see types.go) marshaled as JSON instead
// of binary protobuf.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// errUnexpectedType is returned by generic handlers when a decoded message
// does not match the expected pointer type -- should be unreachable given
// the codec above always targets the type the caller allocated.
func errUnexpectedType(want, got interface{}) error {
	return fmt.Errorf("muxpb: unexpected message type: want %T, got %T", want, got)
}

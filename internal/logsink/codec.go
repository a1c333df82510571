package logsink

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec is a gRPC message codec using CBOR. Both ends force it on the
// Subscribe stream instead of the default proto codec, so no generated
// message types are needed.
type Codec struct{}

// Name implements encoding.Codec.
func (Codec) Name() string { return "cbor" }

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding keeps map key order stable so wire bytes
	// are reproducible in tests.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		// Point clouds regularly exceed the default array limits.
		MaxArrayElements: 1 << 22,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor unmarshal %T: %w", v, err)
	}
	return nil
}

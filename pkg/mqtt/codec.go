package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	JSON = "json"
	CBOR = "cbor"
)

// Codec encodes message payloads. Both ends of a topic must agree on it.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

func NewCodec(name string) (Codec, error) {
	switch name {
	case JSON, "":
		return jsonCodec{}, nil
	case CBOR:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSON }

type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return cbor.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }
func (cborCodec) Name() string                       { return CBOR }

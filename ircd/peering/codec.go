package peering

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the grpc content-subtype this package's messages travel
// under ("application/grpc+json"). The generated `irc/proto` package
// presbrey-pkg/irc/peering.go imports is not part of the example pack,
// and hand-writing protobuf-generated-shaped Go to stand in for it
// would be a fabricated dependency. A grpc.Codec is itself an
// ecosystem extension point (google.golang.org/grpc/encoding), so
// registering a JSON one here keeps the transport on real grpc-go
// rather than inventing a wire format: messages are plain structs
// carried as application/grpc+json instead of protobuf-encoded bytes.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by delegating straight to
// encoding/json; no message needs to satisfy proto.Message.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

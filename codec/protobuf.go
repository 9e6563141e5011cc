package codec

import "google.golang.org/protobuf/proto"

// Protobuf serializes proto.Message entities, for apps whose remote store
// already speaks protobuf schemas. Decode must unmarshal into a concrete
// message value, so the codec is built around a constructor for T.
type Protobuf[T proto.Message] struct {
	new func() T
}

// NewProtobuf returns a codec that allocates fresh messages with ctor,
// e.g. NewProtobuf(func() *pb.Meal { return &pb.Meal{} }).
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

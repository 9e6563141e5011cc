package codec

// Codec converts entity values to and from the opaque byte payloads held in
// the local store and in query-cache frames. Encode/Decode must round-trip:
// the dispatcher persists what Encode produced and hands it back to Decode
// on every read path.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

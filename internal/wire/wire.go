// Package wire frames query-cache entries. A frame carries the auth
// generation observed when the result set was fetched plus the ordered
// member payloads; readers reject the whole frame when the generation no
// longer matches, so a sign-out invalidates every cached query at once.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("wire: corrupt frame")
	magic4     = [...]byte{'N', 'S', 'Y', 'N'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Item is one member of a cached result set, in result order.
type Item struct {
	ID      string
	Payload []byte
}

// Frame layout:
//
//	magic(4) | ver(1) | gen(u64 be) | n(u32 be)
//	idLen(u16 be) | id(idLen) | vlen(u32 be) | payload(vlen)   * n
func EncodeList(gen uint64, items []Item) []byte {
	total := 4 + 1 + 8 + 4
	for _, it := range items {
		total += 2 + len(it.ID) + 4 + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		if l := len(it.ID); l == 0 || l > 0xFFFF {
			panic("wire: invalid id length in list frame")
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(it.ID)))
		buf.Write(u2[:])
		buf.WriteString(it.ID)

		binary.BigEndian.PutUint32(u4[:], uint32(len(it.Payload)))
		buf.Write(u4[:])
		buf.Write(it.Payload)
	}

	return buf.Bytes()
}

func DecodeList(b []byte) (gen uint64, items []Item, err error) {
	const hdr = 4 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return 0, nil, ErrCorrupt
	}

	off := 5

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// The count is untrusted. Each item needs at least 6 framing bytes, so a
	// count the remaining bytes cannot hold is corruption; reject it before
	// sizing the slice.
	if n > (len(b)-hdr)/6 {
		return 0, nil, ErrCorrupt
	}

	items = make([]Item, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return 0, nil, ErrCorrupt
		}
		idLen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if idLen <= 0 || idLen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		idBytes := b[off : off+idLen]
		off += idLen

		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
			return 0, nil, ErrCorrupt
		}

		payload := b[off : off+vlen]
		off += vlen

		items = append(items, Item{
			ID:      string(idBytes), // one expected alloc per item
			Payload: payload,
		})
	}

	return gen, items, nil
}

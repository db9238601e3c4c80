package hep

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

const (
	// HeaderLen is the fixed size of both the packet header and every chunk header.
	HeaderLen = 6

	// MaxLen is the largest value a 16-bit length field can carry.
	MaxLen = 0xFFFF

	// MaxPayload is the largest payload a single chunk can carry.
	MaxPayload = MaxLen - HeaderLen

	// VendorGeneric is the vendor ID of the standard chunk set.
	VendorGeneric uint16 = 0x0000

	macLen = 6
)

// Chunk is one TLV record of a HEP3 packet.
//
// The length field is derived from the payload on encode, so a Chunk always
// satisfies length == 6 + len(Payload).
type Chunk struct {
	VendorID uint16
	Type     ChunkType
	Payload  []byte
}

// Len returns the encoded size of the chunk, header included.
func (c Chunk) Len() int {
	return HeaderLen + len(c.Payload)
}

// WithVendor returns a copy of c stamped with vendor.
func (c Chunk) WithVendor(vendor uint16) Chunk {
	c.VendorID = vendor
	return c
}

// Encode serialises the chunk into a new buffer.
func (c Chunk) Encode() ([]byte, error) {
	return c.AppendTo(make([]byte, 0, c.Len()))
}

// AppendTo appends the encoded chunk to dst.
func (c Chunk) AppendTo(dst []byte) ([]byte, error) {
	if len(c.Payload) > MaxPayload {
		return dst, fmt.Errorf("%w: chunk %s carries %d bytes, max %d",
			ErrPayloadTooLarge, c.Type, len(c.Payload), MaxPayload)
	}
	dst = binary.BigEndian.AppendUint16(dst, c.VendorID)
	dst = binary.BigEndian.AppendUint16(dst, uint16(c.Type))
	dst = binary.BigEndian.AppendUint16(dst, uint16(c.Len()))
	return append(dst, c.Payload...), nil
}

// DecodeChunk parses the chunk at the start of b and returns it together with
// the number of bytes consumed. The returned payload does not alias b.
func DecodeChunk(b []byte) (Chunk, int, error) {
	if len(b) < HeaderLen {
		return Chunk{}, 0, fmt.Errorf("%w: header needs %d bytes, have %d",
			ErrMalformedChunk, HeaderLen, len(b))
	}
	length := int(binary.BigEndian.Uint16(b[4:6]))
	if length < HeaderLen {
		return Chunk{}, 0, fmt.Errorf("%w: declared length %d below header size",
			ErrMalformedChunk, length)
	}
	if length > len(b) {
		return Chunk{}, 0, fmt.Errorf("%w: declared length %d, have %d bytes",
			ErrMalformedChunk, length, len(b))
	}

	payload := make([]byte, length-HeaderLen)
	copy(payload, b[HeaderLen:length])
	return Chunk{
		VendorID: binary.BigEndian.Uint16(b[0:2]),
		Type:     ChunkType(binary.BigEndian.Uint16(b[2:4])),
		Payload:  payload,
	}, length, nil
}

// ─── Typed accessors ───────────────────────────────────────────────────────

func (c Chunk) expectWidth(n int) error {
	if len(c.Payload) != n {
		return fmt.Errorf("%w: chunk %s payload is %d bytes, want %d",
			ErrMalformedChunk, c.Type, len(c.Payload), n)
	}
	return nil
}

// Uint8 reads a 1-byte payload.
func (c Chunk) Uint8() (uint8, error) {
	if err := c.expectWidth(1); err != nil {
		return 0, err
	}
	return c.Payload[0], nil
}

// Uint16 reads a 2-byte big-endian payload.
func (c Chunk) Uint16() (uint16, error) {
	if err := c.expectWidth(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.Payload), nil
}

// Uint32 reads a 4-byte big-endian payload.
func (c Chunk) Uint32() (uint32, error) {
	if err := c.expectWidth(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(c.Payload), nil
}

// MAC reads a 6-byte hardware address into the low 48 bits of a uint64.
func (c Chunk) MAC() (uint64, error) {
	if err := c.expectWidth(macLen); err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range c.Payload {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// Addr reads a 4-byte IPv4 or 16-byte IPv6 payload.
func (c Chunk) Addr() (netip.Addr, error) {
	switch len(c.Payload) {
	case 4:
		return netip.AddrFrom4([4]byte(c.Payload)), nil
	case 16:
		return netip.AddrFrom16([16]byte(c.Payload)), nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: chunk %s payload is %d bytes, want 4 or 16",
			ErrMalformedChunk, c.Type, len(c.Payload))
	}
}

// Text returns the payload as a string.
func (c Chunk) Text() string {
	return string(c.Payload)
}

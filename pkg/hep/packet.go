package hep

import (
	"encoding/binary"
	"fmt"
)

// Magic is the packet identifier, ASCII "HEP3".
const Magic uint32 = 0x48455033

// Packet is a HEP3 envelope: the magic id, a total length and an ordered chunk
// sequence. Chunks keep their insertion order; duplicate types are allowed.
type Packet struct {
	Chunks []Chunk
}

// Len returns the encoded size of the packet: 6 + the sum of chunk lengths.
func (p *Packet) Len() int {
	n := HeaderLen
	for _, c := range p.Chunks {
		n += c.Len()
	}
	return n
}

// Encode serialises the packet. The result is exactly Len() bytes long.
func (p *Packet) Encode() ([]byte, error) {
	total := p.Len()
	if total > MaxLen {
		return nil, fmt.Errorf("%w: packet is %d bytes, max %d", ErrPayloadTooLarge, total, MaxLen)
	}

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint32(buf, Magic)
	buf = binary.BigEndian.AppendUint16(buf, uint16(total))

	var err error
	for _, c := range p.Chunks {
		if buf, err = c.AppendTo(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Find returns the first chunk of type t.
func (p *Packet) Find(t ChunkType) (Chunk, bool) {
	for _, c := range p.Chunks {
		if c.Type == t {
			return c, true
		}
	}
	return Chunk{}, false
}

// FindAll returns every chunk of type t in packet order.
func (p *Packet) FindAll(t ChunkType) []Chunk {
	var out []Chunk
	for _, c := range p.Chunks {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// DecodePacket parses one HEP3 packet from the start of b. Bytes past the
// declared total length are ignored so that stream readers can pass a
// buffer holding more than one packet.
func DecodePacket(b []byte) (*Packet, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrMalformedPacket, HeaderLen, len(b))
	}
	if magic := binary.BigEndian.Uint32(b[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformedPacket, magic)
	}
	total := int(binary.BigEndian.Uint16(b[4:6]))
	if total < HeaderLen || total > len(b) {
		return nil, fmt.Errorf("%w: declared length %d, have %d bytes", ErrMalformedPacket, total, len(b))
	}

	p := &Packet{}
	for off := HeaderLen; off < total; {
		c, n, err := DecodeChunk(b[off:total])
		if err != nil {
			return nil, fmt.Errorf("chunk at offset %d: %w", off, err)
		}
		p.Chunks = append(p.Chunks, c)
		off += n
	}
	return p, nil
}

// PacketLen reports the total length declared by the packet header at the
// start of b, for framing HEP3 over a byte stream.
func PacketLen(b []byte) (int, error) {
	if len(b) < HeaderLen {
		return 0, fmt.Errorf("%w: header needs %d bytes, have %d", ErrMalformedPacket, HeaderLen, len(b))
	}
	if magic := binary.BigEndian.Uint32(b[0:4]); magic != Magic {
		return 0, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformedPacket, magic)
	}
	total := int(binary.BigEndian.Uint16(b[4:6]))
	if total < HeaderLen {
		return 0, fmt.Errorf("%w: declared length %d below header size", ErrMalformedPacket, total)
	}
	return total, nil
}

package hep

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
)

func TestPacketPayloadChunkBytes(t *testing.T) {
	c, err := PacketPayloadChunk([]byte{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("PacketPayloadChunk: %v", err)
	}
	if c.VendorID != 0x0000 || c.Type != 0x000f || c.Len() != 11 {
		t.Errorf("chunk = vendor %#04x type %#04x len %d, want 0x0000 0x000f 11", c.VendorID, c.Type, c.Len())
	}

	got, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x0f, 0x00, 0x0b, 1, 2, 3, 4, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = %v, want %v", got, want)
	}
}

func TestDecodeChunk(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x00, 0x07, 0x00, 0x08, 0x13, 0xc4, 0xff}

	c, n, err := DecodeChunk(raw)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if n != 8 {
		t.Errorf("consumed = %d, want 8", n)
	}
	if c.VendorID != 1 || c.Type != SourcePort {
		t.Errorf("header = vendor %d type %s", c.VendorID, c.Type)
	}
	port, err := c.Uint16()
	if err != nil || port != 5060 {
		t.Errorf("Uint16 = %d, %v; want 5060", port, err)
	}

	// The decoded payload must not alias the input.
	raw[6] = 0
	if c.Payload[0] != 0x13 {
		t.Error("payload aliases input buffer")
	}
}

func TestDecodeChunk_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short header", []byte{0, 0, 0, 1, 0}},
		{"length below header", []byte{0, 0, 0, 1, 0, 5}},
		{"zero length", []byte{0, 0, 0, 1, 0, 0}},
		{"truncated payload", []byte{0, 0, 0, 1, 0, 9, 1, 2}},
		{"max length short input", []byte{0, 0, 0, 1, 0xff, 0xff, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeChunk(tt.in)
			if !errors.Is(err, ErrMalformedChunk) {
				t.Errorf("err = %v, want ErrMalformedChunk", err)
			}
		})
	}
}

func TestDecodeChunk_EmptyPayload(t *testing.T) {
	c, n, err := DecodeChunk([]byte{0, 0, 0, 0x0e, 0, 6})
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if n != 6 || len(c.Payload) != 0 || c.Type != AuthKey {
		t.Errorf("got %+v consumed %d", c, n)
	}
}

func TestChunkEncode_TooLarge(t *testing.T) {
	c := Chunk{Type: PacketPayload, Payload: make([]byte, MaxPayload+1)}
	if _, err := c.Encode(); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestChunkAccessors_WidthMismatch(t *testing.T) {
	c := Chunk{Type: SourcePort, Payload: []byte{1, 2, 3}}

	if _, err := c.Uint8(); !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("Uint8 err = %v", err)
	}
	if _, err := c.Uint16(); !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("Uint16 err = %v", err)
	}
	if _, err := c.Uint32(); !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("Uint32 err = %v", err)
	}
	if _, err := c.MAC(); !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("MAC err = %v", err)
	}
	if _, err := c.Addr(); !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("Addr err = %v", err)
	}
}

func TestChunkAddr(t *testing.T) {
	v4 := IPv4SourceAddressChunk([4]byte{192, 168, 1, 10})
	if a, err := v4.Addr(); err != nil || a != netip.MustParseAddr("192.168.1.10") {
		t.Errorf("v4 Addr = %v, %v", a, err)
	}

	want6 := netip.MustParseAddr("2001:db8::1")
	v6 := IPv6TargetAddressChunk(want6.As16())
	if a, err := v6.Addr(); err != nil || a != want6 {
		t.Errorf("v6 Addr = %v, %v", a, err)
	}
}

func TestWithVendor(t *testing.T) {
	c := SourcePortChunk(5060).WithVendor(0x0020)
	b, _ := c.Encode()
	if b[0] != 0x00 || b[1] != 0x20 {
		t.Errorf("vendor bytes = %v, want [0 32]", b[:2])
	}
}

func TestChunkTypeString(t *testing.T) {
	tests := map[ChunkType]string{
		SourcePort:      "source_port",
		PayloadJSON:     "payload_json",
		ChunkType(0x18): "reserved(0x0018)",
		ChunkType(0x1f): "reserved(0x001f)",
		ChunkType(0x30): "unknown(0x0030)",
	}
	for ct, want := range tests {
		if got := ct.String(); got != want {
			t.Errorf("%#04x.String() = %q, want %q", uint16(ct), got, want)
		}
	}
}

func TestRegistryValues(t *testing.T) {
	// Wire values are fixed by the protocol.
	if IPProtocolFamily != 0x01 || TCPFlag != 0x17 || MOSValue != 0x20 || PayloadJSON != 0x25 {
		t.Error("chunk type ids drifted from the protocol table")
	}
	if FamilyIPv4 != 0x02 || FamilyIPv6 != 0x0a || ProtoTCP != 0x06 || ProtoUDP != 0x11 {
		t.Error("sub-enumeration values drifted")
	}
	if SubProtoReserved != 0 || SubProtoSIP != 1 || SubProtoXMPP != 2 || SubProtoSDP != 3 {
		t.Error("sub-protocol values drifted")
	}
	for ct := ReservedFirst; ct <= ReservedLast; ct++ {
		if ct.IsKnown() {
			t.Errorf("reserved id %#04x is registered", uint16(ct))
		}
	}
}

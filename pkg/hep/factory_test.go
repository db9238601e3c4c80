package hep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip encodes c and decodes it back.
func roundTrip(t *testing.T, c Chunk) Chunk {
	t.Helper()
	b, err := c.Encode()
	require.NoError(t, err)
	require.Len(t, b, c.Len())

	out, n, err := DecodeChunk(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	return out
}

func TestFixedWidthRoundTrip(t *testing.T) {
	u8 := []struct {
		ctor func(uint8) Chunk
		typ  ChunkType
		v    uint8
	}{
		{IPProtocolFamilyChunk, IPProtocolFamily, FamilyIPv6},
		{IPProtocolIDChunk, IPProtocolID, ProtoUDP},
		{ProtocolTypeChunk, ProtocolType, SubProtoSIP},
	}
	for _, tt := range u8 {
		t.Run(tt.typ.String(), func(t *testing.T) {
			out := roundTrip(t, tt.ctor(tt.v))
			assert.Equal(t, tt.typ, out.Type)
			v, err := out.Uint8()
			require.NoError(t, err)
			assert.Equal(t, tt.v, v)
		})
	}

	u16 := []struct {
		ctor func(uint16) Chunk
		typ  ChunkType
		v    uint16
	}{
		{SourcePortChunk, SourcePort, 5060},
		{TargetPortChunk, TargetPort, 0xfffe},
		{KeepAliveTimerChunk, KeepAliveTimer, 30},
		{VlanIDChunk, VlanID, 4094},
		{EthernetTypeChunk, EthernetType, 0x86dd},
		{TCPFlagChunk, TCPFlag, 0x0012},
		{MOSValueChunk, MOSValue, 441},
		{RFactorChunk, RFactor, 93},
	}
	for _, tt := range u16 {
		t.Run(tt.typ.String(), func(t *testing.T) {
			c := tt.ctor(tt.v)
			assert.Equal(t, HeaderLen+2, c.Len())
			out := roundTrip(t, c)
			assert.Equal(t, tt.typ, out.Type)
			v, err := out.Uint16()
			require.NoError(t, err)
			assert.Equal(t, tt.v, v)
		})
	}

	u32 := []struct {
		ctor func(uint32) Chunk
		typ  ChunkType
		v    uint32
	}{
		{TimestampSecChunk, TimestampSec, 1717243200},
		{TimestampMicrosecOffsetChunk, TimestampMicrosecOffset, 500000},
		{CaptureAgentIDChunk, CaptureAgentID, 2001},
		{JitterChunk, Jitter, 0xdeadbeef},
	}
	for _, tt := range u32 {
		t.Run(tt.typ.String(), func(t *testing.T) {
			c := tt.ctor(tt.v)
			assert.Equal(t, HeaderLen+4, c.Len())
			out := roundTrip(t, c)
			assert.Equal(t, tt.typ, out.Type)
			v, err := out.Uint32()
			require.NoError(t, err)
			assert.Equal(t, tt.v, v)
		})
	}
}

func TestFixedWidthIsBigEndian(t *testing.T) {
	assert.Equal(t, []byte{0x13, 0xc4}, SourcePortChunk(5060).Payload)
	assert.Equal(t, []byte{0x00, 0x00, 0x07, 0xd1}, CaptureAgentIDChunk(2001).Payload)
}

func TestAddressChunks(t *testing.T) {
	v4 := [4]byte{10, 0, 0, 1}
	c := IPv4SourceAddressChunk(v4)
	assert.Equal(t, 10, c.Len())
	assert.Equal(t, v4[:], roundTrip(t, c).Payload)
	assert.Equal(t, IPv4TargetAddress, IPv4TargetAddressChunk(v4).Type)

	var v6 [16]byte
	v6[0], v6[15] = 0x20, 0x01
	c = IPv6SourceAddressChunk(v6)
	assert.Equal(t, 22, c.Len())
	assert.Equal(t, v6[:], roundTrip(t, c).Payload)
	assert.Equal(t, IPv6TargetAddress, IPv6TargetAddressChunk(v6).Type)
}

func TestMACChunkTruncatesToSixBytes(t *testing.T) {
	// High 16 bits must be dropped.
	c := SourceMACChunk(0xffff_aabbccddeeff)
	assert.Equal(t, 12, c.Len())
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, c.Payload)

	mac, err := roundTrip(t, c).MAC()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xaabbccddeeff), mac)

	assert.Equal(t, TargetMAC, TargetMACChunk(1).Type)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 1}, TargetMACChunk(1).Payload)
}

func TestVariableLengthChunks(t *testing.T) {
	ctors := []struct {
		ctor func([]byte) (Chunk, error)
		typ  ChunkType
	}{
		{AuthKeyChunk, AuthKey},
		{PacketPayloadChunk, PacketPayload},
		{GzipPacketPayloadChunk, GzipPacketPayload},
		{CorrelationIDChunk, CorrelationID},
		{GroupIDChunk, GroupID},
		{GeoLocationChunk, GeoLocation},
		{TransactionTypeChunk, TransactionType},
	}
	for _, tt := range ctors {
		t.Run(tt.typ.String(), func(t *testing.T) {
			empty, err := tt.ctor(nil)
			require.NoError(t, err)
			assert.Equal(t, HeaderLen, empty.Len())
			assert.Equal(t, tt.typ, empty.Type)

			full, err := tt.ctor(make([]byte, MaxPayload))
			require.NoError(t, err)
			assert.Equal(t, MaxLen, full.Len())
			b, err := full.Encode()
			require.NoError(t, err)
			assert.Equal(t, []byte{0xff, 0xff}, b[4:6])

			_, err = tt.ctor(make([]byte, MaxPayload+1))
			assert.ErrorIs(t, err, ErrPayloadTooLarge)
		})
	}
}

func TestVariableLengthChunksCopyInput(t *testing.T) {
	in := []byte{1, 2, 3}
	c, err := PacketPayloadChunk(in)
	require.NoError(t, err)

	in[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, c.Payload)
	assert.Equal(t, 9, c.Len())
}

func TestPayloadJSONChunk(t *testing.T) {
	c, err := PayloadJSONChunk(`{"mos":"4.41","note":"é"}`)
	require.NoError(t, err)
	assert.Equal(t, PayloadJSON, c.Type)
	assert.Equal(t, HeaderLen+len(`{"mos":"4.41","note":"é"}`), c.Len())
	assert.Equal(t, `{"mos":"4.41","note":"é"}`, roundTrip(t, c).Text())

	_, err = PayloadJSONChunk(strings.Repeat("x", MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestFixedWidthTableMatchesConstructors(t *testing.T) {
	chunks := []Chunk{
		IPProtocolFamilyChunk(2), IPProtocolIDChunk(17), ProtocolTypeChunk(1),
		IPv4SourceAddressChunk([4]byte{}), IPv6TargetAddressChunk([16]byte{}),
		SourcePortChunk(1), TimestampSecChunk(1), CaptureAgentIDChunk(1),
		SourceMACChunk(1), VlanIDChunk(1), JitterChunk(1), RFactorChunk(1),
	}
	for _, c := range chunks {
		w, ok := FixedWidth(c.Type)
		require.True(t, ok, c.Type.String())
		assert.Equal(t, w, len(c.Payload), c.Type.String())
		assert.Equal(t, HeaderLen+len(c.Payload), c.Len())
	}

	_, ok := FixedWidth(PacketPayload)
	assert.False(t, ok)
}

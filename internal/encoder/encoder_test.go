package encoder

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hepagent/internal/compress"
	"firestige.xyz/hepagent/internal/config"
	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/pkg/hep"
)

func makePacket() *core.CapturedPacket {
	return &core.CapturedPacket{
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 500_000_000, time.UTC),
		Ethernet: core.EthernetHeader{
			SrcMAC:    [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:    [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
			EtherType: 0x0800,
		},
		IP: core.IPHeader{
			Version:  4,
			SrcIP:    netip.MustParseAddr("192.168.1.10"),
			DstIP:    netip.MustParseAddr("10.0.0.1"),
			Protocol: hep.ProtoUDP,
		},
		Transport:   core.TransportHeader{SrcPort: 5060, DstPort: 5080},
		PayloadType: "sip",
		Payload:     []byte("INVITE sip:bob@example.com SIP/2.0\r\n"),
		Labels: core.Labels{
			core.LabelSIPCallID:  "abc-123@host",
			core.LabelSIPFromURI: "sip:alice@example.com",
		},
	}
}

// decode parses a frame and checks the length invariants.
func decode(t *testing.T, frame []byte) *hep.Packet {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), hep.HeaderLen)
	assert.Equal(t, "HEP3", string(frame[:4]))

	pkt, err := hep.DecodePacket(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), pkt.Len())
	return pkt
}

func types(p *hep.Packet) []hep.ChunkType {
	out := make([]hep.ChunkType, len(p.Chunks))
	for i, c := range p.Chunks {
		out[i] = c.Type
	}
	return out
}

func TestEncodeChunkOrder(t *testing.T) {
	enc := New(Options{CaptureID: 42, AuthKey: "secret", NodeName: "edge-01"})
	frame, err := enc.Encode(makePacket())
	require.NoError(t, err)

	pkt := decode(t, frame)
	assert.Equal(t, []hep.ChunkType{
		hep.IPProtocolFamily, hep.IPProtocolID,
		hep.IPv4SourceAddress, hep.IPv4TargetAddress,
		hep.SourcePort, hep.TargetPort,
		hep.TimestampSec, hep.TimestampMicrosecOffset,
		hep.ProtocolType, hep.CaptureAgentID,
		hep.SourceMAC, hep.TargetMAC, hep.EthernetType,
		hep.AuthKey, hep.PacketPayload,
		hep.CorrelationID, hep.GroupID,
	}, types(pkt))
}

func TestEncodeValues(t *testing.T) {
	enc := New(Options{CaptureID: 42, NodeName: "edge-01"})
	pkt := decode(t, mustEncode(t, enc, makePacket()))

	u8 := func(ct hep.ChunkType) uint8 {
		c, ok := pkt.Find(ct)
		require.True(t, ok, ct.String())
		v, err := c.Uint8()
		require.NoError(t, err)
		return v
	}
	u16 := func(ct hep.ChunkType) uint16 {
		c, ok := pkt.Find(ct)
		require.True(t, ok, ct.String())
		v, err := c.Uint16()
		require.NoError(t, err)
		return v
	}
	u32 := func(ct hep.ChunkType) uint32 {
		c, ok := pkt.Find(ct)
		require.True(t, ok, ct.String())
		v, err := c.Uint32()
		require.NoError(t, err)
		return v
	}
	text := func(ct hep.ChunkType) string {
		c, ok := pkt.Find(ct)
		require.True(t, ok, ct.String())
		return c.Text()
	}

	assert.Equal(t, hep.FamilyIPv4, u8(hep.IPProtocolFamily))
	assert.Equal(t, hep.ProtoUDP, u8(hep.IPProtocolID))
	assert.Equal(t, hep.SubProtoSIP, u8(hep.ProtocolType))
	assert.Equal(t, uint16(5060), u16(hep.SourcePort))
	assert.Equal(t, uint16(5080), u16(hep.TargetPort))
	assert.Equal(t, uint16(0x0800), u16(hep.EthernetType))
	assert.Equal(t, uint32(1717243200), u32(hep.TimestampSec))
	assert.Equal(t, uint32(500000), u32(hep.TimestampMicrosecOffset))
	assert.Equal(t, uint32(42), u32(hep.CaptureAgentID))
	assert.Equal(t, "abc-123@host", text(hep.CorrelationID))
	assert.Equal(t, "edge-01", text(hep.GroupID))
	assert.Equal(t, "INVITE sip:bob@example.com SIP/2.0\r\n", text(hep.PacketPayload))

	src, _ := pkt.Find(hep.IPv4SourceAddress)
	addr, err := src.Addr()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), addr)

	mac, _ := pkt.Find(hep.TargetMAC)
	m, err := mac.MAC()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xaabbccddeeff), m)

	_, ok := pkt.Find(hep.AuthKey)
	assert.False(t, ok, "auth key must be omitted when not configured")
	_, ok = pkt.Find(hep.TCPFlag)
	assert.False(t, ok, "TCP flags only for TCP")
}

func mustEncode(t *testing.T, enc *Encoder, p *core.CapturedPacket) []byte {
	t.Helper()
	frame, err := enc.Encode(p)
	require.NoError(t, err)
	return frame
}

func TestEncodeIPv6TCP(t *testing.T) {
	p := makePacket()
	p.Ethernet = core.EthernetHeader{}
	p.IP = core.IPHeader{
		Version:  6,
		SrcIP:    netip.MustParseAddr("2001:db8::1"),
		DstIP:    netip.MustParseAddr("2001:db8::2"),
		Protocol: hep.ProtoTCP,
	}
	p.Transport.TCPFlags = 0x018

	pkt := decode(t, mustEncode(t, New(Options{}), p))

	fam, _ := pkt.Find(hep.IPProtocolFamily)
	v, _ := fam.Uint8()
	assert.Equal(t, hep.FamilyIPv6, v)

	dst, ok := pkt.Find(hep.IPv6TargetAddress)
	require.True(t, ok)
	assert.Len(t, dst.Payload, 16)

	flags, ok := pkt.Find(hep.TCPFlag)
	require.True(t, ok)
	f, _ := flags.Uint16()
	assert.Equal(t, uint16(0x018), f)

	_, ok = pkt.Find(hep.SourceMAC)
	assert.False(t, ok, "no MAC chunks without an Ethernet header")
	_, ok = pkt.Find(hep.GroupID)
	assert.False(t, ok, "no group id without node name")
}

func TestEncodeMappedIPv4(t *testing.T) {
	p := makePacket()
	p.IP.SrcIP = netip.MustParseAddr("::ffff:192.168.1.10")

	pkt := decode(t, mustEncode(t, New(Options{}), p))
	src, ok := pkt.Find(hep.IPv4SourceAddress)
	require.True(t, ok)
	assert.Equal(t, []byte{192, 168, 1, 10}, src.Payload)
}

func TestEncodeRejectsBadAddresses(t *testing.T) {
	enc := New(Options{})

	p := makePacket()
	p.IP.SrcIP = netip.Addr{}
	_, err := enc.Encode(p)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)

	p = makePacket()
	p.IP.DstIP = netip.MustParseAddr("2001:db8::2")
	_, err = enc.Encode(p)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)

	_, err = enc.Encode(nil)
	assert.Error(t, err)
}

func TestEncodeVLANAndVendor(t *testing.T) {
	p := makePacket()
	p.Ethernet.VLANs = []uint16{100, 200}

	pkt := decode(t, mustEncode(t, New(Options{VendorID: 0x0004}), p))
	vlan, ok := pkt.Find(hep.VlanID)
	require.True(t, ok)
	v, _ := vlan.Uint16()
	assert.Equal(t, uint16(100), v, "outer tag wins")

	for _, c := range pkt.Chunks {
		assert.Equal(t, uint16(0x0004), c.VendorID, c.Type.String())
	}
}

func TestEncodeProtocolTypes(t *testing.T) {
	enc := New(Options{ProtocolTypes: map[string]uint8{"rtp": 5, "sip": 9}})

	tests := []struct {
		payloadType string
		want        uint8
	}{
		{"sip", 9},
		{"rtp", 5},
		{"rtcp", 8},
		{"json", 100},
		{"xmpp", hep.SubProtoXMPP},
		{"sdp", hep.SubProtoSDP},
		{"mystery", hep.SubProtoReserved},
		{"", hep.SubProtoReserved},
	}
	for _, tt := range tests {
		t.Run(tt.payloadType, func(t *testing.T) {
			p := makePacket()
			p.PayloadType = tt.payloadType
			pkt := decode(t, mustEncode(t, enc, p))
			c, _ := pkt.Find(hep.ProtocolType)
			v, _ := c.Uint8()
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEncodeMediaProtocolTypesBuiltIn(t *testing.T) {
	enc := New(Options{})
	for payloadType, want := range map[string]uint8{"rtp": 5, "rtcp": 8} {
		p := makePacket()
		p.PayloadType = payloadType
		c, ok := decode(t, mustEncode(t, enc, p)).Find(hep.ProtocolType)
		require.True(t, ok)
		v, _ := c.Uint8()
		assert.Equal(t, want, v, payloadType)
	}
}

func TestKeepAliveVendor(t *testing.T) {
	frame, err := New(Options{VendorID: 0x0004, CaptureID: 7, NodeName: "edge"}).KeepAlive()
	require.NoError(t, err)
	for _, c := range decode(t, frame).Chunks {
		assert.Equal(t, uint16(0x0004), c.VendorID, c.Type.String())
	}
}

func TestEncodeCorrelationLabels(t *testing.T) {
	p := makePacket()
	p.Labels[core.LabelCorrelationID] = "explicit-id"
	p.Labels[core.LabelTransactionType] = "call"

	pkt := decode(t, mustEncode(t, New(Options{}), p))
	cid, _ := pkt.Find(hep.CorrelationID)
	assert.Equal(t, "explicit-id", cid.Text())
	tt, ok := pkt.Find(hep.TransactionType)
	require.True(t, ok)
	assert.Equal(t, "call", tt.Text())

	p = makePacket()
	p.Labels = nil
	pkt = decode(t, mustEncode(t, New(Options{}), p))
	_, ok = pkt.Find(hep.CorrelationID)
	assert.False(t, ok)
}

func TestEncodeCompression(t *testing.T) {
	payload := []byte(strings.Repeat("SIP/2.0 200 OK\r\nVia: SIP/2.0/UDP host\r\n", 64))

	p := makePacket()
	p.Payload = payload
	enc := New(Options{CompressPayload: true, CompressThreshold: 256})
	pkt := decode(t, mustEncode(t, enc, p))

	_, raw := pkt.Find(hep.PacketPayload)
	assert.False(t, raw)
	z, ok := pkt.Find(hep.GzipPacketPayload)
	require.True(t, ok)
	assert.Less(t, len(z.Payload), len(payload))

	plain, err := compress.Gunzip(z.Payload, hep.MaxLen)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, plain))

	// Below threshold stays raw.
	p = makePacket()
	pkt = decode(t, mustEncode(t, enc, p))
	_, raw = pkt.Find(hep.PacketPayload)
	assert.True(t, raw)
}

func TestEncodePayloadTooLarge(t *testing.T) {
	p := makePacket()
	p.Payload = make([]byte, hep.MaxPayload)

	_, err := New(Options{}).Encode(p)
	assert.ErrorIs(t, err, hep.ErrPayloadTooLarge)

	p.Payload = make([]byte, hep.MaxPayload+1)
	_, err = New(Options{}).Encode(p)
	assert.ErrorIs(t, err, hep.ErrPayloadTooLarge)
}

func TestEncodeZeroTimestampUsesClock(t *testing.T) {
	enc := New(Options{})
	enc.now = func() time.Time { return time.Unix(1700000000, 123_456_000) }

	p := makePacket()
	p.Timestamp = time.Time{}
	pkt := decode(t, mustEncode(t, enc, p))

	sec, _ := pkt.Find(hep.TimestampSec)
	s, _ := sec.Uint32()
	assert.Equal(t, uint32(1700000000), s)
	usec, _ := pkt.Find(hep.TimestampMicrosecOffset)
	u, _ := usec.Uint32()
	assert.Equal(t, uint32(123456), u)
}

func TestKeepAlive(t *testing.T) {
	enc := New(Options{CaptureID: 7, AuthKey: "k", NodeName: "n", KeepAliveInterval: 30 * time.Second})
	frame, err := enc.KeepAlive()
	require.NoError(t, err)

	pkt := decode(t, frame)
	assert.Equal(t, []hep.ChunkType{hep.CaptureAgentID, hep.KeepAliveTimer, hep.AuthKey, hep.GroupID}, types(pkt))

	timer, _ := pkt.Find(hep.KeepAliveTimer)
	v, _ := timer.Uint16()
	assert.Equal(t, uint16(30), v)

	frame, err = New(Options{KeepAliveInterval: 100 * time.Hour}).KeepAlive()
	require.NoError(t, err)
	timer, _ = decode(t, frame).Find(hep.KeepAliveTimer)
	v, _ = timer.Uint16()
	assert.Equal(t, uint16(0xFFFF), v)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Agent.CaptureID = 2001
	cfg.Agent.AuthKey = "key"
	cfg.Sender.KeepAliveInterval = 15 * time.Second

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, uint32(2001), opts.CaptureID)
	assert.Equal(t, "key", opts.AuthKey)
	assert.Equal(t, cfg.Agent.NodeName, opts.NodeName)
	assert.Equal(t, 1024, opts.CompressThreshold)
	assert.Equal(t, 15*time.Second, opts.KeepAliveInterval)
}

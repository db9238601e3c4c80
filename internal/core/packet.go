package core

import (
	"net/netip"
	"time"
)

// RawPacket is one frame read from a capture source.
type RawPacket struct {
	Data       []byte
	Timestamp  time.Time
	CaptureLen uint32
	OrigLen    uint32
}

// CapturedPacket is a decoded capture event: the native field values the
// encoder turns into HEP3 chunks.
type CapturedPacket struct {
	Timestamp time.Time

	Ethernet  EthernetHeader
	IP        IPHeader
	Transport TransportHeader

	// Labels are annotations attached by sipmeta and correlate.
	Labels Labels

	// PayloadType names the application protocol, e.g. "sip", "xmpp", "sdp", "rtp".
	PayloadType string
	Payload     []byte
}

// Flow returns the 5-tuple key of the packet.
func (p *CapturedPacket) Flow() FlowKey {
	return FlowKey{
		SrcIP:    p.IP.SrcIP,
		DstIP:    p.IP.DstIP,
		SrcPort:  p.Transport.SrcPort,
		DstPort:  p.Transport.DstPort,
		Protocol: p.IP.Protocol,
	}
}

// FlowKey identifies a transport flow.
type FlowKey struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Reverse returns the key of the opposite direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{
		SrcIP:    k.DstIP,
		DstIP:    k.SrcIP,
		SrcPort:  k.DstPort,
		DstPort:  k.SrcPort,
		Protocol: k.Protocol,
	}
}

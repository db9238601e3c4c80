package source

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/hepagent/internal/core"
)

// TCP flag bits as carried in chunk 0x17.
const (
	tcpFIN uint16 = 1 << iota
	tcpSYN
	tcpRST
	tcpPSH
	tcpACK
	tcpURG
	tcpECE
	tcpCWR
	tcpNS
)

// Decoder turns raw frames of one link type into captured packets.
type Decoder struct {
	linkType layers.LinkType
	opts     gopacket.DecodeOptions
}

// NewDecoder creates a Decoder for frames of linkType.
func NewDecoder(linkType layers.LinkType) *Decoder {
	return &Decoder{
		linkType: linkType,
		opts:     gopacket.DecodeOptions{NoCopy: true},
	}
}

// Decode extracts link, network and transport headers from raw. Frames
// without an IPv4/IPv6 header followed by TCP or UDP are rejected, as are
// IPv4 fragments.
func (d *Decoder) Decode(raw core.RawPacket) (*core.CapturedPacket, error) {
	if len(raw.Data) == 0 {
		return nil, core.ErrPacketTooShort
	}
	pkt := gopacket.NewPacket(raw.Data, d.linkType, d.opts)

	out := &core.CapturedPacket{Timestamp: raw.Timestamp}
	var haveIP, haveTransport bool

	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			out.Ethernet.SrcMAC = mac6(l.SrcMAC)
			out.Ethernet.DstMAC = mac6(l.DstMAC)
			out.Ethernet.EtherType = uint16(l.EthernetType)
		case *layers.Dot1Q:
			out.Ethernet.VLANs = append(out.Ethernet.VLANs, l.VLANIdentifier)
			out.Ethernet.EtherType = uint16(l.Type)
		case *layers.IPv4:
			if l.Flags&layers.IPv4MoreFragments != 0 || l.FragOffset != 0 {
				return nil, fmt.Errorf("%w: IPv4 fragment id=%d offset=%d", core.ErrUnsupportedProto, l.Id, l.FragOffset)
			}
			out.IP = core.IPHeader{
				Version:  4,
				SrcIP:    addr(l.SrcIP),
				DstIP:    addr(l.DstIP),
				Protocol: uint8(l.Protocol),
			}
			haveIP = true
		case *layers.IPv6:
			out.IP = core.IPHeader{
				Version:  6,
				SrcIP:    addr(l.SrcIP),
				DstIP:    addr(l.DstIP),
				Protocol: uint8(l.NextHeader),
			}
			haveIP = true
		case *layers.UDP:
			out.IP.Protocol = uint8(layers.IPProtocolUDP)
			out.Transport = core.TransportHeader{SrcPort: uint16(l.SrcPort), DstPort: uint16(l.DstPort)}
			out.Payload = l.Payload
			haveTransport = true
		case *layers.TCP:
			out.IP.Protocol = uint8(layers.IPProtocolTCP)
			out.Transport = core.TransportHeader{
				SrcPort:  uint16(l.SrcPort),
				DstPort:  uint16(l.DstPort),
				TCPFlags: tcpFlags(l),
			}
			out.Payload = l.Payload
			haveTransport = true
		}
	}

	if !haveIP || !haveTransport {
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrPacketTooShort, errLayer.Error())
		}
		return nil, fmt.Errorf("%w: no IP/TCP/UDP headers", core.ErrUnsupportedProto)
	}
	return out, nil
}

func tcpFlags(t *layers.TCP) uint16 {
	var f uint16
	set := func(on bool, bit uint16) {
		if on {
			f |= bit
		}
	}
	set(t.FIN, tcpFIN)
	set(t.SYN, tcpSYN)
	set(t.RST, tcpRST)
	set(t.PSH, tcpPSH)
	set(t.ACK, tcpACK)
	set(t.URG, tcpURG)
	set(t.ECE, tcpECE)
	set(t.CWR, tcpCWR)
	set(t.NS, tcpNS)
	return f
}

func mac6(hw net.HardwareAddr) [6]byte {
	var m [6]byte
	copy(m[:], hw)
	return m
}

func addr(ip net.IP) netip.Addr {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return a.Unmap()
}

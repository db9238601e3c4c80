// Package core defines the capture-side data model with zero external dependencies.
package core

import "net/netip"

// EthernetHeader represents the L2 frame header.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16   // 0x0800=IPv4, 0x86DD=IPv6 (after VLAN tags)
	VLANs     []uint16 // 0~2 VLAN IDs (QinQ scenarios have 2)
}

// MACToUint64 packs a hardware address into the low 48 bits of a uint64.
func MACToUint64(mac [6]byte) uint64 {
	var v uint64
	for _, b := range mac {
		v = v<<8 | uint64(b)
	}
	return v
}

// IPHeader represents the L3 header (IPv4/IPv6).
type IPHeader struct {
	Version  uint8
	SrcIP    netip.Addr
	DstIP    netip.Addr
	Protocol uint8 // TCP=6, UDP=17, SCTP=132
}

// TransportHeader represents the L4 header (TCP/UDP).
type TransportHeader struct {
	SrcPort  uint16
	DstPort  uint16
	TCPFlags uint16 // only populated for TCP; low 9 bits as on the wire
}

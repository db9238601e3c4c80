// Package hep implements the HEP3 (Homer Encapsulation Protocol v3) wire codec.
//
// HEP3 packet layout (big-endian throughout):
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       4     Magic: "HEP3" (0x48455033)
//	4       2     Total packet length, including these 6 bytes
//	6       …     Chunks, in insertion order
//
// Each chunk:
//
//	0  2   Vendor ID  (0x0000 = generic)
//	2  2   Chunk type
//	4  2   Chunk length, including this 6-byte header
//	6  …   Payload (length−6 bytes)
//
// The package is pure: it performs no I/O, holds no shared state and never logs.
package hep

import "fmt"

// ChunkType identifies the semantic meaning of a chunk.
type ChunkType uint16

// Chunk type IDs for vendor 0x0000.
const (
	IPProtocolFamily        ChunkType = 0x0001
	IPProtocolID            ChunkType = 0x0002
	IPv4SourceAddress       ChunkType = 0x0003
	IPv4TargetAddress       ChunkType = 0x0004
	IPv6SourceAddress       ChunkType = 0x0005
	IPv6TargetAddress       ChunkType = 0x0006
	SourcePort              ChunkType = 0x0007
	TargetPort              ChunkType = 0x0008
	TimestampSec            ChunkType = 0x0009
	TimestampMicrosecOffset ChunkType = 0x000a
	ProtocolType            ChunkType = 0x000b
	CaptureAgentID          ChunkType = 0x000c
	KeepAliveTimer          ChunkType = 0x000d
	AuthKey                 ChunkType = 0x000e
	PacketPayload           ChunkType = 0x000f
	GzipPacketPayload       ChunkType = 0x0010
	CorrelationID           ChunkType = 0x0011
	VlanID                  ChunkType = 0x0012
	GroupID                 ChunkType = 0x0013
	SourceMAC               ChunkType = 0x0014
	TargetMAC               ChunkType = 0x0015
	EthernetType            ChunkType = 0x0016
	TCPFlag                 ChunkType = 0x0017

	// 0x0018..0x001f are reserved for future standard chunks.

	MOSValue        ChunkType = 0x0020
	RFactor         ChunkType = 0x0021
	GeoLocation     ChunkType = 0x0022
	Jitter          ChunkType = 0x0023
	TransactionType ChunkType = 0x0024
	PayloadJSON     ChunkType = 0x0025
)

// Reserved chunk type range.
const (
	ReservedFirst ChunkType = 0x0018
	ReservedLast  ChunkType = 0x001f
)

// IPProtocolFamily values carried in chunk 0x0001.
const (
	FamilyIPv4 uint8 = 0x02
	FamilyIPv6 uint8 = 0x0a
)

// IPProtocolID values carried in chunk 0x0002.
const (
	ProtoTCP uint8 = 0x06
	ProtoUDP uint8 = 0x11
)

// SubProtocolType values carried in chunk 0x000b.
const (
	SubProtoReserved uint8 = 0x00
	SubProtoSIP      uint8 = 0x01
	SubProtoXMPP     uint8 = 0x02
	SubProtoSDP      uint8 = 0x03
)

var chunkNames = map[ChunkType]string{
	IPProtocolFamily:        "ip_protocol_family",
	IPProtocolID:            "ip_protocol_id",
	IPv4SourceAddress:       "ipv4_source_address",
	IPv4TargetAddress:       "ipv4_target_address",
	IPv6SourceAddress:       "ipv6_source_address",
	IPv6TargetAddress:       "ipv6_target_address",
	SourcePort:              "source_port",
	TargetPort:              "target_port",
	TimestampSec:            "timestamp_sec",
	TimestampMicrosecOffset: "timestamp_usec_offset",
	ProtocolType:            "protocol_type",
	CaptureAgentID:          "capture_agent_id",
	KeepAliveTimer:          "keep_alive_timer",
	AuthKey:                 "auth_key",
	PacketPayload:           "packet_payload",
	GzipPacketPayload:       "gzip_packet_payload",
	CorrelationID:           "correlation_id",
	VlanID:                  "vlan_id",
	GroupID:                 "group_id",
	SourceMAC:               "source_mac",
	TargetMAC:               "target_mac",
	EthernetType:            "ethernet_type",
	TCPFlag:                 "tcp_flag",
	MOSValue:                "mos_value",
	RFactor:                 "r_factor",
	GeoLocation:             "geo_location",
	Jitter:                  "jitter",
	TransactionType:         "transaction_type",
	PayloadJSON:             "payload_json",
}

// fixedWidths holds the payload width of every fixed-width chunk type.
var fixedWidths = map[ChunkType]int{
	IPProtocolFamily:        1,
	IPProtocolID:            1,
	IPv4SourceAddress:       4,
	IPv4TargetAddress:       4,
	IPv6SourceAddress:       16,
	IPv6TargetAddress:       16,
	SourcePort:              2,
	TargetPort:              2,
	TimestampSec:            4,
	TimestampMicrosecOffset: 4,
	ProtocolType:            1,
	CaptureAgentID:          4,
	KeepAliveTimer:          2,
	VlanID:                  2,
	SourceMAC:               macLen,
	TargetMAC:               macLen,
	EthernetType:            2,
	TCPFlag:                 2,
	MOSValue:                2,
	RFactor:                 2,
	Jitter:                  4,
}

// String returns the semantic name of the chunk type.
func (t ChunkType) String() string {
	if name, ok := chunkNames[t]; ok {
		return name
	}
	if t.IsReserved() {
		return fmt.Sprintf("reserved(0x%04x)", uint16(t))
	}
	return fmt.Sprintf("unknown(0x%04x)", uint16(t))
}

// IsReserved reports whether t falls in the reserved 0x18..0x1f range.
func (t ChunkType) IsReserved() bool {
	return t >= ReservedFirst && t <= ReservedLast
}

// IsKnown reports whether t is a registered chunk type.
func (t ChunkType) IsKnown() bool {
	_, ok := chunkNames[t]
	return ok
}

// FixedWidth returns the declared payload width for fixed-width chunk types.
// Variable-length and unknown types report false.
func FixedWidth(t ChunkType) (int, bool) {
	w, ok := fixedWidths[t]
	return w, ok
}

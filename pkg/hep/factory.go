package hep

import (
	"encoding/binary"
	"fmt"
)

// ─── Fixed-width builders ──────────────────────────────────────────────────

func uint8Chunk(t ChunkType, v uint8) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: t, Payload: []byte{v}}
}

func uint16Chunk(t ChunkType, v uint16) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: t, Payload: binary.BigEndian.AppendUint16(nil, v)}
}

func uint32Chunk(t ChunkType, v uint32) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: t, Payload: binary.BigEndian.AppendUint32(nil, v)}
}

// macChunk keeps only the low 48 bits of v.
func macChunk(t ChunkType, v uint64) Chunk {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	payload := make([]byte, macLen)
	copy(payload, b[8-macLen:])
	return Chunk{VendorID: VendorGeneric, Type: t, Payload: payload}
}

func bytesChunk(t ChunkType, v []byte) (Chunk, error) {
	if len(v) > MaxPayload {
		return Chunk{}, fmt.Errorf("%w: chunk %s carries %d bytes, max %d",
			ErrPayloadTooLarge, t, len(v), MaxPayload)
	}
	return Chunk{VendorID: VendorGeneric, Type: t, Payload: append([]byte(nil), v...)}, nil
}

// IPProtocolFamilyChunk builds chunk 0x0001 (FamilyIPv4 or FamilyIPv6).
func IPProtocolFamilyChunk(family uint8) Chunk { return uint8Chunk(IPProtocolFamily, family) }

// IPProtocolIDChunk builds chunk 0x0002 (ProtoTCP, ProtoUDP, ...).
func IPProtocolIDChunk(proto uint8) Chunk { return uint8Chunk(IPProtocolID, proto) }

// IPv4SourceAddressChunk builds chunk 0x0003.
func IPv4SourceAddressChunk(addr [4]byte) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: IPv4SourceAddress, Payload: addr[:]}
}

// IPv4TargetAddressChunk builds chunk 0x0004.
func IPv4TargetAddressChunk(addr [4]byte) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: IPv4TargetAddress, Payload: addr[:]}
}

// IPv6SourceAddressChunk builds chunk 0x0005.
func IPv6SourceAddressChunk(addr [16]byte) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: IPv6SourceAddress, Payload: addr[:]}
}

// IPv6TargetAddressChunk builds chunk 0x0006.
func IPv6TargetAddressChunk(addr [16]byte) Chunk {
	return Chunk{VendorID: VendorGeneric, Type: IPv6TargetAddress, Payload: addr[:]}
}

// SourcePortChunk builds chunk 0x0007.
func SourcePortChunk(port uint16) Chunk { return uint16Chunk(SourcePort, port) }

// TargetPortChunk builds chunk 0x0008.
func TargetPortChunk(port uint16) Chunk { return uint16Chunk(TargetPort, port) }

// TimestampSecChunk builds chunk 0x0009.
func TimestampSecChunk(sec uint32) Chunk { return uint32Chunk(TimestampSec, sec) }

// TimestampMicrosecOffsetChunk builds chunk 0x000a.
func TimestampMicrosecOffsetChunk(usec uint32) Chunk {
	return uint32Chunk(TimestampMicrosecOffset, usec)
}

// ProtocolTypeChunk builds chunk 0x000b (SubProtoSIP, ...).
func ProtocolTypeChunk(proto uint8) Chunk { return uint8Chunk(ProtocolType, proto) }

// CaptureAgentIDChunk builds chunk 0x000c.
func CaptureAgentIDChunk(id uint32) Chunk { return uint32Chunk(CaptureAgentID, id) }

// KeepAliveTimerChunk builds chunk 0x000d.
func KeepAliveTimerChunk(seconds uint16) Chunk { return uint16Chunk(KeepAliveTimer, seconds) }

// VlanIDChunk builds chunk 0x0012.
func VlanIDChunk(vlan uint16) Chunk { return uint16Chunk(VlanID, vlan) }

// SourceMACChunk builds chunk 0x0014 from the low 48 bits of mac.
func SourceMACChunk(mac uint64) Chunk { return macChunk(SourceMAC, mac) }

// TargetMACChunk builds chunk 0x0015 from the low 48 bits of mac.
func TargetMACChunk(mac uint64) Chunk { return macChunk(TargetMAC, mac) }

// EthernetTypeChunk builds chunk 0x0016.
func EthernetTypeChunk(etherType uint16) Chunk { return uint16Chunk(EthernetType, etherType) }

// TCPFlagChunk builds chunk 0x0017.
func TCPFlagChunk(flags uint16) Chunk { return uint16Chunk(TCPFlag, flags) }

// MOSValueChunk builds chunk 0x0020.
func MOSValueChunk(mos uint16) Chunk { return uint16Chunk(MOSValue, mos) }

// RFactorChunk builds chunk 0x0021.
func RFactorChunk(r uint16) Chunk { return uint16Chunk(RFactor, r) }

// JitterChunk builds chunk 0x0023.
func JitterChunk(jitter uint32) Chunk { return uint32Chunk(Jitter, jitter) }

// ─── Variable-length builders ──────────────────────────────────────────────
//
// These keep the caller's slice as the payload; it must not be modified
// until the chunk has been encoded.

// AuthKeyChunk builds chunk 0x000e.
func AuthKeyChunk(key []byte) (Chunk, error) { return bytesChunk(AuthKey, key) }

// PacketPayloadChunk builds chunk 0x000f.
func PacketPayloadChunk(payload []byte) (Chunk, error) { return bytesChunk(PacketPayload, payload) }

// GzipPacketPayloadChunk builds chunk 0x0010 from already compressed bytes.
func GzipPacketPayloadChunk(payload []byte) (Chunk, error) {
	return bytesChunk(GzipPacketPayload, payload)
}

// CorrelationIDChunk builds chunk 0x0011.
func CorrelationIDChunk(id []byte) (Chunk, error) { return bytesChunk(CorrelationID, id) }

// GroupIDChunk builds chunk 0x0013.
func GroupIDChunk(id []byte) (Chunk, error) { return bytesChunk(GroupID, id) }

// GeoLocationChunk builds chunk 0x0022.
func GeoLocationChunk(loc []byte) (Chunk, error) { return bytesChunk(GeoLocation, loc) }

// TransactionTypeChunk builds chunk 0x0024.
func TransactionTypeChunk(tt []byte) (Chunk, error) { return bytesChunk(TransactionType, tt) }

// PayloadJSONChunk builds chunk 0x0025 from the UTF-8 bytes of doc.
func PayloadJSONChunk(doc string) (Chunk, error) { return bytesChunk(PayloadJSON, []byte(doc)) }

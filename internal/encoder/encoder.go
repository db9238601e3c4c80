// Package encoder turns captured packets into HEP3 packets.
//
// Chunks are emitted in a fixed order:
//
//	0x01 IP family            0x02 IP protocol
//	0x03/0x04 or 0x05/0x06    source / target address
//	0x07 0x08                 source / target port
//	0x09 0x0a                 timestamp seconds / microseconds
//	0x0b protocol type        0x0c capture agent ID
//	0x12 VLAN ID              (tagged frames only)
//	0x14 0x15 0x16            source MAC / target MAC / ether type (Ethernet frames only)
//	0x17 TCP flags            (TCP only)
//	0x0e auth key             (configured only)
//	0x0f or 0x10              payload, gzip chunk above the compression threshold
//	0x11 correlation ID       0x24 transaction type (labels only)
//	0x13 group ID             node name
package encoder

import (
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/hepagent/internal/compress"
	"firestige.xyz/hepagent/internal/config"
	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/metrics"
	"firestige.xyz/hepagent/pkg/hep"
)

// HOMER protocol type values for payloads correlate labels as media.
const (
	protoTypeRTP  = uint8(5)
	protoTypeRTCP = uint8(8)
	protoTypeJSON = uint8(100)
)

// builtinProtocolTypes maps payload type names to chunk 0x0b values.
var builtinProtocolTypes = map[string]uint8{
	"sip":  hep.SubProtoSIP,
	"xmpp": hep.SubProtoXMPP,
	"sdp":  hep.SubProtoSDP,
	"rtp":  protoTypeRTP,
	"rtcp": protoTypeRTCP,
	"json": protoTypeJSON,
}

// Options carries the per-agent values stamped into every packet.
type Options struct {
	VendorID  uint16
	CaptureID uint32
	AuthKey   string
	NodeName  string

	CompressPayload   bool
	CompressThreshold int

	// ProtocolTypes adds to or overrides the built-in sip/xmpp/sdp/rtp/rtcp/json values.
	ProtocolTypes map[string]uint8

	// KeepAliveInterval is advertised in chunk 0x0d of keep-alive packets.
	KeepAliveInterval time.Duration
}

// OptionsFromConfig builds encoder options from the global configuration.
func OptionsFromConfig(cfg *config.GlobalConfig) Options {
	return Options{
		VendorID:          cfg.Agent.VendorID,
		CaptureID:         cfg.Agent.CaptureID,
		AuthKey:           cfg.Agent.AuthKey,
		NodeName:          cfg.Agent.NodeName,
		CompressPayload:   cfg.Agent.CompressPayload,
		CompressThreshold: cfg.Agent.CompressThreshold,
		ProtocolTypes:     cfg.Agent.ProtocolTypes,
		KeepAliveInterval: cfg.Sender.KeepAliveInterval,
	}
}

// Encoder is safe for concurrent use; it holds no mutable state.
type Encoder struct {
	opts       Options
	protoTypes map[string]uint8
	now        func() time.Time
}

// New creates an Encoder.
func New(opts Options) *Encoder {
	types := make(map[string]uint8, len(builtinProtocolTypes)+len(opts.ProtocolTypes))
	for k, v := range builtinProtocolTypes {
		types[k] = v
	}
	for k, v := range opts.ProtocolTypes {
		types[k] = v
	}
	return &Encoder{opts: opts, protoTypes: types, now: time.Now}
}

// Encode serialises pkt into a HEP3 packet.
// The caller owns the returned slice.
func (e *Encoder) Encode(pkt *core.CapturedPacket) ([]byte, error) {
	chunks, err := e.Chunks(pkt)
	if err != nil {
		return nil, err
	}
	return e.build(chunks, "capture")
}

// Chunks returns the chunk sequence for pkt without serialising it.
func (e *Encoder) Chunks(pkt *core.CapturedPacket) ([]hep.Chunk, error) {
	if pkt == nil {
		return nil, fmt.Errorf("encoder: nil packet")
	}
	src, dst := pkt.IP.SrcIP.Unmap(), pkt.IP.DstIP.Unmap()
	if !src.IsValid() || !dst.IsValid() {
		return nil, fmt.Errorf("%w: packet has no IP addresses", core.ErrUnsupportedProto)
	}
	if src.Is4() != dst.Is4() {
		return nil, fmt.Errorf("%w: mixed address families %s -> %s", core.ErrUnsupportedProto, src, dst)
	}

	family, srcChunk, dstChunk := addressChunks(src, dst)
	chunks := make([]hep.Chunk, 0, 24)
	chunks = append(chunks,
		family,
		hep.IPProtocolIDChunk(pkt.IP.Protocol),
		srcChunk,
		dstChunk,
		hep.SourcePortChunk(pkt.Transport.SrcPort),
		hep.TargetPortChunk(pkt.Transport.DstPort),
	)

	ts := pkt.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	chunks = append(chunks,
		hep.TimestampSecChunk(uint32(ts.Unix())),
		hep.TimestampMicrosecOffsetChunk(uint32(ts.Nanosecond()/1_000)),
		hep.ProtocolTypeChunk(e.protoTypes[pkt.PayloadType]),
		hep.CaptureAgentIDChunk(e.opts.CaptureID),
	)

	eth := pkt.Ethernet
	if len(eth.VLANs) > 0 {
		chunks = append(chunks, hep.VlanIDChunk(eth.VLANs[0]))
	}
	if eth.EtherType != 0 {
		chunks = append(chunks,
			hep.SourceMACChunk(core.MACToUint64(eth.SrcMAC)),
			hep.TargetMACChunk(core.MACToUint64(eth.DstMAC)),
			hep.EthernetTypeChunk(eth.EtherType),
		)
	}
	if pkt.IP.Protocol == hep.ProtoTCP {
		chunks = append(chunks, hep.TCPFlagChunk(pkt.Transport.TCPFlags))
	}

	optional, err := e.optionalChunks(pkt)
	if err != nil {
		return nil, err
	}
	chunks = append(chunks, optional...)

	for i := range chunks {
		chunks[i] = chunks[i].WithVendor(e.opts.VendorID)
	}
	return chunks, nil
}

// optionalChunks emits the variable-length chunks.
func (e *Encoder) optionalChunks(pkt *core.CapturedPacket) ([]hep.Chunk, error) {
	var out []hep.Chunk
	add := func(c hep.Chunk, err error) error {
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}

	if e.opts.AuthKey != "" {
		if err := add(hep.AuthKeyChunk([]byte(e.opts.AuthKey))); err != nil {
			return nil, fmt.Errorf("auth key: %w", err)
		}
	}

	if len(pkt.Payload) > 0 {
		if err := add(e.payloadChunk(pkt.Payload)); err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
	}

	if cid := resolveCorrelationID(pkt); cid != "" {
		if err := add(hep.CorrelationIDChunk([]byte(cid))); err != nil {
			return nil, fmt.Errorf("correlation id: %w", err)
		}
	}

	if tt := pkt.Labels[core.LabelTransactionType]; tt != "" {
		if err := add(hep.TransactionTypeChunk([]byte(tt))); err != nil {
			return nil, fmt.Errorf("transaction type: %w", err)
		}
	}

	if e.opts.NodeName != "" {
		if err := add(hep.GroupIDChunk([]byte(e.opts.NodeName))); err != nil {
			return nil, fmt.Errorf("group id: %w", err)
		}
	}
	return out, nil
}

// payloadChunk picks chunk 0x0f or, above the threshold, a gzip chunk 0x10.
// Compression that does not shrink the payload falls back to the raw chunk.
func (e *Encoder) payloadChunk(payload []byte) (hep.Chunk, error) {
	if e.opts.CompressPayload && len(payload) >= e.opts.CompressThreshold {
		z, err := compress.Gzip(payload)
		if err != nil {
			return hep.Chunk{}, err
		}
		if len(z) < len(payload) {
			return hep.GzipPacketPayloadChunk(z)
		}
	}
	return hep.PacketPayloadChunk(payload)
}

// KeepAlive builds a keep-alive packet: capture agent ID, keep-alive timer,
// auth key and node name.
func (e *Encoder) KeepAlive() ([]byte, error) {
	secs := e.opts.KeepAliveInterval / time.Second
	if secs > 0xFFFF {
		secs = 0xFFFF
	}
	chunks := []hep.Chunk{
		hep.CaptureAgentIDChunk(e.opts.CaptureID),
		hep.KeepAliveTimerChunk(uint16(secs)),
	}
	if e.opts.AuthKey != "" {
		c, err := hep.AuthKeyChunk([]byte(e.opts.AuthKey))
		if err != nil {
			return nil, fmt.Errorf("auth key: %w", err)
		}
		chunks = append(chunks, c)
	}
	if e.opts.NodeName != "" {
		c, err := hep.GroupIDChunk([]byte(e.opts.NodeName))
		if err != nil {
			return nil, fmt.Errorf("group id: %w", err)
		}
		chunks = append(chunks, c)
	}
	for i := range chunks {
		chunks[i] = chunks[i].WithVendor(e.opts.VendorID)
	}
	return e.build(chunks, "keepalive")
}

func (e *Encoder) build(chunks []hep.Chunk, kind string) ([]byte, error) {
	b := hep.NewBuilder()
	for _, c := range chunks {
		if err := b.AddChunk(c); err != nil {
			metrics.ErrorsTotal.WithLabelValues("encode").Inc()
			return nil, fmt.Errorf("encoder: %w", err)
		}
	}
	frame, err := b.Build()
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("encode").Inc()
		return nil, fmt.Errorf("encoder: %w", err)
	}
	metrics.EncodedPacketsTotal.WithLabelValues(kind).Inc()
	metrics.EncodedPacketBytes.Observe(float64(len(frame)))
	return frame, nil
}

// addressChunks returns the family chunk and the address pair.
func addressChunks(src, dst netip.Addr) (family, srcChunk, dstChunk hep.Chunk) {
	if src.Is4() {
		return hep.IPProtocolFamilyChunk(hep.FamilyIPv4),
			hep.IPv4SourceAddressChunk(src.As4()),
			hep.IPv4TargetAddressChunk(dst.As4())
	}
	return hep.IPProtocolFamilyChunk(hep.FamilyIPv6),
		hep.IPv6SourceAddressChunk(src.As16()),
		hep.IPv6TargetAddressChunk(dst.As16())
}

// resolveCorrelationID prefers an explicit correlation label, then the SIP Call-ID.
func resolveCorrelationID(pkt *core.CapturedPacket) string {
	if v := pkt.Labels[core.LabelCorrelationID]; v != "" {
		return v
	}
	return pkt.Labels[core.LabelSIPCallID]
}

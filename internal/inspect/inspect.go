// Package inspect renders decoded HEP3 packets for humans and scripts.
package inspect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"firestige.xyz/hepagent/internal/compress"
	"firestige.xyz/hepagent/pkg/hep"
)

// previewLimit bounds how many payload bytes a view shows.
const previewLimit = 256

// PacketView is the printable form of one packet.
type PacketView struct {
	Length int         `json:"length" yaml:"length"`
	Chunks []ChunkView `json:"chunks" yaml:"chunks"`
}

// ChunkView is the printable form of one chunk.
type ChunkView struct {
	Vendor uint16 `json:"vendor" yaml:"vendor"`
	Type   uint16 `json:"type" yaml:"type"`
	Name   string `json:"name" yaml:"name"`
	Length int    `json:"length" yaml:"length"`
	Value  string `json:"value" yaml:"value"`
}

// Options tunes how chunk values are shown.
type Options struct {
	// ShowAuthKey prints the auth key instead of masking it.
	ShowAuthKey bool
	// Full disables payload truncation.
	Full bool
}

// Describe builds the view of p.
func Describe(p *hep.Packet, opts Options) PacketView {
	v := PacketView{Length: p.Len(), Chunks: make([]ChunkView, 0, len(p.Chunks))}
	for _, c := range p.Chunks {
		v.Chunks = append(v.Chunks, ChunkView{
			Vendor: c.VendorID,
			Type:   uint16(c.Type),
			Name:   c.Type.String(),
			Length: c.Len(),
			Value:  formatValue(c, opts),
		})
	}
	return v
}

func formatValue(c hep.Chunk, opts Options) string {
	if c.VendorID != hep.VendorGeneric || !c.Type.IsKnown() {
		return bytesValue(c.Payload, opts)
	}

	switch c.Type {
	case hep.IPProtocolFamily:
		if v, err := c.Uint8(); err == nil {
			switch v {
			case hep.FamilyIPv4:
				return "IPv4"
			case hep.FamilyIPv6:
				return "IPv6"
			}
			return fmt.Sprintf("%d", v)
		}
	case hep.IPProtocolID:
		if v, err := c.Uint8(); err == nil {
			switch v {
			case hep.ProtoTCP:
				return "TCP"
			case hep.ProtoUDP:
				return "UDP"
			}
			return fmt.Sprintf("%d", v)
		}
	case hep.ProtocolType:
		if v, err := c.Uint8(); err == nil {
			return protocolTypeName(v)
		}
	case hep.IPv4SourceAddress, hep.IPv4TargetAddress, hep.IPv6SourceAddress, hep.IPv6TargetAddress:
		if a, err := c.Addr(); err == nil {
			return a.String()
		}
	case hep.TimestampSec:
		if v, err := c.Uint32(); err == nil {
			return fmt.Sprintf("%d (%s)", v, time.Unix(int64(v), 0).UTC().Format(time.RFC3339))
		}
	case hep.SourceMAC, hep.TargetMAC:
		if v, err := c.MAC(); err == nil {
			b := []byte{byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
			return net.HardwareAddr(b).String()
		}
	case hep.EthernetType, hep.TCPFlag:
		if v, err := c.Uint16(); err == nil {
			return fmt.Sprintf("0x%04x", v)
		}
	case hep.AuthKey:
		if !opts.ShowAuthKey {
			return strings.Repeat("*", len(c.Payload))
		}
		return bytesValue(c.Payload, opts)
	case hep.GzipPacketPayload:
		plain, err := compress.Gunzip(c.Payload, hep.MaxLen)
		if err != nil {
			return fmt.Sprintf("<invalid gzip: %v>", err)
		}
		return fmt.Sprintf("gzip %d -> %d bytes: %s", len(c.Payload), len(plain), bytesValue(plain, opts))
	}

	if w, ok := hep.FixedWidth(c.Type); ok && w == len(c.Payload) {
		switch w {
		case 1:
			v, _ := c.Uint8()
			return fmt.Sprintf("%d", v)
		case 2:
			v, _ := c.Uint16()
			return fmt.Sprintf("%d", v)
		case 4:
			v, _ := c.Uint32()
			return fmt.Sprintf("%d", v)
		}
	}
	return bytesValue(c.Payload, opts)
}

func protocolTypeName(v uint8) string {
	switch v {
	case hep.SubProtoReserved:
		return "reserved (0)"
	case hep.SubProtoSIP:
		return "SIP (1)"
	case hep.SubProtoXMPP:
		return "XMPP (2)"
	case hep.SubProtoSDP:
		return "SDP (3)"
	case 5:
		return "RTP (5)"
	case 8:
		return "RTCP (8)"
	case 100:
		return "JSON (100)"
	}
	return fmt.Sprintf("%d", v)
}

// bytesValue shows printable UTF-8 as plain text and anything else as hex.
func bytesValue(b []byte, opts Options) string {
	truncated := false
	if !opts.Full && len(b) > previewLimit {
		b, truncated = b[:previewLimit], true
	}
	var s string
	if isPrintable(b) {
		s = string(b)
	} else {
		s = "0x" + hex.EncodeToString(b)
	}
	if truncated {
		s += "..."
	}
	return s
}

func isPrintable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < 0x20 && r != '\r' && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}

// Render writes v in format: text, json or yaml.
func Render(w io.Writer, v PacketView, format string) error {
	switch format {
	case "", "text":
		return renderText(w, v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (must be text/json/yaml)", format)
	}
}

func renderText(w io.Writer, v PacketView) error {
	if _, err := fmt.Fprintf(w, "HEP3 packet, %d bytes, %d chunks\n", v.Length, len(v.Chunks)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tTYPE\tNAME\tLEN\tVALUE")
	for _, c := range v.Chunks {
		fmt.Fprintf(tw, "0x%04x\t0x%04x\t%s\t%d\t%s\n", c.Vendor, c.Type, c.Name, c.Length, textCell(c.Value))
	}
	return tw.Flush()
}

// textCell quotes values holding control characters so one chunk stays on
// one table row.
func textCell(v string) string {
	if strings.ContainsFunc(v, unicode.IsControl) {
		return strconv.Quote(v)
	}
	return v
}

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/hepagent/internal/config"
	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/encoder"
	"firestige.xyz/hepagent/internal/log"
	"firestige.xyz/hepagent/internal/sender"
	"firestige.xyz/hepagent/internal/sipmeta"
	"firestige.xyz/hepagent/pkg/hep"
)

type encodeFlags struct {
	srcIP, dstIP  string
	proto         string
	payload       string
	payloadFile   string
	payloadType   string
	correlationID string
	timestamp     string
	format        string
	outFile       string
	send          bool
}

var encodeArgs = encodeFlags{}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build one HEP3 packet from flags",
	Long: `Build a single HEP3 packet. Capture ID, auth key, node name and vendor ID
come from the configuration. SIP payloads are parsed so that the Call-ID
becomes the correlation ID.

Examples:
  hepagent encode --src 10.0.0.1:5060 --dst 10.0.0.2:5060 --payload-file invite.txt
  hepagent encode --src 10.0.0.1:5060 --dst 10.0.0.2:5060 --payload hi --format raw -o pkt.bin
  hepagent encode --src [2001:db8::1]:5060 --dst [2001:db8::2]:5060 --proto tcp --payload-file invite.txt --send`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runEncode(cmd.Context(), cfg, encodeArgs, cmd.OutOrStdout())
	},
}

func init() {
	f := encodeCmd.Flags()
	f.StringVar(&encodeArgs.srcIP, "src", "", "source address ip:port (required)")
	f.StringVar(&encodeArgs.dstIP, "dst", "", "destination address ip:port (required)")
	f.StringVar(&encodeArgs.proto, "proto", "udp", "transport protocol: udp or tcp")
	f.StringVar(&encodeArgs.payload, "payload", "", "payload text")
	f.StringVar(&encodeArgs.payloadFile, "payload-file", "", "read the payload from a file ('-' for stdin)")
	f.StringVar(&encodeArgs.payloadType, "payload-type", "", "payload type name (sip, xmpp, sdp, or configured); detected for SIP")
	f.StringVar(&encodeArgs.correlationID, "correlation-id", "", "correlation ID, overrides the SIP Call-ID")
	f.StringVar(&encodeArgs.timestamp, "timestamp", "", "capture time in RFC3339 (default now)")
	f.StringVar(&encodeArgs.format, "format", "hex", "output format: hex or raw")
	f.StringVarP(&encodeArgs.outFile, "out", "o", "", "write the packet to a file instead of stdout")
	f.BoolVar(&encodeArgs.send, "send", false, "send the packet to the configured collectors")
	_ = encodeCmd.MarkFlagRequired("src")
	_ = encodeCmd.MarkFlagRequired("dst")
}

func runEncode(ctx context.Context, cfg *config.GlobalConfig, flags encodeFlags, out io.Writer) error {
	pkt, err := buildCapturedPacket(flags)
	if err != nil {
		return err
	}

	if flags.payloadType == "" && sipmeta.Detect(pkt.Payload) {
		ann := sipmeta.New(log.NewLogrusEntry(cfg.Log, "sipmeta"))
		if _, err := ann.Annotate(pkt); err != nil {
			return err
		}
	}
	if flags.correlationID != "" {
		if pkt.Labels == nil {
			pkt.Labels = make(core.Labels)
		}
		pkt.Labels[core.LabelCorrelationID] = flags.correlationID
	}

	frame, err := encoder.New(encoder.OptionsFromConfig(cfg)).Encode(pkt)
	if err != nil {
		return err
	}

	if flags.send {
		snd := sender.New()
		if err := snd.Init(cfg.SenderMap()); err != nil {
			return err
		}
		if err := snd.Start(ctx); err != nil {
			return err
		}
		defer snd.Stop(context.Background()) //nolint:errcheck
		if err := snd.Send(ctx, pkt.Flow(), frame); err != nil {
			return err
		}
	}

	return writeFrame(frame, flags, out)
}

func writeFrame(frame []byte, flags encodeFlags, out io.Writer) error {
	var data []byte
	switch flags.format {
	case "hex":
		data = []byte(hex.EncodeToString(frame) + "\n")
	case "raw":
		data = frame
	default:
		return fmt.Errorf("unsupported format %q (must be hex/raw)", flags.format)
	}

	if flags.outFile != "" {
		return os.WriteFile(flags.outFile, data, 0o644)
	}
	_, err := out.Write(data)
	return err
}

func buildCapturedPacket(flags encodeFlags) (*core.CapturedPacket, error) {
	src, err := netip.ParseAddrPort(flags.srcIP)
	if err != nil {
		return nil, fmt.Errorf("invalid --src: %w", err)
	}
	dst, err := netip.ParseAddrPort(flags.dstIP)
	if err != nil {
		return nil, fmt.Errorf("invalid --dst: %w", err)
	}

	var proto uint8
	switch strings.ToLower(flags.proto) {
	case "udp":
		proto = hep.ProtoUDP
	case "tcp":
		proto = hep.ProtoTCP
	default:
		return nil, fmt.Errorf("invalid --proto %q (must be udp/tcp)", flags.proto)
	}

	payload := []byte(flags.payload)
	switch {
	case flags.payloadFile == "-":
		if payload, err = io.ReadAll(os.Stdin); err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	case flags.payloadFile != "":
		if payload, err = os.ReadFile(flags.payloadFile); err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
	}

	ts := time.Now()
	if flags.timestamp != "" {
		if ts, err = time.Parse(time.RFC3339Nano, flags.timestamp); err != nil {
			return nil, fmt.Errorf("invalid --timestamp: %w", err)
		}
	}

	version := uint8(4)
	if !src.Addr().Unmap().Is4() {
		version = 6
	}
	return &core.CapturedPacket{
		Timestamp: ts,
		IP: core.IPHeader{
			Version:  version,
			SrcIP:    src.Addr(),
			DstIP:    dst.Addr(),
			Protocol: proto,
		},
		Transport:   core.TransportHeader{SrcPort: src.Port(), DstPort: dst.Port()},
		PayloadType: flags.payloadType,
		Payload:     payload,
	}, nil
}

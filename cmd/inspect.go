package cmd

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/hepagent/internal/inspect"
	"firestige.xyz/hepagent/internal/source"
	"firestige.xyz/hepagent/pkg/hep"
)

type inspectFlags struct {
	hex    bool
	pcap   bool
	output string
	opts   inspect.Options
}

var inspectArgs inspectFlags

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Decode and print HEP3 packets",
	Long: `Decode HEP3 packets and print their chunks. The input is a raw stream of
back-to-back packets, one hex-encoded packet per line (--hex), or a pcap/pcapng
capture of HEP traffic (--pcap). Without a file, stdin is read.

Examples:
  hepagent encode --src 10.0.0.1:5060 --dst 10.0.0.2:5060 --payload hi | hepagent inspect --hex
  hepagent inspect packets.bin --output json
  hepagent inspect --pcap hep-traffic.pcap --full --show-auth-key`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectArgs.pcap {
			if len(args) == 0 {
				return fmt.Errorf("--pcap needs a capture file")
			}
			return runInspectPcap(args[0], inspectArgs, cmd.OutOrStdout())
		}

		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runInspect(in, inspectArgs, cmd.OutOrStdout())
	},
}

func init() {
	f := inspectCmd.Flags()
	f.BoolVar(&inspectArgs.hex, "hex", false, "input is hex text, one packet per line")
	f.BoolVar(&inspectArgs.pcap, "pcap", false, "input is a pcap/pcapng capture of HEP traffic")
	f.StringVarP(&inspectArgs.output, "output", "o", "text", "output format: text, json or yaml")
	f.BoolVar(&inspectArgs.opts.ShowAuthKey, "show-auth-key", false, "print the auth key instead of masking it")
	f.BoolVar(&inspectArgs.opts.Full, "full", false, "print payloads without truncation")
}

func runInspect(in io.Reader, flags inspectFlags, out io.Writer) error {
	next := rawPackets(bufio.NewReader(in))
	if flags.hex {
		next = hexPackets(bufio.NewScanner(in))
	}

	n := 0
	for {
		b, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("packet %d: %w", n+1, err)
		}
		if err := printPacket(b, n, flags, out); err != nil {
			return fmt.Errorf("packet %d: %w", n+1, err)
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("no HEP3 packets found")
	}
	return nil
}

// runInspectPcap prints every UDP or TCP payload in the capture that starts
// with the HEP3 magic.
func runInspectPcap(path string, flags inspectFlags, out io.Writer) error {
	src, err := source.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	n := 0
	for {
		pkt, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := hep.PacketLen(pkt.Payload); err != nil {
			continue
		}
		if err := printPacket(pkt.Payload, n, flags, out); err != nil {
			return fmt.Errorf("%s:%d -> %s:%d: %w",
				pkt.IP.SrcIP, pkt.Transport.SrcPort, pkt.IP.DstIP, pkt.Transport.DstPort, err)
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("no HEP3 packets found in %s", path)
	}
	return nil
}

func printPacket(b []byte, index int, flags inspectFlags, out io.Writer) error {
	p, err := hep.DecodePacket(b)
	if err != nil {
		return err
	}
	if index > 0 && (flags.output == "" || flags.output == "text") {
		fmt.Fprintln(out)
	}
	return inspect.Render(out, inspect.Describe(p, flags.opts), flags.output)
}

// rawPackets frames back-to-back packets using the length in each header.
func rawPackets(r *bufio.Reader) func() ([]byte, error) {
	return func() ([]byte, error) {
		header, err := r.Peek(hep.HeaderLen)
		if len(header) == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("truncated header: %w", err)
		}
		total, err := hep.PacketLen(header)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, total)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("truncated packet: %w", err)
		}
		return buf, nil
	}
}

// hexPackets reads one hex-encoded packet per non-empty line.
func hexPackets(sc *bufio.Scanner) func() ([]byte, error) {
	sc.Buffer(make([]byte, 0, 64*1024), 4*hep.MaxLen)
	return func() ([]byte, error) {
		for sc.Scan() {
			line := strings.Join(strings.Fields(sc.Text()), "")
			if line == "" {
				continue
			}
			return hex.DecodeString(line)
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
}

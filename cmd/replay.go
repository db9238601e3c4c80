package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/hepagent/internal/config"
	"firestige.xyz/hepagent/internal/correlate"
	"firestige.xyz/hepagent/internal/encoder"
	"firestige.xyz/hepagent/internal/log"
	"firestige.xyz/hepagent/internal/metrics"
	"firestige.xyz/hepagent/internal/replay"
	"firestige.xyz/hepagent/internal/sender"
	"firestige.xyz/hepagent/internal/sipmeta"
	"firestige.xyz/hepagent/internal/source"
)

type replayFlags struct {
	file      string
	servers   []string
	transport string
	opts      replay.Options
}

var replayArgs replayFlags

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Send the packets of a capture file as HEP3",
	Long: `Read a pcap or pcapng file, label SIP traffic, correlate flows with their
Call-ID and send every packet as a HEP3 packet to the configured collectors.

Examples:
  hepagent replay -f call.pcap                          # as fast as possible, default collector
  hepagent replay -f call.pcap --realtime               # keep the capture's timing
  hepagent replay -f call.pcap --rate 500 --sip-only    # SIP and correlated media, 500 pps
  hepagent replay -c config.yml -f call.pcapng --server 10.0.0.1:9060 --transport tcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runReplay(ctx, cfg, replayArgs, cmd.OutOrStdout())
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVarP(&replayArgs.file, "file", "f", "", "pcap or pcapng file to replay (required)")
	f.StringSliceVar(&replayArgs.servers, "server", nil, "collector host:port, overrides sender.servers (repeatable)")
	f.StringVar(&replayArgs.transport, "transport", "", "udp or tcp, overrides sender.transport")
	f.Float64Var(&replayArgs.opts.Rate, "rate", 0, "maximum packets per second (0 = unlimited)")
	f.BoolVar(&replayArgs.opts.Realtime, "realtime", false, "reproduce the capture's inter-packet timing")
	f.Float64Var(&replayArgs.opts.Speed, "speed", 1, "speed factor for --realtime")
	f.BoolVar(&replayArgs.opts.RewriteTimestamps, "rewrite-timestamps", false, "stamp packets with the send time")
	f.BoolVar(&replayArgs.opts.SIPOnly, "sip-only", false, "send only SIP and packets correlated to a call")
	f.IntVar(&replayArgs.opts.Limit, "limit", 0, "stop after this many packets (0 = all)")
	_ = replayCmd.MarkFlagRequired("file")
}

func runReplay(ctx context.Context, cfg *config.GlobalConfig, flags replayFlags, out io.Writer) error {
	if len(flags.servers) > 0 {
		cfg.Sender.Servers = flags.servers
	}
	if flags.transport != "" {
		cfg.Sender.Transport = flags.transport
	}

	src, err := source.Open(flags.file)
	if err != nil {
		return err
	}
	defer src.Close()

	snd := sender.New()
	if err := snd.Init(cfg.SenderMap()); err != nil {
		return err
	}
	if err := snd.Start(ctx); err != nil {
		return err
	}
	defer snd.Stop(context.Background()) //nolint:errcheck

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := ms.Start(ctx); err != nil {
			return err
		}
		defer ms.Stop(context.Background()) //nolint:errcheck
	}

	var tracker *correlate.Tracker
	if cfg.Correlation.Enabled {
		tracker = correlate.New(cfg.Correlation.TTL)
		defer tracker.Close()
	}

	enc := encoder.New(encoder.OptionsFromConfig(cfg))
	pipeline := &replay.Pipeline{
		Source:    src,
		Annotator: sipmeta.New(log.NewLogrusEntry(cfg.Log, "sipmeta")),
		Tracker:   tracker,
		Encoder:   enc,
		Sink:      snd,
		Options:   flags.opts,
	}

	slog.Info("replay started", "file", flags.file, "servers", cfg.Sender.Servers)
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	kaCtx, stopKeepAlive := context.WithCancel(gctx)
	defer stopKeepAlive()

	g.Go(func() error {
		snd.RunKeepAlive(kaCtx, enc.KeepAlive)
		return nil
	})

	var stats replay.Stats
	g.Go(func() error {
		defer stopKeepAlive()
		var err error
		stats, err = pipeline.Run(gctx)
		return err
	})
	runErr := g.Wait()

	read, skipped := src.Stats()
	elapsed := time.Since(started).Round(time.Millisecond)
	fmt.Fprintf(out, "frames read: %d, undecodable: %d\n", read, skipped)
	fmt.Fprintf(out, "packets: sip=%d correlated=%d filtered=%d sent=%d failed=%d in %s\n",
		stats.SIP, stats.Correlated, stats.Filtered, stats.Sent, stats.Failed, elapsed)

	slog.Info("replay finished", "sent", stats.Sent, "failed", stats.Failed, "elapsed", elapsed)
	return runErr
}

// Package replay drives captured packets through the agent pipeline:
// source → sipmeta → correlate → encoder → sender.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/correlate"
	"firestige.xyz/hepagent/internal/sipmeta"
)

// PacketSource yields captured packets until io.EOF.
type PacketSource interface {
	Next() (*core.CapturedPacket, error)
}

// Encoder turns a captured packet into a HEP3 frame.
type Encoder interface {
	Encode(pkt *core.CapturedPacket) ([]byte, error)
}

// Sink delivers frames to collectors.
type Sink interface {
	Send(ctx context.Context, flow core.FlowKey, frame []byte) error
}

// Options controls pacing and filtering.
type Options struct {
	// Rate caps the send rate in packets per second; 0 means unlimited.
	Rate float64
	// Realtime reproduces the capture's inter-packet gaps divided by Speed.
	Realtime bool
	Speed    float64
	// RewriteTimestamps stamps packets with the send time instead of the capture time.
	RewriteTimestamps bool
	// SIPOnly drops packets that are neither SIP nor correlated to a SIP call.
	SIPOnly bool
	// Limit stops after this many sent packets; 0 means no limit.
	Limit int
}

// Stats summarises one run.
type Stats struct {
	Read       int `json:"read" yaml:"read"`
	SIP        int `json:"sip" yaml:"sip"`
	Correlated int `json:"correlated" yaml:"correlated"`
	Filtered   int `json:"filtered" yaml:"filtered"`
	Sent       int `json:"sent" yaml:"sent"`
	Failed     int `json:"failed" yaml:"failed"`
}

// Pipeline wires the stages together. Tracker may be nil to disable
// correlation.
type Pipeline struct {
	Source    PacketSource
	Annotator *sipmeta.Annotator
	Tracker   *correlate.Tracker
	Encoder   Encoder
	Sink      Sink
	Options   Options

	sleep func(ctx context.Context, d time.Duration) error
}

// Run processes packets until the source is exhausted, the limit is reached
// or ctx is cancelled. Per-packet encode and send failures are counted and
// logged; they do not stop the run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var st Stats
	if p.Source == nil || p.Encoder == nil || p.Sink == nil {
		return st, fmt.Errorf("replay: source, encoder and sink are required")
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var limiter *rate.Limiter
	if p.Options.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.Options.Rate), 1)
	}
	speed := p.Options.Speed
	if speed <= 0 {
		speed = 1
	}

	var prev time.Time
	for {
		if p.Options.Limit > 0 && st.Sent >= p.Options.Limit {
			return st, nil
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}

		pkt, err := p.Source.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("replay: read: %w", err)
		}
		st.Read++

		if !p.annotate(pkt, &st) {
			st.Filtered++
			continue
		}

		if p.Options.Realtime && !pkt.Timestamp.IsZero() {
			if !prev.IsZero() {
				if gap := pkt.Timestamp.Sub(prev); gap > 0 {
					if err := sleep(ctx, time.Duration(float64(gap)/speed)); err != nil {
						return st, err
					}
				}
			}
			prev = pkt.Timestamp
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return st, err
			}
		}
		if p.Options.RewriteTimestamps {
			pkt.Timestamp = time.Time{}
		}

		frame, err := p.Encoder.Encode(pkt)
		if err != nil {
			st.Failed++
			slog.Warn("encode failed", "flow", pkt.Flow(), "error", err)
			continue
		}
		if err := p.Sink.Send(ctx, pkt.Flow(), frame); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			if errors.Is(err, core.ErrSenderStopped) {
				return st, err
			}
			st.Failed++
			slog.Warn("send failed", "error", err)
			continue
		}
		st.Sent++
	}
}

// annotate runs SIP detection and correlation; it reports whether pkt
// should be sent.
func (p *Pipeline) annotate(pkt *core.CapturedPacket, st *Stats) bool {
	isSIP := false
	if p.Annotator != nil {
		ok, err := p.Annotator.Annotate(pkt)
		if err != nil {
			slog.Debug("sip annotate failed", "flow", pkt.Flow(), "error", err)
		}
		isSIP = ok
	}
	if isSIP {
		st.SIP++
	}

	correlated := false
	if p.Tracker != nil {
		correlated = p.Tracker.Observe(pkt)
	}
	if correlated {
		st.Correlated++
	}

	return !p.Options.SIPOnly || isSIP || correlated
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

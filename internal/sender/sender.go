// Package sender delivers encoded HEP3 packets to one or more collectors over
// UDP or TCP.
//
// Routing is flow-stable: the target collector is selected from the 5-tuple
// of the captured packet, so every packet of a call reaches the same
// collector. Both directions of a flow hash to the same collector.
//
// Example configuration:
//
//	sender:
//	  transport: udp          # udp | tcp
//	  servers:
//	    - "10.0.0.1:9060"
//	    - "10.0.0.2:9060"
//	  routing: hash           # hash (FNV modulo) | ring (consistent hash)
//	  dscp: 46
//	  write_timeout: 3s
//	  keepalive_interval: 30s
package sender

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/serialx/hashring"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/metrics"
)

// Config holds sender configuration.
type Config struct {
	Transport         string        `mapstructure:"transport"`
	Servers           []string      `mapstructure:"servers"`
	Routing           string        `mapstructure:"routing"`
	DSCP              int           `mapstructure:"dscp"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

// endpoint is one collector connection. Writes are serialised per endpoint
// so TCP frames never interleave.
type endpoint struct {
	addr string
	mu   sync.Mutex
	conn net.Conn
}

// Sender writes HEP3 frames to collectors.
type Sender struct {
	config Config

	mu        sync.RWMutex
	running   bool
	endpoints []*endpoint
	byAddr    map[string]*endpoint
	ring      *hashring.HashRing

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)

	sentCount  atomic.Uint64
	errorCount atomic.Uint64
}

// New creates a Sender. Call Init and Start before sending.
func New() *Sender {
	return &Sender{dial: net.DialTimeout}
}

// Init decodes and validates configuration.
func (s *Sender) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("sender: configuration is required")
	}

	cfg := Config{Transport: "udp", Routing: "hash", WriteTimeout: 3 * time.Second}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("%w: sender: %v", core.ErrConfigInvalid, err)
	}

	switch cfg.Transport {
	case "udp", "tcp":
	default:
		return fmt.Errorf("%w: sender: unsupported transport %q", core.ErrConfigInvalid, cfg.Transport)
	}
	switch cfg.Routing {
	case "hash", "ring":
	default:
		return fmt.Errorf("%w: sender: unsupported routing %q", core.ErrConfigInvalid, cfg.Routing)
	}
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("%w: sender: at least one server is required", core.ErrConfigInvalid)
	}
	seen := make(map[string]bool, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		if _, _, err := net.SplitHostPort(srv); err != nil {
			return fmt.Errorf("%w: sender: server %q: %v", core.ErrConfigInvalid, srv, err)
		}
		if seen[srv] {
			return fmt.Errorf("%w: sender: duplicate server %q", core.ErrConfigInvalid, srv)
		}
		seen[srv] = true
	}
	if cfg.DSCP < 0 || cfg.DSCP > 63 {
		return fmt.Errorf("%w: sender: dscp must be within 0..63", core.ErrConfigInvalid)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	s.config = cfg
	return nil
}

// Config returns the active configuration.
func (s *Sender) Config() Config { return s.config }

// Start connects to every configured collector.
func (s *Sender) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if len(s.config.Servers) == 0 {
		return core.ErrNoServer
	}

	eps := make([]*endpoint, 0, len(s.config.Servers))
	byAddr := make(map[string]*endpoint, len(s.config.Servers))
	for _, srv := range s.config.Servers {
		ep := &endpoint{addr: srv}
		if err := s.connect(ep); err != nil {
			closeEndpoints(eps)
			return err
		}
		eps = append(eps, ep)
		byAddr[srv] = ep
	}

	s.endpoints = eps
	s.byAddr = byAddr
	if s.config.Routing == "ring" {
		s.ring = hashring.New(s.config.Servers)
	}
	s.running = true

	slog.Info("sender started",
		"transport", s.config.Transport,
		"servers", s.config.Servers,
		"routing", s.config.Routing,
	)
	return nil
}

// Stop closes every connection and logs final statistics.
func (s *Sender) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	closeEndpoints(s.endpoints)
	s.endpoints, s.byAddr, s.ring = nil, nil, nil
	s.running = false

	slog.Info("sender stopped",
		"sent", s.sentCount.Load(),
		"errors", s.errorCount.Load(),
	)
	return nil
}

// Stats returns the number of frames written and failed writes.
func (s *Sender) Stats() (sent, failed uint64) {
	return s.sentCount.Load(), s.errorCount.Load()
}

// Send writes frame to the collector owning flow.
func (s *Sender) Send(ctx context.Context, flow core.FlowKey, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return core.ErrSenderStopped
	}
	return s.write(s.selectEndpoint(flow), frame)
}

// Broadcast writes frame to every collector. All collectors are attempted;
// the returned error joins the individual failures.
func (s *Sender) Broadcast(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return core.ErrSenderStopped
	}
	var errs []error
	for _, ep := range s.endpoints {
		if err := s.write(ep, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunKeepAlive broadcasts a frame from build every keep-alive interval until
// ctx is cancelled. It returns immediately when keep-alives are disabled.
func (s *Sender) RunKeepAlive(ctx context.Context, build func() ([]byte, error)) {
	if s.config.KeepAliveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := build()
			if err != nil {
				slog.Warn("keep-alive encode failed", "error", err)
				continue
			}
			if err := s.Broadcast(ctx, frame); err != nil && ctx.Err() == nil {
				slog.Warn("keep-alive send failed", "error", err)
			}
		}
	}
}

// write sends one frame, redialling a TCP connection once on failure.
func (s *Sender) write(ep *endpoint, frame []byte) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	err := s.writeLocked(ep, frame)
	if err != nil && s.config.Transport == "tcp" {
		slog.Debug("sender redial", "server", ep.addr, "error", err)
		if derr := s.connect(ep); derr == nil {
			err = s.writeLocked(ep, frame)
		}
	}
	if err != nil {
		s.errorCount.Add(1)
		metrics.ErrorsTotal.WithLabelValues("send").Inc()
		return fmt.Errorf("sender: send to %s: %w", ep.addr, err)
	}

	s.sentCount.Add(1)
	metrics.SentPacketsTotal.WithLabelValues(s.config.Transport, ep.addr).Inc()
	return nil
}

func (s *Sender) writeLocked(ep *endpoint, frame []byte) error {
	if ep.conn == nil {
		return net.ErrClosed
	}
	if err := ep.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	_, err := ep.conn.Write(frame)
	return err
}

// connect (re)dials ep and applies the DSCP marking.
func (s *Sender) connect(ep *endpoint) error {
	if ep.conn != nil {
		_ = ep.conn.Close()
		ep.conn = nil
	}
	conn, err := s.dial(s.config.Transport, ep.addr, s.config.WriteTimeout)
	if err != nil {
		return fmt.Errorf("sender: dial %s %q: %w", s.config.Transport, ep.addr, err)
	}
	if s.config.DSCP > 0 {
		if err := setDSCP(conn, s.config.DSCP); err != nil {
			slog.Warn("failed to set DSCP", "server", ep.addr, "dscp", s.config.DSCP, "error", err)
		}
	}
	ep.conn = conn
	return nil
}

// setDSCP marks outgoing packets; DSCP occupies the upper six bits of the
// IPv4 TOS / IPv6 traffic class byte.
func setDSCP(conn net.Conn, dscp int) error {
	remote, err := netip.ParseAddrPort(conn.RemoteAddr().String())
	if err != nil {
		return err
	}
	if remote.Addr().Unmap().Is4() {
		return ipv4.NewConn(conn).SetTOS(dscp << 2)
	}
	return ipv6.NewConn(conn).SetTrafficClass(dscp << 2)
}

// selectEndpoint returns the collector that owns flow.
func (s *Sender) selectEndpoint(flow core.FlowKey) *endpoint {
	if len(s.endpoints) == 1 {
		return s.endpoints[0]
	}
	if s.ring != nil {
		if node, ok := s.ring.GetNode(ringKey(flow)); ok {
			if ep, ok := s.byAddr[node]; ok {
				return ep
			}
		}
	}
	return s.endpoints[flowHash(flow)%uint32(len(s.endpoints))]
}

// canonical orders the flow so that both directions produce the same key.
func canonical(flow core.FlowKey) core.FlowKey {
	a := netip.AddrPortFrom(flow.SrcIP.Unmap(), flow.SrcPort)
	b := netip.AddrPortFrom(flow.DstIP.Unmap(), flow.DstPort)
	if a.Compare(b) > 0 {
		return flow.Reverse()
	}
	return flow
}

// flowHash computes FNV-32a(srcIP‖srcPort‖dstIP‖dstPort‖protocol) over the
// canonical flow. As16 gives IPv4 and IPv4-mapped addresses one form.
func flowHash(flow core.FlowKey) uint32 {
	flow = canonical(flow)
	h := fnv.New32a()

	src16 := flow.SrcIP.As16()
	dst16 := flow.DstIP.As16()
	var port [2]byte

	_, _ = h.Write(src16[:])
	binary.BigEndian.PutUint16(port[:], flow.SrcPort)
	_, _ = h.Write(port[:])
	_, _ = h.Write(dst16[:])
	binary.BigEndian.PutUint16(port[:], flow.DstPort)
	_, _ = h.Write(port[:])
	_, _ = h.Write([]byte{flow.Protocol})

	return h.Sum32()
}

func ringKey(flow core.FlowKey) string {
	flow = canonical(flow)
	return fmt.Sprintf("%d|%s|%s",
		flow.Protocol,
		netip.AddrPortFrom(flow.SrcIP.Unmap(), flow.SrcPort),
		netip.AddrPortFrom(flow.DstIP.Unmap(), flow.DstPort))
}

func closeEndpoints(eps []*endpoint) {
	for _, ep := range eps {
		ep.mu.Lock()
		if ep.conn != nil {
			_ = ep.conn.Close()
			ep.conn = nil
		}
		ep.mu.Unlock()
	}
}

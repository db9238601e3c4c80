// Package correlate remembers which flows belong to which SIP call so that
// non-SIP packets on those flows (RTP, RTCP, TCP continuation segments)
// carry the call's correlation ID.
package correlate

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/metrics"
	"firestige.xyz/hepagent/internal/sipmeta"
)

// entry is the value stored per flow or media endpoint.
type entry struct {
	callID      string
	payloadType string // set for media endpoints: rtp | rtcp
}

// Tracker maps flows and SDP media endpoints to SIP Call-IDs.
// Entries expire ttl after their last SIP sighting. Expired entries are
// evicted from Observe, so a Tracker starts no background goroutine.
type Tracker struct {
	cache *cache.Cache
	ttl   time.Duration

	mu         sync.Mutex
	sweepEvery time.Duration
	lastSweep  time.Time
}

// New creates a Tracker.
func New(ttl time.Duration) *Tracker {
	sweepEvery := ttl / 2
	if sweepEvery <= 0 {
		sweepEvery = ttl
	}
	return &Tracker{
		cache:      cache.New(ttl, 0),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		lastSweep:  time.Now(),
	}
}

// sweep evicts expired entries at most once per sweepEvery.
func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastSweep) < t.sweepEvery {
		return
	}
	t.cache.DeleteExpired()
	t.lastSweep = time.Now()
	metrics.CorrelationEntries.Set(float64(t.cache.ItemCount()))
}

// Observe learns from SIP packets and labels packets of known flows.
// It returns true when it attached a correlation ID to pkt.
func (t *Tracker) Observe(pkt *core.CapturedPacket) bool {
	t.sweep()
	if callID := pkt.Labels[core.LabelSIPCallID]; callID != "" {
		t.learn(pkt, callID)
		return false
	}
	if pkt.Labels[core.LabelCorrelationID] != "" {
		return false
	}

	e, ok := t.lookup(pkt)
	if !ok {
		return false
	}
	if pkt.Labels == nil {
		pkt.Labels = make(core.Labels)
	}
	pkt.Labels[core.LabelCorrelationID] = e.callID
	if pkt.PayloadType == "" {
		pkt.PayloadType = e.payloadType
	}
	return true
}

func (t *Tracker) learn(pkt *core.CapturedPacket, callID string) {
	flow := pkt.Flow()
	sip := entry{callID: callID, payloadType: sipmeta.PayloadType}
	t.cache.Set(flowKey(flow), sip, cache.DefaultExpiration)
	t.cache.Set(flowKey(flow.Reverse()), sip, cache.DefaultExpiration)

	for _, s := range sipmeta.MediaStreams(pkt.Payload) {
		t.cache.Set(mediaKey(s.Addr, s.RTPPort), entry{callID: callID, payloadType: "rtp"}, cache.DefaultExpiration)
		if s.RTCPPort != s.RTPPort {
			t.cache.Set(mediaKey(s.Addr, s.RTCPPort), entry{callID: callID, payloadType: "rtcp"}, cache.DefaultExpiration)
		}
	}
	metrics.CorrelationEntries.Set(float64(t.cache.ItemCount()))
}

func (t *Tracker) lookup(pkt *core.CapturedPacket) (entry, bool) {
	keys := []string{
		flowKey(pkt.Flow()),
		mediaKey(pkt.IP.DstIP, pkt.Transport.DstPort),
		mediaKey(pkt.IP.SrcIP, pkt.Transport.SrcPort),
	}
	for _, k := range keys {
		if v, ok := t.cache.Get(k); ok {
			return v.(entry), true
		}
	}
	return entry{}, false
}

// Len returns the number of tracked flows and media endpoints, expired
// entries not yet evicted included.
func (t *Tracker) Len() int {
	return t.cache.ItemCount()
}

// Close drops every entry.
func (t *Tracker) Close() {
	t.cache.Flush()
	metrics.CorrelationEntries.Set(0)
}

func flowKey(k core.FlowKey) string {
	return fmt.Sprintf("flow|%d|%s|%s",
		k.Protocol,
		netip.AddrPortFrom(k.SrcIP.Unmap(), k.SrcPort),
		netip.AddrPortFrom(k.DstIP.Unmap(), k.DstPort))
}

func mediaKey(addr netip.Addr, port uint16) string {
	return "media|" + netip.AddrPortFrom(addr.Unmap(), port).String()
}

// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourcePacketsTotal counts frames read from capture sources.
	SourcePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hepagent_source_packets_total",
			Help: "Total number of frames read from capture sources",
		},
		[]string{"source", "result"}, // result: decoded | skipped
	)

	// EncodedPacketsTotal counts HEP3 packets produced by the encoder.
	EncodedPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hepagent_encoded_packets_total",
			Help: "Total number of HEP3 packets encoded",
		},
		[]string{"kind"}, // capture | keepalive
	)

	// EncodedPacketBytes tracks the size distribution of encoded HEP3 packets.
	EncodedPacketBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hepagent_encoded_packet_bytes",
			Help:    "Size of encoded HEP3 packets in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 11), // 64B .. 64KiB
		},
	)

	// SentPacketsTotal counts packets delivered to collectors.
	SentPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hepagent_sent_packets_total",
			Help: "Total number of HEP3 packets written to collectors",
		},
		[]string{"transport", "server"},
	)

	// ErrorsTotal counts failures by pipeline stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hepagent_errors_total",
			Help: "Total number of errors by stage",
		},
		[]string{"stage"}, // decode | sip | encode | send
	)

	// CorrelationEntries tracks the number of flows held by the correlation cache.
	CorrelationEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hepagent_correlation_entries",
			Help: "Number of flows tracked in the correlation cache",
		},
	)
)

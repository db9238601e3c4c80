package source

import (
	"errors"
	"log/slog"

	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/metrics"
)

// Source yields decoded packets from a capture file, skipping frames the
// decoder cannot use.
type Source struct {
	file    *File
	decoder *Decoder

	read    int
	skipped int
}

// Open opens path and prepares a decoder for its link type.
func Open(path string) (*Source, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// New wraps an already opened capture.
func New(f *File) *Source {
	return &Source{file: f, decoder: NewDecoder(f.LinkType())}
}

// Next returns the next decodable packet, or io.EOF when the capture is exhausted.
func (s *Source) Next() (*core.CapturedPacket, error) {
	for {
		raw, err := s.file.ReadPacket()
		if err != nil {
			return nil, err
		}
		s.read++

		pkt, err := s.decoder.Decode(raw)
		if err != nil {
			s.skipped++
			metrics.SourcePacketsTotal.WithLabelValues(s.file.Format(), "skipped").Inc()
			if errors.Is(err, core.ErrUnsupportedProto) || errors.Is(err, core.ErrPacketTooShort) {
				slog.Debug("skipping frame", "index", s.read, "error", err)
				continue
			}
			return nil, err
		}
		metrics.SourcePacketsTotal.WithLabelValues(s.file.Format(), "decoded").Inc()
		return pkt, nil
	}
}

// Stats returns the number of frames read and skipped so far.
func (s *Source) Stats() (read, skipped int) {
	return s.read, s.skipped
}

// Close closes the capture file.
func (s *Source) Close() error {
	return s.file.Close()
}

// Package source reads captured frames from pcap and pcapng files and decodes
// them into core.CapturedPacket values.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/hepagent/internal/core"
)

// pcapng section header block type, as it appears on disk.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// File reads raw frames from a capture file.
type File struct {
	path   string
	f      *os.File
	reader packetReader
	format string
}

// OpenFile opens a pcap or pcapng file; the format is sniffed from the
// first block.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	fs, err := newFile(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	fs.f = f
	return fs, nil
}

// NewReader reads capture data from r.
func NewReader(name string, r io.Reader) (*File, error) {
	return newFile(name, r)
}

func newFile(name string, r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header of %s: %w", name, err)
	}

	fs := &File{path: name}
	if bytes.Equal(head, ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcapng %s: %w", name, err)
		}
		fs.reader, fs.format = ng, "pcapng"
		return fs, nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap %s: %w", name, err)
	}
	fs.reader, fs.format = pr, "pcap"
	return fs, nil
}

// ReadPacket returns the next frame, or io.EOF at the end of the file.
func (fs *File) ReadPacket() (core.RawPacket, error) {
	data, ci, err := fs.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return core.RawPacket{}, io.EOF
		}
		return core.RawPacket{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return core.RawPacket{
		Data:       data,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
	}, nil
}

// LinkType returns the link type of the capture.
func (fs *File) LinkType() layers.LinkType {
	return fs.reader.LinkType()
}

// Format returns "pcap" or "pcapng".
func (fs *File) Format() string {
	return fs.format
}

// Close closes the underlying file, if OpenFile opened one.
func (fs *File) Close() error {
	if fs.f == nil {
		return nil
	}
	err := fs.f.Close()
	fs.f = nil
	return err
}

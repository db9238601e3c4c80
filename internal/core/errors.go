// Package core defines sentinel errors.
package core

import "errors"

var (
	// Packet decoding errors
	ErrPacketTooShort   = errors.New("hepagent: packet too short")
	ErrUnsupportedProto = errors.New("hepagent: unsupported protocol")

	// Configuration errors
	ErrConfigInvalid = errors.New("hepagent: invalid configuration")

	// Sender errors
	ErrSenderStopped = errors.New("hepagent: sender stopped")
	ErrNoServer      = errors.New("hepagent: no server available")
)

package hep

import "errors"

// Sentinel errors. Callers match them with errors.Is; returned errors wrap
// them with the offending sizes.
var (
	// ErrMalformedChunk reports a truncated or inconsistent chunk on decode.
	ErrMalformedChunk = errors.New("hep: malformed chunk")

	// ErrMalformedPacket reports a bad packet envelope on decode.
	ErrMalformedPacket = errors.New("hep: malformed packet")

	// ErrPayloadTooLarge reports a chunk or packet that cannot fit a 16-bit length field.
	ErrPayloadTooLarge = errors.New("hep: payload too large")

	// ErrBuilderMisuse reports AddChunk or Build on an already built packet.
	ErrBuilderMisuse = errors.New("hep: builder misuse")
)

package hep

import "fmt"

// BuilderState tracks the lifecycle of a Builder.
type BuilderState int

const (
	StateEmpty BuilderState = iota
	StateAccumulating
	StateBuilt
)

func (s BuilderState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAccumulating:
		return "accumulating"
	case StateBuilt:
		return "built"
	default:
		return fmt.Sprintf("BuilderState(%d)", int(s))
	}
}

// Builder accumulates chunks and finalises them into one packet buffer.
//
// A Builder is single-use: after a successful Build every further call fails
// with ErrBuilderMisuse. Building with zero chunks is allowed and yields the
// bare 6-byte header. A Builder is not safe for concurrent use.
type Builder struct {
	packet Packet
	state  BuilderState
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// State returns the current lifecycle state.
func (b *Builder) State() BuilderState { return b.state }

// AddChunk appends a copy of c to the packet. No distinctness check is made.
func (b *Builder) AddChunk(c Chunk) error {
	if b.state == StateBuilt {
		return fmt.Errorf("%w: add chunk %s after build", ErrBuilderMisuse, c.Type)
	}
	if len(c.Payload) > MaxPayload {
		return fmt.Errorf("%w: chunk %s carries %d bytes, max %d",
			ErrPayloadTooLarge, c.Type, len(c.Payload), MaxPayload)
	}
	c.Payload = append([]byte(nil), c.Payload...)
	b.packet.Chunks = append(b.packet.Chunks, c)
	b.state = StateAccumulating
	return nil
}

// Build serialises the accumulated chunks in insertion order. When the packet
// would exceed 65535 bytes the builder keeps its state and the caller may
// retry with fewer chunks on a new Builder.
func (b *Builder) Build() ([]byte, error) {
	if b.state == StateBuilt {
		return nil, fmt.Errorf("%w: build called twice", ErrBuilderMisuse)
	}
	buf, err := b.packet.Encode()
	if err != nil {
		return nil, err
	}
	b.state = StateBuilt
	return buf, nil
}

package mavlink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnknownMessage is returned when encoding a message whose type is not
	// in the encoder's registry.
	ErrUnknownMessage = errors.New("message type not in registry")

	// ErrMessageIDTooLarge is returned when a v1 frame is requested for a
	// message id above 255.
	ErrMessageIDTooLarge = errors.New("message id does not fit a v1 frame")
)

type marshaler interface {
	marshal() []byte
}

// Encoder frames messages for transmission. Each frame gets the next
// sequence number, so an Encoder must not be shared between goroutines.
type Encoder struct {
	registry    Registry
	systemID    uint8
	componentID uint8
	seq         uint8
}

// NewEncoder creates an Encoder framing messages as the given system and
// component.
func NewEncoder(registry Registry, systemID, componentID uint8) *Encoder {
	return &Encoder{
		registry:    registry,
		systemID:    systemID,
		componentID: componentID,
	}
}

// AppendV1 appends a MAVLink v1 frame carrying m to dst.
func (e *Encoder) AppendV1(dst []byte, m Message) ([]byte, error) {
	if m.MessageID() > 0xFF {
		return dst, fmt.Errorf("encoding message %d: %w", m.MessageID(), ErrMessageIDTooLarge)
	}
	schema, payload, err := e.payload(m)
	if err != nil {
		return dst, err
	}

	start := len(dst)
	dst = append(dst, MagicV1, byte(len(payload)), e.seq, e.systemID, e.componentID, byte(m.MessageID()))
	dst = append(dst, payload...)
	dst = binary.LittleEndian.AppendUint16(dst, frameChecksum(dst[start+1:], schema.CRCExtra))

	e.seq++
	return dst, nil
}

// AppendV2 appends an unsigned MAVLink v2 frame carrying m to dst. Trailing
// zero bytes of the payload are truncated as the protocol requires.
func (e *Encoder) AppendV2(dst []byte, m Message) ([]byte, error) {
	schema, payload, err := e.payload(m)
	if err != nil {
		return dst, err
	}

	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	payload = payload[:n]

	id := m.MessageID()
	start := len(dst)
	dst = append(dst, MagicV2, byte(len(payload)), 0, 0, e.seq, e.systemID, e.componentID,
		byte(id), byte(id>>8), byte(id>>16))
	dst = append(dst, payload...)
	dst = binary.LittleEndian.AppendUint16(dst, frameChecksum(dst[start+1:], schema.CRCExtra))

	e.seq++
	return dst, nil
}

func (e *Encoder) payload(m Message) (Schema, []byte, error) {
	schema, ok := e.registry.Lookup(m.MessageID())
	if !ok {
		return schema, nil, fmt.Errorf("encoding message %d: %w", m.MessageID(), ErrUnknownMessage)
	}
	mm, ok := m.(marshaler)
	if !ok {
		return schema, nil, fmt.Errorf("encoding message %d: %w", m.MessageID(), ErrUnknownMessage)
	}
	return schema, mm.marshal(), nil
}

package mavlink

import "maps"

// Schema describes how to verify and decode one message type.
type Schema struct {
	Name     string
	CRCExtra byte
	Length   int // payload length without v2 zero truncation
	Decode   func(payload []byte) Message
}

// Registry maps message ids to schemas. A registry is built once and only
// read afterwards.
type Registry map[uint32]Schema

// CommonRegistry returns the message types the flight computer relays over
// the satellite link.
func CommonRegistry() Registry {
	return Registry{
		MsgIDAttitude: {
			Name:     "ATTITUDE",
			CRCExtra: attitudeCRCExtra,
			Length:   attitudeLength,
			Decode:   decodeAttitude,
		},
		MsgIDGlobalPositionInt: {
			Name:     "GLOBAL_POSITION_INT",
			CRCExtra: globalPositionIntCRCExtra,
			Length:   globalPositionIntLength,
			Decode:   decodeGlobalPositionInt,
		},
	}
}

// With returns a copy of r extended with the given schema.
func (r Registry) With(id uint32, s Schema) Registry {
	out := maps.Clone(r)
	if out == nil {
		out = make(Registry, 1)
	}
	out[id] = s
	return out
}

// Lookup returns the schema for a message id.
func (r Registry) Lookup(id uint32) (Schema, bool) {
	s, ok := r[id]
	return s, ok
}

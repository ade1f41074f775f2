package mavlink

import (
	"encoding/binary"
	"math"
)

const (
	MsgIDAttitude          uint32 = 30
	MsgIDGlobalPositionInt uint32 = 33

	attitudeLength          = 28
	globalPositionIntLength = 28

	attitudeCRCExtra          byte = 39
	globalPositionIntCRCExtra byte = 104
)

// Message is a decoded MAVLink message. Concrete types are *Attitude,
// *GlobalPositionInt and *Unknown.
type Message interface {
	MessageID() uint32
}

// Attitude is the ATTITUDE (#30) message. Angles in radians, rates in rad/s.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

func (*Attitude) MessageID() uint32 { return MsgIDAttitude }

func (m *Attitude) marshal() []byte {
	p := make([]byte, attitudeLength)
	binary.LittleEndian.PutUint32(p[0:], m.TimeBootMs)
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(m.Roll))
	binary.LittleEndian.PutUint32(p[8:], math.Float32bits(m.Pitch))
	binary.LittleEndian.PutUint32(p[12:], math.Float32bits(m.Yaw))
	binary.LittleEndian.PutUint32(p[16:], math.Float32bits(m.RollSpeed))
	binary.LittleEndian.PutUint32(p[20:], math.Float32bits(m.PitchSpeed))
	binary.LittleEndian.PutUint32(p[24:], math.Float32bits(m.YawSpeed))
	return p
}

func decodeAttitude(p []byte) Message {
	return &Attitude{
		TimeBootMs: binary.LittleEndian.Uint32(p[0:]),
		Roll:       math.Float32frombits(binary.LittleEndian.Uint32(p[4:])),
		Pitch:      math.Float32frombits(binary.LittleEndian.Uint32(p[8:])),
		Yaw:        math.Float32frombits(binary.LittleEndian.Uint32(p[12:])),
		RollSpeed:  math.Float32frombits(binary.LittleEndian.Uint32(p[16:])),
		PitchSpeed: math.Float32frombits(binary.LittleEndian.Uint32(p[20:])),
		YawSpeed:   math.Float32frombits(binary.LittleEndian.Uint32(p[24:])),
	}
}

// GlobalPositionInt is the GLOBAL_POSITION_INT (#33) message, the fused
// position estimate of the autopilot.
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32  // degE7
	Lon         int32  // degE7
	Alt         int32  // mm, MSL
	RelativeAlt int32  // mm above home
	Vx          int16  // cm/s, north
	Vy          int16  // cm/s, east
	Vz          int16  // cm/s, down
	Hdg         uint16 // cdeg, UINT16_MAX if unknown
}

func (*GlobalPositionInt) MessageID() uint32 { return MsgIDGlobalPositionInt }

func (m *GlobalPositionInt) marshal() []byte {
	p := make([]byte, globalPositionIntLength)
	binary.LittleEndian.PutUint32(p[0:], m.TimeBootMs)
	binary.LittleEndian.PutUint32(p[4:], uint32(m.Lat))
	binary.LittleEndian.PutUint32(p[8:], uint32(m.Lon))
	binary.LittleEndian.PutUint32(p[12:], uint32(m.Alt))
	binary.LittleEndian.PutUint32(p[16:], uint32(m.RelativeAlt))
	binary.LittleEndian.PutUint16(p[20:], uint16(m.Vx))
	binary.LittleEndian.PutUint16(p[22:], uint16(m.Vy))
	binary.LittleEndian.PutUint16(p[24:], uint16(m.Vz))
	binary.LittleEndian.PutUint16(p[26:], m.Hdg)
	return p
}

func decodeGlobalPositionInt(p []byte) Message {
	return &GlobalPositionInt{
		TimeBootMs:  binary.LittleEndian.Uint32(p[0:]),
		Lat:         int32(binary.LittleEndian.Uint32(p[4:])),
		Lon:         int32(binary.LittleEndian.Uint32(p[8:])),
		Alt:         int32(binary.LittleEndian.Uint32(p[12:])),
		RelativeAlt: int32(binary.LittleEndian.Uint32(p[16:])),
		Vx:          int16(binary.LittleEndian.Uint16(p[20:])),
		Vy:          int16(binary.LittleEndian.Uint16(p[22:])),
		Vz:          int16(binary.LittleEndian.Uint16(p[24:])),
		Hdg:         binary.LittleEndian.Uint16(p[26:]),
	}
}

// Unknown is a framed packet whose message id is not in the registry. Its
// checksum cannot be verified, so the payload may be garbage.
type Unknown struct {
	ID      uint32
	Payload []byte
}

func (m *Unknown) MessageID() uint32 { return m.ID }

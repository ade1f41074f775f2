// Package mavlink splits MAVLink v1/v2 frames out of a byte buffer and decodes
// the message types the receiver cares about.
//
// A satellite message carries several frames back to back followed by a
// short trailer. Decoding never fails as a whole: frames with a bad checksum
// or a length running past the end of the buffer are dropped and scanning
// resumes at the next byte, so one damaged frame cannot hide the ones after it.
//
// Frames of unregistered message types cannot be verified. They are reported
// only when their length ends on another magic byte or at the end of the
// buffer, and magic bytes inside a reported frame do not produce further
// unknown frames.
package mavlink

import (
	"bytes"
	"encoding/binary"
	"io"
	"iter"
	"log/slog"
)

const (
	MagicV1 byte = 0xFE
	MagicV2 byte = 0xFD

	headerLenV1  = 6 // including magic
	headerLenV2  = 10
	checksumLen  = 2
	signatureLen = 13

	incompatFlagSigned = 0x01
)

// DropReason explains why a frame was discarded.
type DropReason string

const (
	DropBadChecksum    DropReason = "bad_checksum"
	DropTruncated      DropReason = "truncated"
	DropUnknownMessage DropReason = "unknown_message"
)

// Header holds the frame header fields common to v1 and v2.
type Header struct {
	Version       uint8 // 1 or 2
	PayloadLength uint8
	IncompatFlags uint8 // v2 only
	CompatFlags   uint8 // v2 only
	Sequence      uint8
	SystemID      uint8
	ComponentID   uint8
	MessageID     uint32
}

// Packet is one framed MAVLink packet. Payload and Signature alias the
// buffer passed to the decoder.
type Packet struct {
	Header
	Payload   []byte
	Checksum  uint16
	Signature []byte
	Verified  bool // checksum matched a registered schema
}

// WithLogger sets the logger used to report dropped frames
func WithLogger(logger *slog.Logger) func(d *Decoder) {
	return func(d *Decoder) {
		d.logger = logger.With(slog.String("component", "mavlink"))
	}
}

// WithDropHook registers a callback invoked for every dropped frame.
func WithDropHook(fn func(DropReason)) func(d *Decoder) {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// Decoder splits and decodes MAVLink frames against a fixed registry. It
// holds no per-buffer state and is safe for concurrent use.
type Decoder struct {
	registry Registry
	logger   *slog.Logger
	onDrop   func(DropReason)
}

// NewDecoder creates a Decoder with a discard logger
func NewDecoder(registry Registry, options ...func(d *Decoder)) *Decoder {
	d := Decoder{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Packets returns the frames found in buf, in order. Frames of unregistered
// message types are yielded unverified.
func (d *Decoder) Packets(buf []byte) iter.Seq[Packet] {
	return func(yield func(Packet) bool) {
		// end of the last reported unknown frame
		shadow := 0

		for offset := 0; offset < len(buf); {
			idx := indexMagic(buf[offset:])
			if idx < 0 {
				return
			}
			offset += idx

			pkt, n, reason := d.parseFrame(buf[offset:])
			switch reason {
			case "":
				if !yield(pkt) {
					return
				}
				offset += n

			case DropUnknownMessage:
				if offset < shadow || !aligned(buf, offset+n) {
					d.logger.Debug("skipping unaligned MAVLink frame",
						slog.Int("offset", offset),
						slog.Uint64("msgID", uint64(pkt.MessageID)))
					offset++
					continue
				}

				d.drop(reason, offset, pkt.MessageID)
				if !yield(pkt) {
					return
				}
				shadow = offset + n
				offset++ // unverified length, resync on the next byte

			default:
				d.drop(reason, offset, pkt.MessageID)
				offset++
			}
		}
	}
}

// Messages returns the decoded messages found in buf. Unregistered message
// types come out as *Unknown.
func (d *Decoder) Messages(buf []byte) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for pkt := range d.Packets(buf) {
			if !yield(d.decode(pkt)) {
				return
			}
		}
	}
}

// Decode collects all messages found in buf.
func (d *Decoder) Decode(buf []byte) []Message {
	var out []Message
	for m := range d.Messages(buf) {
		out = append(out, m)
	}
	return out
}

func (d *Decoder) decode(pkt Packet) Message {
	schema, ok := d.registry.Lookup(pkt.MessageID)
	if !pkt.Verified || !ok || schema.Decode == nil {
		return &Unknown{ID: pkt.MessageID, Payload: bytes.Clone(pkt.Payload)}
	}

	// v2 senders strip trailing zero bytes; extension fields past the
	// schema length are not decoded.
	payload := make([]byte, schema.Length)
	copy(payload, pkt.Payload)
	return schema.Decode(payload)
}

// parseFrame parses the frame at the start of b, which begins with a magic
// byte. It returns the packet, the total frame length and a drop reason.
func (d *Decoder) parseFrame(b []byte) (pkt Packet, n int, reason DropReason) {
	var hdrLen int
	switch b[0] {
	case MagicV1:
		hdrLen = headerLenV1
		if len(b) < hdrLen {
			return pkt, 0, DropTruncated
		}
		pkt.Header = Header{
			Version:       1,
			PayloadLength: b[1],
			Sequence:      b[2],
			SystemID:      b[3],
			ComponentID:   b[4],
			MessageID:     uint32(b[5]),
		}

	case MagicV2:
		hdrLen = headerLenV2
		if len(b) < hdrLen {
			return pkt, 0, DropTruncated
		}
		pkt.Header = Header{
			Version:       2,
			PayloadLength: b[1],
			IncompatFlags: b[2],
			CompatFlags:   b[3],
			Sequence:      b[4],
			SystemID:      b[5],
			ComponentID:   b[6],
			MessageID:     uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16,
		}
	}

	bodyEnd := hdrLen + int(pkt.PayloadLength)
	n = bodyEnd + checksumLen
	if pkt.Version == 2 && pkt.IncompatFlags&incompatFlagSigned != 0 {
		n += signatureLen
	}
	if len(b) < n {
		return pkt, 0, DropTruncated
	}

	pkt.Payload = b[hdrLen:bodyEnd]
	pkt.Checksum = binary.LittleEndian.Uint16(b[bodyEnd:])
	if n > bodyEnd+checksumLen {
		pkt.Signature = b[bodyEnd+checksumLen : n]
	}

	schema, ok := d.registry.Lookup(pkt.MessageID)
	if !ok {
		return pkt, n, DropUnknownMessage
	}
	if frameChecksum(b[1:bodyEnd], schema.CRCExtra) != pkt.Checksum {
		return pkt, n, DropBadChecksum
	}

	pkt.Verified = true
	return pkt, n, ""
}

func (d *Decoder) drop(reason DropReason, offset int, msgID uint32) {
	if d.onDrop != nil {
		d.onDrop(reason)
	}

	attrs := []any{
		slog.String("reason", string(reason)),
		slog.Int("offset", offset),
		slog.Uint64("msgID", uint64(msgID)),
	}
	if reason == DropBadChecksum {
		d.logger.Warn("dropping MAVLink frame", attrs...)
		return
	}
	d.logger.Debug("dropping MAVLink frame", attrs...)
}

// aligned reports whether a frame ending at end is followed by another frame,
// the end of buf or a tail too short to hold one.
func aligned(buf []byte, end int) bool {
	if len(buf)-end < headerLenV1+checksumLen {
		return true
	}
	return buf[end] == MagicV1 || buf[end] == MagicV2
}

func indexMagic(b []byte) int {
	for i, c := range b {
		if c == MagicV1 || c == MagicV2 {
			return i
		}
	}
	return -1
}

package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Preamble is the fixed 32-bit magic every serialized MessageFrame begins
// with, little-endian on the wire.
const Preamble uint32 = 0xFEED_BEEF

// HeaderLength is the fixed portion of a MessageFrame: preamble, message
// code, room id, origin id, destination id, payload kind, payload length.
const HeaderLength = 20

// MaxPayloadLength is the largest payload a MessageFrame can carry; the
// wire length prefix is a 16-bit unsigned integer.
const MaxPayloadLength = 65535

// MessageCode distinguishes control-plane "Special" frames (room-list
// publication) from ordinary "Normal" routed traffic.
type MessageCode uint8

const (
	Normal  MessageCode = 0x00
	Special MessageCode = 0x5E
)

// PayloadKind tags the shape of a frame's payload.
type PayloadKind uint8

const (
	Command PayloadKind = 0xC0
	Data    PayloadKind = 0xDA
	Info    PayloadKind = 0x1F
)

// Sentinel parse errors, checked with errors.Is. The connection state
// machines treat all of these as "drop the frame, keep the socket open".
var (
	ErrShortHeader    = errors.New("proto: fewer than 20 bytes, no complete header")
	ErrBadPreamble    = errors.New("proto: preamble does not match 0xFEED_BEEF")
	ErrBadMessageCode = errors.New("proto: message code byte is not Normal or Special")
	ErrBadPayloadKind = errors.New("proto: payload kind byte is not Command, Data, or Info")
	ErrLengthMismatch = errors.New("proto: declared payload length does not match input length")
)

// MessageFrame is one application-level message on the wire.
type MessageFrame struct {
	MessageCode   MessageCode
	RoomID        uint32
	OriginID      PartyId
	DestinationID PartyId
	PayloadKind   PayloadKind
	Payload       []byte
}

// Serialize produces the 20+len(payload) byte wire form of f.
func Serialize(f MessageFrame) []byte {
	out := make([]byte, HeaderLength+len(f.Payload))

	binary.LittleEndian.PutUint32(out[0:4], Preamble)
	out[4] = byte(f.MessageCode)
	binary.LittleEndian.PutUint32(out[5:9], f.RoomID)
	binary.LittleEndian.PutUint32(out[9:13], f.OriginID.Encode())
	binary.LittleEndian.PutUint32(out[13:17], f.DestinationID.Encode())
	out[17] = byte(f.PayloadKind)
	binary.LittleEndian.PutUint16(out[18:20], uint16(len(f.Payload)))
	copy(out[20:], f.Payload)

	return out
}

// Parse decodes a MessageFrame from raw wire bytes, validating the
// preamble, both enum bytes, and the declared payload length against the
// actual input length.
func Parse(raw []byte) (MessageFrame, error) {
	if len(raw) < HeaderLength {
		return MessageFrame{}, ErrShortHeader
	}

	if binary.LittleEndian.Uint32(raw[0:4]) != Preamble {
		return MessageFrame{}, ErrBadPreamble
	}

	messageCode := MessageCode(raw[4])
	if messageCode != Normal && messageCode != Special {
		return MessageFrame{}, fmt.Errorf("%w: got 0x%02X", ErrBadMessageCode, raw[4])
	}

	roomID := binary.LittleEndian.Uint32(raw[5:9])
	originID := DecodePartyId(binary.LittleEndian.Uint32(raw[9:13]))
	destinationID := DecodePartyId(binary.LittleEndian.Uint32(raw[13:17]))

	payloadKind := PayloadKind(raw[17])
	if payloadKind != Command && payloadKind != Data && payloadKind != Info {
		return MessageFrame{}, fmt.Errorf("%w: got 0x%02X", ErrBadPayloadKind, raw[17])
	}

	payloadLength := binary.LittleEndian.Uint16(raw[18:20])
	if int(payloadLength)+HeaderLength != len(raw) {
		return MessageFrame{}, fmt.Errorf("%w: declared %d, total %d", ErrLengthMismatch, payloadLength, len(raw))
	}

	var payload []byte
	if payloadLength > 0 {
		payload = make([]byte, payloadLength)
		copy(payload, raw[HeaderLength:])
	}

	return MessageFrame{
		MessageCode:   messageCode,
		RoomID:        roomID,
		OriginID:      originID,
		DestinationID: destinationID,
		PayloadKind:   payloadKind,
		Payload:       payload,
	}, nil
}

package proto

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

// Mirrors original_source/src/proto/mod.rs::test_message_stream_into_bytes_is_as_expected
// and spec.md Scenario A.
func TestSerializeScenarioA(t *testing.T) {
	frame := MessageFrame{
		MessageCode:   Special,
		RoomID:        10,
		OriginID:      Server(15),
		DestinationID: Client(12),
		PayloadKind:   Data,
		Payload:       []byte{0xFF, 0xAA},
	}

	want := []byte{
		0xEF, 0xBE, 0xED, 0xFE, 0x5E, 0x0A, 0x00, 0x00, 0x00, 0x0F, 0x00, 0x00, 0x80, 0x0C,
		0x00, 0x00, 0x00, 0xDA, 0x02, 0x00, 0xFF, 0xAA,
	}

	got := Serialize(frame)
	if !bytes.Equal(got, want) {
		t.Fatalf("Serialize() = % X, want % X", got, want)
	}

	parsed, err := Parse(got)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(parsed, frame) {
		t.Fatalf("Parse(Serialize(frame)) = %+v, want %+v", parsed, frame)
	}
}

func TestRoundTripFrames(t *testing.T) {
	cases := []MessageFrame{
		{MessageCode: Normal, RoomID: 0, OriginID: Client(0), DestinationID: AllClients, PayloadKind: Data},
		{MessageCode: Normal, RoomID: 255, OriginID: AllClientsWithEcho, DestinationID: Server(0), PayloadKind: Command, Payload: []byte("hi")},
		{MessageCode: Special, RoomID: 1, OriginID: Server(0), DestinationID: Server(0), PayloadKind: Info, Payload: bytes.Repeat([]byte{0x42}, MaxPayloadLength)},
		{MessageCode: Normal, RoomID: 7, OriginID: AllServers, DestinationID: AllServersWithEcho, PayloadKind: Data},
	}

	for i, frame := range cases {
		raw := Serialize(frame)
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("case %d: Parse() error = %v", i, err)
		}
		if got.MessageCode != frame.MessageCode || got.RoomID != frame.RoomID ||
			got.OriginID != frame.OriginID || got.DestinationID != frame.DestinationID ||
			got.PayloadKind != frame.PayloadKind || !bytes.Equal(got.Payload, frame.Payload) {
			t.Fatalf("case %d: round trip mismatch: got %+v, want %+v", i, got, frame)
		}
	}
}

func TestRoundTripPartyIds(t *testing.T) {
	cases := []PartyId{
		AllClients, AllClientsWithEcho, AllServers, AllServersWithEcho,
		Client(0), Client(1), Client(0x7FFF_FFFD),
		Server(0), Server(1), Server(0x7FFF_FFFD),
	}

	for _, p := range cases {
		got := DecodePartyId(p.Encode())
		if got != p {
			t.Fatalf("DecodePartyId(Encode(%v)) = %v, want %v", p, got, p)
		}
	}
}

func TestSerializeAlwaysStartsWithPreambleBytes(t *testing.T) {
	frames := []MessageFrame{
		{OriginID: Client(0), DestinationID: Server(0)},
		{MessageCode: Special, OriginID: AllServers, DestinationID: AllClients, PayloadKind: Info, Payload: []byte{1, 2, 3}},
	}

	want := []byte{0xEF, 0xBE, 0xED, 0xFE}
	for _, f := range frames {
		raw := Serialize(f)
		if !bytes.Equal(raw[:4], want) {
			t.Fatalf("Serialize() preamble = % X, want % X", raw[:4], want)
		}
	}
}

func TestParseShortHeader(t *testing.T) {
	for length := 0; length < HeaderLength; length++ {
		_, err := Parse(make([]byte, length))
		if !errors.Is(err, ErrShortHeader) {
			t.Fatalf("length %d: Parse() error = %v, want ErrShortHeader", length, err)
		}
	}
}

func TestParseBadPreamble(t *testing.T) {
	raw := Serialize(MessageFrame{OriginID: Client(0), DestinationID: Server(0)})
	raw[0] ^= 0xFF

	_, err := Parse(raw)
	if !errors.Is(err, ErrBadPreamble) {
		t.Fatalf("Parse() error = %v, want ErrBadPreamble", err)
	}
}

func TestParseBadMessageCode(t *testing.T) {
	raw := Serialize(MessageFrame{OriginID: Client(0), DestinationID: Server(0)})
	raw[4] = 0x7A

	_, err := Parse(raw)
	if !errors.Is(err, ErrBadMessageCode) {
		t.Fatalf("Parse() error = %v, want ErrBadMessageCode", err)
	}
}

func TestParseBadPayloadKind(t *testing.T) {
	raw := Serialize(MessageFrame{OriginID: Client(0), DestinationID: Server(0)})
	raw[17] = 0x99

	_, err := Parse(raw)
	if !errors.Is(err, ErrBadPayloadKind) {
		t.Fatalf("Parse() error = %v, want ErrBadPayloadKind", err)
	}
}

func TestParseLengthMismatch(t *testing.T) {
	raw := Serialize(MessageFrame{OriginID: Client(0), DestinationID: Server(0), PayloadKind: Data, Payload: []byte{1, 2, 3}})
	truncated := raw[:len(raw)-1]

	_, err := Parse(truncated)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("Parse() error = %v, want ErrLengthMismatch", err)
	}
}

func TestPartyIdRangeClassification(t *testing.T) {
	if !Client(0).IsSingleClient() || Client(0).IsSingleServer() {
		t.Fatalf("Client(0) classified wrong")
	}
	if !Server(0).IsSingleServer() || Server(0).IsSingleClient() {
		t.Fatalf("Server(0) classified wrong")
	}
	if AllClients.IsSingleClient() || AllClients.IsSingleServer() {
		t.Fatalf("AllClients must not classify as single client or server")
	}
	if DecodePartyId(AllClientID) != AllClients {
		t.Fatalf("AllClientID must decode to the AllClients wildcard, not a single client")
	}
}

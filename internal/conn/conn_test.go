package conn

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"game-room-router/internal/proto"
	"game-room-router/internal/router"
)

// fakeRouter records every Event sent to it by a Conn under test, in
// place of a real router.Router actor.
type fakeRouter struct {
	mu       sync.Mutex
	received []router.Event
}

func (f *fakeRouter) Send(e router.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, e)
	return true
}

func (f *fakeRouter) events() []router.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]router.Event, len(f.received))
	copy(out, f.received)
	return out
}

// testPair builds a connected pair of *websocket.Conn backed by a
// net.Pipe, the standard way to exercise a gorilla/websocket handler
// without a real TCP listener or HTTP upgrade handshake.
func testPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	a, b := net.Pipe()
	server = websocket.NewConn(a, true, 4096, 4096)
	client = websocket.NewConn(b, false, 4096, 4096)
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("conn_test")
}

func TestClientConnAnnouncesClientConnectOnRun(t *testing.T) {
	server, client := testPair(t)
	rtr := &fakeRouter{}
	clientUUID := uuid.New()

	c := NewClientConn(server, testLogger(), rtr, 5, proto.Client(0), clientUUID)
	go c.Run()
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rtr.events()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := rtr.events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	cc, ok := events[0].(router.ClientConnect)
	if !ok {
		t.Fatalf("expected ClientConnect, got %T", events[0])
	}
	if cc.RoomID != 5 || cc.Party != proto.Client(0) || cc.ClientUUID != clientUUID {
		t.Errorf("unexpected ClientConnect contents: %+v", cc)
	}
}

func TestServerConnAnnouncesServerConnectOnRun(t *testing.T) {
	server, client := testPair(t)
	rtr := &fakeRouter{}

	c := NewServerConn(server, testLogger(), rtr, uuid.New())
	go c.Run()
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rtr.events()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := rtr.events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if sc, ok := events[0].(router.ServerConnect); !ok || sc.Party != proto.Server(0) {
		t.Fatalf("expected ServerConnect(Server(0)), got %+v", events[0])
	}
}

func TestBinaryFrameIsForwardedAsNewMessage(t *testing.T) {
	server, client := testPair(t)
	rtr := &fakeRouter{}
	clientUUID := uuid.New()

	c := NewClientConn(server, testLogger(), rtr, 5, proto.Client(0), clientUUID)
	go c.Run()
	defer client.Close()

	frame := proto.MessageFrame{
		MessageCode:   proto.Normal,
		RoomID:        5,
		OriginID:      proto.Client(0),
		DestinationID: proto.Server(0),
		PayloadKind:   proto.Data,
		Payload:       []byte("hello"),
	}
	if err := client.WriteMessage(websocket.BinaryMessage, proto.Serialize(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rtr.events()) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := rtr.events()
	if len(events) != 2 {
		t.Fatalf("expected ClientConnect + NewMessage, got %d events", len(events))
	}
	nm, ok := events[1].(router.NewMessage)
	if !ok {
		t.Fatalf("expected NewMessage, got %T", events[1])
	}
	if string(nm.Frame.Payload) != "hello" {
		t.Errorf("expected payload 'hello', got %q", nm.Frame.Payload)
	}
}

func TestRoutedMessageIsWrittenToSocket(t *testing.T) {
	server, client := testPair(t)
	rtr := &fakeRouter{}

	c := NewClientConn(server, testLogger(), rtr, 5, proto.Client(0), uuid.New())
	go c.Run()
	defer client.Close()

	frame := proto.MessageFrame{
		MessageCode:   proto.Normal,
		RoomID:        5,
		OriginID:      proto.Server(0),
		DestinationID: proto.Client(0),
		PayloadKind:   proto.Data,
		Payload:       []byte("routed"),
	}
	if !c.Send(router.NewMessage{Origin: proto.Server(0), Frame: frame}) {
		t.Fatal("expected Send to accept the event")
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	messageType, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client did not receive the routed frame: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got type %d", messageType)
	}

	got, err := proto.Parse(data)
	if err != nil {
		t.Fatalf("failed to parse delivered frame: %v", err)
	}
	if string(got.Payload) != "routed" {
		t.Errorf("expected payload 'routed', got %q", got.Payload)
	}
}

func TestDisconnectForSelfClosesSocket(t *testing.T) {
	server, client := testPair(t)
	rtr := &fakeRouter{}

	c := NewClientConn(server, testLogger(), rtr, 5, proto.Client(3), uuid.New())
	go c.Run()
	defer client.Close()

	if !c.Send(router.Disconnect{Party: proto.Client(3)}) {
		t.Fatal("expected Send to accept the Disconnect")
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	if err == nil {
		t.Fatal("expected the socket to be closed by the server side")
	}
}

func TestDisconnectForAnotherPartyIsIgnored(t *testing.T) {
	server, client := testPair(t)
	rtr := &fakeRouter{}

	c := NewClientConn(server, testLogger(), rtr, 5, proto.Client(3), uuid.New())
	go c.Run()
	defer client.Close()

	if !c.Send(router.Disconnect{Party: proto.Client(99)}) {
		t.Fatal("expected Send to accept the Disconnect")
	}

	frame := proto.MessageFrame{
		MessageCode:   proto.Normal,
		RoomID:        5,
		OriginID:      proto.Server(0),
		DestinationID: proto.Client(3),
		PayloadKind:   proto.Data,
		Payload:       []byte("still-alive"),
	}
	if !c.Send(router.NewMessage{Origin: proto.Server(0), Frame: frame}) {
		t.Fatal("expected Send to accept the NewMessage")
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("expected the connection to stay open and deliver the frame: %v", err)
	}
	got, err := proto.Parse(data)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if string(got.Payload) != "still-alive" {
		t.Errorf("expected payload 'still-alive', got %q", got.Payload)
	}
}

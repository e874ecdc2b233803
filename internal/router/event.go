package router

import (
	"github.com/google/uuid"

	"game-room-router/internal/proto"
)

// Event is the tagged union carried on the router's mailbox, and (for the
// Disconnect/NewMessage variants) on every connection's inbound channel
// too — the same shape the original actor design used for both
// directions. Concrete types implement event via an unexported marker
// method so only this package's variants satisfy it.
type Event interface {
	event()
}

// ServerConnect announces that the single server connection has been
// established. The edge only emits this after confirming no server is
// already connected.
type ServerConnect struct {
	Party  proto.PartyId
	Handle Handle
}

// ClientConnect announces a new client joining roomID under Party, with
// handle used to deliver routed messages back to its connection.
type ClientConnect struct {
	RoomID     uint8
	Party      proto.PartyId
	ClientUUID uuid.UUID
	Handle     Handle
}

// Disconnect announces that Party's connection is going away. ClientUUID
// and RoomID are only populated for client departures (nil/0 for the
// server): RoomID is the room the departing connection was actually
// joined to, known by the Conn itself since client party indices are
// only unique within a room, not across the whole topology.
type Disconnect struct {
	Party      proto.PartyId
	RoomID     uint8
	ClientUUID *uuid.UUID
}

// NewMessage carries one parsed MessageFrame from Origin into the
// router, or (when sent the other direction, to a connection) a frame
// the router wants written out to that connection's socket.
type NewMessage struct {
	Origin proto.PartyId
	Frame  proto.MessageFrame
}

func (ServerConnect) event() {}
func (ClientConnect) event() {}
func (Disconnect) event()    {}
func (NewMessage) event()    {}

// Handle is how the router and a connection state machine hold each
// other at arm's length: a fire-and-forget, non-blocking send into the
// other side's mailbox. A full mailbox drops the event — the router
// never retries and never blocks on a slow peer.
type Handle interface {
	Send(Event) bool
}

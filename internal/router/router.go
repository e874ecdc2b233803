// Package router implements the central routing actor: the single
// goroutine that owns the authoritative topology (which server is
// connected, which clients are in which rooms) and applies the
// routing/broadcast algorithm described by the protocol. It runs as a
// goroutine draining a buffered channel, with a sync.RWMutex-guarded
// denormalized room list for cheap reads that don't need a mailbox
// round-trip.
package router

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"game-room-router/internal/metrics"
	"game-room-router/internal/proto"
	"game-room-router/internal/room"
)

// MailboxCapacity is the buffered capacity of the router's inbound
// channel and of every connection's inbound channel, per the protocol's
// concurrency model.
const MailboxCapacity = 256

type serverHandle struct {
	repr   uint32
	handle Handle
}

// Router is the central authoritative actor. Construct one with New and
// start its event loop with Run; send events to it with Send (it
// implements Handle so connections can hold it polymorphically).
type Router struct {
	logger logging.LeveledLogger

	mailbox chan Event

	rooms *RoomList
	// serverJoined is advisory: the edge consults it to reject a second
	// server upgrade without a synchronous round trip into the router,
	// but the router re-checks topology authoritatively on every event.
	serverJoined *atomic.Bool

	server *serverHandle
	table  *room.Table[Handle]
}

// New constructs a Router sharing rooms (read by the HTTP edge) and
// serverJoined (written by the edge on upgrade, cleared here on server
// departure).
func New(logger logging.LeveledLogger, rooms *RoomList, serverJoined *atomic.Bool) *Router {
	return &Router{
		logger:       logger,
		mailbox:      make(chan Event, MailboxCapacity),
		rooms:        rooms,
		serverJoined: serverJoined,
		table:        room.NewTable[Handle](),
	}
}

// Send enqueues an event for the router's loop to process. It never
// blocks: a full mailbox drops the event, matching the protocol's
// fire-and-forget delivery semantics.
func (r *Router) Send(e Event) bool {
	select {
	case r.mailbox <- e:
		return true
	default:
		return false
	}
}

// Run drains the mailbox until ctx is cancelled. It must run on its own
// goroutine; all topology mutation happens here, single-threaded, so
// none of Router's fields need their own locks.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.mailbox:
			r.handle(e)
		}
	}
}

func (r *Router) handle(e Event) {
	switch ev := e.(type) {
	case ServerConnect:
		r.handleServerConnect(ev)
	case ClientConnect:
		r.handleClientConnect(ev)
	case Disconnect:
		r.handleDisconnect(ev)
	case NewMessage:
		r.handleNewMessage(ev)
	default:
		r.logger.Errorf("router: received event of unknown type %T", e)
	}
}

func (r *Router) handleServerConnect(ev ServerConnect) {
	// Precondition enforced by the edge: no server is currently
	// connected. The router simply records the handle.
	r.server = &serverHandle{repr: ev.Party.Encode(), handle: ev.Handle}
	metrics.SetServerConnected(true)
	r.logger.Infof("router: server connected (party=%s)", ev.Party)
}

func (r *Router) handleClientConnect(ev ClientConnect) {
	r.table.Join(ev.RoomID, ev.Party.Index(), ev.ClientUUID, ev.Handle)
	metrics.SetRoomsPopulated(r.populatedRoomCount())
	r.logger.Debugf("router: client %s joined room %d (uuid=%s)", ev.Party, ev.RoomID, ev.ClientUUID)

	if r.server == nil {
		return
	}

	hello := helloGoodbyeFrame(uint32(ev.RoomID), ev.Party, ev.ClientUUID, 0xF0)
	if !r.server.handle.Send(NewMessage{Origin: ev.Party, Frame: hello}) {
		metrics.RecordFrameDroppedUnroutable()
	}
}

func (r *Router) handleDisconnect(ev Disconnect) {
	if ev.Party.IsSingleServer() && ev.Party.Index() == 0 {
		r.handleServerDisconnect()
		return
	}
	r.handleClientDisconnect(ev)
}

func (r *Router) handleServerDisconnect() {
	r.serverJoined.Store(false)
	r.rooms.Clear()

	for _, entry := range r.table.AllMembers() {
		uuidCopy := entry.Member.ClientUUID
		party := proto.Client(entry.ClientIndex)
		entry.Member.Handle.Send(Disconnect{Party: party, ClientUUID: &uuidCopy})
	}

	r.table.Reset()
	r.server = nil
	metrics.SetServerConnected(false)
	metrics.SetRoomsPopulated(0)
	r.logger.Infof("router: server disconnected, cascaded to all clients")
}

func (r *Router) handleClientDisconnect(ev Disconnect) {
	clientUUID, removed := r.table.Leave(ev.RoomID, ev.Party.Index())
	metrics.SetRoomsPopulated(r.populatedRoomCount())

	if !removed || r.server == nil {
		return
	}

	goodbye := helloGoodbyeFrame(uint32(ev.RoomID), ev.Party, clientUUID, 0x0F)
	if !r.server.handle.Send(NewMessage{Origin: ev.Party, Frame: goodbye}) {
		metrics.RecordFrameDroppedUnroutable()
	}
}

func (r *Router) handleNewMessage(ev NewMessage) {
	if ev.Frame.MessageCode == proto.Special {
		r.handleSpecialMessage(ev)
		return
	}
	r.handleNormalMessage(ev)
}

// handleSpecialMessage implements the control channel: only the server
// may publish the available-rooms list, and only via an Info payload.
func (r *Router) handleSpecialMessage(ev NewMessage) {
	if ev.Frame.PayloadKind != proto.Info {
		return
	}
	if !(ev.Origin.IsSingleServer() && ev.Origin.Index() == 0) {
		return
	}

	rooms := append([]uint8(nil), ev.Frame.Payload...)
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	rooms = dedupSorted(rooms)
	if len(rooms) > 256 {
		rooms = rooms[:256]
	}

	r.rooms.Replace(rooms)
	r.logger.Debugf("router: published %d available rooms", len(rooms))
}

// handleNormalMessage implements the routing/broadcast algorithm of
// spec.md §4.4's NewMessage event.
func (r *Router) handleNormalMessage(ev NewMessage) {
	if ev.Origin != ev.Frame.OriginID {
		metrics.RecordFrameDroppedUnroutable()
		return
	}

	if !ev.Origin.IsSingleServer() && !ev.Origin.IsSingleClient() {
		metrics.RecordFrameDroppedUnroutable()
		return
	}

	roomID := uint8(ev.Frame.RoomID)

	switch ev.Frame.DestinationID.Kind() {
	case proto.KindAllClients, proto.KindAllClientsWithEcho, proto.KindAllServers, proto.KindAllServersWithEcho:
		r.broadcast(roomID, ev)
	case proto.KindServer:
		r.sendToServer(ev)
	case proto.KindClient:
		r.sendToClient(roomID, ev)
	default:
		metrics.RecordFrameDroppedUnroutable()
	}
}

// broadcast delivers ev.Frame to the server (if present) and to every
// client currently in roomID. The spec's "WithEcho" wildcards are
// behaviorally inert here: every wildcard, echoing or not, delivers to
// the full membership including the sender, per spec.md §9's Open
// Questions (this preserves the original's behavior rather than
// silently fixing it).
func (r *Router) broadcast(roomID uint8, ev NewMessage) {
	delivered := false

	if r.server != nil {
		if r.server.handle.Send(NewMessage{Origin: ev.Origin, Frame: ev.Frame}) {
			delivered = true
		}
	}

	for _, member := range r.table.Members(roomID) {
		if member.Handle.Send(NewMessage{Origin: ev.Origin, Frame: ev.Frame}) {
			delivered = true
		}
	}

	if delivered {
		metrics.RecordFrameRouted()
	} else {
		metrics.RecordFrameDroppedUnroutable()
	}
}

// sendToServer delivers ev.Frame to the single server connection. A
// frame addressed to the server while none is connected is dropped
// rather than left to crash an unwrap, per spec.md §9's Open Questions.
func (r *Router) sendToServer(ev NewMessage) {
	if r.server == nil {
		metrics.RecordFrameDroppedUnroutable()
		return
	}

	if r.server.handle.Send(NewMessage{Origin: ev.Origin, Frame: ev.Frame}) {
		metrics.RecordFrameRouted()
	} else {
		metrics.RecordFrameDroppedUnroutable()
	}
}

// sendToClient delivers ev.Frame to a single client in roomID, dropping
// silently if that client is not present.
func (r *Router) sendToClient(roomID uint8, ev NewMessage) {
	member, ok := r.table.Lookup(roomID, ev.Frame.DestinationID.Index())
	if !ok {
		metrics.RecordFrameDroppedUnroutable()
		return
	}

	if member.Handle.Send(NewMessage{Origin: ev.Origin, Frame: ev.Frame}) {
		metrics.RecordFrameRouted()
	} else {
		metrics.RecordFrameDroppedUnroutable()
	}
}

func (r *Router) populatedRoomCount() int {
	count := 0
	for roomID := 0; roomID < 256; roomID++ {
		if len(r.table.Members(uint8(roomID))) > 0 {
			count++
		}
	}
	return count
}

// helloGoodbyeFrame builds the router-synthesized Info notification sent
// to the server on client join (prefix 0xF0) and leave (prefix 0x0F):
// the prefix byte followed by the client's 16-byte UUID.
func helloGoodbyeFrame(roomID uint32, clientParty proto.PartyId, clientUUID uuid.UUID, prefix byte) proto.MessageFrame {
	payload := make([]byte, 17)
	payload[0] = prefix
	copy(payload[1:], clientUUID[:])

	return proto.MessageFrame{
		MessageCode:   proto.Special,
		RoomID:        roomID,
		OriginID:      clientParty,
		DestinationID: proto.Server(0),
		PayloadKind:   proto.Info,
		Payload:       payload,
	}
}

func dedupSorted(sorted []uint8) []uint8 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

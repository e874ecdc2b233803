// Package room holds the router's per-room client topology: an ordered
// mapping from room id to the clients currently joined to it, keyed by
// the client's room-local PartyId index and holding a generic delivery
// handle. A Table is owned exclusively by the router actor — nothing
// outside internal/router touches one directly, so it needs no internal
// locking.
package room

import (
	"sort"

	"github.com/google/uuid"
)

// Member is one client's entry in a room: its stable identity and the
// handle the router uses to deliver routed messages to it.
type Member[H any] struct {
	ClientUUID uuid.UUID
	Handle     H
}

// Entry pairs a room id and client index with the member found there,
// returned by AllMembers when iterating the whole topology.
type Entry[H any] struct {
	RoomID      uint8
	ClientIndex uint32
	Member      Member[H]
}

// Table is the router's room_id -> (client index -> Member) topology.
// It is not safe for concurrent use; the router actor is its only
// caller and drains its mailbox single-threaded.
type Table[H any] struct {
	rooms map[uint8]map[uint32]Member[H]
}

// NewTable returns an empty topology.
func NewTable[H any]() *Table[H] {
	return &Table[H]{rooms: make(map[uint8]map[uint32]Member[H])}
}

// Join adds a client to a room, creating the room entry if absent.
func (t *Table[H]) Join(roomID uint8, clientIndex uint32, clientUUID uuid.UUID, handle H) {
	clients, ok := t.rooms[roomID]
	if !ok {
		clients = make(map[uint32]Member[H])
		t.rooms[roomID] = clients
	}
	clients[clientIndex] = Member[H]{ClientUUID: clientUUID, Handle: handle}
}

// Lookup returns the member at (roomID, clientIndex), if present.
func (t *Table[H]) Lookup(roomID uint8, clientIndex uint32) (Member[H], bool) {
	clients, ok := t.rooms[roomID]
	if !ok {
		return Member[H]{}, false
	}
	m, ok := clients[clientIndex]
	return m, ok
}

// Members returns every client currently in roomID in deterministic
// (ascending client index) order. Ordering is never observable to
// clients but makes broadcast delivery order reproducible in tests.
func (t *Table[H]) Members(roomID uint8) []Member[H] {
	clients, ok := t.rooms[roomID]
	if !ok {
		return nil
	}

	indexes := make([]uint32, 0, len(clients))
	for idx := range clients {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	members := make([]Member[H], 0, len(indexes))
	for _, idx := range indexes {
		members = append(members, clients[idx])
	}
	return members
}

// Leave removes clientIndex from roomID. Client indices are only unique
// within a room (the edge keeps one allocator counter per room id,
// each starting at 0), so the same index can be joined in several rooms
// at once; the caller must supply the room the departing connection was
// actually joined to rather than have Leave guess by scanning every room.
// It reports the UUID of the removed client, if one was removed.
func (t *Table[H]) Leave(roomID uint8, clientIndex uint32) (uuid.UUID, bool) {
	clients, ok := t.rooms[roomID]
	if !ok {
		return uuid.UUID{}, false
	}
	m, ok := clients[clientIndex]
	if !ok {
		return uuid.UUID{}, false
	}
	delete(clients, clientIndex)
	return m.ClientUUID, true
}

// Reset clears the entire topology, used when the server departs.
func (t *Table[H]) Reset() {
	t.rooms = make(map[uint8]map[uint32]Member[H])
}

// AllMembers returns every (room, client index, member) triple currently
// tracked, used to cascade-disconnect every client when the server
// departs.
func (t *Table[H]) AllMembers() []Entry[H] {
	var out []Entry[H]
	for roomID, clients := range t.rooms {
		for idx, m := range clients {
			out = append(out, Entry[H]{RoomID: roomID, ClientIndex: idx, Member: m})
		}
	}
	return out
}

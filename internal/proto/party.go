// Package proto implements the binary wire protocol spoken between the
// router and its connected peers: the PartyId addressing scheme and the
// MessageFrame codec described by the game-room protocol.
package proto

import "fmt"

// Reserved 32-bit PartyId wire values. A value below AllClientID (and not
// equal to one of these four) addresses a single client by index; a value
// at or above OffsetServerID (and not AllServerID/AllServerIDWithEcho)
// addresses a single server by index.
const (
	AllClientID         uint32 = 0x7FFF_FFFE
	AllClientIDWithEcho uint32 = 0x7FFF_FFFF
	AllServerID         uint32 = 0xFFFF_FFFE
	AllServerIDWithEcho uint32 = 0xFFFF_FFFF
	OffsetServerID      uint32 = 0x8000_0000
)

// PartyKind tags which variant a PartyId holds.
type PartyKind uint8

const (
	KindAllClients PartyKind = iota
	KindAllClientsWithEcho
	KindAllServers
	KindAllServersWithEcho
	KindClient
	KindServer
)

// PartyId is the tagged identifier addressing a single client, a single
// server, or one of the four broadcast wildcards. The zero value is the
// AllClients wildcard; callers that need a specific party should always
// construct one through Client, Server, or DecodePartyId.
type PartyId struct {
	kind  PartyKind
	index uint32 // meaningful only for KindClient / KindServer
}

var (
	AllClients         = PartyId{kind: KindAllClients}
	AllClientsWithEcho = PartyId{kind: KindAllClientsWithEcho}
	AllServers         = PartyId{kind: KindAllServers}
	AllServersWithEcho = PartyId{kind: KindAllServersWithEcho}
)

// Client constructs a PartyId addressing a single client by its room-local
// index. Callers must ensure index never collides with the reserved
// wildcard values; the edge's per-room counter enforces this by refusing
// to allocate AllClientID.
func Client(index uint32) PartyId { return PartyId{kind: KindClient, index: index} }

// Server constructs a PartyId addressing a single server by index.
func Server(index uint32) PartyId { return PartyId{kind: KindServer, index: index} }

// Kind reports which variant this PartyId holds.
func (p PartyId) Kind() PartyKind { return p.kind }

// IsSingleClient reports whether p addresses exactly one client.
func (p PartyId) IsSingleClient() bool { return p.kind == KindClient }

// IsSingleServer reports whether p addresses exactly one server.
func (p PartyId) IsSingleServer() bool { return p.kind == KindServer }

// Index returns the room-local client index or server index. It is only
// meaningful when IsSingleClient or IsSingleServer is true.
func (p PartyId) Index() uint32 { return p.index }

// Encode returns the 32-bit wire representation of p.
func (p PartyId) Encode() uint32 {
	switch p.kind {
	case KindAllClients:
		return AllClientID
	case KindAllClientsWithEcho:
		return AllClientIDWithEcho
	case KindAllServers:
		return AllServerID
	case KindAllServersWithEcho:
		return AllServerIDWithEcho
	case KindServer:
		return OffsetServerID + p.index
	default: // KindClient
		return p.index
	}
}

// DecodePartyId converts a raw 32-bit wire value into its PartyId variant.
// Conversion is total: every uint32 maps to exactly one variant, and
// DecodePartyId(p.Encode()) == p for every p whose index keeps its
// encoding inside its own range and off the reserved wildcard values
// (client indices below AllClientID, server indices below
// AllServerID-OffsetServerID).
func DecodePartyId(raw uint32) PartyId {
	switch raw {
	case AllClientID:
		return AllClients
	case AllServerID:
		return AllServers
	case AllClientIDWithEcho:
		return AllClientsWithEcho
	case AllServerIDWithEcho:
		return AllServersWithEcho
	}

	if raw >= OffsetServerID {
		return Server(raw - OffsetServerID)
	}

	return Client(raw)
}

// String renders a human-readable form, useful in log lines.
func (p PartyId) String() string {
	switch p.kind {
	case KindAllClients:
		return "AllClients"
	case KindAllClientsWithEcho:
		return "AllClientsWithEcho"
	case KindAllServers:
		return "AllServers"
	case KindAllServersWithEcho:
		return "AllServersWithEcho"
	case KindServer:
		return fmt.Sprintf("Server(%d)", p.index)
	default:
		return fmt.Sprintf("Client(%d)", p.index)
	}
}

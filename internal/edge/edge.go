// Package edge implements the HTTP surface: WebSocket upgrades for the
// server and client endpoints, plus the small JSON API (room list,
// health, metrics).
package edge

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/urfave/negroni/v3"

	"game-room-router/internal/conn"
	"game-room-router/internal/metrics"
	"game-room-router/internal/proto"
	"game-room-router/internal/recovery"
	"game-room-router/internal/router"
)

// Edge owns the HTTP listener's routes and the state only it needs: the
// websocket upgrader, the per-room client index counters, and handles
// into the router's shared state.
type Edge struct {
	logger       logging.LeveledLogger
	serverUUID   uuid.UUID
	router       router.Handle
	rooms        *router.RoomList
	serverJoined *atomic.Bool
	upgrader     websocket.Upgrader

	counterMu    sync.Mutex
	roomCounters map[uint8]uint32
}

// New constructs an Edge. serverUUID is the only UUID permitted to
// upgrade at /server; rooms and serverJoined are shared with the router
// actor so edge reads never round-trip through its mailbox.
func New(logger logging.LeveledLogger, serverUUID uuid.UUID, rtr router.Handle, rooms *router.RoomList, serverJoined *atomic.Bool) *Edge {
	return &Edge{
		logger:       logger,
		serverUUID:   serverUUID,
		router:       rtr,
		rooms:        rooms,
		serverJoined: serverJoined,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 500 * time.Millisecond,
		},
		roomCounters: make(map[uint8]uint32),
	}
}

// Handler builds the complete HTTP handler: a negroni-logged stack for
// the plain JSON routes, the upgrade routes registered directly on the
// mux to skip per-request access logging of what become long-lived
// connections, and a panic-recovery layer wrapping everything.
func (e *Edge) Handler() http.Handler {
	jsonRoutes := http.NewServeMux()
	jsonRoutes.HandleFunc("/", e.handleRoomList)
	jsonRoutes.HandleFunc("/health", e.handleHealth)
	jsonRoutes.HandleFunc("/metrics", e.handleMetrics)

	n := negroni.New()
	n.Use(negroni.NewLogger())
	n.UseHandler(jsonRoutes)

	top := http.NewServeMux()
	top.HandleFunc("/server", e.handleServerUpgrade)
	top.HandleFunc("/client", e.handleClientUpgrade)
	top.Handle("/", n)

	return recovery.RecoveryMiddleware(e.logger, top)
}

func (e *Edge) handleRoomList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms := e.rooms.Snapshot()
	if rooms == nil {
		rooms = []uint8{}
	}

	data, err := json.MarshalIndent(rooms, "", "  ")
	if err != nil {
		e.logger.Errorf("edge: failed to marshal room list: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (e *Edge) handleServerUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID, err := uuid.Parse(r.URL.Query().Get("client_id"))
	if err != nil || clientID != e.serverUUID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if !e.serverJoined.CompareAndSwap(false, true) {
		http.Error(w, "forbidden: a server is already connected", http.StatusForbidden)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.serverJoined.Store(false)
		e.logger.Warnf("edge: server upgrade failed: %v", err)
		return
	}

	serverConn := conn.NewServerConn(ws, e.logger, e.router, clientID)
	go serverConn.Run()
}

func (e *Edge) handleClientUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID, err := uuid.Parse(r.URL.Query().Get("client_id"))
	if err != nil {
		http.Error(w, "bad client_id", http.StatusBadRequest)
		return
	}

	roomIDVal, err := strconv.ParseUint(r.URL.Query().Get("room_id"), 10, 8)
	if err != nil {
		http.Error(w, "bad room_id", http.StatusBadRequest)
		return
	}
	roomID := uint8(roomIDVal)

	index, ok := e.allocateClientIndex(roomID)
	if !ok {
		http.Error(w, "room client capacity exhausted; the server must rejoin", http.StatusInternalServerError)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warnf("edge: client upgrade failed: %v", err)
		return
	}

	party := proto.Client(index)
	clientConn := conn.NewClientConn(ws, e.logger, e.router, roomID, party, clientID)
	go clientConn.Run()
}

// allocateClientIndex hands out the next client index for roomID,
// refusing once the counter would collide with the reserved AllClientID
// wildcard.
func (e *Edge) allocateClientIndex(roomID uint8) (uint32, bool) {
	e.counterMu.Lock()
	defer e.counterMu.Unlock()

	next := e.roomCounters[roomID]
	if next >= proto.AllClientID {
		return 0, false
	}
	e.roomCounters[roomID] = next + 1
	return next, true
}

func (e *Edge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		e.logger.Errorf("edge: failed to encode health response: %v", err)
	}
}

func (e *Edge) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(metrics.Get().ToJSON())
}

// Package conn implements the ClientConn and ServerConn state machines:
// one goroutine pair (read pump, write pump) per WebSocket, translating
// between wire frames and router.Event values. Both connection kinds are
// the same state machine; the only difference is how their PartyId and
// room are assigned.
package conn

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"game-room-router/internal/keepalive"
	"game-room-router/internal/metrics"
	"game-room-router/internal/proto"
	"game-room-router/internal/router"
)

// writeWait bounds every individual write to the socket, data or control.
const writeWait = 500 * time.Millisecond

// Conn is a single WebSocket peer's state machine: a ClientConn when
// party.IsSingleClient(), a ServerConn when party.IsSingleServer().
type Conn struct {
	ws     *websocket.Conn
	logger logging.LeveledLogger
	router router.Handle

	party      proto.PartyId
	roomID     uint8
	clientUUID uuid.UUID

	mailbox   chan router.Event
	outText   chan []byte
	monitor   *keepalive.Monitor
	heartbeat keepalive.Config

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, logger logging.LeveledLogger, rtr router.Handle, party proto.PartyId, roomID uint8, clientUUID uuid.UUID) *Conn {
	return &Conn{
		ws:         ws,
		logger:     logger,
		router:     rtr,
		party:      party,
		roomID:     roomID,
		clientUUID: clientUUID,
		mailbox:    make(chan router.Event, router.MailboxCapacity),
		outText:    make(chan []byte, 4),
		monitor:    keepalive.NewMonitor(),
		heartbeat:  keepalive.DefaultConfig(),
		done:       make(chan struct{}),
	}
}

// NewServerConn constructs the connection state machine for the single
// server peer, always addressed as Server(0).
func NewServerConn(ws *websocket.Conn, logger logging.LeveledLogger, rtr router.Handle, serverUUID uuid.UUID) *Conn {
	return newConn(ws, logger, rtr, proto.Server(0), 0, serverUUID)
}

// NewClientConn constructs the connection state machine for one client,
// already allocated party within roomID by the HTTP edge.
func NewClientConn(ws *websocket.Conn, logger logging.LeveledLogger, rtr router.Handle, roomID uint8, party proto.PartyId, clientUUID uuid.UUID) *Conn {
	return newConn(ws, logger, rtr, party, roomID, clientUUID)
}

// Send implements router.Handle: it enqueues a routed event for this
// connection's write pump, never blocking.
func (c *Conn) Send(e router.Event) bool {
	select {
	case c.mailbox <- e:
		return true
	default:
		return false
	}
}

// Run announces this connection to the router and blocks, running the
// read pump on its own goroutine and the write pump on the caller's,
// until the socket closes.
func (c *Conn) Run() {
	if c.party.IsSingleServer() {
		c.router.Send(router.ServerConnect{Party: c.party, Handle: c})
	} else {
		metrics.RecordClientConnected()
		c.router.Send(router.ClientConnect{RoomID: c.roomID, Party: c.party, ClientUUID: c.clientUUID, Handle: c})
	}

	c.installHandlers()
	go c.readPump()
	c.writePump()
}

func (c *Conn) installHandlers() {
	c.ws.SetPongHandler(func(string) error {
		c.monitor.Touch()
		return nil
	})

	// Reply to a Ping with a Pong carrying the same payload, touching
	// activity first. WriteControl is documented as safe to call
	// concurrently with the write pump's WriteMessage calls, so this can
	// run from the read pump's goroutine without its own synchronization.
	c.ws.SetPingHandler(func(appData string) error {
		c.monitor.Touch()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil
		}
		return err
	})

	c.ws.SetCloseHandler(func(code int, text string) error {
		c.logger.Debugf("conn: %s sent close (code=%d text=%q)", c.party, code, text)
		message := websocket.FormatCloseMessage(code, "")
		return c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	})
}

func (c *Conn) readPump() {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown()
			return
		}

		c.monitor.Touch()

		switch messageType {
		case websocket.BinaryMessage:
			frame, err := proto.Parse(data)
			if err != nil {
				metrics.RecordFrameDroppedBadFraming()
				continue
			}
			c.router.Send(router.NewMessage{Origin: c.party, Frame: frame})
		case websocket.TextMessage:
			c.logger.Warnf("conn: %s sent a text frame, rejecting", c.party)
			select {
			case c.outText <- []byte("text frames are not accepted; send a binary MessageFrame"):
			default:
			}
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.heartbeat.Interval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			return

		case <-ticker.C:
			if c.monitor.IdleSince() > c.heartbeat.IdleTimeout {
				c.logger.Debugf("conn: %s idle too long, closing", c.party)
				c.shutdown()
				return
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown()
				return
			}

		case text := <-c.outText:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, text); err != nil {
				c.shutdown()
				return
			}

		case ev, ok := <-c.mailbox:
			if !ok {
				return
			}
			if c.deliver(ev) {
				return
			}
		}
	}
}

// deliver writes one routed event to the socket. It reports whether the
// write pump should stop after this event (a graceful close in progress
// or a write failure).
func (c *Conn) deliver(ev router.Event) bool {
	switch v := ev.(type) {
	case router.Disconnect:
		if v.Party != c.party {
			return false
		}
		c.beginGracefulClose()
		return true

	case router.NewMessage:
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.BinaryMessage, proto.Serialize(v.Frame)); err != nil {
			c.logger.Warnf("conn: write to %s failed: %v", c.party, err)
			c.shutdown()
			return true
		}
		return false

	default:
		return false
	}
}

func (c *Conn) beginGracefulClose() {
	deadline := time.Now().Add(writeWait)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.shutdown()
}

// shutdown tears the connection down exactly once, notifying the router
// of the departure regardless of which side (read error, write error,
// idle timeout, or a Disconnect aimed at this party) triggered it.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()

		var clientUUID *uuid.UUID
		if c.party.IsSingleClient() {
			u := c.clientUUID
			clientUUID = &u
			metrics.RecordClientDisconnected()
		}
		c.router.Send(router.Disconnect{Party: c.party, RoomID: c.roomID, ClientUUID: clientUUID})
	})
}

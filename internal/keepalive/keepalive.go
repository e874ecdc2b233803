// Package keepalive tracks per-connection liveness for the heartbeat
// tick every ClientConn and ServerConn runs. The connection's write pump
// sends the heartbeat pings itself, so the monitor only tracks the
// last-activity timestamp and lets the write pump decide whether to ping
// or close on each tick.
package keepalive

import (
	"sync/atomic"
	"time"
)

// Config holds heartbeat timing.
type Config struct {
	Interval    time.Duration // how often the heartbeat tick fires
	IdleTimeout time.Duration // max silence before a graceful close
}

// DefaultConfig matches the protocol's 1s tick / 2s idle timeout.
func DefaultConfig() Config {
	return Config{
		Interval:    1 * time.Second,
		IdleTimeout: 2 * time.Second,
	}
}

// Monitor tracks when a connection last heard from its peer.
type Monitor struct {
	lastActivity atomic.Value // time.Time
}

// NewMonitor constructs a Monitor, initialized as active as of now.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.lastActivity.Store(time.Now())
	return m
}

// Touch records that the connection just heard from its peer.
func (m *Monitor) Touch() {
	m.lastActivity.Store(time.Now())
}

// IdleSince reports how long it has been since the last Touch.
func (m *Monitor) IdleSince() time.Duration {
	return time.Since(m.lastActivity.Load().(time.Time))
}

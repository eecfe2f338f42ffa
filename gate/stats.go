package gate

import (
	"sync/atomic"
	"time"
)

// Stats contains monotonic atomic counters for a Gate. Counters are owned
// exclusively by the gate's transition routine and reset only by restart.
// The fields can be used as the value of a prometheus CounterFunc.
type Stats struct {
	// MessageRecvCount is the number of reader messages processed.
	MessageRecvCount atomic.Uint64
	// ConfirmCount is the number of key-confirmed messages.
	ConfirmCount atomic.Uint64
	// LossCount is the number of key-lost messages.
	LossCount atomic.Uint64
	// RejectCount is the number of rejected or malformed tokens.
	RejectCount atomic.Uint64
	// ReconnectCount is the number of reconnect attempts made.
	ReconnectCount atomic.Uint64

	startedAt time.Time
}

func (s *Stats) incMessageRecvCount() {
	s.MessageRecvCount.Add(1)
}

func (s *Stats) incConfirmCount() {
	s.ConfirmCount.Add(1)
}

func (s *Stats) incLossCount() {
	s.LossCount.Add(1)
}

func (s *Stats) incRejectCount() {
	s.RejectCount.Add(1)
}

func (s *Stats) incReconnectCount() {
	s.ReconnectCount.Add(1)
}

// StatsSnapshot is an immutable point-in-time copy of the gate counters.
type StatsSnapshot struct {
	MessagesReceived uint64        `json:"messages_received"`
	Confirmations    uint64        `json:"confirmations"`
	Losses           uint64        `json:"losses"`
	Rejections       uint64        `json:"rejections"`
	Reconnects       uint64        `json:"reconnects"`
	StartedAt        time.Time     `json:"started_at"`
	Uptime           time.Duration `json:"uptime"`
}

// Snapshot returns an immutable copy of the counters. Safe to call from any
// goroutine.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesReceived: s.MessageRecvCount.Load(),
		Confirmations:    s.ConfirmCount.Load(),
		Losses:           s.LossCount.Load(),
		Rejections:       s.RejectCount.Load(),
		Reconnects:       s.ReconnectCount.Load(),
		StartedAt:        s.startedAt,
		Uptime:           time.Since(s.startedAt),
	}
}

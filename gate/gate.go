package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/averlon/keygate/internal/task"
	"github.com/averlon/keygate/logger"
	"github.com/averlon/keygate/reader"
)

// Revoke reasons carried by EventKeyRevoked and the shutdown trigger, so
// operators can distinguish physical removal, a reader glitch, and
// heartbeat loss after the fact.
const (
	ReasonReaderLost           = "reader-lost"
	ReasonHardwareDisconnected = "hardware-disconnected"
	ReasonHeartbeatTimeout     = "heartbeat-timeout"
)

var (
	// ErrAlreadyStarted indicates Start was called on a running gate.
	ErrAlreadyStarted = errors.New("gate: already started")
)

// ShutdownFunc is the advisory shutdown trigger. It is invoked exactly once
// per present → absent transition, with a human-readable reason and a
// grace-period hint so the host may attempt an orderly stop before a hard
// kill. Implementations must return promptly; the gate never terminates the
// host process itself.
type ShutdownFunc func(reason string, grace time.Duration)

// State is a read-only snapshot of the gate's presence state. Zero
// timestamps mean "never".
type State struct {
	Connected         bool      `json:"connected"`
	KeyPresent        bool      `json:"key_present"`
	LastHeartbeatAt   time.Time `json:"last_heartbeat_at,omitzero"`
	LastStateChangeAt time.Time `json:"last_state_change_at,omitzero"`
}

// Gate is the presence state machine. It owns its state exclusively: state
// is only ever mutated by the guarded transition routine, triggered by
// parsed reader messages, heartbeat timeout, or link closure.
//
// A new Gate always starts denied, regardless of any prior session.
type Gate struct {
	cfg        *Config
	logger     logger.Logger
	link       reader.Link
	shutdownFn ShutdownFunc

	taskMgr *task.Manager

	// mu serializes all state transitions. Reads go through the atomics
	// below and never take the lock.
	mu            sync.Mutex
	connected     atomic.Bool
	keyPresent    atomic.Bool
	lastHeartbeat atomic.Int64 // unix nanos, 0 = no baseline
	lastChange    atomic.Int64 // unix nanos, 0 = never

	// Single-slot reconnect handle: at most one pending reconnect exists;
	// duplicate scheduling is a no-op, a successful open cancels it.
	reconnectMu    sync.Mutex
	reconnectTimer *time.Timer

	started atomic.Bool
	stopped atomic.Bool

	stats Stats
	bus   *eventBus
}

var _ reader.Handler = (*Gate)(nil)

// New creates a Gate bound to the given link. shutdownFn may be nil, in
// which case revocations are logged but no trigger fires.
//
// The gate registers itself as the link's handler.
func New(ctx context.Context, cfg *Config, link reader.Link, shutdownFn ShutdownFunc) (*Gate, error) {
	if cfg == nil {
		return nil, errors.New("gate: config is nil")
	}
	if link == nil {
		return nil, errors.New("gate: link is nil")
	}

	g := &Gate{
		cfg:        cfg,
		logger:     cfg.logger,
		link:       link,
		shutdownFn: shutdownFn,
		taskMgr:    task.NewManager(ctx, cfg.logger),
		bus:        newEventBus(cfg.logger),
	}
	g.stats.startedAt = time.Now()

	link.SetHandler(g)

	return g, nil
}

// Start opens the reader link and starts the heartbeat monitor. An open
// failure is not an error: the gate stays denied and retries on its fixed
// reconnect schedule.
func (g *Gate) Start() error {
	if !g.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if _, err := g.taskMgr.StartInterval("heartbeatMonitor", g.heartbeatCheck, g.cfg.heartbeatInterval, false); err != nil {
		return err
	}

	if err := g.link.Open(); err != nil {
		g.logger.Warn("gate: reader open failed, scheduling retry", "error", err)
		g.scheduleReconnect()
	}

	return nil
}

// Stop cancels pending reconnects, stops the heartbeat monitor and closes
// the link. The gate cannot be restarted.
func (g *Gate) Stop() {
	g.stopped.Store(true)
	g.cancelReconnect()
	g.taskMgr.Stop()

	if err := g.link.Close(); err != nil {
		g.logger.Debug("gate: link close failed", "error", err)
	}

	g.taskMgr.Wait()
}

// IsAuthorized reports whether a registered token is currently present on a
// live link. Non-blocking and lock-free; state is written only by the
// gate's single transition path.
func (g *Gate) IsAuthorized() bool {
	return g.connected.Load() && g.keyPresent.Load()
}

// IsConnected reports whether the reader link is currently established.
func (g *Gate) IsConnected() bool {
	return g.connected.Load()
}

// Snapshot returns a read-only copy of the current presence state.
func (g *Gate) Snapshot() State {
	return State{
		Connected:         g.connected.Load(),
		KeyPresent:        g.keyPresent.Load(),
		LastHeartbeatAt:   nanosToTime(g.lastHeartbeat.Load()),
		LastStateChangeAt: nanosToTime(g.lastChange.Load()),
	}
}

// Stats returns the gate's counters.
func (g *Gate) Stats() *Stats {
	return &g.stats
}

// Subscribe registers a new event subscriber with the default buffer size.
// Delivery is independent per subscriber; a full buffer drops events rather
// than delaying the gate.
func (g *Gate) Subscribe() *Subscription {
	return g.bus.subscribe(g.cfg.eventBufferSize)
}

// --- reader.Handler ---

// HandleOpened marks the link connected, resets the heartbeat baseline and
// cancels any pending reconnect.
func (g *Gate) HandleOpened() {
	g.mu.Lock()

	g.connected.Store(true)
	// A fresh link has no heartbeat baseline yet; absence of a baseline is
	// not a failure signal, only a stale one is.
	g.lastHeartbeat.Store(0)

	g.logger.Info("gate: reader connected")
	g.bus.publish(Event{Type: EventLinkUp, At: time.Now()})

	g.mu.Unlock()

	g.cancelReconnect()
}

// HandleLine parses and processes one reader line, strictly in delivery
// order.
func (g *Gate) HandleLine(line string) {
	g.processMessage(reader.Parse(line))
}

// HandleClosed marks the link disconnected. A closed or errored link is
// always "hardware not connected", regardless of cause; if a key was
// present, this revokes it and fires the shutdown trigger.
func (g *Gate) HandleClosed(err error) {
	g.mu.Lock()

	if g.connected.Load() {
		g.connected.Store(false)
		g.lastHeartbeat.Store(0)

		g.logger.Warn("gate: reader disconnected", "error", err)
		g.bus.publish(Event{Type: EventLinkDown, At: time.Now()})

		g.revokeLocked(ReasonHardwareDisconnected)
	}

	g.mu.Unlock()

	if !g.stopped.Load() {
		g.scheduleReconnect()
	}
}

// --- Transition routine ---

// processMessage is the single message-path entry into the transition
// routine.
func (g *Gate) processMessage(msg reader.Message) {
	g.stats.incMessageRecvCount()

	g.mu.Lock()
	defer g.mu.Unlock()

	switch msg.Kind {
	case reader.KindBootOK:
		g.logger.Info("gate: reader booted")

	case reader.KindKeyConfirmed:
		g.stats.incConfirmCount()
		g.confirmLocked()

	case reader.KindKeyLost:
		g.stats.incLossCount()
		g.revokeLocked(ReasonReaderLost)

	case reader.KindKeyRejected:
		g.stats.incRejectCount()
		g.logger.Warn("gate: token rejected")
		g.bus.publish(Event{Type: EventInvalidToken, At: time.Now()})

	case reader.KindMalformedKey:
		g.stats.incRejectCount()
		g.logger.Warn("gate: malformed token", "uid", msg.TokenID)
		g.bus.publish(Event{Type: EventInvalidToken, TokenID: msg.TokenID, At: time.Now()})

	case reader.KindHeartbeat:
		g.lastHeartbeat.Store(time.Now().UnixNano())

	case reader.KindFirmware:
		g.logger.Info("gate: reader firmware", "version", msg.Version)

	case reader.KindError:
		g.logger.Warn("gate: reader error", "detail", msg.Detail)

	case reader.KindUnknown:
		// Never guess the intent of a malformed line.
		g.logger.Debug("gate: ignoring unrecognized reader line", "line", msg.Raw)
	}
}

// confirmLocked sets keyPresent. Re-confirming an already-present key is a
// no-op: no duplicate granted event.
func (g *Gate) confirmLocked() {
	if g.keyPresent.Load() {
		return
	}

	g.keyPresent.Store(true)
	g.lastChange.Store(time.Now().UnixNano())

	g.logger.Info("gate: key granted")
	g.bus.publish(Event{Type: EventKeyGranted, At: time.Now()})
}

// revokeLocked clears keyPresent and fires the shutdown trigger exactly
// once per present → absent transition. Revoking an already-absent key is a
// no-op: no duplicate revoked event, no duplicate shutdown.
func (g *Gate) revokeLocked(reason string) {
	if !g.keyPresent.Load() {
		return
	}

	g.keyPresent.Store(false)
	g.lastChange.Store(time.Now().UnixNano())

	g.logger.Warn("gate: key revoked", "reason", reason)
	g.bus.publish(Event{Type: EventKeyRevoked, Reason: reason, At: time.Now()})

	if g.shutdownFn != nil {
		g.shutdownFn(reason, g.cfg.shutdownGrace)
	}
}

// --- Heartbeat monitor ---

// heartbeatCheck runs on a fixed period independent of message arrival. A
// stale heartbeat is treated identically to a link error; it writes state
// through the same transition routine as the message path, so the
// single-emission invariants hold regardless of which trigger fired.
func (g *Gate) heartbeatCheck() bool {
	if g.stopped.Load() {
		return false
	}

	if !g.connected.Load() {
		return true
	}

	last := g.lastHeartbeat.Load()
	if last == 0 {
		return true // no baseline yet
	}

	elapsed := time.Since(time.Unix(0, last))
	if elapsed <= g.cfg.heartbeatTimeout {
		return true
	}

	g.logger.Error("gate: heartbeat timeout, forcing reconnect",
		"elapsed", elapsed, "timeout", g.cfg.heartbeatTimeout)

	g.mu.Lock()
	g.lastHeartbeat.Store(0)
	g.revokeLocked(ReasonHeartbeatTimeout)
	g.mu.Unlock()

	// Closing the link raises HandleClosed, which flips connected off and
	// schedules the reconnect. The key is already revoked above, so no
	// second shutdown fires.
	if err := g.link.Close(); err != nil {
		g.logger.Debug("gate: link close failed", "error", err)
	}

	return true
}

// --- Reconnect scheduling ---

// scheduleReconnect arms the single-slot reconnect timer. If one is already
// pending, this is a no-op.
func (g *Gate) scheduleReconnect() {
	if g.stopped.Load() {
		return
	}

	g.reconnectMu.Lock()
	defer g.reconnectMu.Unlock()

	if g.reconnectTimer != nil {
		return
	}

	g.logger.Info("gate: reconnect scheduled", "delay", g.cfg.reconnectDelay)
	g.reconnectTimer = time.AfterFunc(g.cfg.reconnectDelay, g.reconnectAttempt)
}

// cancelReconnect disarms a pending reconnect, if any.
func (g *Gate) cancelReconnect() {
	g.reconnectMu.Lock()
	defer g.reconnectMu.Unlock()

	if g.reconnectTimer != nil {
		g.reconnectTimer.Stop()
		g.reconnectTimer = nil
	}
}

// reconnectAttempt tries to reopen the link; on failure it re-arms the
// timer, retrying forever at the fixed interval.
func (g *Gate) reconnectAttempt() {
	g.reconnectMu.Lock()
	g.reconnectTimer = nil
	g.reconnectMu.Unlock()

	if g.stopped.Load() {
		return
	}

	g.stats.incReconnectCount()

	if err := g.link.Open(); err != nil {
		g.logger.Warn("gate: reconnect failed", "error", err)
		g.scheduleReconnect()
	}
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n)
}

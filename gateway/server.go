package gateway

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/averlon/keygate/logger"
)

// Scanner waits for a physical token to be presented and returns its UID.
// Implementations must honor the context deadline; a timeout or error means
// no token was presented and the request is denied.
type Scanner interface {
	Scan(ctx context.Context, purpose string) (uid string, err error)
}

// session is one unexpired grant, keyed by purpose ("admin", "shutdown").
type session struct {
	user    string
	expires time.Time
}

// Server is the passive side of the scan gateway protocol. It accepts one
// request per connection, dispatches scans to the configured Scanner,
// checks the UID hash against the allowlist, and answers with a single
// JSON line.
type Server struct {
	cfg     *ServerConfig
	logger  logger.Logger
	scanner Scanner

	allowMu   sync.RWMutex
	allowlist map[string]string // sha256(uid) hex → user name

	sessions *xsync.MapOf[string, session]

	// scanMu serializes scans: the physical reader can only wait for one
	// token at a time.
	scanMu sync.Mutex

	bootAt time.Time
	scans  atomic.Uint64
	valid  atomic.Uint64
	denied atomic.Uint64

	listeners []net.Listener
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// NewServer creates a Server with the given configuration and scanner.
func NewServer(cfg *ServerConfig, scanner Scanner) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("gateway: server config is nil")
	}
	if scanner == nil {
		return nil, errors.New("gateway: scanner is nil")
	}

	return &Server{
		cfg:       cfg,
		logger:    cfg.logger,
		scanner:   scanner,
		allowlist: make(map[string]string),
		sessions:  xsync.NewMapOf[string, session](),
		bootAt:    time.Now(),
	}, nil
}

// allowlistFile is the on-disk allowlist format.
type allowlistFile struct {
	Cards map[string]string `json:"cards"`
}

// LoadAllowlist reads the allowlist file and replaces the in-memory table.
// A missing file yields an empty allowlist, not an error, so a freshly
// provisioned gateway denies everything until cards are registered.
func (s *Server) LoadAllowlist() error {
	data, err := os.ReadFile(s.cfg.allowlistPath)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("gateway allowlist missing, denying all", "path", s.cfg.allowlistPath)

		s.allowMu.Lock()
		s.allowlist = make(map[string]string)
		s.allowMu.Unlock()

		return nil
	}
	if err != nil {
		return fmt.Errorf("gateway: read allowlist: %w", err)
	}

	var file allowlistFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("gateway: parse allowlist: %w", err)
	}

	s.allowMu.Lock()
	if file.Cards != nil {
		s.allowlist = file.Cards
	} else {
		s.allowlist = make(map[string]string)
	}
	count := len(s.allowlist)
	s.allowMu.Unlock()

	s.logger.Info("gateway allowlist loaded", "cards", count)

	return nil
}

// CardCount returns the number of registered cards.
func (s *Server) CardCount() int {
	s.allowMu.RLock()
	defer s.allowMu.RUnlock()

	return len(s.allowlist)
}

// Serve starts listening on the configured endpoints and blocks until the
// context is canceled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.socketPath != "" {
		// Remove a stale socket from an unclean previous shutdown.
		if err := os.Remove(s.cfg.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("gateway: remove stale socket: %w", err)
		}

		ln, err := net.Listen("unix", s.cfg.socketPath)
		if err != nil {
			return fmt.Errorf("gateway: listen unix: %w", err)
		}

		s.listeners = append(s.listeners, ln)
		s.logger.Info("gateway listening", "network", "unix", "address", s.cfg.socketPath)
	}

	if s.cfg.tcpAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.tcpAddr)
		if err != nil {
			s.closeListeners()

			return fmt.Errorf("gateway: listen tcp: %w", err)
		}

		s.listeners = append(s.listeners, ln)
		s.logger.Info("gateway listening", "network", "tcp", "address", ln.Addr().String())
	}

	for _, ln := range s.listeners {
		s.wg.Add(1)

		go s.acceptLoop(ln)
	}

	<-ctx.Done()
	s.Close()

	return nil
}

// Close stops all listeners and waits for in-flight connections.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.closeListeners()
	s.wg.Wait()

	if s.cfg.socketPath != "" {
		_ = os.Remove(s.cfg.socketPath)
	}
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("gateway listener close failed", "error", err)
		}
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !s.closed.Load() {
				s.logger.Error("gateway accept failed", "error", err)
			}

			return
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn serves exactly one request/response exchange.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(DefaultRequestTimeout))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		s.logger.Debug("gateway request read failed", "error", err)

		return
	}

	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.reply(conn, map[string]string{"error": "malformed request"})

		return
	}

	switch req.Action {
	case ActionScanAdmin:
		s.reply(conn, s.authorize("admin", "admin login"))
	case ActionScanShutdown:
		s.reply(conn, s.authorize("shutdown", "shutdown/restart"))
	case ActionStatus:
		s.reply(conn, s.status())
	default:
		s.reply(conn, map[string]string{"error": "unknown action"})
	}
}

func (s *Server) reply(conn net.Conn, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("gateway encode response failed", "error", err)

		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(DefaultRequestTimeout))

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		s.logger.Debug("gateway response write failed", "error", err)
	}
}

// authorize waits for one scan and checks it against the allowlist. Every
// failure mode (timeout, scan error, unknown card) yields a plain denial.
func (s *Server) authorize(key, purpose string) *Decision {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.logger.Info("gateway scan requested", "purpose", purpose)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.scanTimeout)
	defer cancel()

	uid, err := s.scanner.Scan(ctx, purpose)
	if err != nil {
		s.logger.Warn("gateway scan failed", "purpose", purpose, "error", err)

		return &Decision{Authorized: false}
	}

	s.scans.Add(1)

	user, ok := s.lookupCard(uid)
	if !ok {
		s.denied.Add(1)
		s.logger.Warn("gateway access denied, unknown card", "purpose", purpose)

		return &Decision{Authorized: false}
	}

	s.valid.Add(1)

	expires := time.Now().Add(s.cfg.authWindow)
	s.sessions.Store(key, session{user: user, expires: expires})

	s.logger.Info("gateway access granted", "purpose", purpose, "user", user)

	return &Decision{
		Authorized: true,
		User:       user,
		Expires:    float64(expires.Unix()),
	}
}

// lookupCard hashes the UID and resolves it against the allowlist. Raw UIDs
// never leave this function.
func (s *Server) lookupCard(uid string) (string, bool) {
	sum := sha256.Sum256([]byte(uid))
	hash := hex.EncodeToString(sum[:])

	s.allowMu.RLock()
	defer s.allowMu.RUnlock()

	user, ok := s.allowlist[hash]

	return user, ok
}

// status assembles a status report, pruning expired sessions as it goes.
func (s *Server) status() *StatusReport {
	now := time.Now()
	active := make(map[string]SessionInfo)

	s.sessions.Range(func(key string, sess session) bool {
		if sess.expires.After(now) {
			active[key] = SessionInfo{
				User:      sess.user,
				Remaining: int(sess.expires.Sub(now).Seconds()),
			}
		} else {
			s.sessions.Delete(key)
		}

		return true
	})

	return &StatusReport{
		Online: true,
		Cards:  s.CardCount(),
		Stats: ScanStats{
			Boot:   s.bootAt.Format(time.RFC3339),
			Scans:  s.scans.Load(),
			Valid:  s.valid.Load(),
			Denied: s.denied.Load(),
		},
		ActiveSessions: active,
	}
}

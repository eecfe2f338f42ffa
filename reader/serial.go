package reader

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/averlon/keygate/internal/pool"
	"github.com/averlon/keygate/logger"
)

// SerialLink implements Link over a serial port.
//
// One read goroutine pumps lines to the handler in arrival order. All
// outbound writes go through a single mutex-guarded write path so queries
// never interleave on the wire. After a successful open, the link waits
// for the settle delay and then requests a status report so the owner's
// state resynchronizes after every reconnect instead of relying solely on
// pushes from the reader.
type SerialLink struct {
	cfg     *LinkConfig
	logger  logger.Logger
	handler Handler

	mu      sync.Mutex // guards sess
	sess    *linkSession
	writeMu sync.Mutex // single write path
}

// linkSession holds the state of one open port. A fresh session is created
// on every Open so a stale read goroutine can never act on a reopened link.
type linkSession struct {
	port      serial.Port
	closeOnce sync.Once
}

var _ Link = (*SerialLink)(nil)

// NewSerialLink creates a SerialLink with the given configuration.
// The caller must call SetHandler before Open.
func NewSerialLink(cfg *LinkConfig) (*SerialLink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("reader: link config is nil")
	}

	return &SerialLink{
		cfg:    cfg,
		logger: cfg.logger,
	}, nil
}

// SetHandler registers the event handler.
//
// IMPORTANT: This method is NOT thread-safe and MUST be called before Open.
func (l *SerialLink) SetHandler(h Handler) {
	l.handler = h
}

// Open opens the serial port at the configured baud rate and starts the
// read pump. It returns an error if the port cannot be opened; the caller
// owns retry timing.
func (l *SerialLink) Open() error {
	if l.handler == nil {
		return ErrNoHandler
	}

	l.mu.Lock()
	if l.sess != nil {
		l.mu.Unlock()

		return ErrLinkOpened
	}

	mode := &serial.Mode{
		BaudRate: l.cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(l.cfg.device, mode)
	if err != nil {
		l.mu.Unlock()

		return fmt.Errorf("reader: open %s: %w", l.cfg.device, err)
	}

	sess := &linkSession{port: port}
	l.sess = sess
	l.mu.Unlock()

	l.logger.Info("reader link opened", "device", l.cfg.device, "baud", l.cfg.baudRate)
	l.handler.HandleOpened()

	go l.readPump(sess)

	if l.cfg.statusProbe {
		go l.settleThenStatus(sess)
	}

	return nil
}

// Close closes the serial port. The registered handler receives a single
// HandleClosed(nil). Closing an already-closed link is a no-op.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	sess := l.sess
	l.mu.Unlock()

	if sess == nil {
		return nil
	}

	l.teardown(sess, nil)

	return nil
}

// SendCommand writes one newline-terminated command to the reader.
func (l *SerialLink) SendCommand(cmd string) error {
	l.mu.Lock()
	sess := l.sess
	l.mu.Unlock()

	if sess == nil {
		return ErrLinkClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := sess.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("reader: send %q: %w: %w", cmd, ErrLinkClosed, err)
	}

	l.logger.Debug("reader command sent", "cmd", cmd)

	return nil
}

// IsOpen reports whether the link currently holds an open port.
func (l *SerialLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sess != nil
}

// readPump reads lines from the port until it fails, then tears the
// session down. Lines are delivered strictly in arrival order.
func (l *SerialLink) readPump(sess *linkSession) {
	scanner := bufio.NewScanner(sess.port)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		l.handler.HandleLine(line)
	}

	// Scan returned false: explicit close, device unplug, or read error.
	l.teardown(sess, scanner.Err())
}

// settleThenStatus waits out the settle delay and requests a status report
// through the single write path. The reader firmware reboots on port open,
// so anything sent earlier would be lost.
func (l *SerialLink) settleThenStatus(sess *linkSession) {
	if l.cfg.settleDelay > 0 {
		timer := pool.GetTimer(l.cfg.settleDelay)
		<-timer.C
		pool.PutTimer(timer)
	}

	l.mu.Lock()
	current := l.sess
	l.mu.Unlock()

	if current != sess {
		return // session was torn down (or replaced) during the settle wait
	}

	if err := l.SendCommand(CmdStatus); err != nil {
		l.logger.Debug("reader status request failed", "error", err)
	}
}

// teardown closes the port and reports the closure exactly once per
// session. err is nil for an explicit Close.
func (l *SerialLink) teardown(sess *linkSession, err error) {
	sess.closeOnce.Do(func() {
		if cerr := sess.port.Close(); cerr != nil {
			l.logger.Debug("reader port close failed", "error", cerr)
		}

		l.mu.Lock()
		if l.sess == sess {
			l.sess = nil
		}
		l.mu.Unlock()

		if err != nil {
			l.logger.Warn("reader link lost", "device", l.cfg.device, "error", err)
		} else {
			l.logger.Info("reader link closed", "device", l.cfg.device)
		}

		l.handler.HandleClosed(err)
	})
}

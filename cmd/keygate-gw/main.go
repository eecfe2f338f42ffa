// Command keygate-gw runs the scan gateway daemon: it listens on a unix
// socket and/or TCP endpoint for scan and status requests, waits for token
// scans on a serial-attached UID reader, and answers with grant/deny
// decisions checked against a JSON allowlist.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/averlon/keygate/gateway"
	"github.com/averlon/keygate/logger"
	"github.com/averlon/keygate/reader"
)

func main() {
	if err := run(); err != nil {
		logger.Error("keygate-gw failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		allowlistPath = flag.String("allowlist", "allowlist.json", "path to the card allowlist")
		socketPath    = flag.String("socket", "/tmp/keygate_rfid.sock", "unix socket path (empty disables)")
		tcpAddr       = flag.String("tcp", "", "tcp listen address (empty disables)")
		scanDevice    = flag.String("scan-device", "", "serial device of the UID reader")
		baud          = flag.Int("baud", reader.DefaultBaudRate, "serial baud rate")
	)
	flag.Parse()

	log := logger.GetLogger()

	if *scanDevice == "" {
		return errors.New("no scan device configured (-scan-device)")
	}

	scanner, err := newSerialScanner(*scanDevice, *baud, log)
	if err != nil {
		return err
	}

	opts := []gateway.ServerOption{gateway.WithServerLogger(log)}
	if *socketPath != "" {
		opts = append(opts, gateway.WithUnixSocket(*socketPath))
	}
	if *tcpAddr != "" {
		opts = append(opts, gateway.WithTCPListen(*tcpAddr))
	}

	cfg, err := gateway.NewServerConfig(*allowlistPath, opts...)
	if err != nil {
		return err
	}

	srv, err := gateway.NewServer(cfg, scanner)
	if err != nil {
		return err
	}

	if err := srv.LoadAllowlist(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}

// serialScanner waits for UID lines from a serial-attached reader. Each
// non-empty line received on the port is taken as one presented token.
type serialScanner struct {
	link  *reader.SerialLink
	lines chan string
	log   logger.Logger
}

var _ gateway.Scanner = (*serialScanner)(nil)
var _ reader.Handler = (*serialScanner)(nil)

const scannerReopenDelay = 5 * time.Second

func newSerialScanner(device string, baud int, log logger.Logger) (*serialScanner, error) {
	linkCfg, err := reader.NewLinkConfig(device,
		reader.WithBaudRate(baud),
		reader.WithStatusProbe(false), // UID readers push spontaneously and take no commands
		reader.WithLinkLogger(log),
	)
	if err != nil {
		return nil, err
	}

	link, err := reader.NewSerialLink(linkCfg)
	if err != nil {
		return nil, err
	}

	s := &serialScanner{
		link:  link,
		lines: make(chan string, 4),
		log:   log,
	}
	link.SetHandler(s)

	if err := link.Open(); err != nil {
		// Keep running; the reopen loop below owns retries, and the
		// gateway denies every scan until the reader appears.
		s.log.Warn("scan reader open failed, retrying", "error", err)
		time.AfterFunc(scannerReopenDelay, s.reopen)
	}

	return s, nil
}

// Scan blocks until the next UID line arrives or the context expires.
func (s *serialScanner) Scan(ctx context.Context, purpose string) (string, error) {
	// Discard scans that happened before anyone asked.
	for {
		select {
		case <-s.lines:
			continue
		default:
		}

		break
	}

	s.log.Info("waiting for token", "purpose", purpose)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case uid := <-s.lines:
		return uid, nil
	}
}

func (s *serialScanner) HandleOpened() {}

func (s *serialScanner) HandleLine(line string) {
	uid := strings.TrimSpace(line)
	if uid == "" {
		return
	}

	select {
	case s.lines <- uid:
	default:
		s.log.Debug("discarding unsolicited scan")
	}
}

func (s *serialScanner) HandleClosed(err error) {
	s.log.Warn("scan reader lost", "error", err)
	time.AfterFunc(scannerReopenDelay, s.reopen)
}

func (s *serialScanner) reopen() {
	if err := s.link.Open(); err != nil {
		s.log.Warn("scan reader reopen failed, retrying", "error", err)
		time.AfterFunc(scannerReopenDelay, s.reopen)
	}
}

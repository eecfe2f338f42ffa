// Command keygated runs the presence-gate daemon: it monitors a serial
// token reader, exposes the derived authorization state over HTTP, and
// guards the privileged admin routes behind physical key presence.
//
// Configuration comes from a YAML file (-config) with environment
// overrides:
//
//	KEYGATE_DEVICE - serial device path of the token reader
//	KEYGATE_BAUD   - serial baud rate (default: 115200)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/averlon/keygate/gate"
	"github.com/averlon/keygate/gateway"
	"github.com/averlon/keygate/guard"
	"github.com/averlon/keygate/logger"
	"github.com/averlon/keygate/reader"
)

func main() {
	if err := run(); err != nil {
		logger.Error("keygated failed", "error", err)
		os.Exit(1)
	}
}

type shutdownRequest struct {
	reason string
	grace  time.Duration
}

func run() error {
	cfgPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Serial link to the token reader.
	linkOpts := []reader.LinkOption{reader.WithLinkLogger(log)}
	if cfg.Baud > 0 {
		linkOpts = append(linkOpts, reader.WithBaudRate(cfg.Baud))
	}

	linkCfg, err := reader.NewLinkConfig(cfg.Device, linkOpts...)
	if err != nil {
		return err
	}

	link, err := reader.NewSerialLink(linkCfg)
	if err != nil {
		return err
	}

	// The gate's shutdown trigger is advisory: it hands the reason to the
	// main loop, which performs the orderly stop. Single-slot channel so a
	// burst of revokes cannot pile up.
	shutdownCh := make(chan shutdownRequest, 1)
	trigger := func(reason string, grace time.Duration) {
		select {
		case shutdownCh <- shutdownRequest{reason: reason, grace: grace}:
		default:
		}
	}

	gateOpts := []gate.Option{gate.WithLogger(log)}
	if cfg.HeartbeatTimeout > 0 {
		gateOpts = append(gateOpts, gate.WithHeartbeatTimeout(time.Duration(cfg.HeartbeatTimeout)))
	}
	if cfg.HeartbeatInterval > 0 {
		gateOpts = append(gateOpts, gate.WithHeartbeatInterval(time.Duration(cfg.HeartbeatInterval)))
	}
	if cfg.ReconnectDelay > 0 {
		gateOpts = append(gateOpts, gate.WithReconnectDelay(time.Duration(cfg.ReconnectDelay)))
	}
	if cfg.ShutdownGrace > 0 {
		gateOpts = append(gateOpts, gate.WithShutdownGrace(time.Duration(cfg.ShutdownGrace)))
	}

	gateCfg, err := gate.NewConfig(gateOpts...)
	if err != nil {
		return err
	}

	g, err := gate.New(ctx, gateCfg, link, trigger)
	if err != nil {
		return err
	}

	// Mirror gate transitions into the log stream independently of the
	// gate's own processing.
	sub := g.Subscribe()
	defer sub.Cancel()

	go func() {
		for ev := range sub.Events() {
			log.Debug("gate event", "type", ev.Type.String(), "reason", ev.Reason, "uid", ev.TokenID)
		}
	}()

	// Optional scan gateway for action-level confirmations.
	var scans *gateway.Client
	if cfg.Gateway.Address != "" {
		gwCfg, err := gateway.NewClientConfig(cfg.Gateway.Network, cfg.Gateway.Address,
			gateway.WithClientLogger(log))
		if err != nil {
			return err
		}

		scans, err = gateway.NewClient(gwCfg)
		if err != nil {
			return err
		}
	}

	if err := g.Start(); err != nil {
		return err
	}
	defer g.Stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(guard.Collectors(g)...)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: newHandler(g, scans, shutdownCh, reg),
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("keygated listening", "addr", cfg.Listen, "device", cfg.Device)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	grace := gateCfg.ShutdownGrace()

	select {
	case <-ctx.Done():
		log.Info("shutting down on signal")
	case req := <-shutdownCh:
		log.Error("physical presence revoked, shutting down", "reason", req.reason, "grace", req.grace)
		grace = req.grace
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// newHandler builds the HTTP surface: open observability routes plus
// admin routes behind the route guard.
func newHandler(g *gate.Gate, scans *gateway.Client, shutdownCh chan shutdownRequest, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		st, ok := guard.StateFrom(r.Context())
		if !ok {
			st = g.Snapshot()
		}

		writeJSON(w, map[string]any{
			"state": st,
			"stats": g.Stats().Snapshot(),
		})
	})

	requireKey := guard.RequireKey(g)

	mux.Handle("GET /admin/status", requireKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"state": g.Snapshot(),
			"stats": g.Stats().Snapshot(),
		}

		if scans != nil {
			if rep, err := scans.Status(r.Context()); err != nil {
				body["gateway"] = map[string]any{"online": false, "error": err.Error()}
			} else {
				body["gateway"] = rep
			}
		}

		writeJSON(w, body)
	})))

	mux.Handle("POST /admin/shutdown", requireKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Presence alone is not enough to stop the host: when a gateway is
		// configured, a deliberate confirmation scan is also required.
		if scans != nil {
			dec, err := scans.ScanShutdown(r.Context())
			if !gateway.Allowed(dec, err) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				writeJSONBody(w, map[string]any{"error": "shutdown not confirmed"})

				return
			}
		}

		select {
		case shutdownCh <- shutdownRequest{reason: "admin-request", grace: gate.DefaultShutdownGrace}:
		default:
		}

		writeJSON(w, map[string]any{"shutting_down": true})
	})))

	return guard.WithState(g)(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONBody(w, v)
}

func writeJSONBody(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

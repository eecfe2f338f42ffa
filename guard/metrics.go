package guard

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/averlon/keygate/gate"
)

// DenialsTotal counts privileged requests rejected by the route guard,
// labeled by denial reason.
var DenialsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keygate_guard_denials_total",
		Help: "Privileged requests denied by the route guard",
	},
	[]string{"reason"},
)

// Collectors returns all guard and gate collectors for registration with a
// prometheus registry. The gate counters are bridged read-only via
// CounterFunc/GaugeFunc; the gate remains the sole writer.
func Collectors(g *gate.Gate) []prometheus.Collector {
	stats := g.Stats()

	return []prometheus.Collector{
		DenialsTotal,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "keygate_authorized",
				Help: "1 when a registered token is present on a live link",
			},
			func() float64 { return boolToFloat(g.IsAuthorized()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "keygate_reader_connected",
				Help: "1 when the reader link is established",
			},
			func() float64 { return boolToFloat(g.IsConnected()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "keygate_reader_messages_total",
				Help: "Reader messages processed",
			},
			func() float64 { return float64(stats.MessageRecvCount.Load()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "keygate_reader_confirmations_total",
				Help: "Key-confirmed messages processed",
			},
			func() float64 { return float64(stats.ConfirmCount.Load()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "keygate_reader_losses_total",
				Help: "Key-lost messages processed",
			},
			func() float64 { return float64(stats.LossCount.Load()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "keygate_reader_rejections_total",
				Help: "Rejected or malformed tokens",
			},
			func() float64 { return float64(stats.RejectCount.Load()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "keygate_reader_reconnects_total",
				Help: "Reader reconnect attempts",
			},
			func() float64 { return float64(stats.ReconnectCount.Load()) },
		),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

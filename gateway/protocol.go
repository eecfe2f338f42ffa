package gateway

import (
	"errors"
	"time"
)

// Action selects the gateway operation for one request.
type Action string

const (
	// ActionStatus polls gateway health and session state.
	ActionStatus Action = "status"
	// ActionScanAdmin requests a token scan authorizing an admin login.
	ActionScanAdmin Action = "scan_admin"
	// ActionScanShutdown requests a token scan confirming a shutdown or
	// restart.
	ActionScanShutdown Action = "scan_shutdown"
)

// Sentinel errors for the gateway client. All of them mean "no grant": the
// taxonomy only exists so operators can tell a locked door from a broken
// one.
var (
	// ErrGatewayOffline indicates the gateway endpoint is unreachable.
	ErrGatewayOffline = errors.New("gateway: endpoint unreachable")
	// ErrInvalidResponse indicates a response was received but no decision
	// could be extracted from it.
	ErrInvalidResponse = errors.New("gateway: invalid response")
	// ErrScanTimeout indicates the call timed out with no data; no token
	// was presented.
	ErrScanTimeout = errors.New("gateway: timeout, no token presented")
)

// request is the single wire object written per connection.
type request struct {
	Action Action `json:"action"`
}

// Decision is the outcome of a scan action. Only Authorized carries trust;
// User and Expires are informational.
type Decision struct {
	Authorized bool    `json:"authorized"`
	User       string  `json:"user,omitempty"`
	Expires    float64 `json:"expires,omitempty"` // unix seconds
}

// ExpiresAt returns the expiry as a time.Time, or the zero time when unset.
func (d *Decision) ExpiresAt() time.Time {
	if d.Expires == 0 {
		return time.Time{}
	}

	sec := int64(d.Expires)
	nsec := int64((d.Expires - float64(sec)) * float64(time.Second))

	return time.Unix(sec, nsec)
}

// ScanStats are the gateway's own monotonic counters, reported via status.
type ScanStats struct {
	Boot   string `json:"boot"`
	Scans  uint64 `json:"scans"`
	Valid  uint64 `json:"valid"`
	Denied uint64 `json:"denied"`
}

// SessionInfo describes one unexpired grant held by the gateway.
type SessionInfo struct {
	User      string `json:"user"`
	Remaining int    `json:"remaining"` // seconds
}

// StatusReport is the response to ActionStatus.
type StatusReport struct {
	Online         bool                   `json:"online"`
	Cards          int                    `json:"cards"`
	Stats          ScanStats              `json:"stats"`
	ActiveSessions map[string]SessionInfo `json:"active_sessions"`
}

// Allowed reports whether a scan outcome grants access. Only a well-formed
// authorized response yields true; every error collapses to denied.
func Allowed(dec *Decision, err error) bool {
	return err == nil && dec != nil && dec.Authorized
}

// Package guard provides the route guard: a request-scoped precondition on
// privileged HTTP endpoints that fails closed on missing or unreachable
// hardware.
//
// The guard runs before identity-level authorization and is necessary but
// never sufficient: when it passes, whatever identity check comes next
// still applies. Denials distinguish "key absent" (403, prompt for physical
// presence) from "hardware unreachable" (503, operational failure) so
// operators can tell a locked door from a broken one.
package guard

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/averlon/keygate/gate"
)

// Denial reasons reported to clients and recorded in metrics.
const (
	ReasonKeyAbsent           = "key_absent"
	ReasonHardwareUnreachable = "hardware_unreachable"
)

// Authorizer is the synchronous, non-blocking predicate consulted per
// request. *gate.Gate implements it.
type Authorizer interface {
	IsAuthorized() bool
	IsConnected() bool
}

// StateSource supplies read-only state snapshots for observability.
// *gate.Gate implements it.
type StateSource interface {
	Snapshot() gate.State
}

type denialBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// RequireKey returns middleware that rejects requests unless a registered
// token is present on a live reader link.
func RequireKey(a Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.IsConnected() {
				DenialsTotal.WithLabelValues(ReasonHardwareUnreachable).Inc()
				writeDenial(w, http.StatusServiceUnavailable, denialBody{
					Error:  "hardware key unavailable",
					Reason: ReasonHardwareUnreachable,
				})

				return
			}

			if !a.IsAuthorized() {
				DenialsTotal.WithLabelValues(ReasonKeyAbsent).Inc()
				writeDenial(w, http.StatusForbidden, denialBody{
					Error:  "hardware key required",
					Reason: ReasonKeyAbsent,
				})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeDenial(w http.ResponseWriter, status int, body denialBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type ctxKey int

const stateCtxKey ctxKey = iota

// WithState returns middleware that attaches a read-only gate state
// snapshot to every request context. It never denies.
func WithState(src StateSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), stateCtxKey, src.Snapshot())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StateFrom extracts the gate state snapshot injected by WithState.
func StateFrom(ctx context.Context) (gate.State, bool) {
	st, ok := ctx.Value(stateCtxKey).(gate.State)

	return st, ok
}

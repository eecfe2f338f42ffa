// Package gateway implements the scan gateway protocol: newline-delimited
// JSON request/response over a unix domain socket or TCP.
//
// The Client performs on-demand, stateless calls: one connection per call,
// one request object written, exactly one response object read or a timeout.
// Status polling uses a short timeout tier because it sits on health-check
// hot paths; scan actions use a long tier because a human must physically
// present a token during the call. Every failure mode collapses to a denied
// decision at the call site; the gateway, not the caller, is the trust
// boundary, and embedded identity fields are informational only.
//
// The Server is the passive side of the same protocol, dispatching scan
// requests to a pluggable Scanner and answering status polls.
package gateway

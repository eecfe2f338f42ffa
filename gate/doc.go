// Package gate holds the authoritative in-memory authorization state derived
// from the attached token reader.
//
// The Gate consumes parsed reader messages delivered by a [reader.Link],
// derives the presence state, deduplicates transitions, raises typed events
// to subscribers, and invokes an advisory shutdown trigger when presence is
// revoked. The policy is fail-closed: a freshly constructed Gate denies, and
// any ambiguity (disconnect, heartbeat timeout, malformed message) collapses
// to denied.
//
// Exactly one writer mutates gate state: every trigger (message delivery,
// heartbeat timeout, link closure) funnels through the same mutex-serialized
// transition routine, so IsAuthorized is a lock-free atomic read that is
// safe from any number of concurrent readers.
package gate

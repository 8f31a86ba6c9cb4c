// Package keyrotation manages per-service pools of API credentials.
//
// A Manager hands out credentials according to a process-wide rotation
// strategy, demotes credentials that hit quota or overload errors, and
// recovers automatically once every credential of a pool has been demoted.
// Do wraps an upstream call with credential selection, failure
// classification, demotion and exponential backoff.
//
// State lives only in process memory; each instance rotates independently
// and a restart clears all rotation progress and failure markings.
package keyrotation

import (
	"strings"
)

// Strategy selects which available credential is handed out next.
type Strategy int

const (
	// RoundRobin cycles through the available credentials in configured order.
	RoundRobin Strategy = iota
	// Sequential always prefers the earliest credential that has not failed.
	Sequential
	// Random picks a uniformly random available credential.
	Random
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "SEQUENTIAL"
	case Random:
		return "RANDOM"
	default:
		return "ROUND_ROBIN"
	}
}

// ParseStrategy maps a configuration value to a Strategy. Matching is
// case-insensitive; unset or unrecognized values yield RoundRobin and ok=false
// so callers can warn about the fallback.
func ParseStrategy(s string) (Strategy, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ROUND_ROBIN":
		return RoundRobin, true
	case "SEQUENTIAL":
		return Sequential, true
	case "RANDOM":
		return Random, true
	default:
		return RoundRobin, false
	}
}

// Package probes runs the readiness checks shared by the HTTP and gRPC
// health endpoints.
package probes

import (
	"context"
	"sort"
	"time"
)

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

// DefaultTimeout bounds a single round of checks.
const DefaultTimeout = 2 * time.Second

// Set is a named group of probes.
type Set map[string]Probe

// Check runs every probe and returns the failures by name. A nil map means
// everything is healthy.
func (s Set) Check(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var failed map[string]error
	for _, name := range s.names() {
		if err := s[name](ctx); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[name] = err
		}
	}
	return failed
}

func (s Set) names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

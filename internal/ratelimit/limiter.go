// Package ratelimit provides in-process rate limiting via token buckets.
// Each action (message submit, login attempt) gets per-session or
// per-identity throttling; buckets are created on first use and kept per
// identifier.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule defines a rate limiting policy: maximum number of actions allowed in
// the window, refilled continuously.
type Rule struct {
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// Standard rules.
var (
	// RuleMessage allows 5 message submissions per 10 seconds per session.
	RuleMessage = Rule{Limit: 5, Window: 10 * time.Second}

	// RuleLogin allows 10 login attempts per minute per identity.
	RuleLogin = Rule{Limit: 10, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks. It is goroutine-safe.
type Limiter struct {
	rule Rule

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a limiter enforcing the given rule.
func NewLimiter(rule Rule) *Limiter {
	return &Limiter{
		rule:    rule,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the identifier may perform another action under the
// rule. Each identifier gets its own token bucket holding Rule.Limit tokens
// refilled evenly across the window.
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	b, ok := l.buckets[identifier]
	if !ok {
		per := rate.Every(l.rule.Window / time.Duration(l.rule.Limit))
		b = rate.NewLimiter(per, l.rule.Limit)
		l.buckets[identifier] = b
	}
	l.mu.Unlock()

	return b.Allow()
}

// Package scope restricts which hosts the crawler follows.
//
// A HostScope is configured with allow and deny glob patterns:
//   - Allow patterns: the host must match at least one. An empty allow
//     list admits every host.
//   - Deny patterns: the host must not match any.
//
// Patterns use doublestar glob syntax matched against the bare hostname,
// so "*.wikipedia.org" covers every subdomain and "wikipedia.org" only
// the apex. The HostScope is safe for concurrent use after creation.
package scope

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config configures a HostScope.
type Config struct {
	// Allow are glob patterns hosts must match (at least one).
	// Optional: if empty, every host is allowed.
	Allow []string

	// Deny are glob patterns hosts must not match (any).
	// Optional: if empty, no hosts are denied.
	Deny []string
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// HostScope evaluates allow/deny patterns against URL hostnames.
type HostScope struct {
	allow []string
	deny  []string
}

// New creates a HostScope from the given configuration.
//
// Patterns are lowercased before compilation because hostnames are
// case-insensitive. Blank entries are dropped. Returns an error if any
// pattern is invalid.
func New(cfg Config) (*HostScope, error) {
	allow, err := compile(cfg.Allow)
	if err != nil {
		return nil, err
	}
	deny, err := compile(cfg.Deny)
	if err != nil {
		return nil, err
	}
	return &HostScope{allow: allow, deny: deny}, nil
}

func compile(raw []string) ([]string, error) {
	patterns := make([]string, 0, len(raw))
	for _, r := range raw {
		p := strings.ToLower(strings.TrimSpace(r))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: r, Err: ErrInvalidPattern}
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Allows reports whether host is in scope.
//
// A host is in scope if:
//  1. It does not match any deny pattern
//  2. It matches at least one allow pattern (or the allow list is empty)
//
// Hosts are compared case-insensitively and a trailing dot is ignored.
// The empty host is never in scope.
func (s *HostScope) Allows(host string) bool {
	h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h == "" {
		return false
	}

	for _, d := range s.deny {
		if matchPattern(d, h) {
			return false
		}
	}

	if len(s.allow) == 0 {
		return true
	}
	for _, a := range s.allow {
		if matchPattern(a, h) {
			return true
		}
	}
	return false
}

// Unrestricted reports whether the scope admits every host.
func (s *HostScope) Unrestricted() bool {
	return len(s.allow) == 0 && len(s.deny) == 0
}

// AllowPatterns returns the compiled allow patterns.
func (s *HostScope) AllowPatterns() []string {
	return s.allow
}

// DenyPatterns returns the compiled deny patterns.
func (s *HostScope) DenyPatterns() []string {
	return s.deny
}

// matchPattern matches a host against a doublestar pattern.
func matchPattern(pattern, host string) bool {
	matched, err := doublestar.Match(pattern, host)
	if err != nil {
		// Pattern was validated at construction time, so this shouldn't happen
		return false
	}
	return matched
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// EmailPolicy restricts which addresses may request codes.
// Patterns are globs over the normalized address, e.g. "*@example.com".
type EmailPolicy struct {
	patterns []glob.Glob
}

// NewEmailPolicy compiles patterns. An empty list allows every address.
func NewEmailPolicy(patterns []string) (*EmailPolicy, error) {
	p := &EmailPolicy{patterns: make([]glob.Glob, 0, len(patterns))}
	for _, raw := range patterns {
		g, err := glob.Compile(NormalizeEmail(raw), '@')
		if err != nil {
			return nil, oops.Code("EMAIL_POLICY_INVALID").With("pattern", raw).Wrap(err)
		}
		p.patterns = append(p.patterns, g)
	}
	return p, nil
}

// Allows reports whether email matches at least one pattern.
func (p *EmailPolicy) Allows(email string) bool {
	if p == nil || len(p.patterns) == 0 {
		return true
	}
	for _, g := range p.patterns {
		if g.Match(email) {
			return true
		}
	}
	return false
}

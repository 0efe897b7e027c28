// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/formgate/formgate/internal/auth"
)

// DomainPolicy decides which email domains may sign up.
//
// Patterns use gobwas/glob with '.' as the separator:
//   - "example.com" matches only example.com
//   - "*.example.com" matches mail.example.com but not a.b.example.com
//   - "**.example.com" matches any subdomain depth
//
// The zero value admits every domain.
type DomainPolicy struct {
	allow []glob.Glob
	block []glob.Glob
}

// NewDomainPolicy compiles the allow and block lists. Patterns are matched
// case-insensitively.
func NewDomainPolicy(allowed, blocked []string) (DomainPolicy, error) {
	allow, err := compileDomains("allowed", allowed)
	if err != nil {
		return DomainPolicy{}, err
	}
	block, err := compileDomains("blocked", blocked)
	if err != nil {
		return DomainPolicy{}, err
	}
	return DomainPolicy{allow: allow, block: block}, nil
}

func compileDomains(list string, patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for i, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			return nil, oops.Code("WORKFLOW_INVALID_CONFIG").
				With("list", list).
				With("index", i).
				Errorf("empty domain pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code("WORKFLOW_INVALID_CONFIG").
				With("list", list).
				With("pattern", pattern).
				Wrap(err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Permits reports whether email's domain may register. A block match always
// wins; otherwise a non-empty allow list must match.
func (p DomainPolicy) Permits(email string) bool {
	email = auth.NormalizeEmail(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]

	for _, g := range p.block {
		if g.Match(domain) {
			return false
		}
	}
	if len(p.allow) == 0 {
		return true
	}
	for _, g := range p.allow {
		if g.Match(domain) {
			return true
		}
	}
	return false
}

package config

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// LocalAddressSet wraps a Config's LocalAddresses list into an efficient
// membership test, generalized from an exact-match map[string]bool to
// doublestar glob patterns (SPEC_FULL.md §4.4): a pattern is only
// glob-matched when it actually contains glob metacharacters, otherwise
// it is compared by exact string equality so ordinary hostnames stay
// cheap and unsurprising.
type LocalAddressSet struct {
	exact    map[string]bool
	patterns []string
}

// NewLocalAddressSet partitions addresses into exact-match entries and
// glob patterns.
func NewLocalAddressSet(addresses []string) *LocalAddressSet {
	s := &LocalAddressSet{exact: make(map[string]bool)}
	for _, addr := range addresses {
		if isGlobPattern(addr) {
			s.patterns = append(s.patterns, addr)
		} else {
			s.exact[addr] = true
		}
	}
	return s
}

// Contains reports whether host matches any configured local address,
// exactly or via glob pattern.
func (s *LocalAddressSet) Contains(host string) bool {
	if s.exact[host] {
		return true
	}
	for _, pattern := range s.patterns {
		if ok, _ := doublestar.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

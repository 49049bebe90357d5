package expectation

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestMemoryStoreFirstMatchingPrefersHigherScore(t *testing.T) {
	loose := Expectation{ID: "loose", Matcher: Matcher{PathPrefix: "/a"}, Action: action.Response{}}
	exact := Expectation{ID: "exact", Matcher: Matcher{Method: "GET", PathExact: "/a/b"}, Action: action.Response{}}
	store := NewMemoryStore([]Expectation{loose, exact})

	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/a/b")}
	got := store.FirstMatching(req)
	if got == nil || got.ID != "exact" {
		t.Fatalf("expected the more specific expectation to win, got %+v", got)
	}
}

func TestMemoryStoreFirstMatchingNoMatch(t *testing.T) {
	store := NewMemoryStore([]Expectation{
		{ID: "a", Matcher: Matcher{PathExact: "/x"}, Action: action.Response{}},
	})
	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/y")}
	if got := store.FirstMatching(req); got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestMatcherHeadersAndQuery(t *testing.T) {
	m := Matcher{
		Headers:     map[string]string{"X-Api-Key": "secret"},
		QueryParams: map[string]string{"page": "2"},
	}
	req := httpmsg.Request{
		Header: http.Header{"X-Api-Key": []string{"secret"}},
		URI:    mustURL(t, "http://h/?page=2"),
	}
	if _, ok := m.Matches(req); !ok {
		t.Fatal("expected match")
	}

	reqWrongHeader := httpmsg.Request{URI: mustURL(t, "http://h/?page=2")}
	if _, ok := m.Matches(reqWrongHeader); ok {
		t.Fatal("expected no match when required header is absent")
	}
}

func TestExpectationCloneIsIndependent(t *testing.T) {
	orig := Expectation{ID: "e1", Action: action.Response{}}
	clone := orig.Clone()
	clone.ID = "e2"
	if orig.ID != "e1" {
		t.Fatalf("Clone mutated the original")
	}
}

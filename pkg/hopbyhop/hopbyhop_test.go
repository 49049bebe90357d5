package hopbyhop

import (
	"net/http"
	"testing"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

func TestFilterRemovesStandardHeaders(t *testing.T) {
	req := httpmsg.Request{Header: http.Header{
		"Connection":       []string{"keep-alive"},
		"Keep-Alive":       []string{"timeout=5"},
		"Transfer-Encoding": []string{"chunked"},
		"X-Custom":         []string{"keep-me"},
	}}

	out := Filter(req)

	for _, h := range []string{"Connection", "Keep-Alive", "Transfer-Encoding"} {
		if out.Header.Get(h) != "" {
			t.Errorf("expected %s to be stripped, got %q", h, out.Header.Get(h))
		}
	}
	if out.Header.Get("X-Custom") != "keep-me" {
		t.Errorf("expected X-Custom to survive filtering")
	}
}

func TestFilterRemovesHeadersNamedInConnection(t *testing.T) {
	req := httpmsg.Request{Header: http.Header{
		"Connection": []string{"X-Session-Token, X-Trace-Id"},
		"X-Session-Token": []string{"abc"},
		"X-Trace-Id":      []string{"xyz"},
		"X-Other":         []string{"stays"},
	}}

	out := Filter(req)

	if out.Header.Get("X-Session-Token") != "" {
		t.Errorf("expected X-Session-Token (named in Connection) to be stripped")
	}
	if out.Header.Get("X-Trace-Id") != "" {
		t.Errorf("expected X-Trace-Id (named in Connection) to be stripped")
	}
	if out.Header.Get("X-Other") != "stays" {
		t.Errorf("expected X-Other to survive filtering")
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	req := httpmsg.Request{Header: http.Header{"Connection": []string{"keep-alive"}}}
	_ = Filter(req)

	if req.Header.Get("Connection") != "keep-alive" {
		t.Fatalf("Filter mutated its input")
	}
}

func TestIsHopByHop(t *testing.T) {
	if !IsHopByHop("connection") {
		t.Errorf("expected case-insensitive match for 'connection'")
	}
	if IsHopByHop("X-Custom") {
		t.Errorf("X-Custom should not be hop-by-hop")
	}
}

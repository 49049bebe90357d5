package httpmsg

import (
	"net/http"
	"testing"
)

func TestRequestWithHeaderDoesNotMutateReceiver(t *testing.T) {
	orig := Request{Header: http.Header{"X-A": []string{"1"}}}
	updated := orig.WithHeader("X-B", "2")

	if orig.Header.Get("X-B") != "" {
		t.Fatalf("WithHeader mutated the receiver's header map")
	}
	if updated.Header.Get("X-B") != "2" {
		t.Fatalf("WithHeader did not set the new header on the clone")
	}
	if updated.Header.Get("X-A") != "1" {
		t.Fatalf("WithHeader dropped an existing header")
	}
}

func TestRequestCloneIndependentBody(t *testing.T) {
	orig := Request{Body: []byte("hello")}
	clone := orig.Clone()
	clone.Body[0] = 'H'

	if orig.Body[0] != 'h' {
		t.Fatalf("Clone shared backing array with the original")
	}
}

func TestResponseWithHeader(t *testing.T) {
	orig := Response{StatusCode: 200}
	updated := orig.WithHeader("X-Edited", "1")

	if orig.Header.Get("X-Edited") != "" {
		t.Fatalf("WithHeader mutated the receiver")
	}
	if updated.Header.Get("X-Edited") != "1" {
		t.Fatalf("expected X-Edited header on clone")
	}
}

func TestNotFound(t *testing.T) {
	resp := NotFound()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

package curlserializer

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

func TestRenderGetRequest(t *testing.T) {
	u, _ := url.Parse("http://origin/a")
	req := httpmsg.Request{Method: "GET", URI: u}

	got := Render(req, "")
	if !strings.HasPrefix(got, "curl ") {
		t.Fatalf("expected curl prefix, got %q", got)
	}
	if strings.Contains(got, "-X GET") {
		t.Errorf("GET should not need an explicit -X flag: %q", got)
	}
	if !strings.Contains(got, "http://origin/a") {
		t.Errorf("expected URL in output: %q", got)
	}
}

func TestRenderPostWithBodyAndHeaders(t *testing.T) {
	u, _ := url.Parse("http://origin/create")
	req := httpmsg.Request{
		Method: "POST",
		URI:    u,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"a":1}`),
	}

	got := Render(req, "10.0.0.1:443")

	for _, want := range []string{"-X POST", "Content-Type: application/json", `{"a":1}`, "10.0.0.1:443"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got %q", want, got)
		}
	}
}

func TestRenderEscapesSingleQuotes(t *testing.T) {
	u, _ := url.Parse("http://origin/")
	req := httpmsg.Request{Method: "POST", Body: []byte("it's a test"), URI: u}

	got := Render(req, "")
	if !strings.Contains(got, `it'\''s a test`) {
		t.Errorf("expected escaped single quote, got %q", got)
	}
}

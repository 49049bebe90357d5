package template

import (
	"net/http"
	"net/url"
	"testing"

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

func TestProcessSubstitutesRequestFields(t *testing.T) {
	e := New()
	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/widgets?page=2")}

	got := e.Process("method={{request.method}} path={{request.path}} page={{ request.query.page }}", req)
	want := "method=GET path=/widgets page=2"
	if got != want {
		t.Errorf("Process() = %q, want %q", got, want)
	}
}

func TestProcessHeaderLookup(t *testing.T) {
	e := New()
	req := httpmsg.Request{Header: http.Header{"X-Trace": []string{"abc123"}}}

	got := e.Process("trace={{request.header.X-Trace}}", req)
	if got != "trace=abc123" {
		t.Errorf("Process() = %q", got)
	}
}

func TestProcessUnknownExpressionYieldsEmptyString(t *testing.T) {
	e := New()
	got := e.Process("x={{nonsense.expr}}", httpmsg.Request{})
	if got != "x=" {
		t.Errorf("Process() = %q, want empty substitution", got)
	}
}

func TestRenderResponse(t *testing.T) {
	e := New()
	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/widgets/7")}
	tmpl := `{"statusCode": 200, "headers": {"X-Path": "{{request.path}}"}, "body": "hello"}`

	resp, err := e.RenderResponse(tmpl, req)
	if err != nil {
		t.Fatalf("RenderResponse: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Path") != "/widgets/7" {
		t.Errorf("X-Path header = %q", resp.Header.Get("X-Path"))
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestRenderResponseDefaultsStatusCode(t *testing.T) {
	e := New()
	resp, err := e.RenderResponse(`{"body": "ok"}`, httpmsg.Request{})
	if err != nil {
		t.Fatalf("RenderResponse: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want default 200", resp.StatusCode)
	}
}

func TestRenderResponseInvalidJSON(t *testing.T) {
	e := New()
	if _, err := e.RenderResponse("not json", httpmsg.Request{}); err == nil {
		t.Fatal("expected an error for malformed template output")
	}
}

func TestRenderRequestOverridesMethodAndKeepsBodyWhenUnset(t *testing.T) {
	e := New()
	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/x"), Body: []byte("original")}

	out, err := e.RenderRequest(`{"method": "POST", "headers": {"X-Injected": "1"}}`, req)
	if err != nil {
		t.Fatalf("RenderRequest: %v", err)
	}
	if out.Method != "POST" {
		t.Errorf("Method = %q, want POST", out.Method)
	}
	if string(out.Body) != "original" {
		t.Errorf("Body = %q, want original body preserved", out.Body)
	}
	if out.Header.Get("X-Injected") != "1" {
		t.Errorf("X-Injected header missing")
	}
}

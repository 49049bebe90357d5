// Package template is the minimal default TemplateRenderer the dispatch
// core uses for ResponseTemplate/ForwardTemplate actions. Full template
// engines (Velocity/JavaScript/etc.) are out of spec.md's explicit
// scope, treated as an external collaborator; this provides just enough
// of one so the module is runnable standalone. Grounded on the *shape*
// (a regex-driven {{expr}} substitution engine, not its full feature
// set) of _examples/getmockd-mockd/pkg/template/engine.go.
package template

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

var exprPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Engine renders {{expr}} placeholders against a request. An Engine is
// stateless and safe for concurrent use.
type Engine struct{}

// New creates a template Engine.
func New() *Engine {
	return &Engine{}
}

// Process evaluates every {{expr}} placeholder in tmpl against req.
func (e *Engine) Process(tmpl string, req httpmsg.Request) string {
	return exprPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		inner := exprPattern.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		return e.evaluate(strings.TrimSpace(inner[1]), req)
	})
}

func (e *Engine) evaluate(expr string, req httpmsg.Request) string {
	switch {
	case expr == "uuid":
		return uuid.New().String()
	case expr == "request.method":
		return req.Method
	case expr == "request.path":
		if req.URI != nil {
			return req.URI.Path
		}
		return ""
	case expr == "request.body":
		return string(req.Body)
	case strings.HasPrefix(expr, "request.header."):
		name := strings.TrimPrefix(expr, "request.header.")
		return req.Header.Get(name)
	case strings.HasPrefix(expr, "request.query."):
		name := strings.TrimPrefix(expr, "request.query.")
		if req.URI != nil {
			return req.URI.Query().Get(name)
		}
		return ""
	default:
		return ""
	}
}

// RenderResponse renders tmpl (a JSON document describing an
// httpmsg.Response, with {{expr}} placeholders in its string fields)
// against req. Satisfies pkg/dispatch's TemplateRenderer contract for
// the Response-producing side.
func (e *Engine) RenderResponse(tmpl string, req httpmsg.Request) (httpmsg.Response, error) {
	rendered := e.Process(tmpl, req)

	var doc struct {
		StatusCode int               `json:"statusCode"`
		Headers    map[string]string `json:"headers"`
		Body       string            `json:"body"`
	}
	if err := json.Unmarshal([]byte(rendered), &doc); err != nil {
		return httpmsg.Response{}, fmt.Errorf("template: invalid response template: %w", err)
	}

	resp := httpmsg.Response{StatusCode: doc.StatusCode, Body: []byte(doc.Body)}
	for k, v := range doc.Headers {
		resp = resp.WithHeader(k, v)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = 200
	}
	return resp, nil
}

// RenderRequest renders tmpl against req to produce an outbound
// request. Satisfies pkg/dispatch's TemplateRenderer contract for the
// Forward-producing side.
func (e *Engine) RenderRequest(tmpl string, req httpmsg.Request) (httpmsg.Request, error) {
	rendered := e.Process(tmpl, req)

	var doc struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}
	if err := json.Unmarshal([]byte(rendered), &doc); err != nil {
		return httpmsg.Request{}, fmt.Errorf("template: invalid request template: %w", err)
	}

	out := req.Clone()
	if doc.Method != "" {
		out.Method = doc.Method
	}
	if doc.URL != "" {
		u, err := url.Parse(doc.URL)
		if err != nil {
			return httpmsg.Request{}, fmt.Errorf("template: invalid request url: %w", err)
		}
		out.URI = u
	}
	if doc.Body != "" {
		out.Body = []byte(doc.Body)
	}
	for k, v := range doc.Headers {
		out = out.WithHeader(k, v)
	}
	return out, nil
}

package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// applyRequestOverride applies override's field overrides to req, producing
// a new Request. A FieldOverride.Path of the form "$.headers.Name" sets a
// header; any other path is evaluated against the JSON-decoded body via
// ohler55/ojg's JSON-path Set, letting an override target a nested field
// (e.g. "$.user.id") rather than only whole-message replacement
// (SPEC_FULL.md §4.3, ForwardReplaceExecutor).
func applyRequestOverride(req httpmsg.Request, override action.RequestOverride) (httpmsg.Request, error) {
	out := req.Clone()

	var bodyDoc interface{}
	bodyDecoded := false

	for _, f := range override.Fields {
		if headerName, ok := headerOverridePath(f.Path); ok {
			out = out.WithHeader(headerName, fmt.Sprintf("%v", f.Value))
			continue
		}

		if !bodyDecoded {
			if len(out.Body) > 0 {
				if err := json.Unmarshal(out.Body, &bodyDoc); err != nil {
					return httpmsg.Request{}, fmt.Errorf("dispatch: request override: body is not JSON: %w", err)
				}
			}
			bodyDecoded = true
		}

		if err := setJSONPath(&bodyDoc, f.Path, f.Value); err != nil {
			return httpmsg.Request{}, fmt.Errorf("dispatch: request override: %w", err)
		}
	}

	if bodyDecoded {
		encoded, err := json.Marshal(bodyDoc)
		if err != nil {
			return httpmsg.Request{}, fmt.Errorf("dispatch: request override: re-encode body: %w", err)
		}
		out.Body = encoded
	}

	return out, nil
}

// applyResponseOverride is applyRequestOverride's mirror for the
// response side of ForwardReplace.
func applyResponseOverride(resp httpmsg.Response, override action.ResponseOverride) (httpmsg.Response, error) {
	out := resp.Clone()

	var bodyDoc interface{}
	bodyDecoded := false

	for _, f := range override.Fields {
		if headerName, ok := headerOverridePath(f.Path); ok {
			out = out.WithHeader(headerName, fmt.Sprintf("%v", f.Value))
			continue
		}

		if !bodyDecoded {
			if len(out.Body) > 0 {
				if err := json.Unmarshal(out.Body, &bodyDoc); err != nil {
					return httpmsg.Response{}, fmt.Errorf("dispatch: response override: body is not JSON: %w", err)
				}
			}
			bodyDecoded = true
		}

		if err := setJSONPath(&bodyDoc, f.Path, f.Value); err != nil {
			return httpmsg.Response{}, fmt.Errorf("dispatch: response override: %w", err)
		}
	}

	if bodyDecoded {
		encoded, err := json.Marshal(bodyDoc)
		if err != nil {
			return httpmsg.Response{}, fmt.Errorf("dispatch: response override: re-encode body: %w", err)
		}
		out.Body = encoded
	}

	return out, nil
}

// headerOverridePath reports whether path names a header ("$.headers.X"
// or "headers.X"), returning the header name.
func headerOverridePath(path string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "$.")
	if !strings.HasPrefix(trimmed, "headers.") {
		return "", false
	}
	return strings.TrimPrefix(trimmed, "headers."), true
}

func setJSONPath(doc *interface{}, path string, value interface{}) error {
	expr, err := jp.ParseString(path)
	if err != nil {
		return fmt.Errorf("parse path %q: %w", path, err)
	}
	if *doc == nil {
		*doc = map[string]interface{}{}
	}
	if err := expr.Set(*doc, value); err != nil {
		return fmt.Errorf("set path %q: %w", path, err)
	}
	return nil
}

package expectation

import (
	"encoding/json"
	"fmt"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// Document is the on-disk JSON shape of one Expectation, mirroring the
// structural envelope pkg/config.ExpectationValidator checks loaded
// documents against. It exists because action.Action is a closed tagged
// union with no exported constructors outside pkg/action: something has
// to bridge the flat, kind-tagged JSON a CLI or config file deals in
// back into the concrete per-kind struct the dispatch core consumes.
type Document struct {
	ID      string     `json:"id"`
	Matcher MatcherDoc `json:"matcher"`
	Action  ActionDoc  `json:"action"`
}

// MatcherDoc is Matcher's JSON form.
type MatcherDoc struct {
	Method      string            `json:"method,omitempty"`
	PathExact   string            `json:"pathExact,omitempty"`
	PathPrefix  string            `json:"pathPrefix,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
}

// FieldOverrideDoc is action.FieldOverride's JSON form.
type FieldOverrideDoc struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// ActionDoc is the flat, kind-tagged JSON form every one of the ten
// action.Action variants round-trips through. Only the fields relevant
// to Kind are populated; the rest are left zero.
type ActionDoc struct {
	Kind string `json:"kind"`

	// Response / ResponseTemplate / Forward / ForwardTemplate /
	// ForwardReplace / Error
	DelayMS int `json:"delayMs,omitempty"`

	// Response
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`

	// ResponseTemplate / ForwardTemplate
	Template string `json:"template,omitempty"`

	// ResponseClassCallback / ForwardClassCallback
	ClassName string `json:"className,omitempty"`

	// ResponseObjectCallback / ForwardObjectCallback
	CallbackID string `json:"callbackId,omitempty"`

	// Forward
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
	Scheme string `json:"scheme,omitempty"`

	// ForwardReplace
	RequestOverride  []FieldOverrideDoc `json:"requestOverride,omitempty"`
	ResponseOverride []FieldOverrideDoc `json:"responseOverride,omitempty"`

	// Error
	Behavior string `json:"behavior,omitempty"`
}

func delayFromMS(ms int) action.Delay {
	if ms == 0 {
		return action.Delay{}
	}
	return action.Delay{Unit: action.Milliseconds, Value: ms}
}

func delayToMS(d action.Delay) int {
	return int(d.Duration().Milliseconds())
}

func fieldOverridesFromDoc(docs []FieldOverrideDoc) []action.FieldOverride {
	if len(docs) == 0 {
		return nil
	}
	out := make([]action.FieldOverride, len(docs))
	for i, d := range docs {
		out[i] = action.FieldOverride{Path: d.Path, Value: d.Value}
	}
	return out
}

func fieldOverridesToDoc(fields []action.FieldOverride) []FieldOverrideDoc {
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldOverrideDoc, len(fields))
	for i, f := range fields {
		out[i] = FieldOverrideDoc{Path: f.Path, Value: f.Value}
	}
	return out
}

func headerMapToHTTPHeader(m map[string]string) httpmsg.Response {
	resp := httpmsg.Response{}
	for name, value := range m {
		resp = resp.WithHeader(name, value)
	}
	return resp
}

// ToExpectation decodes doc into an Expectation with a concrete
// action.Action, or an error naming the unknown/malformed kind.
func (doc Document) ToExpectation() (Expectation, error) {
	m := Matcher{
		Method:      doc.Matcher.Method,
		PathExact:   doc.Matcher.PathExact,
		PathPrefix:  doc.Matcher.PathPrefix,
		Headers:     doc.Matcher.Headers,
		QueryParams: doc.Matcher.QueryParams,
	}

	a := doc.Action
	var act action.Action

	switch a.Kind {
	case string(action.KindResponse):
		resp := headerMapToHTTPHeader(a.Headers)
		resp.StatusCode = a.StatusCode
		resp.Body = []byte(a.Body)
		act = action.Response{HTTPResponse: resp, Delay: delayFromMS(a.DelayMS)}
	case string(action.KindResponseTemplate):
		act = action.ResponseTemplate{Template: a.Template, Delay: delayFromMS(a.DelayMS)}
	case string(action.KindResponseClassCallback):
		act = action.ResponseClassCallback{ClassName: a.ClassName}
	case string(action.KindResponseObjectCallback):
		act = action.ResponseObjectCallback{CallbackID: a.CallbackID}
	case string(action.KindForward):
		act = action.Forward{Host: a.Host, Port: a.Port, Scheme: a.Scheme, Delay: delayFromMS(a.DelayMS)}
	case string(action.KindForwardTemplate):
		act = action.ForwardTemplate{Template: a.Template, Delay: delayFromMS(a.DelayMS)}
	case string(action.KindForwardClassCallback):
		act = action.ForwardClassCallback{ClassName: a.ClassName}
	case string(action.KindForwardObjectCallback):
		act = action.ForwardObjectCallback{CallbackID: a.CallbackID}
	case string(action.KindForwardReplace):
		act = action.ForwardReplace{
			RequestOverride:  action.RequestOverride{Fields: fieldOverridesFromDoc(a.RequestOverride)},
			ResponseOverride: action.ResponseOverride{Fields: fieldOverridesFromDoc(a.ResponseOverride)},
			Delay:            delayFromMS(a.DelayMS),
		}
	case string(action.KindError):
		act = action.Error{Behavior: action.ErrorBehavior(a.Behavior), Delay: delayFromMS(a.DelayMS)}
	default:
		return Expectation{}, fmt.Errorf("expectation: unknown action kind %q", a.Kind)
	}

	return Expectation{ID: doc.ID, Matcher: m, Action: act}, nil
}

// FromExpectation is ToExpectation's inverse, used when the CLI writes
// an in-memory Expectation back out to the expectations file.
func FromExpectation(exp Expectation) Document {
	doc := Document{
		ID: exp.ID,
		Matcher: MatcherDoc{
			Method:      exp.Matcher.Method,
			PathExact:   exp.Matcher.PathExact,
			PathPrefix:  exp.Matcher.PathPrefix,
			Headers:     exp.Matcher.Headers,
			QueryParams: exp.Matcher.QueryParams,
		},
	}

	switch a := exp.Action.(type) {
	case action.Response:
		headers := map[string]string{}
		for name := range a.HTTPResponse.Header {
			headers[name] = a.HTTPResponse.Header.Get(name)
		}
		doc.Action = ActionDoc{
			Kind:       string(action.KindResponse),
			StatusCode: a.HTTPResponse.StatusCode,
			Headers:    headers,
			Body:       string(a.HTTPResponse.Body),
			DelayMS:    delayToMS(a.Delay),
		}
	case action.ResponseTemplate:
		doc.Action = ActionDoc{Kind: string(action.KindResponseTemplate), Template: a.Template, DelayMS: delayToMS(a.Delay)}
	case action.ResponseClassCallback:
		doc.Action = ActionDoc{Kind: string(action.KindResponseClassCallback), ClassName: a.ClassName}
	case action.ResponseObjectCallback:
		doc.Action = ActionDoc{Kind: string(action.KindResponseObjectCallback), CallbackID: a.CallbackID}
	case action.Forward:
		doc.Action = ActionDoc{Kind: string(action.KindForward), Host: a.Host, Port: a.Port, Scheme: a.Scheme, DelayMS: delayToMS(a.Delay)}
	case action.ForwardTemplate:
		doc.Action = ActionDoc{Kind: string(action.KindForwardTemplate), Template: a.Template, DelayMS: delayToMS(a.Delay)}
	case action.ForwardClassCallback:
		doc.Action = ActionDoc{Kind: string(action.KindForwardClassCallback), ClassName: a.ClassName}
	case action.ForwardObjectCallback:
		doc.Action = ActionDoc{Kind: string(action.KindForwardObjectCallback), CallbackID: a.CallbackID}
	case action.ForwardReplace:
		doc.Action = ActionDoc{
			Kind:             string(action.KindForwardReplace),
			RequestOverride:  fieldOverridesToDoc(a.RequestOverride.Fields),
			ResponseOverride: fieldOverridesToDoc(a.ResponseOverride.Fields),
			DelayMS:          delayToMS(a.Delay),
		}
	case action.Error:
		doc.Action = ActionDoc{Kind: string(action.KindError), Behavior: string(a.Behavior), DelayMS: delayToMS(a.Delay)}
	}

	return doc
}

// DecodeDocuments parses raw as a JSON array of Documents and converts
// each to an Expectation.
func DecodeDocuments(raw []byte) ([]Expectation, error) {
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("expectation: decode documents: %w", err)
	}

	out := make([]Expectation, 0, len(docs))
	for _, doc := range docs {
		exp, err := doc.ToExpectation()
		if err != nil {
			return nil, fmt.Errorf("expectation %q: %w", doc.ID, err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// EncodeDocuments is DecodeDocuments's inverse, used to persist the
// in-memory expectation list back to the expectations file.
func EncodeDocuments(expectations []Expectation) ([]byte, error) {
	docs := make([]Document, len(expectations))
	for i, exp := range expectations {
		docs[i] = FromExpectation(exp)
	}
	return json.MarshalIndent(docs, "", "  ")
}

// Package audit provides the append-only audit log for the dispatch core.
// Every matched, forwarded, or unmatched request produces one or two
// entries here; the dispatch package decides which, per request.
package audit

import (
	"net/http"
	"time"
)

// Kind distinguishes the three entry shapes named by the dispatch
// invariants: a bare request record, a request paired with its eventual
// response, or the record of an expectation being selected to act.
type Kind string

const (
	KindRequestOnly      Kind = "RequestOnly"
	KindRequestResponse  Kind = "RequestResponse"
	KindExpectationMatch Kind = "ExpectationMatch"
)

// Event constants are the log-message kinds the dispatcher emits.
const (
	EventExpectationResponse   = "EXPECTATION_RESPONSE"
	EventExpectationNotMatched = "EXPECTATION_NOT_MATCHED"
	EventForwardedRequest      = "FORWARDED_REQUEST"
)

// Entry represents a single audit log record.
type Entry struct {
	// Sequence is assigned by the Logger implementation at append time.
	Sequence int64 `json:"sequence"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// TraceID correlates the entries belonging to one request.
	TraceID string `json:"traceId"`

	// Kind is one of KindRequestOnly, KindRequestResponse, KindExpectationMatch.
	Kind Kind `json:"kind"`

	// Event is the log-message kind, e.g. EventExpectationResponse.
	Event string `json:"event"`

	Request  *RequestInfo   `json:"request,omitempty"`
	Response *ResponseInfo  `json:"response,omitempty"`
	Mock     *MockInfo      `json:"mock,omitempty"`
	Client   *ClientInfo    `json:"client,omitempty"`
	Metadata *EntryMetadata `json:"metadata,omitempty"`

	// CurlCommand is a curl rendering of the original incoming request,
	// attached to FORWARDED_REQUEST entries for diagnostics (spec.md S5).
	CurlCommand string `json:"curlCommand,omitempty"`
}

// RequestInfo captures details about an incoming HTTP request.
type RequestInfo struct {
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Query       string      `json:"query,omitempty"`
	Headers     http.Header `json:"headers,omitempty"`
	BodySize    int64       `json:"bodySize,omitempty"`
	BodyPreview string      `json:"bodyPreview,omitempty"`
	ContentType string      `json:"contentType,omitempty"`
}

// ResponseInfo captures details about an outgoing HTTP response.
type ResponseInfo struct {
	StatusCode  int         `json:"statusCode"`
	Headers     http.Header `json:"headers,omitempty"`
	BodySize    int64       `json:"bodySize,omitempty"`
	BodyPreview string      `json:"bodyPreview,omitempty"`
	ContentType string      `json:"contentType,omitempty"`
	DurationMs  int64       `json:"durationMs,omitempty"`
}

// MockInfo captures details about the matched expectation.
type MockInfo struct {
	ID         string `json:"id"`
	ActionKind string `json:"actionKind,omitempty"`
	MatchScore int    `json:"matchScore,omitempty"`
}

// ClientInfo captures details about the client making the request.
type ClientInfo struct {
	RemoteAddr string `json:"remoteAddr"`
	UserAgent  string `json:"userAgent,omitempty"`
}

// EntryMetadata contains additional contextual information for an entry.
type EntryMetadata struct {
	Error    *ErrorInfo `json:"error,omitempty"`
	Duration int64      `json:"duration,omitempty"`
}

// ErrorInfo captures details about an error that occurred while
// processing an action.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// New creates a new Entry with the current timestamp.
func New(kind Kind, event string, traceID string) *Entry {
	return &Entry{
		Timestamp: time.Now(),
		TraceID:   traceID,
		Kind:      kind,
		Event:     event,
	}
}

func (e *Entry) WithRequest(req *RequestInfo) *Entry {
	e.Request = req
	return e
}

func (e *Entry) WithResponse(resp *ResponseInfo) *Entry {
	e.Response = resp
	return e
}

func (e *Entry) WithMock(mock *MockInfo) *Entry {
	e.Mock = mock
	return e
}

func (e *Entry) WithClient(client *ClientInfo) *Entry {
	e.Client = client
	return e
}

func (e *Entry) WithMetadata(meta *EntryMetadata) *Entry {
	e.Metadata = meta
	return e
}

func (e *Entry) WithCurl(cmd string) *Entry {
	e.CurlCommand = cmd
	return e
}

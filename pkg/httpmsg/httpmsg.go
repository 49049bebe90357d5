// Package httpmsg holds the dispatch core's request/response value types.
// Both are immutable after construction: the header helpers (WithHeader,
// and WithoutHeader on Request) return a cloned value rather than
// mutating the receiver.
package httpmsg

import (
	"net/http"
	"net/url"
)

// Request is the dispatch core's representation of an inbound or
// outbound HTTP message. Header is a multi-map with case-insensitive
// names and order-preserving duplicates, satisfied by http.Header as-is.
type Request struct {
	Method     string
	URI        *url.URL
	Header     http.Header
	Body       []byte
	ContentType string
	RemoteAddr string
}

// WithHeader returns a clone of r with name set to value, leaving r
// itself unchanged.
func (r Request) WithHeader(name, value string) Request {
	clone := r
	clone.Header = r.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	clone.Header.Set(name, value)
	return clone
}

// WithoutHeader returns a clone of r with name removed.
func (r Request) WithoutHeader(name string) Request {
	clone := r
	clone.Header = r.Header.Clone()
	if clone.Header != nil {
		clone.Header.Del(name)
	}
	return clone
}

// Clone returns a deep-enough copy of r: header map and body slice are
// copied so neither shares backing storage with the original.
func (r Request) Clone() Request {
	clone := r
	clone.Header = r.Header.Clone()
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return clone
}

// Response is the dispatch core's representation of an HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// WithHeader returns a clone of resp with name set to value.
func (resp Response) WithHeader(name, value string) Response {
	clone := resp
	clone.Header = resp.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	clone.Header.Set(name, value)
	return clone
}

// Clone returns a deep-enough copy of resp.
func (resp Response) Clone() Response {
	clone := resp
	clone.Header = resp.Header.Clone()
	if resp.Body != nil {
		clone.Body = append([]byte(nil), resp.Body...)
	}
	return clone
}

// NotFound builds the canned 404 response the dispatcher writes on
// returnNotFound (spec.md §4.2).
func NotFound() Response {
	return Response{
		StatusCode: http.StatusNotFound,
		Header:     make(http.Header),
		Body:       []byte("Not Found"),
	}
}

// Package dispatch is the Dispatcher: the top-level routine that
// matches a request against the expectation store, branches on the
// matched action's kind, schedules its execution, writes the response,
// and logs to the audit trail (spec.md §4.2). It also implements the
// transparent-proxy fallback for unmatched requests.
package dispatch

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// ResponseWriter is the front-end-supplied sink a Dispatcher writes
// through (spec.md §6). ObjectCallback executors are handed this
// directly, since the response's origin may be another peer with its
// own asynchronous completion channel (spec.md §4.3).
//
// DropConnection and WriteMalformedBytes back the Error action kind
// (spec.md §3): they act on the same underlying connection WriteResponse
// would have written to, so they live on ResponseWriter itself rather
// than on a separately-injected collaborator — the raw connection is a
// per-request resource, not a Dispatcher-wide one.
type ResponseWriter interface {
	WriteResponse(req httpmsg.Request, resp httpmsg.Response, suppressCORS bool)
	WriteStatus(req httpmsg.Request, statusCode int)
	DropConnection() error
	WriteMalformedBytes() error
}

// HTTPResponseWriter adapts a net/http.ResponseWriter to the dispatch
// core's ResponseWriter contract, grounded on
// _examples/getmockd-mockd/pkg/engine/handler.go's writeResponse (status
// write, header write, content-type handling) and the CORS-suppression
// idiom from _examples/getmockd-mockd/pkg/engine/cors.go.
type HTTPResponseWriter struct {
	w                         http.ResponseWriter
	enableCORSForAPI          bool
	enableCORSForAllResponses bool
}

// NewHTTPResponseWriter wraps w. The two CORS flags mirror
// Config.EnableCORSForAPI / EnableCORSForAllResponses.
func NewHTTPResponseWriter(w http.ResponseWriter, enableCORSForAPI, enableCORSForAllResponses bool) *HTTPResponseWriter {
	return &HTTPResponseWriter{w: w, enableCORSForAPI: enableCORSForAPI, enableCORSForAllResponses: enableCORSForAllResponses}
}

// WriteResponse writes resp's status, headers, and body to the
// underlying http.ResponseWriter. CORS headers are added only when
// enableCORSForAllResponses is set and suppressCORS is false;
// enableCORSForAPI alone adds none here.
func (h *HTTPResponseWriter) WriteResponse(req httpmsg.Request, resp httpmsg.Response, suppressCORS bool) {
	header := h.w.Header()
	for name, values := range resp.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}

	if !suppressCORS && h.enableCORSForAllResponses {
		applyCORSHeaders(header, req)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	h.w.WriteHeader(status)
	if len(resp.Body) > 0 {
		h.w.Write(resp.Body)
	}
}

// WriteStatus writes a bare status code with no body, used by the proxy
// failure path and by executors that report an error status.
func (h *HTTPResponseWriter) WriteStatus(req httpmsg.Request, statusCode int) {
	h.w.WriteHeader(statusCode)
}

// DropConnection hijacks the underlying connection and closes it
// without writing a response, grounded on
// _examples/getmockd-mockd/pkg/chaos/middleware.go's FaultAbort handling
// (http.Hijacker then conn.Close()).
func (h *HTTPResponseWriter) DropConnection() error {
	conn, err := h.hijack()
	if err != nil {
		return err
	}
	return conn.Close()
}

// WriteMalformedBytes hijacks the connection and writes a truncated,
// invalid HTTP response directly to the socket.
func (h *HTTPResponseWriter) WriteMalformedBytes() error {
	conn, err := h.hijack()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Leng"))
	return err
}

func (h *HTTPResponseWriter) hijack() (net.Conn, error) {
	hijacker, ok := h.w.(http.Hijacker)
	if !ok {
		return nil, fmt.Errorf("dispatch: response writer does not support hijacking")
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return nil, fmt.Errorf("dispatch: hijack: %w", err)
	}
	return conn, nil
}

func applyCORSHeaders(header http.Header, req httpmsg.Request) {
	origin := req.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "*")
}

// isCORSPreflight reports whether req is an OPTIONS preflight request
// (spec.md §4.2 step 4): method OPTIONS with an
// Access-Control-Request-Method header present.
func isCORSPreflight(req httpmsg.Request) bool {
	return strings.EqualFold(req.Method, http.MethodOptions) && req.Header.Get("Access-Control-Request-Method") != ""
}

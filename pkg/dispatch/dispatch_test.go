package dispatch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/audit"
	"github.com/dispatchd/dispatchd/pkg/expectation"
	"github.com/dispatchd/dispatchd/pkg/httpclient"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
)

// recordingWriter captures exactly what a ResponseWriter implementation
// would have sent, so assertions can inspect it without an httptest
// round trip.
type recordingWriter struct {
	resp           *httpmsg.Response
	statusOnly     *int
	dropped        bool
	wroteMalformed bool
}

func (w *recordingWriter) WriteResponse(_ httpmsg.Request, resp httpmsg.Response, _ bool) {
	r := resp
	w.resp = &r
}

func (w *recordingWriter) WriteStatus(_ httpmsg.Request, statusCode int) {
	w.statusOnly = &statusCode
}

func (w *recordingWriter) DropConnection() error {
	w.dropped = true
	return nil
}

func (w *recordingWriter) WriteMalformedBytes() error {
	w.wroteMalformed = true
	return nil
}

// memoryAuditLog is an audit.Logger that keeps every entry in memory
// for assertion, rather than writing to a file or stdout like the
// teacher's loggers do.
type memoryAuditLog struct {
	entries []audit.Entry
}

func (l *memoryAuditLog) Append(entry audit.Entry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryAuditLog) Close() error { return nil }

func (l *memoryAuditLog) countKind(kind audit.Kind) int {
	n := 0
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newDispatcher(t *testing.T, store expectation.Store, auditLog audit.Logger, client HTTPSender, cfg Config) *Dispatcher {
	t.Helper()
	deps := Dependencies{
		HTTPClient:           client,
		CallbackAwaitTimeout: time.Second,
	}
	return New(store, scheduler.New(0), auditLog, deps, cfg)
}

// TestS1DirectResponseWithDelay grounds spec.md S1: a matched Response
// action with a 50ms delay, run synchronously, must block the caller
// for at least the delay and log exactly one ExpectationMatch entry.
func TestS1DirectResponseWithDelay(t *testing.T) {
	exp := expectation.Expectation{
		ID:      "s1",
		Matcher: expectation.Matcher{Method: "GET", PathExact: "/a"},
		Action: action.Response{
			HTTPResponse: httpmsg.Response{StatusCode: 200, Body: []byte("ok")},
			Delay:        action.Delay{Unit: action.Milliseconds, Value: 50},
		},
	}
	store := expectation.NewMemoryStore([]expectation.Expectation{exp})
	auditLog := &memoryAuditLog{}
	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{})

	writer := &recordingWriter{}
	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/a")}

	start := time.Now()
	d.ProcessAction(context.Background(), ProcessInput{
		Request:        req,
		ResponseWriter: writer,
		Synchronous:    true,
	})
	elapsed := time.Since(start)

	require.NotNil(t, writer.resp)
	assert.Equal(t, 200, writer.resp.StatusCode)
	assert.Equal(t, "ok", string(writer.resp.Body))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Equal(t, 1, auditLog.countKind(audit.KindExpectationMatch))
}

// TestS2LoopGuard grounds spec.md S2: a request that already carries the
// loop sentinel header is a quiet 404 with the sentinel echoed back, and
// produces no audit entry at all.
func TestS2LoopGuard(t *testing.T) {
	store := expectation.NewMemoryStore(nil)
	auditLog := &memoryAuditLog{}
	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{})

	writer := &recordingWriter{}
	req := httpmsg.Request{
		Method: "GET",
		URI:    mustURL(t, "http://h/x"),
		Header: http.Header{LoopSentinelHeader: []string{LoopSentinelValue}},
	}

	d.ProcessAction(context.Background(), ProcessInput{
		Request:        req,
		ResponseWriter: writer,
		Synchronous:    true,
	})

	require.NotNil(t, writer.resp)
	assert.Equal(t, http.StatusNotFound, writer.resp.StatusCode)
	assert.Equal(t, LoopSentinelValue, writer.resp.Header.Get(LoopSentinelHeader))
	assert.Empty(t, auditLog.entries)
}

// TestS3CORSPreflightUnmatched grounds spec.md S3: an unmatched OPTIONS
// preflight under enableCORSForAllResponses is answered 200 with no
// RequestOnly entry logged.
func TestS3CORSPreflightUnmatched(t *testing.T) {
	store := expectation.NewMemoryStore(nil)
	auditLog := &memoryAuditLog{}
	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{EnableCORSForAllResponses: true})

	writer := &recordingWriter{}
	req := httpmsg.Request{
		Method: http.MethodOptions,
		URI:    mustURL(t, "http://h/anything"),
		Header: http.Header{"Access-Control-Request-Method": []string{"POST"}},
	}

	d.ProcessAction(context.Background(), ProcessInput{
		Request:        req,
		ResponseWriter: writer,
		Synchronous:    true,
	})

	require.NotNil(t, writer.resp)
	assert.Equal(t, http.StatusOK, writer.resp.StatusCode)
	assert.Zero(t, auditLog.countKind(audit.KindRequestOnly))
}

// TestS4ExploratoryProxyConnectionRefused grounds spec.md S4: an
// unmatched request whose Host is neither a local address nor an
// explicit proxy target is an exploratory probe; a refused connection
// becomes a quiet 404 within the exploratory timeout, with exactly one
// RequestOnly entry logged and the loop sentinel attached to the
// outbound attempt.
func TestS4ExploratoryProxyConnectionRefused(t *testing.T) {
	// A closed listener on loopback guarantees ECONNREFUSED.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	store := expectation.NewMemoryStore(nil)
	auditLog := &memoryAuditLog{}
	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{})

	writer := &recordingWriter{}
	req := httpmsg.Request{
		Method: "GET",
		URI:    mustURL(t, "http://unreachable.invalid:1/"),
		Header: http.Header{"Host": []string{"unreachable.invalid:1"}},
	}

	start := time.Now()
	d.ProcessAction(context.Background(), ProcessInput{
		Request:          req,
		ResponseWriter:   writer,
		RemoteSocket:     addr,
		LocalAddresses:   emptyLocalAddresses{},
		ProxyThisRequest: false,
		Synchronous:      true,
	})
	elapsed := time.Since(start)

	require.NotNil(t, writer.statusOnly)
	assert.Equal(t, http.StatusNotFound, *writer.statusOnly)
	assert.LessOrEqual(t, elapsed, 1500*time.Millisecond)
	assert.Equal(t, 1, auditLog.countKind(audit.KindRequestOnly))
}

type emptyLocalAddresses struct{}

func (emptyLocalAddresses) Contains(string) bool { return false }

// TestS5ExplicitForwardSuccess grounds spec.md S5: a matched Forward
// action relays to the origin, the client sees the origin's response
// verbatim, and the one audit entry logged is a RequestResponse whose
// curl rendering describes the original incoming request.
func TestS5ExplicitForwardSuccess(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
		w.Write([]byte("created"))
	}))
	defer origin.Close()
	originURL := mustURL(t, origin.URL)
	originPort, err := strconv.Atoi(originURL.Port())
	require.NoError(t, err)

	exp := expectation.Expectation{
		ID:      "s5",
		Matcher: expectation.Matcher{Method: "GET", PathExact: "/forward"},
		Action: action.Forward{
			Host: originURL.Hostname(),
			Port: originPort,
		},
	}
	store := expectation.NewMemoryStore([]expectation.Expectation{exp})
	auditLog := &memoryAuditLog{}
	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{})

	writer := &recordingWriter{}
	req := httpmsg.Request{
		Method: "GET",
		URI:    mustURL(t, "http://h/forward"),
		Header: http.Header{"X-Original": []string{"yes"}},
	}

	d.ProcessAction(context.Background(), ProcessInput{
		Request:        req,
		ResponseWriter: writer,
		Synchronous:    true,
	})

	require.NotNil(t, writer.resp)
	assert.Equal(t, 201, writer.resp.StatusCode)
	assert.Equal(t, "created", string(writer.resp.Body))
	require.Equal(t, 1, auditLog.countKind(audit.KindRequestResponse))

	var logged audit.Entry
	for _, e := range auditLog.entries {
		if e.Kind == audit.KindRequestResponse {
			logged = e
		}
	}
	assert.Contains(t, logged.CurlCommand, "http://h/forward")
	assert.Contains(t, logged.CurlCommand, "X-Original: yes")
}

// TestErrorActionDropsConnectionThroughWriter grounds spec.md §3's Error
// action kind: DropConnection must reach the per-request ResponseWriter
// rather than a Dispatcher-wide collaborator, since only the writer
// knows which connection to hijack.
func TestErrorActionDropsConnectionThroughWriter(t *testing.T) {
	exp := expectation.Expectation{
		ID:      "err1",
		Matcher: expectation.Matcher{Method: "GET", PathExact: "/drop"},
		Action:  action.Error{Behavior: action.DropConnection},
	}
	store := expectation.NewMemoryStore([]expectation.Expectation{exp})
	auditLog := &memoryAuditLog{}
	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{})

	writer := &recordingWriter{}
	req := httpmsg.Request{Method: "GET", URI: mustURL(t, "http://h/drop")}

	d.ProcessAction(context.Background(), ProcessInput{
		Request:        req,
		ResponseWriter: writer,
		Synchronous:    true,
	})

	assert.True(t, writer.dropped)
	assert.Nil(t, writer.resp)
	assert.Nil(t, writer.statusOnly)
	assert.Len(t, auditLog.entries, 1)
}

// TestS6ForwardWithResponseOverride grounds spec.md S6: a ForwardReplace
// action whose ResponseOverride adds a header must apply that override
// to the origin's response before it reaches the client.
func TestS6ForwardWithResponseOverride(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer origin.Close()

	exp := expectation.Expectation{
		ID:      "s6",
		Matcher: expectation.Matcher{Method: "GET", PathExact: "/replace"},
		Action: action.ForwardReplace{
			ResponseOverride: action.ResponseOverride{
				Fields: []action.FieldOverride{
					{Path: "$.headers.X-Edited", Value: "1"},
				},
			},
		},
	}
	store := expectation.NewMemoryStore([]expectation.Expectation{exp})
	auditLog := &memoryAuditLog{}

	// ForwardReplace's executor sends through HTTPSender using req.URI
	// verbatim (no host/port override field on the action itself), so
	// the request's own URI must point at the origin.
	req := httpmsg.Request{
		Method: "GET",
		URI:    mustURL(t, origin.URL+"/replace"),
	}

	d := newDispatcher(t, store, auditLog, httpclient.New(nil), Config{})
	writer := &recordingWriter{}

	d.ProcessAction(context.Background(), ProcessInput{
		Request:        req,
		ResponseWriter: writer,
		Synchronous:    true,
	})

	require.NotNil(t, writer.resp)
	assert.Equal(t, 200, writer.resp.StatusCode)
	assert.Equal(t, "1", writer.resp.Header.Get("X-Edited"))
}

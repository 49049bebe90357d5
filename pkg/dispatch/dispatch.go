package dispatch

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/audit"
	"github.com/dispatchd/dispatchd/pkg/curlserializer"
	"github.com/dispatchd/dispatchd/pkg/expectation"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/logging"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
	"github.com/dispatchd/dispatchd/pkg/util"
)

// LoopSentinelHeader is the wire-level loop-detection header (spec.md
// §6): case-insensitive on read (http.Header.Get already folds case),
// exact-case on write.
const LoopSentinelHeader = "X-Forwarded-By"

// LoopSentinelValue is the value that marks a request as the server's
// own exploratory proxy probe.
const LoopSentinelValue = "MockServer"

// LocalAddressChecker reports whether a host is one of the server's own
// configured local addresses (satisfied by pkg/config.LocalAddressSet).
type LocalAddressChecker interface {
	Contains(host string) bool
}

// ProcessInput bundles everything ProcessAction needs for one request
// (SPEC_FULL.md §4.2). RemoteSocket replaces the original's
// ctx.channel().attr(REMOTE_SOCKET) channel-attribute lookup per
// spec.md §9's REDESIGN FLAGS note: passed explicitly rather than read
// off a connection-attribute bag.
type ProcessInput struct {
	Request          httpmsg.Request
	ResponseWriter   ResponseWriter
	RemoteSocket     *net.TCPAddr
	LocalAddresses   LocalAddressChecker
	ProxyThisRequest bool
	Synchronous      bool
}

// Dispatcher is the top-level routine: match -> branch on action kind ->
// schedule -> write response -> log (spec.md §4.2). One Dispatcher is
// shared across every connection; ProcessAction is re-entrant and safe
// to call concurrently.
type Dispatcher struct {
	expectations expectation.Store
	scheduler    *scheduler.Scheduler
	auditLog     audit.Logger
	executors    map[action.Kind]Executor
	httpClient   HTTPSender
	metrics      MetricsRecorder
	logger       *slog.Logger

	enableCORSForAPI          bool
	enableCORSForAllResponses bool
	socketConnectionTimeout   time.Duration
	auditMaxBodyPreviewSize   int
	auditIncludeHeaders       bool
}

// Config bundles the ambient knobs ProcessAction's algorithm consults
// (spec.md §6).
type Config struct {
	EnableCORSForAPI          bool
	EnableCORSForAllResponses bool
	SocketConnectionTimeout   time.Duration

	// AuditMaxBodyPreviewSize bounds request/response body previews
	// attached to audit entries, mirroring audit.Config.MaxBodyPreviewSize
	// (pkg/cli wires the two together). 0 means util.MaxLogBodySize.
	AuditMaxBodyPreviewSize int

	// AuditIncludeHeaders controls whether audit entries carry the
	// request/response header map, mirroring audit.Config.IncludeHeaders.
	AuditIncludeHeaders bool
}

// New builds a Dispatcher.
func New(store expectation.Store, sched *scheduler.Scheduler, auditLog audit.Logger, deps Dependencies, cfg Config) *Dispatcher {
	timeout := cfg.SocketConnectionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metricsRecorder := deps.Metrics
	if metricsRecorder == nil {
		metricsRecorder = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{
		expectations:              store,
		scheduler:                 sched,
		auditLog:                  auditLog,
		executors:                 buildExecutorTable(deps),
		httpClient:                deps.HTTPClient,
		metrics:                   metricsRecorder,
		logger:                    logger,
		enableCORSForAPI:          cfg.EnableCORSForAPI,
		enableCORSForAllResponses: cfg.EnableCORSForAllResponses,
		socketConnectionTimeout:   timeout,
		auditMaxBodyPreviewSize:   cfg.AuditMaxBodyPreviewSize,
		auditIncludeHeaders:       cfg.AuditIncludeHeaders,
	}
}

// log appends an audit entry, discarding the sink error: a failing audit
// backend must never block or fail the request it is describing.
func (d *Dispatcher) log(entry *audit.Entry) {
	_ = d.auditLog.Append(*entry)
}

// ProcessAction implements spec.md §4.2's algorithm steps 1-6.
func (d *Dispatcher) ProcessAction(ctx context.Context, in ProcessInput) {
	req := in.Request
	traceID := uuid.New().String()

	// Step 2: loop guard.
	if strings.EqualFold(req.Header.Get(LoopSentinelHeader), LoopSentinelValue) {
		path := ""
		if req.URI != nil {
			path = req.URI.Path
		}
		d.logger.Debug("exploratory proxy loop detected, short-circuiting", "trace_id", traceID, "path", path)
		d.returnNotFound(req, in.ResponseWriter, true)
		return
	}

	// Step 1: match lookup.
	exp := d.expectations.FirstMatching(req)

	// Step 3: match branch.
	if exp != nil {
		d.dispatchMatched(ctx, traceID, *exp, req, in.ResponseWriter, in.Synchronous)
		return
	}

	// Step 4: CORS preflight branch.
	if (d.enableCORSForAPI || d.enableCORSForAllResponses) && isCORSPreflight(req) {
		in.ResponseWriter.WriteResponse(req, httpmsg.Response{StatusCode: http.StatusOK}, false)
		return
	}

	// Step 5: proxy branch.
	host := req.Header.Get("Host")
	if in.ProxyThisRequest || (host != "" && !in.LocalAddresses.Contains(host)) {
		d.proxyFallback(ctx, traceID, in)
		return
	}

	// Step 6: fallthrough.
	d.returnNotFound(req, in.ResponseWriter, false)
}

// returnNotFound implements spec.md §4.2's returnNotFound: write 404,
// echoing the loop sentinel (and suppressing the audit entry) if the
// incoming request carried it.
func (d *Dispatcher) returnNotFound(req httpmsg.Request, writer ResponseWriter, loopDetected bool) {
	resp := httpmsg.NotFound()
	if loopDetected {
		resp = resp.WithHeader(LoopSentinelHeader, LoopSentinelValue)
		writer.WriteResponse(req, resp, true)
		return
	}

	writer.WriteResponse(req, resp, false)
	d.appendRequestOnly(uuid.New().String(), req, audit.EventExpectationNotMatched)
}

func (d *Dispatcher) dispatchMatched(ctx context.Context, traceID string, exp expectation.Expectation, req httpmsg.Request, writer ResponseWriter, synchronous bool) {
	kind := exp.Action.Kind()
	executor := d.executors[kind]
	delay := actionDelay(exp.Action)

	// spec.md §4.3: every kind logs an ExpectationMatch entry before
	// scheduling except Forward/ForwardTemplate, which log RequestResponse
	// only once the response arrives, and Error, which logs a single
	// error-emitted entry once its side effect has run.
	if kind != action.KindForward && kind != action.KindForwardTemplate && kind != action.KindError {
		d.appendExpectationMatch(traceID, req, exp)
	}

	task := func() {
		start := time.Now()
		result := executor.Produce(ctx, exp.Action, req, writer)
		d.finishMatched(traceID, kind, exp, req, writer, result, synchronous, start)
	}

	switch kind {
	case action.KindResponseClassCallback, action.KindResponseObjectCallback,
		action.KindForwardClassCallback, action.KindForwardObjectCallback:
		d.scheduler.Submit(task, synchronous)
	default:
		d.scheduler.Schedule(ctx, task, delay, synchronous)
	}
}

func (d *Dispatcher) finishMatched(traceID string, kind action.Kind, exp expectation.Expectation, req httpmsg.Request, writer ResponseWriter, result ProduceResult, synchronous bool, start time.Time) {
	if result.SelfHandled {
		outcome := "success"
		if kind == action.KindError {
			d.appendErrorEmitted(traceID, req, exp, result.Err)
		} else if result.Err != nil {
			d.appendActionError(traceID, req, exp, result.Err)
			outcome = "error"
		}
		d.metrics.ObserveAction(string(kind), outcome, time.Since(start))
		return
	}

	if result.Pending != nil {
		onComplete := func(resp httpmsg.Response, err error) {
			if err != nil {
				d.appendActionError(traceID, req, exp, err)
				writer.WriteStatus(req, http.StatusBadGateway)
				d.metrics.ObserveAction(string(kind), "error", time.Since(start))
				return
			}
			writer.WriteResponse(req, resp, false)
			if kind == action.KindForward || kind == action.KindForwardTemplate {
				d.appendRequestResponse(traceID, req, resp, exp)
			}
			d.metrics.ObserveAction(string(kind), "success", time.Since(start))
		}
		scheduler.SubmitOnComplete(d.scheduler, result.Pending, onComplete, synchronous)
		return
	}

	if result.Err != nil {
		d.appendActionError(traceID, req, exp, result.Err)
		writer.WriteStatus(req, http.StatusInternalServerError)
		d.metrics.ObserveAction(string(kind), "error", time.Since(start))
		return
	}

	writer.WriteResponse(req, result.Response, false)
	d.metrics.ObserveAction(string(kind), "success", time.Since(start))
}

func actionDelay(act action.Action) time.Duration {
	switch a := act.(type) {
	case action.Response:
		return a.Delay.Duration()
	case action.ResponseTemplate:
		return a.Delay.Duration()
	case action.Forward:
		return a.Delay.Duration()
	case action.ForwardTemplate:
		return a.Delay.Duration()
	case action.ForwardReplace:
		return a.Delay.Duration()
	case action.Error:
		return a.Delay.Duration()
	default:
		return 0
	}
}

func (d *Dispatcher) appendExpectationMatch(traceID string, req httpmsg.Request, exp expectation.Expectation) {
	entry := audit.New(audit.KindExpectationMatch, audit.EventExpectationResponse, traceID).
		WithRequest(d.requestInfo(req)).
		WithMock(&audit.MockInfo{ID: exp.ID, ActionKind: string(exp.Action.Kind())}).
		WithClient(clientInfo(req))
	d.log(entry)
}

func (d *Dispatcher) appendRequestResponse(traceID string, req httpmsg.Request, resp httpmsg.Response, exp expectation.Expectation) {
	entry := audit.New(audit.KindRequestResponse, audit.EventForwardedRequest, traceID).
		WithRequest(d.requestInfo(req)).
		WithResponse(d.responseInfo(resp)).
		WithMock(&audit.MockInfo{ID: exp.ID, ActionKind: string(exp.Action.Kind())}).
		WithClient(clientInfo(req)).
		WithCurl(curlserializer.Render(req, req.RemoteAddr))
	d.log(entry)
}

func (d *Dispatcher) appendRequestOnly(traceID string, req httpmsg.Request, event string) {
	entry := audit.New(audit.KindRequestOnly, event, traceID).
		WithRequest(d.requestInfo(req)).
		WithClient(clientInfo(req))
	d.log(entry)
}

func (d *Dispatcher) appendErrorEmitted(traceID string, req httpmsg.Request, exp expectation.Expectation, err error) {
	meta := &audit.EntryMetadata{}
	if err != nil {
		meta.Error = &audit.ErrorInfo{Message: err.Error()}
	}
	entry := audit.New(audit.KindExpectationMatch, audit.EventExpectationResponse, traceID).
		WithRequest(d.requestInfo(req)).
		WithMock(&audit.MockInfo{ID: exp.ID, ActionKind: string(exp.Action.Kind())}).
		WithClient(clientInfo(req)).
		WithMetadata(meta)
	d.log(entry)
}

func (d *Dispatcher) appendActionError(traceID string, req httpmsg.Request, exp expectation.Expectation, err error) {
	entry := audit.New(audit.KindRequestOnly, audit.EventExpectationResponse, traceID).
		WithRequest(d.requestInfo(req)).
		WithMock(&audit.MockInfo{ID: exp.ID, ActionKind: string(exp.Action.Kind())}).
		WithClient(clientInfo(req)).
		WithMetadata(&audit.EntryMetadata{Error: &audit.ErrorInfo{Message: err.Error()}})
	d.log(entry)
}

// requestInfo builds a RequestInfo, truncating the body preview to
// auditMaxBodyPreviewSize and omitting headers when auditIncludeHeaders
// is false (audit.Config's MaxBodyPreviewSize / IncludeHeaders knobs).
func (d *Dispatcher) requestInfo(req httpmsg.Request) *audit.RequestInfo {
	path, query := "", ""
	if req.URI != nil {
		path = req.URI.Path
		query = req.URI.RawQuery
	}
	info := &audit.RequestInfo{
		Method:      req.Method,
		Path:        path,
		Query:       query,
		BodySize:    int64(len(req.Body)),
		BodyPreview: util.TruncateBody(string(req.Body), d.auditMaxBodyPreviewSize),
		ContentType: req.ContentType,
	}
	if d.auditIncludeHeaders {
		info.Headers = req.Header
	}
	return info
}

func (d *Dispatcher) responseInfo(resp httpmsg.Response) *audit.ResponseInfo {
	info := &audit.ResponseInfo{
		StatusCode:  resp.StatusCode,
		BodySize:    int64(len(resp.Body)),
		BodyPreview: util.TruncateBody(string(resp.Body), d.auditMaxBodyPreviewSize),
	}
	if d.auditIncludeHeaders {
		info.Headers = resp.Header
	}
	return info
}

func clientInfo(req httpmsg.Request) *audit.ClientInfo {
	return &audit.ClientInfo{RemoteAddr: req.RemoteAddr, UserAgent: req.Header.Get("User-Agent")}
}

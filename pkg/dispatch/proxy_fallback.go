package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dispatchd/dispatchd/pkg/audit"
	"github.com/dispatchd/dispatchd/pkg/curlserializer"
	"github.com/dispatchd/dispatchd/pkg/hopbyhop"
	"github.com/dispatchd/dispatchd/pkg/httpclient"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// ExploratoryProxyTimeout is the hard-coded budget for a best-effort
// forward when the request's Host suggests an external origin but the
// server was not explicitly configured as a proxy (spec.md §6).
const ExploratoryProxyTimeout = 1000 * time.Millisecond

// proxyFallback implements spec.md §4.4: clone through HopByHopFilter,
// tag exploratory attempts with the loop sentinel, resolve the target,
// send, and interpret the outcome.
func (d *Dispatcher) proxyFallback(ctx context.Context, traceID string, in ProcessInput) {
	req := in.Request
	exploratory := !in.ProxyThisRequest

	outbound := hopbyhop.Filter(req)
	if exploratory {
		outbound = outbound.WithHeader(LoopSentinelHeader, LoopSentinelValue)
	}

	timeout := ExploratoryProxyTimeout
	if !exploratory {
		timeout = d.socketConnectionTimeout
	}

	mode := "exploratory"
	if !exploratory {
		mode = "explicit"
	}

	pending := d.httpClient.Send(ctx, outbound, in.RemoteSocket, timeout)
	resp, err := pending.Await()

	if err != nil {
		d.handleProxyFailure(traceID, req, in.ResponseWriter, exploratory, err)
		d.metrics.ObserveProxyFallback(mode, "error")
		return
	}

	if resp.Header.Get(LoopSentinelHeader) == LoopSentinelValue {
		// The origin we "forwarded" to was ourselves: this was never a
		// real external request.
		in.ResponseWriter.WriteResponse(req, httpmsg.NotFound(), false)
		d.appendRequestOnly(traceID, req, audit.EventExpectationNotMatched)
		d.metrics.ObserveProxyFallback(mode, "loop_detected")
		return
	}

	in.ResponseWriter.WriteResponse(req, resp, false)
	entry := audit.New(audit.KindRequestResponse, audit.EventForwardedRequest, traceID).
		WithRequest(d.requestInfo(req)).
		WithResponse(d.responseInfo(resp)).
		WithClient(clientInfo(req)).
		WithCurl(curlserializer.Render(req, req.RemoteAddr))
	d.log(entry)
	d.metrics.ObserveProxyFallback(mode, "success")
}

// handleProxyFailure implements spec.md §4.4 step 6 / §7's propagation
// policy: exploratory connection failures are always a quiet 404;
// explicit-proxy failures are logged and the connection may be closed
// with nothing returned to the client, except SocketCommunicationException
// (modeled here as ErrCommunicationFailure), which is always a 404 in
// either mode.
func (d *Dispatcher) handleProxyFailure(traceID string, req httpmsg.Request, writer ResponseWriter, exploratory bool, err error) {
	if errors.Is(err, httpclient.ErrCommunicationFailure) {
		writer.WriteStatus(req, http.StatusNotFound)
		d.appendRequestOnly(traceID, req, audit.EventExpectationNotMatched)
		return
	}

	if exploratory && (errors.Is(err, httpclient.ErrConnectionRefused) || errors.Is(err, httpclient.ErrConnectionTimeout)) {
		writer.WriteStatus(req, http.StatusNotFound)
		d.appendRequestOnly(traceID, req, audit.EventExpectationNotMatched)
		return
	}

	// Any other failure (every explicit-proxy failure, and exploratory
	// failures other than refused/timed-out connections): log at error
	// level, no response guaranteed to the client (connection-close
	// permitted).
	d.logger.Error("proxy forward failed", "trace_id", traceID, "error", err)
	entry := audit.New(audit.KindRequestOnly, audit.EventExpectationNotMatched, traceID).
		WithRequest(d.requestInfo(req)).
		WithClient(clientInfo(req)).
		WithMetadata(&audit.EntryMetadata{Error: &audit.ErrorInfo{Message: err.Error()}})
	d.log(entry)
}

package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/hopbyhop"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
)

// forwardTarget builds the outbound URI for a Forward action over req.
func forwardTarget(req httpmsg.Request, host string, port int, scheme string) httpmsg.Request {
	out := hopbyhop.Filter(req)

	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port)}
	if req.URI != nil {
		u.Path = req.URI.Path
		u.RawQuery = req.URI.RawQuery
	}
	out.URI = u
	out.Header = out.Header.Clone()
	if out.Header == nil {
		out.Header = make(map[string][]string)
	}
	out.Header.Set("Host", u.Host)
	return out
}

// defaultForwardTimeout bounds the outbound call of every forward-family
// action (Forward, ForwardTemplate, ForwardClassCallback, ForwardReplace).
const defaultForwardTimeout = 30 * time.Second

// forwardExecutor relays the request verbatim (minus hop-by-hop headers)
// to a target origin.
type forwardExecutor struct {
	client HTTPSender
}

func (e *forwardExecutor) Produce(ctx context.Context, act action.Action, req httpmsg.Request, _ ResponseWriter) ProduceResult {
	f := act.(action.Forward)
	outbound := forwardTarget(req, f.Host, f.Port, f.Scheme)
	return ProduceResult{Pending: e.client.Send(ctx, outbound, nil, defaultForwardTimeout)}
}

// forwardTemplateExecutor forwards a request computed by rendering
// Template.
type forwardTemplateExecutor struct {
	renderer TemplateRenderer
	client   HTTPSender
}

func (e *forwardTemplateExecutor) Produce(ctx context.Context, act action.Action, req httpmsg.Request, _ ResponseWriter) ProduceResult {
	f := act.(action.ForwardTemplate)
	outbound, err := e.renderer.RenderRequest(f.Template, req)
	if err != nil {
		pending := scheduler.NewPending[httpmsg.Response]()
		pending.Fail(fmt.Errorf("dispatch: forward template: %w", err))
		return ProduceResult{Pending: pending}
	}
	outbound = hopbyhop.Filter(outbound)
	return ProduceResult{Pending: e.client.Send(ctx, outbound, nil, defaultForwardTimeout)}
}

// forwardClassCallbackExecutor forwards a request produced by a named,
// process-local callback.
type forwardClassCallbackExecutor struct {
	callbacks ClassCallbackEvaluator
	client    HTTPSender
}

func (e *forwardClassCallbackExecutor) Produce(ctx context.Context, act action.Action, req httpmsg.Request, _ ResponseWriter) ProduceResult {
	f := act.(action.ForwardClassCallback)
	result, err := e.callbacks.Evaluate(f.ClassName, req)
	if err != nil {
		pending := scheduler.NewPending[httpmsg.Response]()
		pending.Fail(fmt.Errorf("dispatch: forward class callback %q: %w", f.ClassName, err))
		return ProduceResult{Pending: pending}
	}

	outbound := forwardTarget(req, result.ForwardHost, result.ForwardPort, result.ForwardScheme)
	return ProduceResult{Pending: e.client.Send(ctx, outbound, nil, defaultForwardTimeout)}
}

// forwardObjectCallbackExecutor asks a remote peer for the outbound
// request, forwards it via HTTPSender, and writes the final response
// itself.
type forwardObjectCallbackExecutor struct {
	bridge  CallbackDispatcher
	client  HTTPSender
	timeout time.Duration
}

func (e *forwardObjectCallbackExecutor) Produce(ctx context.Context, act action.Action, req httpmsg.Request, writer ResponseWriter) ProduceResult {
	f := act.(action.ForwardObjectCallback)

	awaitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	env, err := e.bridge.Dispatch(f.CallbackID, req).AwaitContext(awaitCtx)
	cancel()
	if err != nil {
		writer.WriteStatus(req, 502)
		return ProduceResult{SelfHandled: true, Err: fmt.Errorf("dispatch: forward object callback %q: %w", f.CallbackID, err)}
	}
	if env.ForwardTo == nil {
		writer.WriteStatus(req, 502)
		return ProduceResult{SelfHandled: true, Err: fmt.Errorf("dispatch: forward object callback %q: peer supplied no forward target", f.CallbackID)}
	}

	outbound := hopbyhop.Filter(*env.ForwardTo)
	resp, err := e.client.Send(ctx, outbound, nil, defaultForwardTimeout).Await()
	if err != nil {
		writer.WriteStatus(req, 404)
		return ProduceResult{SelfHandled: true, Err: err}
	}

	writer.WriteResponse(req, resp, false)
	return ProduceResult{SelfHandled: true}
}

// forwardReplaceExecutor forwards the original request with field
// overrides applied, then optionally transforms the response.
type forwardReplaceExecutor struct {
	client HTTPSender
}

func (e *forwardReplaceExecutor) Produce(ctx context.Context, act action.Action, req httpmsg.Request, _ ResponseWriter) ProduceResult {
	f := act.(action.ForwardReplace)

	outbound, err := applyRequestOverride(hopbyhop.Filter(req), f.RequestOverride)
	if err != nil {
		pending := scheduler.NewPending[httpmsg.Response]()
		pending.Fail(err)
		return ProduceResult{Pending: pending}
	}

	upstream := e.client.Send(ctx, outbound, nil, defaultForwardTimeout)
	result := scheduler.NewPending[httpmsg.Response]()

	go func() {
		resp, err := upstream.Await()
		if err != nil {
			result.Fail(err)
			return
		}
		overridden, err := applyResponseOverride(resp, f.ResponseOverride)
		if err != nil {
			result.Fail(err)
			return
		}
		result.Complete(overridden)
	}()

	return ProduceResult{Pending: result}
}

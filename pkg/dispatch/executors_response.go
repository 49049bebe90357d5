package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// responseExecutor returns the canned response verbatim
// (SPEC_FULL.md §4.3, "ResponseExecutor").
type responseExecutor struct{}

func (e *responseExecutor) Produce(_ context.Context, act action.Action, _ httpmsg.Request, _ ResponseWriter) ProduceResult {
	r := act.(action.Response)
	return ProduceResult{Response: r.HTTPResponse}
}

// responseTemplateExecutor renders Template against the request via the
// injected TemplateRenderer collaborator.
type responseTemplateExecutor struct {
	renderer TemplateRenderer
}

func (e *responseTemplateExecutor) Produce(_ context.Context, act action.Action, req httpmsg.Request, _ ResponseWriter) ProduceResult {
	r := act.(action.ResponseTemplate)
	resp, err := e.renderer.RenderResponse(r.Template, req)
	if err != nil {
		return ProduceResult{Err: fmt.Errorf("dispatch: response template: %w", err)}
	}
	return ProduceResult{Response: resp}
}

// responseClassCallbackExecutor looks up a named callback in the
// ClassCallbackEvaluator (pkg/classcallback.Registry) and evaluates it.
type responseClassCallbackExecutor struct {
	callbacks ClassCallbackEvaluator
}

func (e *responseClassCallbackExecutor) Produce(_ context.Context, act action.Action, req httpmsg.Request, _ ResponseWriter) ProduceResult {
	r := act.(action.ResponseClassCallback)
	result, err := e.callbacks.Evaluate(r.ClassName, req)
	if err != nil {
		return ProduceResult{Err: fmt.Errorf("dispatch: response class callback %q: %w", r.ClassName, err)}
	}

	resp := httpmsg.Response{StatusCode: result.StatusCode, Body: []byte(result.Body)}
	for name, value := range result.Headers {
		resp = resp.WithHeader(name, value)
	}
	return ProduceResult{Response: resp}
}

// responseObjectCallbackExecutor hands the ResponseWriter directly to
// the callback bridge: the remote peer's reply owns the response
// completion (spec.md §4.3).
type responseObjectCallbackExecutor struct {
	bridge  CallbackDispatcher
	timeout time.Duration
}

func (e *responseObjectCallbackExecutor) Produce(ctx context.Context, act action.Action, req httpmsg.Request, writer ResponseWriter) ProduceResult {
	r := act.(action.ResponseObjectCallback)

	pending := e.bridge.Dispatch(r.CallbackID, req)
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	env, err := pending.AwaitContext(ctx)
	if err != nil {
		writer.WriteStatus(req, 502)
		return ProduceResult{SelfHandled: true, Err: fmt.Errorf("dispatch: response object callback %q: %w", r.CallbackID, err)}
	}
	if env.Response == nil {
		writer.WriteStatus(req, 502)
		return ProduceResult{SelfHandled: true, Err: fmt.Errorf("dispatch: response object callback %q: peer returned no response", r.CallbackID)}
	}

	writer.WriteResponse(req, *env.Response, false)
	return ProduceResult{SelfHandled: true}
}

package dispatch

import (
	"context"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
)

// ProduceResult is what an Executor yields: exactly one of a synchronous
// Response, a Pending async response, or SelfHandled (the executor
// already wrote through the ResponseWriter itself, for the
// ObjectCallback kinds per spec.md §4.3's "the response's origin is
// another peer").
type ProduceResult struct {
	Response    httpmsg.Response
	Pending     *scheduler.Pending[httpmsg.Response]
	SelfHandled bool
	Err         error
}

// Executor is the stateless, per-action-kind worker selected from
// Dispatcher's executor table (SPEC_FULL.md §4.2: "a tagged variant plus
// a per-kind executor selected by a small table", the Go-idiomatic read
// of spec.md's ten-arm switch). One Executor instance is shared across
// every request matching its kind; Produce receives the specific Action
// value (and therefore its own Host/Template/ClassName/etc. fields) on
// each call.
type Executor interface {
	Produce(ctx context.Context, act action.Action, req httpmsg.Request, writer ResponseWriter) ProduceResult
}

// buildExecutorTable constructs the map[action.Kind]Executor every
// Dispatcher uses, wiring deps into each stateless executor.
func buildExecutorTable(deps Dependencies) map[action.Kind]Executor {
	return map[action.Kind]Executor{
		action.KindResponse:               &responseExecutor{},
		action.KindResponseTemplate:        &responseTemplateExecutor{renderer: deps.Template},
		action.KindResponseClassCallback:   &responseClassCallbackExecutor{callbacks: deps.ClassCallbacks},
		action.KindResponseObjectCallback:  &responseObjectCallbackExecutor{bridge: deps.Callbacks, timeout: deps.CallbackAwaitTimeout},
		action.KindForward:                 &forwardExecutor{client: deps.HTTPClient},
		action.KindForwardTemplate:         &forwardTemplateExecutor{renderer: deps.Template, client: deps.HTTPClient},
		action.KindForwardClassCallback:    &forwardClassCallbackExecutor{callbacks: deps.ClassCallbacks, client: deps.HTTPClient},
		action.KindForwardObjectCallback:   &forwardObjectCallbackExecutor{bridge: deps.Callbacks, client: deps.HTTPClient, timeout: deps.CallbackAwaitTimeout},
		action.KindForwardReplace:          &forwardReplaceExecutor{client: deps.HTTPClient},
		action.KindError:                   &errorExecutor{},
	}
}

package dispatch

import (
	"context"
	"fmt"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// errorExecutor applies an ErrorBehavior to the raw connection through
// the per-request ResponseWriter, instead of producing an HttpResponse
// (spec.md §3, the Error action kind).
type errorExecutor struct{}

func (e *errorExecutor) Produce(_ context.Context, act action.Action, _ httpmsg.Request, writer ResponseWriter) ProduceResult {
	errAction := act.(action.Error)

	var err error
	switch errAction.Behavior {
	case action.DropConnection:
		err = writer.DropConnection()
	case action.MalformedResponseBytes:
		err = writer.WriteMalformedBytes()
	default:
		err = fmt.Errorf("dispatch: unknown error behavior %q", errAction.Behavior)
	}

	return ProduceResult{SelfHandled: true, Err: err}
}

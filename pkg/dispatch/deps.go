package dispatch

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/dispatchd/dispatchd/pkg/callback"
	"github.com/dispatchd/dispatchd/pkg/classcallback"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
)

// TemplateRenderer is the out-of-scope collaborator spec.md §1 names for
// template rendering; pkg/template provides the minimal default
// implementation.
type TemplateRenderer interface {
	RenderResponse(tmpl string, req httpmsg.Request) (httpmsg.Response, error)
	RenderRequest(tmpl string, req httpmsg.Request) (httpmsg.Request, error)
}

// ClassCallbackEvaluator is satisfied by *classcallback.Registry.
type ClassCallbackEvaluator interface {
	Evaluate(name string, req httpmsg.Request) (classcallback.Result, error)
}

// CallbackDispatcher is satisfied by *callback.Bridge.
type CallbackDispatcher interface {
	Dispatch(callbackID string, req httpmsg.Request) *scheduler.Pending[callback.Envelope]
}

// HTTPSender is satisfied by *httpclient.Client.
type HTTPSender interface {
	Send(ctx context.Context, req httpmsg.Request, remote *net.TCPAddr, timeout time.Duration) *scheduler.Pending[httpmsg.Response]
}

// MetricsRecorder is satisfied by *metrics.Collector. Dispatch depends
// only on this narrow interface so pkg/dispatch never needs to import
// prometheus types directly.
type MetricsRecorder interface {
	ObserveAction(kind string, outcome string, duration time.Duration)
	ObserveProxyFallback(mode string, outcome string)
}

// noopMetrics discards every observation; used when Dependencies.Metrics
// is left nil so Dispatcher never has to nil-check before recording.
type noopMetrics struct{}

func (noopMetrics) ObserveAction(string, string, time.Duration) {}
func (noopMetrics) ObserveProxyFallback(string, string)         {}

// Dependencies bundles every collaborator an Executor may need. A
// Dispatcher is constructed with one Dependencies value shared by every
// stateless executor in its table. The Error action kind needs no entry
// here: it acts through the per-request ResponseWriter's
// DropConnection/WriteMalformedBytes methods instead of a
// Dispatcher-wide collaborator.
type Dependencies struct {
	Template       TemplateRenderer
	ClassCallbacks ClassCallbackEvaluator
	Callbacks      CallbackDispatcher
	HTTPClient     HTTPSender

	// Metrics records dispatch-outcome counters/histograms (pkg/metrics
	// .Collector). A nil Metrics is replaced with a no-op recorder.
	Metrics MetricsRecorder

	// Logger receives operational (non-audit) log lines, such as the
	// loop-guard trace line. A nil Logger is replaced with logging.Nop().
	Logger *slog.Logger

	// CallbackAwaitTimeout bounds how long a *ObjectCallback executor
	// waits for its remote peer before giving up.
	CallbackAwaitTimeout time.Duration
}

package action

import "github.com/dispatchd/dispatchd/pkg/httpmsg"

// Response returns a canned response after Delay.
type Response struct {
	HTTPResponse httpmsg.Response
	Delay        Delay
}

func (Response) Kind() Kind { return KindResponse }
func (Response) isAction()  {}

// ResponseTemplate renders Template against the request to produce a
// response, via the TemplateRenderer collaborator (pkg/dispatch).
type ResponseTemplate struct {
	Template string
	Delay    Delay
}

func (ResponseTemplate) Kind() Kind { return KindResponseTemplate }
func (ResponseTemplate) isAction()  {}

// ResponseClassCallback invokes a named, process-local callback
// (pkg/classcallback.Registry) to produce a response.
type ResponseClassCallback struct {
	ClassName string
}

func (ResponseClassCallback) Kind() Kind { return KindResponseClassCallback }
func (ResponseClassCallback) isAction()  {}

// ResponseObjectCallback round-trips to a remote callback handler over a
// persistent channel (pkg/callback.Bridge) to obtain a response.
type ResponseObjectCallback struct {
	CallbackID string
}

func (ResponseObjectCallback) Kind() Kind { return KindResponseObjectCallback }
func (ResponseObjectCallback) isAction()  {}

// Forward relays the request verbatim (minus hop-by-hop headers) to a
// target origin.
type Forward struct {
	Host   string
	Port   int
	Scheme string
	Delay  Delay
}

func (Forward) Kind() Kind { return KindForward }
func (Forward) isAction()  {}

// ForwardTemplate forwards a request computed by rendering Template.
type ForwardTemplate struct {
	Template string
	Delay    Delay
}

func (ForwardTemplate) Kind() Kind { return KindForwardTemplate }
func (ForwardTemplate) isAction()  {}

// ForwardClassCallback forwards a request produced by a named,
// process-local callback.
type ForwardClassCallback struct {
	ClassName string
}

func (ForwardClassCallback) Kind() Kind { return KindForwardClassCallback }
func (ForwardClassCallback) isAction()  {}

// ForwardObjectCallback forwards a request produced by a remote callback.
type ForwardObjectCallback struct {
	CallbackID string
}

func (ForwardObjectCallback) Kind() Kind { return KindForwardObjectCallback }
func (ForwardObjectCallback) isAction()  {}

// FieldOverride names a JSON-path-addressed field and its replacement
// value, applied via ohler55/ojg in pkg/dispatch's ForwardReplaceExecutor.
type FieldOverride struct {
	Path  string
	Value interface{}
}

// RequestOverride is applied to the outbound request before forwarding.
type RequestOverride struct {
	Fields []FieldOverride
}

// ResponseOverride is applied to the origin's response before it is
// written to the client.
type ResponseOverride struct {
	Fields []FieldOverride
}

// ForwardReplace forwards the original request with field overrides
// applied, then optionally transforms the response.
type ForwardReplace struct {
	RequestOverride  RequestOverride
	ResponseOverride ResponseOverride
	Delay            Delay
}

func (ForwardReplace) Kind() Kind { return KindForwardReplace }
func (ForwardReplace) isAction()  {}

// ErrorBehavior names the transport-level fault Error produces.
type ErrorBehavior string

const (
	DropConnection         ErrorBehavior = "DropConnection"
	MalformedResponseBytes ErrorBehavior = "MalformedResponseBytes"
)

// Error produces a transport-level fault instead of a response.
type Error struct {
	Behavior ErrorBehavior
	Delay    Delay
}

func (Error) Kind() Kind { return KindError }
func (Error) isAction()  {}

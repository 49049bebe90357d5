// Package hopbyhop strips headers that must not transit a proxy
// (spec.md §4.5), grounded on
// _examples/getmockd-mockd/pkg/proxy/handler.go's removeHopByHopHeaders
// and the Connection-header-driven variant in
// _examples/other_examples/codefionn-msgtausch__proxy.go.
package hopbyhop

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// standardHeaders is the fixed hop-by-hop set from RFC 7230 §6.1,
// carried unchanged from spec.md §4.5.
var standardHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// titleCaser documents the case-insensitive invariant on header names
// explicitly, rather than relying implicitly on http.CanonicalHeaderKey.
var titleCaser = cases.Title(language.Und)

// Filter removes hop-by-hop headers from req, returning a new Request;
// req itself is never mutated.
func Filter(req httpmsg.Request) httpmsg.Request {
	out := req.Clone()
	if out.Header == nil {
		return out
	}

	for _, name := range standardHeaders {
		out.Header.Del(name)
	}

	// Remove every header the inbound Connection header names
	// (e.g. "Connection: X-Custom-Session" means strip X-Custom-Session too).
	for _, value := range req.Header.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			out.Header.Del(titleCaser.String(strings.ToLower(name)))
		}
	}

	return out
}

// IsHopByHop reports whether name is one of the fixed hop-by-hop header
// names (not accounting for headers named dynamically via Connection).
func IsHopByHop(name string) bool {
	for _, h := range standardHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

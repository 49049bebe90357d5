// Package curlserializer renders a request and its remote socket as a
// curl command line, for the diagnostic rendering spec.md §8 (S5)
// attaches to FORWARDED_REQUEST audit entries. No example repo ships a
// literal curl-rendering helper; this follows the corpus's general
// strings.Builder-based request-formatting idiom seen in
// pkg/audit/middleware.go.
package curlserializer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

// Render returns a `curl` command line equivalent to sending req to its
// URI. remoteAddr, when non-empty, is appended as a trailing
// "# -> remoteAddr" shell comment.
func Render(req httpmsg.Request, remoteAddr string) string {
	var b strings.Builder
	b.WriteString("curl")

	if req.Method != "" && req.Method != "GET" {
		fmt.Fprintf(&b, " -X %s", req.Method)
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range req.Header[name] {
			fmt.Fprintf(&b, " -H %s", shellQuote(fmt.Sprintf("%s: %s", name, value)))
		}
	}

	if len(req.Body) > 0 {
		fmt.Fprintf(&b, " -d %s", shellQuote(string(req.Body)))
	}

	uri := ""
	if req.URI != nil {
		uri = req.URI.String()
	}
	fmt.Fprintf(&b, " %s", shellQuote(uri))

	if remoteAddr != "" {
		fmt.Fprintf(&b, " # -> %s", remoteAddr)
	}

	return b.String()
}

// shellQuote wraps s in single quotes, escaping any embedded single
// quote the POSIX-shell-safe way.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

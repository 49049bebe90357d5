// Package httpclient is the dispatch core's outbound forwarding client
// (spec.md §4.6), grounded on
// _examples/getmockd-mockd/pkg/proxy/handler.go's forwardRequest for the
// target-URL-construction idiom and on
// _examples/getmockd-mockd/pkg/config/proxy.go's ProxyConfiguration,
// generalized here from an MITM-proxy-session config into the
// upstream-proxy-for-forwarding config spec.md §6 calls for.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
)

// Error taxonomy, carried unchanged from spec.md §7.
var (
	ErrConnectionRefused    = errors.New("httpclient: connection refused")
	ErrConnectionTimeout    = errors.New("httpclient: connection timeout")
	ErrCommunicationFailure = errors.New("httpclient: communication failure")
	ErrProtocolError        = errors.New("httpclient: protocol error")
)

// ProxyConfiguration is the optional upstream proxy a Client forwards
// through. It is immutable after construction: no setters, only New.
type ProxyConfiguration struct {
	host     string
	port     int
	username string
	password string
}

// NewProxyConfiguration constructs an immutable ProxyConfiguration.
func NewProxyConfiguration(host string, port int, username, password string) *ProxyConfiguration {
	return &ProxyConfiguration{host: host, port: port, username: username, password: password}
}

func (p *ProxyConfiguration) url() *url.URL {
	if p == nil || p.host == "" {
		return nil
	}
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.host, p.port),
	}
	if p.username != "" {
		u.User = url.UserPassword(p.username, p.password)
	}
	return u
}

// Client is the dispatch core's single shared outbound HTTP client.
// Construction owns the connection pool; lifetime = server process.
type Client struct {
	http *http.Client
}

// New builds a Client, wiring proxyConfig into the Transport via
// golang.org/x/net/http/httpproxy when set.
func New(proxyConfig *ProxyConfiguration) *Client {
	transport := &http.Transport{}

	if proxyURL := proxyConfig.url(); proxyURL != nil {
		cfg := &httpproxy.Config{
			HTTPProxy:  proxyURL.String(),
			HTTPSProxy: proxyURL.String(),
		}
		proxyFunc := cfg.ProxyFunc()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		}
	}

	return &Client{http: &http.Client{Transport: transport}}
}

// Send dispatches req to remote (or to req.URI's host when remote is
// nil) and returns a Pending that completes with the response or a
// taxonomy error from this package. It never blocks past timeout.
func (c *Client) Send(ctx context.Context, req httpmsg.Request, remote *net.TCPAddr, timeout time.Duration) *scheduler.Pending[httpmsg.Response] {
	pending := scheduler.NewPending[httpmsg.Response]()

	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		target := *req.URI
		if remote != nil {
			target.Host = remote.String()
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
		if err != nil {
			pending.Fail(fmt.Errorf("%w: %v", ErrProtocolError, err))
			return
		}
		httpReq.Header = req.Header.Clone()

		resp, err := c.http.Do(httpReq)
		if err != nil {
			pending.Fail(classify(err))
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			pending.Fail(fmt.Errorf("%w: %v", ErrCommunicationFailure, err))
			return
		}

		pending.Complete(httpmsg.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		})
	}()

	return pending
}

// classify maps Go's net-package sentinel errors onto this package's
// taxonomy, matching ActionHandler.processAction's
// SocketCommunicationException / ConnectException handling.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrProtocolError, err)
	}
	return fmt.Errorf("%w: %v", ErrCommunicationFailure, err)
}

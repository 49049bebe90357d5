// Package callback is the persistent object-callback bridge spec.md
// §4.3 describes for ResponseObjectCallback / ForwardObjectCallback: "the
// response's origin is another peer and may itself be asynchronous with
// its own completion channel". A remote peer dials in once over
// gorilla/websocket and stays connected; each request is multiplexed
// over that single connection with a correlation ID and awaited via a
// Pending, mirroring pkg/websocket's connection-registry idiom in
// _examples/getmockd-mockd/pkg/websocket/manager.go (map of ID ->
// connection, guarded by a mutex) generalized from a broadcast endpoint
// registry to a single-peer RPC-over-websocket bridge.
package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/scheduler"
)

// ErrPeerNotConnected is returned when no callback peer has dialed in
// under the requested callback ID.
var ErrPeerNotConnected = errors.New("callback: no peer connected under this callback ID")

// Envelope is the wire message exchanged over the bridge connection in
// both directions: the server sends a CorrelationID + Request, the peer
// replies with the same CorrelationID + Response (or ForwardRequest, for
// ForwardObjectCallback).
type Envelope struct {
	CorrelationID string           `json:"correlationId"`
	Request       *httpmsg.Request `json:"request,omitempty"`
	Response      *httpmsg.Response `json:"response,omitempty"`
	ForwardTo     *httpmsg.Request `json:"forwardTo,omitempty"`
}

// peer is one connected callback client, keyed by its CallbackID.
type peer struct {
	conn *websocket.Conn

	mu      sync.Mutex // guards writes; gorilla/websocket conns are not write-concurrent-safe
	pending map[string]*scheduler.Pending[Envelope]
}

// Bridge is the process-wide registry of connected callback peers.
type Bridge struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[string]*peer
}

// NewBridge builds an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers: make(map[string]*peer),
	}
}

// HandleUpgrade accepts an inbound websocket connection and registers it
// under callbackID, replacing any previous connection under that ID.
func (b *Bridge) HandleUpgrade(w http.ResponseWriter, r *http.Request, callbackID string) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("callback: upgrade: %w", err)
	}

	p := &peer{conn: conn, pending: make(map[string]*scheduler.Pending[Envelope])}

	b.mu.Lock()
	b.peers[callbackID] = p
	b.mu.Unlock()

	go b.readLoop(callbackID, p)
	return nil
}

func (b *Bridge) readLoop(callbackID string, p *peer) {
	defer func() {
		b.mu.Lock()
		if b.peers[callbackID] == p {
			delete(b.peers, callbackID)
		}
		b.mu.Unlock()
		p.conn.Close()
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		p.mu.Lock()
		pending, ok := p.pending[env.CorrelationID]
		if ok {
			delete(p.pending, env.CorrelationID)
		}
		p.mu.Unlock()

		if ok {
			pending.Complete(env)
		}
	}
}

// Dispatch sends req to the peer connected under callbackID and returns
// a Pending that completes with the peer's reply envelope. The caller
// reads whichever of Response/ForwardTo is populated depending on the
// action kind (ResponseObjectCallback vs ForwardObjectCallback).
func (b *Bridge) Dispatch(callbackID string, req httpmsg.Request) *scheduler.Pending[Envelope] {
	result := scheduler.NewPending[Envelope]()

	b.mu.RLock()
	p, ok := b.peers[callbackID]
	b.mu.RUnlock()
	if !ok {
		result.Fail(ErrPeerNotConnected)
		return result
	}

	correlationID := uuid.New().String()
	env := Envelope{CorrelationID: correlationID, Request: &req}

	p.mu.Lock()
	p.pending[correlationID] = result
	err := p.conn.WriteJSON(env)
	p.mu.Unlock()

	if err != nil {
		p.mu.Lock()
		delete(p.pending, correlationID)
		p.mu.Unlock()
		result.Fail(fmt.Errorf("callback: write: %w", err))
	}

	return result
}

// Connected reports whether a peer is currently registered under
// callbackID.
func (b *Bridge) Connected(callbackID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.peers[callbackID]
	return ok
}

// AwaitTimeout is the default time Dispatch's caller should wait for a
// reply before treating the peer as unresponsive, matching the
// exploratory-proxy timeout constant's order of magnitude from
// spec.md §4.4.
const AwaitTimeout = 5 * time.Second

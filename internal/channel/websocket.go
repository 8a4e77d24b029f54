// ABOUTME: WebSocket push transport for the dashboard telemetry feed
// ABOUTME: Dials, reads, and reports lifecycle events; never blocks the caller
package channel

import (
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nomad-pi/nomad-display/internal/protocol"
)

const (
	pushDialTimeout = 4 * time.Second

	// pushReadDeadline guards against a dead peer that never closes. The
	// server pushes every couple of seconds when healthy.
	pushReadDeadline = 40 * time.Second
)

type pushEventKind int

const (
	pushConnected pushEventKind = iota
	pushPayload
	pushClosed
)

type pushEvent struct {
	kind    pushEventKind
	gen     int
	payload []byte
	err     error
}

// pushClient is one push-connect attempt and, on success, its read loop.
// Events carry a generation number so results from an abandoned client are
// ignored rather than awaited.
type pushClient struct {
	url    string
	gen    int
	events chan<- pushEvent

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// newPushClient prepares a client for one server address.
func newPushClient(hostPort, clientID string, gen int, events chan<- pushEvent) *pushClient {
	u := url.URL{
		Scheme:   "ws",
		Host:     hostPort,
		Path:     protocol.PushPath,
		RawQuery: "client_id=" + url.QueryEscape(clientID),
	}
	return &pushClient{url: u.String(), gen: gen, events: events}
}

// Start dials and reads in the background.
func (c *pushClient) Start() {
	go c.run()
}

func (c *pushClient) run() {
	log.Printf("Push connect attempt: %s", c.url)

	dialer := websocket.Dialer{HandshakeTimeout: pushDialTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.emit(pushEvent{kind: pushClosed, gen: c.gen, err: err})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.emit(pushEvent{kind: pushConnected, gen: c.gen})

	for {
		conn.SetReadDeadline(time.Now().Add(pushReadDeadline))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.emit(pushEvent{kind: pushClosed, gen: c.gen, err: err})
			return
		}
		if msgType == websocket.TextMessage {
			c.emit(pushEvent{kind: pushPayload, gen: c.gen, payload: data})
		}
	}
}

// Close abandons the attempt or tears down the connection. The read loop's
// eventual error event is discarded by generation, never waited on.
func (c *pushClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
	}
}

// emit drops the event if the manager's buffer is full; the next event or
// tick recovers the state.
func (c *pushClient) emit(ev pushEvent) {
	select {
	case c.events <- ev:
	default:
	}
}

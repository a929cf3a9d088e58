package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// RequestTimeout bounds the wait for a response when ctx has no deadline.
	RequestTimeout time.Duration
}

func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		RequestTimeout:   30 * time.Second,
	}
}

var ErrClientClosed = errors.New("ledger: client closed")

type wsResponse struct {
	ID     uint64          `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	RPCError
}

// pendingCall is a request waiting for its response on conn.
type pendingCall struct {
	conn *websocket.Conn
	ch   chan wsResponse
}

// WSClient is a Transport speaking rippled's WebSocket API. Requests are
// multiplexed over one connection and matched to responses by id. A dropped
// connection fails the in-flight requests and is redialed on the next call.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[uint64]pendingCall

	requestID atomic.Uint64
	closed    atomic.Bool
	wg        sync.WaitGroup
}

func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		pending:  make(map[uint64]pendingCall),
	}
	if _, err := c.connection(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// connection returns the live connection, dialing if needed. The caller
// must not hold connMu.
func (c *WSClient) connection(ctx context.Context) (*websocket.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop(conn)
	return conn, nil
}

func (c *WSClient) Call(ctx context.Context, method string, params map[string]any, result any) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}

	id := c.requestID.Add(1)
	req := make(map[string]any, len(params)+2)
	for k, v := range params {
		req[k] = v
	}
	req["id"] = id
	req["command"] = method

	ch := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = pendingCall{conn: conn, ch: ch}
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err = conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		c.drop(conn)
		return fmt.Errorf("write %s: %w", method, err)
	}

	var timeout <-chan time.Time
	if _, ok := ctx.Deadline(); !ok {
		timer := time.NewTimer(c.config.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: connection lost", method)
		}
		if resp.Status == "error" || resp.Code != "" {
			rpcErr := resp.RPCError
			return &rpcErr
		}
		return decodeResult(resp.Result, result)
	case <-timeout:
		return fmt.Errorf("%s: timed out after %s", method, c.config.RequestTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn)
			return
		}

		var resp wsResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		// Stream messages (ledgerClosed, transaction) carry no id.
		if resp.Type != "" && resp.Type != "response" {
			continue
		}

		c.pendingMu.Lock()
		p, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			p.ch <- resp
		}
	}
}

// drop forgets conn and fails the requests still waiting on it. Requests
// already sent on a redialed connection are left alone.
func (c *WSClient) drop(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
		conn.Close()
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, p := range c.pending {
		if p.conn == conn {
			close(p.ch)
			delete(c.pending, id)
		}
	}
	c.pendingMu.Unlock()
}

func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

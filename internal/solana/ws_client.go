package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket confirmer behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSConfirmer waits for transaction confirmations over a WebSocket
// signatureSubscribe stream. Each subscription fires at most once; the
// cluster removes it after the notification. A notification lost to a
// reconnect surfaces as a timeout, which callers resolve by falling back to
// HTTP polling.
type WSConfirmer struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the channel awaiting the outcome
	subs   map[int64]chan signatureOutcome
	subsMu sync.Mutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// signatureOutcome is the terminal result of a watched signature.
type signatureOutcome struct {
	Err interface{}
}

// NewWSConfirmer creates a confirmer and connects to the endpoint.
func NewWSConfirmer(ctx context.Context, endpoint string, config *WSConfig) (*WSConfirmer, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSConfirmer{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[int64]chan signatureOutcome),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSConfirmer) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// ConfirmSignature subscribes to the signature and waits up to timeout for
// its terminal notification. Returns (true, nil) when the transaction
// succeeded, (false, nil) when it failed on chain, and ErrUnknownOutcome
// when the window elapses without an answer.
func (c *WSConfirmer) ConfirmSignature(ctx context.Context, signature string, timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, fmt.Errorf("confirmer closed")
	}

	subID, outcomeCh, err := c.subscribe(ctx, signature)
	if err != nil {
		return false, err
	}
	defer func() {
		c.subsMu.Lock()
		delete(c.subs, subID)
		c.subsMu.Unlock()
	}()

	select {
	case outcome := <-outcomeCh:
		return outcome.Err == nil, nil
	case <-time.After(timeout):
		return false, ErrUnknownOutcome
	case <-c.done:
		return false, fmt.Errorf("confirmer closed")
	case <-ctx.Done():
		return false, fmt.Errorf("%w: %v", ErrUnknownOutcome, ctx.Err())
	}
}

// subscribe issues signatureSubscribe and waits for the subscription ID.
func (c *WSConfirmer) subscribe(ctx context.Context, signature string) (int64, chan signatureOutcome, error) {
	reqID := c.requestID.Add(1)

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	clearPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		clearPending()
		return 0, nil, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		clearPending()
		return 0, nil, fmt.Errorf("write subscribe: %w", err)
	}

	var subID int64
	select {
	case subID = <-confirmCh:
	case <-time.After(30 * time.Second):
		clearPending()
		return 0, nil, fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return 0, nil, fmt.Errorf("confirmer closed")
	case <-ctx.Done():
		clearPending()
		return 0, nil, ctx.Err()
	}

	outcomeCh := make(chan signatureOutcome, 1)
	c.subsMu.Lock()
	c.subs[subID] = outcomeCh
	c.subsMu.Unlock()

	return subID, outcomeCh, nil
}

// Close closes the WebSocket connection.
func (c *WSConfirmer) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to waiters.
func (c *WSConfirmer) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect re-establishes the connection. One-shot signature subscriptions
// are not replayed; their waiters time out and fall back to polling.
func (c *WSConfirmer) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSConfirmer) handleMessage(message []byte) {
	// Subscription confirmation first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.pendingSubsMu.Lock()
		ch, ok := c.pendingSubs[resp.ID]
		if ok {
			delete(c.pendingSubs, resp.ID)
		}
		c.pendingSubsMu.Unlock()

		if ok {
			select {
			case ch <- resp.Result:
			default:
			}
		}
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
		c.handleSignatureNotification(&notif)
	}
}

// handleSignatureNotification delivers the terminal outcome to the waiter.
func (c *WSConfirmer) handleSignatureNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	subID := notif.Params.Subscription

	c.subsMu.Lock()
	ch, ok := c.subs[subID]
	if ok {
		delete(c.subs, subID)
	}
	c.subsMu.Unlock()

	if ok {
		select {
		case ch <- signatureOutcome{Err: notif.Params.Result.Value.Err}:
		default:
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSConfirmer) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}

// ConfirmingClient is an HTTPClient that prefers WebSocket signature
// notifications for confirmation and falls back to HTTP polling when the
// stream cannot answer in time.
type ConfirmingClient struct {
	*HTTPClient
	ws *WSConfirmer
}

// NewConfirmingClient wraps an HTTP client with a WebSocket confirmer. A nil
// confirmer degrades to polling only.
func NewConfirmingClient(httpClient *HTTPClient, ws *WSConfirmer) *ConfirmingClient {
	return &ConfirmingClient{HTTPClient: httpClient, ws: ws}
}

// ConfirmTransaction waits for confirmation over the WebSocket stream first.
// On a definitive answer it returns immediately; on a timed-out or failed
// subscription it re-checks once over HTTP before giving up.
func (c *ConfirmingClient) ConfirmTransaction(ctx context.Context, signature string, timeout time.Duration) (bool, error) {
	if c.ws != nil {
		ok, err := c.ws.ConfirmSignature(ctx, signature, timeout)
		if err == nil {
			return ok, nil
		}
	}
	return c.HTTPClient.ConfirmTransaction(ctx, signature, timeout)
}

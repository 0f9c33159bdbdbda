package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
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
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	Logger           *slog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
	}
}

// signatureSub is one live signatureSubscribe subscription. id is the current
// server subscription ID and changes on resubscribe; guarded by subsMu.
type signatureSub struct {
	id         int64
	signature  string
	commitment Commitment
	ch         chan SignatureNotification
	// ended is closed when the subscription leaves subs.
	ended chan struct{}
}

// end closes the subscription channels. Callers hold subsMu and have removed
// sub from subs.
func (sub *signatureSub) end() {
	close(sub.ch)
	close(sub.ended)
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *slog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription ID to the waiting subscriber.
	subs   map[int64]*signatureSub
	subsMu sync.Mutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultWSConfig().SubscribeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger.With(slog.String("component", "solana_ws"), slog.String("endpoint", endpoint)),
		subs:        make(map[int64]*signatureSub),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClientImpl) connect(ctx context.Context) error {
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

// SignatureSubscribe subscribes to the confirmation of a single signature.
// The subscription ends when ctx is done: the local entry is dropped, the
// channel is closed and signatureUnsubscribe is sent to the node.
func (c *WSClientImpl) SignatureSubscribe(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	subID, err := c.subscribe(ctx, signature, commitment)
	if err != nil {
		return nil, err
	}

	sub := &signatureSub{
		id:         subID,
		signature:  signature,
		commitment: commitment,
		ch:         make(chan SignatureNotification, 1),
		ended:      make(chan struct{}),
	}
	c.subsMu.Lock()
	if c.closed.Load() {
		c.subsMu.Unlock()
		return nil, fmt.Errorf("client closed")
	}
	c.subs[subID] = sub
	c.subsMu.Unlock()

	go c.watch(ctx, sub)
	return sub.ch, nil
}

// watch unsubscribes sub once ctx is done, unless it ended first.
func (c *WSClientImpl) watch(ctx context.Context, sub *signatureSub) {
	select {
	case <-ctx.Done():
		c.unsubscribe(sub)
	case <-sub.ended:
	case <-c.done:
	}
}

// unsubscribe drops sub and tells the node to stop watching its signature.
func (c *WSClientImpl) unsubscribe(sub *signatureSub) {
	c.subsMu.Lock()
	cur, ok := c.subs[sub.id]
	if !ok || cur != sub {
		c.subsMu.Unlock()
		return
	}
	id := sub.id
	delete(c.subs, id)
	sub.end()
	c.subsMu.Unlock()

	c.sendUnsubscribe(id)
}

// sendUnsubscribe is best effort; the node drops its subscriptions with the connection anyway.
func (c *WSClientImpl) sendUnsubscribe(subID int64) {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "signatureUnsubscribe",
		Params:  []interface{}{subID},
	}
	if err := c.write(req); err != nil {
		c.logger.Debug("signature unsubscribe failed",
			slog.Int64("subscription", subID),
			slog.String("error", err.Error()))
	}
}

// write sends one JSON request on the current connection.
func (c *WSClientImpl) write(req wsRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(req)
}

// subscribe sends a signatureSubscribe request and waits for the subscription ID.
func (c *WSClientImpl) subscribe(ctx context.Context, signature string, commitment Commitment) (int64, error) {
	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": string(commitment)},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(req); err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-timer.C:
		forget()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and every open subscription channel.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		delete(c.subs, id)
		sub.end()
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches them; read errors trigger a reconnect.
func (c *WSClientImpl) readLoop() {
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
				c.logger.Warn("websocket read failed, reconnecting",
					slog.String("error", err.Error()),
					slog.Duration("delay", reconnectDelay))
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
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

// reconnect dials again after delay and resubscribes every open subscription.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

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
		c.logger.Warn("websocket reconnect failed", slog.String("error", err.Error()))
		return
	}

	c.resubscribeAll(ctx)
}

// resubscribeAll re-registers open subscriptions under their new server IDs.
func (c *WSClientImpl) resubscribeAll(ctx context.Context) {
	c.subsMu.Lock()
	old := make([]*signatureSub, 0, len(c.subs))
	for _, sub := range c.subs {
		old = append(old, sub)
	}
	c.subsMu.Unlock()

	for _, sub := range old {
		newID, err := c.subscribe(ctx, sub.signature, sub.commitment)
		if err != nil {
			c.logger.Warn("resubscribe failed",
				slog.String("signature", sub.signature),
				slog.String("error", err.Error()))
			continue
		}

		c.subsMu.Lock()
		cur, ok := c.subs[sub.id]
		live := ok && cur == sub
		if live {
			delete(c.subs, sub.id)
			sub.id = newID
			c.subs[newID] = sub
		}
		c.subsMu.Unlock()

		// ended while resubscribing
		if !live {
			c.sendUnsubscribe(newID)
		}
	}
}

// handleMessage routes a subscription confirmation, a notification or an error response.
func (c *WSClientImpl) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID != 0 && resp.Result != nil {
		c.handleSubscribeResponse(resp.ID, *resp.Result)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
		c.handleSignatureNotification(&notif)
		return
	}

	var errResp struct {
		ID    uint64    `json:"id"`
		Error *RPCError `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// the pending subscribe call runs into its timeout
		c.logger.Warn("subscription rejected",
			slog.Uint64("request_id", errResp.ID),
			slog.Int("code", errResp.Error.Code),
			slog.String("message", errResp.Error.Message))
	}
}

func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- subID:
		default:
		}
	}
}

// handleSignatureNotification delivers the notification and ends the subscription;
// the node drops signature subscriptions after the first notification.
func (c *WSClientImpl) handleSignatureNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	sub, ok := c.subs[notif.Params.Subscription]
	if !ok {
		return
	}
	delete(c.subs, notif.Params.Subscription)

	n := SignatureNotification{
		Signature: sub.signature,
		Err:       notif.Params.Result.Value.Err,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}

	// ch has room for exactly this one notification
	sub.ch <- n
	sub.end()
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
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
				// a dead connection surfaces in readLoop
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
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
	Result  *int64 `json:"result"` // subscription ID
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

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

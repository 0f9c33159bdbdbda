package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// idleServer accepts a connection and drains it until the client hangs up.
func idleServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSClient_Connect(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SignatureSubscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "signatureSubscribe" {
			t.Errorf("expected signatureSubscribe, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "testsig" {
			t.Errorf("unexpected params %v", req.Params)
		}

		subID := int64(0) // nodes may hand out subscription 0
		if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: &subID}); err != nil {
			t.Errorf("write response: %v", err)
			return
		}

		time.Sleep(50 * time.Millisecond)
		notif := wsNotification{
			JSONRPC: "2.0",
			Method:  "signatureNotification",
			Params: &wsNotificationParams{
				Subscription: subID,
				Result: wsNotificationResult{
					Context: &wsContext{Slot: 100},
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SignatureSubscribe(ctx, "testsig", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("SignatureSubscribe: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", notif.Signature)
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
		if notif.Failed() {
			t.Error("expected successful notification")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel closed after the notification")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after notification")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 50 * time.Millisecond

	client, err := NewWSClient(context.Background(), wsURL(server), &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SignatureSubscribe(context.Background(), "sig", ""); err == nil {
		t.Fatal("expected subscription timeout")
	}
}

func TestWSClient_Close(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	client.Close()

	if _, err := client.SignatureSubscribe(context.Background(), "sig", CommitmentConfirmed); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestWSClient_CustomConfig(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	config := &WSClientConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	client, err := NewWSClient(context.Background(), wsURL(server), config)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", client.config.PingInterval)
	}
	if client.config.SubscribeTimeout != DefaultWSConfig().SubscribeTimeout {
		t.Errorf("expected default SubscribeTimeout, got %v", client.config.SubscribeTimeout)
	}
}

// ackServer confirms every signatureSubscribe and counts signatureUnsubscribe
// requests; it never sends notifications.
func ackServer(t *testing.T, unsubscribes *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var next int64
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			switch req.Method {
			case "signatureSubscribe":
				next++
				id := next
				if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: &id}); err != nil {
					return
				}
			case "signatureUnsubscribe":
				unsubscribes.Add(1)
			}
		}
	}))
}

func TestWSClient_CancelledSubscriptionsAreReleased(t *testing.T) {
	var unsubscribes atomic.Int64
	server := ackServer(t, &unsubscribes)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	const n = 100
	for i := 0; i < n; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := client.SignatureSubscribe(ctx, fmt.Sprintf("sig-%d", i), CommitmentConfirmed)
		if err != nil {
			cancel()
			t.Fatalf("SignatureSubscribe %d: %v", i, err)
		}
		cancel()

		select {
		case _, ok := <-ch:
			if ok {
				t.Fatalf("unexpected notification for sig-%d", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("channel for sig-%d not closed after cancel", i)
		}
	}

	client.subsMu.Lock()
	live := len(client.subs)
	client.subsMu.Unlock()
	if live != 0 {
		t.Errorf("expected no live subscriptions, got %d", live)
	}

	deadline := time.Now().Add(2 * time.Second)
	for unsubscribes.Load() < n && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := unsubscribes.Load(); got != n {
		t.Errorf("expected %d unsubscribes, got %d", n, got)
	}
}

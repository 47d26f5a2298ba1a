package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pumpfun-engine/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer upgrades every connection and hands it to serve. The connection
// index starts at 0 and increments per dial.
func wsServer(t *testing.T, serve func(idx int, c *websocket.Conn)) string {
	t.Helper()
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		serve(int(conns.Add(1)-1), c)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func readRequest(t *testing.T, c *websocket.Conn) wsRequest {
	t.Helper()
	_, msg, err := c.ReadMessage()
	if err != nil {
		return wsRequest{}
	}
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
	}
	return req
}

func testWSConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.MaxReconnectDelay = 200 * time.Millisecond
	cfg.SubscribeTimeout = 2 * time.Second
	cfg.Logger = logging.Discard()
	return &cfg
}

func logsNotification(sub int64, slot int64, sig string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": sub,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value": map[string]interface{}{
					"signature": sig,
					"logs":      []string{"Program log: Test"},
					"err":       nil,
				},
			},
		},
	}
}

func TestWSClient_Connect(t *testing.T) {
	url := wsServer(t, func(_ int, c *websocket.Conn) { drain(c) })

	client, err := NewWSClient(context.Background(), url, testWSConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	url := wsServer(t, func(_ int, c *websocket.Conn) {
		req := readRequest(t, c)
		if req.Method != "logsSubscribe" {
			t.Errorf("expected logsSubscribe, got %s", req.Method)
		}

		c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 12345})
		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(logsNotification(12345, 100, "testsig"))
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, testWSConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"testprogram"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", notif.Signature)
		}
		if len(notif.Logs) != 1 {
			t.Errorf("expected 1 log, got %d", len(notif.Logs))
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeBlocks(t *testing.T) {
	url := wsServer(t, func(_ int, c *websocket.Conn) {
		req := readRequest(t, c)
		if req.Method != "blockSubscribe" {
			t.Errorf("expected blockSubscribe, got %s", req.Method)
		}
		filter, _ := req.Params[0].(map[string]interface{})
		if filter["mentionsAccountOrProgram"] != "prog" {
			t.Errorf("unexpected filter: %v", req.Params[0])
		}

		c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 7})
		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "blockNotification",
			"params": map[string]interface{}{
				"subscription": 7,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 500},
					"value": map[string]interface{}{
						"slot": 500,
						"block": map[string]interface{}{
							"blockTime": 1700000000,
							"transactions": []map[string]interface{}{{
								"transaction": map[string]interface{}{
									"signatures": []string{"blocksig"},
									"message":    map[string]interface{}{"accountKeys": []string{"payer"}},
								},
								"meta": map[string]interface{}{
									"fee":         5000,
									"logMessages": []string{"Program log: Instruction: Buy"},
								},
							}},
						},
						"err": nil,
					},
				},
			},
		})
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, testWSConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeBlocks(ctx, BlockFilter{MentionsAccountOrProgram: "prog"})
	if err != nil {
		t.Fatalf("SubscribeBlocks: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Slot != 500 || notif.Block == nil {
			t.Fatalf("unexpected notification: %+v", notif)
		}
		if len(notif.Block.Transactions) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(notif.Block.Transactions))
		}
		tx := notif.Block.Transactions[0]
		if tx.Signature != "blocksig" || tx.BlockTime != 1700000000 || tx.Meta.Fee != 5000 {
			t.Errorf("unexpected transaction: %+v", tx)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for block")
	}
}

func TestWSClient_ResubscribesAfterReconnect(t *testing.T) {
	url := wsServer(t, func(idx int, c *websocket.Conn) {
		req := readRequest(t, c)
		subID := int64(100 + idx)
		c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: subID})
		time.Sleep(20 * time.Millisecond)
		if idx == 0 {
			c.WriteJSON(logsNotification(subID, 1, "first"))
			time.Sleep(20 * time.Millisecond)
			return // drop the connection
		}
		time.Sleep(100 * time.Millisecond) // let the client remap the new subscription ID
		c.WriteJSON(logsNotification(subID, 2, "second"))
		drain(c)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, testWSConfig())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case n := <-ch:
			got = append(got, n.Signature)
		case <-timeout:
			t.Fatalf("timeout, received %v", got)
		}
	}
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	url := wsServer(t, func(_ int, c *websocket.Conn) { drain(c) })

	cfg := testWSConfig()
	cfg.SubscribeTimeout = 100 * time.Millisecond
	client, err := NewWSClient(context.Background(), url, cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); err == nil {
		t.Fatal("expected subscription timeout")
	}
}

func TestWSClient_Close(t *testing.T) {
	url := wsServer(t, func(_ int, c *websocket.Conn) { drain(c) })

	client, err := NewWSClient(context.Background(), url, testWSConfig())
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

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/gorilla/websocket"
)

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/runs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestHubPublishesRunsAndWarnings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(NewServer("", hub, nil, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitClients(t, hub, 1)

	if err := hub.PublishRun(ctx, map[string]string{"sourceId": "N2F-A"}); err != nil {
		t.Fatalf("PublishRun: %v", err)
	}
	env := readEnvelope(t, conn)
	if env["type"] != TypeRun || env["data"].(map[string]any)["sourceId"] != "N2F-A" {
		t.Errorf("run envelope = %v", env)
	}

	log := logger.New(logger.LevelDebug, hub)
	log.Info("Section unchanged", nil)
	log.Warn("Page yielded no records, layout may have changed", logger.Fields{"source": "N2F-A"})

	env = readEnvelope(t, conn)
	if env["type"] != TypeLog {
		t.Fatalf("log envelope = %v", env)
	}
	if msg := env["data"].(map[string]any)["message"]; msg != "Page yielded no records, layout may have changed" {
		t.Errorf("forwarded message = %v", msg)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(NewServer("", hub, nil, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)
}

func TestOriginCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(NewServer("", hub, []string{"https://dash.test"}, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/runs"
	header := map[string][]string{"Origin": {"https://evil.test"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("foreign origin accepted")
	}
}

func TestBroadcastAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	hub.Broadcast([]byte(`{}`))
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", hub.ClientCount())
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewHub(), nil, nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start() after Shutdown = %v, want http.ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		srv.server.Close()
		t.Fatal("Start() kept listening after Shutdown")
	}
}

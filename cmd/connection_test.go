// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/mavprobe/pkg/probe"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// newBridge starts a WebSocket server that runs handle for each connection
func newBridge(t *testing.T, handle func(*websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if r.URL.Path == "/auth" && (!ok || user != "pilot" || pass != "secret") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_ReadSkipsTextAndBuffers(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("bridge ready"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0xFD, 0x09, 0x00, 0x00})
		conn.ReadMessage()
	})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 3)
	n, err := conn.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("first read: n=%d err=%v", n, err)
	}
	if buf[0] != 0xFD || buf[1] != 0x09 {
		t.Errorf("unexpected bytes: % X", buf[:n])
	}

	n, err = conn.Read(buf)
	if err != nil || n != 1 {
		t.Fatalf("buffered read: n=%d err=%v", n, err)
	}
}

func TestWebSocketConnection_LogsBridgeStatus(t *testing.T) {
	hook := test.NewLocal(logrus.StandardLogger())
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logrus.SetLevel(level)
		hook.Reset()
	})

	url := newBridge(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("uart open 921600\n"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0xFD})
		conn.ReadMessage()
	})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 8)
	if n, err := conn.Read(buf); err != nil || n != 1 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Bridge status" && entry.Data["status"] == "uart open 921600" {
			found = true
		}
	}
	if !found {
		t.Error("bridge status line should be logged")
	}
}

func TestWebSocketConnection_NormalCloseIsEOF(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage()
	})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Read(make([]byte, 8)); err != io.EOF {
		t.Errorf("expected io.EOF on normal close, got %v", err)
	}
}

func TestWebSocketConnection_CloseSendsCloseFrame(t *testing.T) {
	code := make(chan int, 1)
	url := newBridge(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		if ce, ok := err.(*websocket.CloseError); ok {
			code <- ce.Code
		}
		close(code)
	})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	conn.Close()

	select {
	case got := <-code:
		if got != websocket.CloseNormalClosure {
			t.Errorf("expected close code %d, got %d", websocket.CloseNormalClosure, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bridge never saw the close")
	}
}

func TestWebSocketConnection_WriteSendsBinary(t *testing.T) {
	received := make(chan []byte, 1)
	url := newBridge(t, func(conn *websocket.Conn) {
		messageType, data, err := conn.ReadMessage()
		if err == nil && messageType == websocket.BinaryMessage {
			received <- data
		}
	})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	n, err := conn.Write([]byte{0xFE, 0x01})
	if err != nil || n != 2 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if data := <-received; len(data) != 2 || data[0] != 0xFE {
		t.Errorf("bridge received % X", data)
	}
}

func TestWebSocketConnection_ClosedAfterError(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn) {})

	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 16)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected error once the bridge hangs up")
	}
	if _, err := conn.Read(buf); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestOpenWebSocketConnection_BasicAuth(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn) {})

	if _, err := OpenWebSocketConnection(context.Background(), url+"/auth", "pilot", "wrong", false); err == nil {
		t.Error("expected rejection with wrong password")
	} else if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("expected HTTP 401 in error, got %v", err)
	}

	conn, err := OpenWebSocketConnection(context.Background(), url+"/auth", "pilot", "secret", false)
	if err != nil {
		t.Fatalf("expected success with credentials: %v", err)
	}
	conn.Close()
}

func TestOpenWebSocketConnection_RejectsScheme(t *testing.T) {
	_, err := OpenWebSocketConnection(context.Background(), "http://bridge.local/mavlink", "", "", false)
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("expected scheme error, got %v", err)
	}
}

func TestOpenConnection_SerialMissingDevice(t *testing.T) {
	cfg := probe.DefaultConfig()
	cfg.Address = "/dev/mavprobe-does-not-exist"

	conn, _, err := OpenConnection(context.Background(), cfg)
	if err == nil {
		conn.Close()
		t.Fatal("expected error for missing device")
	}
	if !strings.Contains(err.Error(), cfg.Address) {
		t.Errorf("error should name the device: %v", err)
	}
}

func TestOpenConnection_WebSocketInfo(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn) { conn.ReadMessage() })

	cfg := probe.DefaultConfig()
	cfg.Address = url

	conn, info, err := OpenConnection(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	defer conn.Close()

	if info != "WebSocket: "+url {
		t.Errorf("unexpected connection info: %s", info)
	}
}

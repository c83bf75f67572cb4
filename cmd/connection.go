// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/mavprobe/pkg/probe"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the byte stream MAVLink runs over
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned by reads after the bridge connection failed
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection adapts a serial-over-WebSocket MAVLink bridge to a
// byte stream. Each binary message carries raw link bytes, usually one
// MAVLink frame; text messages are bridge status lines and are only logged.
type WebSocketConnection struct {
	conn *websocket.Conn
	log  *logrus.Entry

	pending []byte // unread tail of the last binary message
	closed  bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if len(w.pending) > 0 {
		n := copy(p, w.pending)
		w.pending = w.pending[n:]
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}

		switch messageType {
		case websocket.BinaryMessage:
			n := copy(p, data)
			w.pending = data[n:]
			return n, nil
		case websocket.TextMessage:
			w.log.WithField("status", strings.TrimSpace(string(data))).Debug("Bridge status")
		}
	}
}

// Write sends p as a single binary message. The MAVLink node writes one
// frame per call, so frames are never split across messages.
func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close says goodbye to the bridge before dropping the connection
func (w *WebSocketConnection) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := w.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		w.log.WithError(err).Debug("Failed to send close frame")
	}
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port at 8N1
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{
		conn: conn,
		log:  logrus.WithField("bridge", u.Host),
	}, nil
}

// PasswordEnv holds the bridge password for unattended runs
const PasswordEnv = "MAVPROBE_PASSWORD"

// GetPassword returns the bridge password from PasswordEnv, or prompts for
// it on the terminal
func GetPassword(username, bridgeURL string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	host := bridgeURL
	if u, err := url.Parse(bridgeURL); err == nil && u.Host != "" {
		host = u.Host
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", username, host)

	if term.IsTerminal(int(syscall.Stdin)) {
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(passwordBytes), nil
	}

	// piped input, e.g. from a provisioning script
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && (err != io.EOF || password == "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(password), nil
}

// OpenConnection opens the serial or WebSocket transport named by cfg
func OpenConnection(ctx context.Context, cfg probe.Config) (Connection, string, error) {
	if cfg.IsWebSocket() {
		conn, err := OpenWebSocketConnection(ctx, cfg.Address, cfg.Username, cfg.Password, cfg.SkipTLSVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.Address), nil
	}

	conn, err := OpenSerialConnection(cfg.Address, cfg.BaudRate)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Address, cfg.BaudRate), nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"
	"strings"
	"time"
)

// Defaults for a Raspberry Pi UART wired to a Cube-class autopilot TELEM port
const (
	DefaultAddress        = "/dev/serial0"
	DefaultBaudRate       = 921600
	DefaultReadyTimeout   = 60 * time.Second
	DefaultHeartbeatDelay = 5 * time.Second
	DefaultParameter      = "ARMING_CHECK"

	// FallbackBaudRate is suggested when the link fails at DefaultBaudRate
	FallbackBaudRate = 57600
)

// Config describes a single probe run
type Config struct {
	// Address is a serial device path or a ws:// / wss:// bridge URL
	Address  string
	BaudRate int

	// WebSocket bridge credentials (wss:// and Basic auth only)
	Username      string
	Password      string
	SkipTLSVerify bool

	ReadyTimeout   time.Duration
	HeartbeatDelay time.Duration
	Parameter      string
}

// DefaultConfig returns the configuration used when no flags are given
func DefaultConfig() Config {
	return Config{
		Address:        DefaultAddress,
		BaudRate:       DefaultBaudRate,
		ReadyTimeout:   DefaultReadyTimeout,
		HeartbeatDelay: DefaultHeartbeatDelay,
		Parameter:      DefaultParameter,
	}
}

// IsWebSocket reports whether Address names a WebSocket bridge
func (c Config) IsWebSocket() bool {
	return strings.HasPrefix(c.Address, "ws://") || strings.HasPrefix(c.Address, "wss://")
}

// Validate checks the configuration before any connection is attempted
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address must not be empty")
	}
	if !c.IsWebSocket() && c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("ready timeout must be positive, got %s", c.ReadyTimeout)
	}
	if c.HeartbeatDelay <= 0 {
		return fmt.Errorf("heartbeat delay must be positive, got %s", c.HeartbeatDelay)
	}
	if c.Parameter == "" || len(c.Parameter) > 16 {
		return fmt.Errorf("invalid parameter name %q (1-16 characters)", c.Parameter)
	}
	return nil
}

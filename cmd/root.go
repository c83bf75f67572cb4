// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/Thermoquad/mavprobe/pkg/probe"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Probe flags
	readyTimeout   time.Duration
	heartbeatDelay time.Duration
	paramName      string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "mavprobe",
	Short: "MAVLink autopilot connection test",
	Long: `mavprobe - A one-shot connection test for MAVLink autopilots.

Connects to the autopilot, waits until it is ready, then prints firmware,
mode, GPS, battery, attitude and rangefinder telemetry, reads a parameter
and checks that heartbeats keep arriving.

Running without flags probes /dev/serial0 at 921600 baud.

Connection modes:
  Serial:    --port /dev/ttyAMA0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the MAVPROBE_PASSWORD
environment variable, or prompted interactively if not set.

Exit codes:
  0 - Probe completed (heartbeat result is informational)
  1 - Connection or telemetry read failed`,
	Version:       "1.0.0",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runProbe,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", probe.DefaultAddress, "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", probe.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Probe flags
	rootCmd.Flags().DurationVar(&readyTimeout, "timeout", probe.DefaultReadyTimeout, "Time to wait for the vehicle to become ready")
	rootCmd.Flags().DurationVar(&heartbeatDelay, "heartbeat-delay", probe.DefaultHeartbeatDelay, "Heartbeat monitoring interval")
	rootCmd.Flags().StringVar(&paramName, "param", probe.DefaultParameter, "Parameter to read")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log MAVLink link diagnostics to stderr")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

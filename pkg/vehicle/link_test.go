// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// ============================================================
// Simulated Autopilot
// ============================================================

const (
	modeGuided = 4
	armingMask = 1
)

// simAutopilot is an ArduCopter stand-in on the far end of a pipe. It streams
// telemetry and answers AUTOPILOT_VERSION and PARAM_REQUEST_READ requests.
type simAutopilot struct {
	node *gomavlib.Node

	streamRequested chan struct{}
	streamOnce      sync.Once
	linkClosed      chan struct{}
	linkOnce        sync.Once

	stop chan struct{}
	wg   sync.WaitGroup
}

func startAutopilot(t *testing.T, rwc io.ReadWriteCloser) *simAutopilot {
	t.Helper()

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointCustom{ReadWriteCloser: rwc},
		},
		Dialect:          ardupilotmega.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      testSystem,
		OutComponentID:   testComponent,
		HeartbeatDisable: true,
	})
	if err != nil {
		t.Fatalf("failed to start autopilot node: %v", err)
	}

	sim := &simAutopilot{
		node:            node,
		streamRequested: make(chan struct{}),
		linkClosed:      make(chan struct{}),
		stop:            make(chan struct{}),
	}

	sim.wg.Add(2)
	go sim.stream()
	go sim.serve()

	t.Cleanup(func() {
		close(sim.stop)
		node.Close()
		sim.wg.Wait()
	})
	return sim
}

func (s *simAutopilot) stream() {
	defer s.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.node.WriteMessageAll(copterHeartbeat(modeGuided, false))
			s.node.WriteMessageAll(&ardupilotmega.MessageGpsRawInt{
				FixType:           3,
				SatellitesVisible: 10,
				Eph:               90,
				Epv:               0xFFFF,
			})
			s.node.WriteMessageAll(&ardupilotmega.MessageAttitude{Yaw: 1.5})
			s.node.WriteMessageAll(&ardupilotmega.MessageSysStatus{
				VoltageBattery:   12600,
				CurrentBattery:   -1,
				BatteryRemaining: 77,
			})

		case <-s.stop:
			return
		}
	}
}

func (s *simAutopilot) serve() {
	defer s.wg.Done()

	for evt := range s.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventChannelClose:
			s.linkOnce.Do(func() { close(s.linkClosed) })

		case *gomavlib.EventFrame:
			switch msg := e.Message().(type) {
			case *ardupilotmega.MessageRequestDataStream:
				s.streamOnce.Do(func() { close(s.streamRequested) })

			case *ardupilotmega.MessageCommandLong:
				if msg.Command == cmdRequestAutopilotCapabilities {
					s.node.WriteMessageAll(&ardupilotmega.MessageAutopilotVersion{
						Capabilities:    0x2000 | 0x2,
						FlightSwVersion: 4<<24 | 5<<16 | 1<<8 | 255,
					})
				}

			case *ardupilotmega.MessageParamRequestRead:
				if strings.TrimRight(msg.ParamId, "\x00") == "ARMING_CHECK" {
					s.node.WriteMessageAll(&ardupilotmega.MessageParamValue{
						ParamId:    "ARMING_CHECK",
						ParamValue: armingMask,
						ParamType:  9, // MAV_PARAM_TYPE_REAL32
						ParamCount: 1,
					})
				}
			}
		}
	}
}

// sendNoise writes pseudo-random bytes to w until the reader goes away
func sendNoise(w io.Writer) {
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, 64)
	for {
		rng.Read(buf)
		if _, err := w.Write(buf); err != nil {
			return
		}
	}
}

func linkOptions(t *testing.T, readyTimeout time.Duration) (Options, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return Options{
		WaitReady:    true,
		ReadyTimeout: readyTimeout,
		Logger:       logrus.NewEntry(logger),
	}, hook
}

func hasLogMessage(hook *test.Hook, message string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Message == message {
			return true
		}
	}
	return false
}

// ============================================================
// Connect Tests
// ============================================================

func TestConnect_ReadsFromAutopilot(t *testing.T) {
	local, remote := net.Pipe()
	sim := startAutopilot(t, remote)
	opts, hook := linkOptions(t, 10*time.Second)

	v, err := Connect(context.Background(), local, opts)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer v.Close()

	select {
	case <-sim.streamRequested:
	case <-time.After(5 * time.Second):
		t.Error("autopilot never received a stream request")
	}
	if !hasLogMessage(hook, "Requested telemetry streams") {
		t.Error("stream request should be logged")
	}

	version, err := v.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version.String() != "APM:Copter-4.5.1" {
		t.Errorf("unexpected version: %s", version)
	}

	mode, err := v.Mode()
	if err != nil || mode != "GUIDED" {
		t.Errorf("expected GUIDED, got %q (%v)", mode, err)
	}

	gps, err := v.GPS()
	if err != nil || gps.SatellitesVisible == nil || *gps.SatellitesVisible != 10 {
		t.Errorf("unexpected gps: %s (%v)", gps, err)
	}

	value, err := v.Parameter(context.Background(), "ARMING_CHECK")
	if err != nil {
		t.Fatalf("Parameter failed: %v", err)
	}
	if value != armingMask {
		t.Errorf("expected ARMING_CHECK=%d, got %v", armingMask, value)
	}

	stats := v.Stats()
	if stats.AutopilotFrame == 0 || stats.ChannelOpens != 1 {
		t.Errorf("unexpected link statistics: %+v", stats)
	}
}

func TestConnect_SilentLinkTimesOut(t *testing.T) {
	local, remote := net.Pipe()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		io.Copy(io.Discard, remote)
	}()
	opts, _ := linkOptions(t, 300*time.Millisecond)

	v, err := Connect(context.Background(), local, opts)
	if v != nil {
		t.Fatal("expected no vehicle on timeout")
	}
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("expected ErrReadyTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "HEARTBEAT") {
		t.Errorf("error should list missing messages: %v", err)
	}

	// the transport is released when Connect gives up
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("transport still open after failed Connect")
	}
	if _, err := remote.Write([]byte{0xFD}); err == nil {
		t.Error("expected write to a released transport to fail")
	}
}

func TestConnect_NoiseIsProtocolMismatch(t *testing.T) {
	local, remote := net.Pipe()
	go io.Copy(io.Discard, remote)
	go sendNoise(remote)
	opts, _ := linkOptions(t, 500*time.Millisecond)

	_, err := Connect(context.Background(), local, opts)
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "baud rate") {
		t.Errorf("error should point at the baud rate: %v", err)
	}
}

func TestConnect_CloseStopsReads(t *testing.T) {
	local, remote := net.Pipe()
	sim := startAutopilot(t, remote)
	opts, _ := linkOptions(t, 10*time.Second)

	v, err := Connect(context.Background(), local, opts)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- v.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	select {
	case <-sim.linkClosed:
	case <-time.After(5 * time.Second):
		t.Error("autopilot still sees an open link")
	}

	if _, err := v.Mode(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if _, err := v.LastHeartbeat(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed for heartbeat after close, got %v", err)
	}
}

// unknownMessage is not part of the ArduPilot dialect
type unknownMessage struct{}

func (*unknownMessage) GetID() uint32 { return 0xFFFFFF }

func TestConnect_LogsWriteFailure(t *testing.T) {
	local, remote := net.Pipe()
	startAutopilot(t, remote)
	opts, hook := linkOptions(t, 10*time.Second)

	v, err := Connect(context.Background(), local, opts)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer v.Close()

	v.write(&unknownMessage{})

	var entry *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Failed to write MAVLink message" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatal("write failure should be logged")
	}
	if entry.Level != logrus.DebugLevel || entry.Data["msgid"] != uint32(0xFFFFFF) {
		t.Errorf("unexpected log entry: level=%s data=%v", entry.Level, entry.Data)
	}
	if _, ok := entry.Data[logrus.ErrorKey]; !ok {
		t.Error("log entry should carry the write error")
	}
}

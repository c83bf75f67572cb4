// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSystemID           = 255
	DefaultStreamRate         = 4
	DefaultParamTimeout       = 5 * time.Second
	DefaultParamRetryInterval = time.Second

	// MAV_CMD_REQUEST_AUTOPILOT_CAPABILITIES
	cmdRequestAutopilotCapabilities = 520

	maxParamNameLen = 16
)

// Options configures a vehicle connection
type Options struct {
	WaitReady    bool
	ReadyTimeout time.Duration

	SystemID           byte // our MAVLink system ID (ground station)
	StreamRate         int  // Hz requested from ArduPilot data streams
	ParamTimeout       time.Duration
	ParamRetryInterval time.Duration

	Logger *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.SystemID == 0 {
		o.SystemID = DefaultSystemID
	}
	if o.StreamRate == 0 {
		o.StreamRate = DefaultStreamRate
	}
	if o.ParamTimeout == 0 {
		o.ParamTimeout = DefaultParamTimeout
	}
	if o.ParamRetryInterval == 0 {
		o.ParamRetryInterval = DefaultParamRetryInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// target identifies the autopilot the vehicle is bound to
type target struct {
	systemID    byte
	componentID byte
}

// Vehicle is a live connection to one autopilot. Attribute reads return the
// latest snapshot received from the autopilot.
type Vehicle struct {
	opts  Options
	log   *logrus.Entry
	now   func() time.Time
	write func(message.Message)
	stop  func()

	mu      sync.Mutex
	target  target
	bound   bool
	state   state
	stats   *Statistics
	waiters map[string][]chan float64
	closed  bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

func newVehicle(opts Options, now func() time.Time) *Vehicle {
	opts.setDefaults()
	return &Vehicle{
		opts:    opts,
		log:     opts.Logger,
		now:     now,
		stats:   NewStatistics(now()),
		waiters: make(map[string][]chan float64),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Connect starts a MAVLink node over rwc and returns the vehicle behind it.
// With WaitReady set it blocks until the autopilot is ready, ReadyTimeout
// elapses or ctx is done. On failure the transport is closed.
func Connect(ctx context.Context, rwc io.ReadWriteCloser, opts Options) (*Vehicle, error) {
	v := newVehicle(opts, time.Now)

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointCustom{ReadWriteCloser: rwc},
		},
		Dialect:                ardupilotmega.Dialect,
		OutVersion:             gomavlib.V2,
		OutSystemID:            v.opts.SystemID,
		StreamRequestEnable:    true,
		StreamRequestFrequency: v.opts.StreamRate,
	})
	if err != nil {
		rwc.Close()
		return nil, fmt.Errorf("failed to start MAVLink node: %w", err)
	}

	v.write = func(msg message.Message) {
		if err := node.WriteMessageAll(msg); err != nil {
			v.log.WithError(err).WithField("msgid", msg.GetID()).Debug("Failed to write MAVLink message")
		}
	}
	v.stop = func() {
		node.Close()
		<-v.done
	}

	go v.run(node.Events())

	if v.opts.WaitReady {
		if err := v.WaitReady(ctx, v.opts.ReadyTimeout); err != nil {
			v.Close()
			return nil, err
		}
	}

	return v, nil
}

// run consumes node events until the node is closed
func (v *Vehicle) run(events <-chan gomavlib.Event) {
	defer close(v.done)

	for evt := range events {
		switch e := evt.(type) {
		case *gomavlib.EventChannelOpen:
			v.recordChannel(true)
			v.log.WithField("channel", e.Channel).Debug("MAVLink channel open")

		case *gomavlib.EventChannelClose:
			v.recordChannel(false)
			v.log.WithField("channel", e.Channel).Debug("MAVLink channel closed")

		case *gomavlib.EventParseError:
			v.recordParseError()
			v.log.WithError(e.Error).Debug("MAVLink parse error")

		case *gomavlib.EventStreamRequested:
			v.log.WithFields(logrus.Fields{
				"system":    e.SystemID,
				"component": e.ComponentID,
				"rate":      v.opts.StreamRate,
			}).Debug("Requested telemetry streams")

		case *gomavlib.EventFrame:
			v.handleMessage(e.SystemID(), e.ComponentID(), e.Message())
		}
	}
}

func (v *Vehicle) recordChannel(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.RecordChannel(v.now(), open)
}

func (v *Vehicle) recordParseError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.RecordParseError(v.now())
}

// handleMessage binds to the first autopilot that sends a heartbeat and
// folds its messages into the snapshot
func (v *Vehicle) handleMessage(systemID, componentID byte, msg message.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()

	if !v.bound {
		hb, ok := msg.(*ardupilotmega.MessageHeartbeat)
		if !ok || !isAutopilotHeartbeat(hb) {
			v.stats.RecordFrame(now, false)
			return
		}
		v.target = target{systemID: systemID, componentID: componentID}
		v.bound = true
		v.log.WithFields(logrus.Fields{
			"system":    systemID,
			"component": componentID,
		}).Debug("Bound to autopilot")
	}

	if systemID != v.target.systemID {
		v.stats.RecordFrame(now, false)
		return
	}
	// companion computers and gimbals share the system ID but not the mode
	if _, ok := msg.(*ardupilotmega.MessageHeartbeat); ok && componentID != v.target.componentID {
		v.stats.RecordFrame(now, false)
		return
	}
	v.stats.RecordFrame(now, true)

	if name, value, ok := v.state.apply(msg, now); ok {
		for _, ch := range v.waiters[name] {
			select {
			case ch <- value:
			default:
			}
		}
	}

	if v.state.ready() {
		v.readyOnce.Do(func() { close(v.ready) })
	}
}

// WaitReady blocks until the autopilot has sent the telemetry the vehicle
// needs, re-requesting AUTOPILOT_VERSION once per second
func (v *Vehicle) WaitReady(ctx context.Context, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-v.ready:
			return nil

		case <-v.done:
			return fmt.Errorf("link closed before vehicle became ready: %w", ErrClosed)

		case <-ticker.C:
			v.requestVersion()

		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return v.readyError(timeout)
		}
	}
}

func (v *Vehicle) readyError(timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stats.OnlyGarbage() {
		return fmt.Errorf("%w after %s (%d parse errors, check baud rate and serial protocol)",
			ErrProtocolMismatch, timeout, v.stats.ParseErrors)
	}
	return fmt.Errorf("%w after %s (missing %s)",
		ErrReadyTimeout, timeout, strings.Join(v.state.missing(), ", "))
}

// requestVersion asks a bound autopilot for AUTOPILOT_VERSION until it answers
func (v *Vehicle) requestVersion() {
	v.mu.Lock()
	if !v.bound || v.state.has(seenVersion) || v.closed {
		v.mu.Unlock()
		return
	}
	t := v.target
	v.mu.Unlock()

	v.write(&ardupilotmega.MessageCommandLong{
		TargetSystem:    t.systemID,
		TargetComponent: t.componentID,
		Command:         cmdRequestAutopilotCapabilities,
		Param1:          1,
	})
}

// snapshot returns a copy of the state if the vehicle is open and every
// message in bits has been received
func (v *Vehicle) snapshot(bits int, what string) (state, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return state{}, ErrClosed
	}
	if !v.state.has(bits) {
		return state{}, fmt.Errorf("%s: %w", what, ErrNotReported)
	}
	return v.state, nil
}

// Version returns the autopilot firmware version
func (v *Vehicle) Version() (Version, error) {
	s, err := v.snapshot(seenHeartbeat|seenVersion, "autopilot version")
	if err != nil {
		return Version{}, err
	}
	return s.version(), nil
}

// Capabilities returns the autopilot protocol capabilities
func (v *Vehicle) Capabilities() (Capabilities, error) {
	s, err := v.snapshot(seenVersion, "autopilot capabilities")
	if err != nil {
		return 0, err
	}
	return Capabilities(s.capabilities), nil
}

// Mode returns the flight mode name
func (v *Vehicle) Mode() (string, error) {
	s, err := v.snapshot(seenHeartbeat, "flight mode")
	if err != nil {
		return "", err
	}
	return ModeName(s.vehicleType, s.customMode), nil
}

// Armed reports whether the motors are armed
func (v *Vehicle) Armed() (bool, error) {
	s, err := v.snapshot(seenHeartbeat, "armed state")
	if err != nil {
		return false, err
	}
	return s.armed(), nil
}

// SystemStatus returns the MAV_STATE name, e.g. STANDBY
func (v *Vehicle) SystemStatus() (string, error) {
	s, err := v.snapshot(seenHeartbeat, "system status")
	if err != nil {
		return "", err
	}
	return SystemStateName(s.systemStatus), nil
}

// GPS returns the primary GPS summary
func (v *Vehicle) GPS() (GPSInfo, error) {
	s, err := v.snapshot(seenGPS, "gps")
	if err != nil {
		return GPSInfo{}, err
	}
	return s.gps, nil
}

// Location returns the global-frame position. Fields are nil until the
// autopilot sends GLOBAL_POSITION_INT.
func (v *Vehicle) Location() (LocationGlobal, error) {
	s, err := v.snapshot(0, "location")
	if err != nil {
		return LocationGlobal{}, err
	}
	return s.location, nil
}

// Battery returns the battery summary
func (v *Vehicle) Battery() (Battery, error) {
	s, err := v.snapshot(seenSysStatus, "battery")
	if err != nil {
		return Battery{}, err
	}
	return s.battery, nil
}

// Attitude returns pitch, roll and yaw in radians
func (v *Vehicle) Attitude() (Attitude, error) {
	s, err := v.snapshot(seenAttitude, "attitude")
	if err != nil {
		return Attitude{}, err
	}
	return s.attitude, nil
}

// Rangefinder returns the rangefinder reading. Fields are nil when no
// rangefinder is configured.
func (v *Vehicle) Rangefinder() (Rangefinder, error) {
	s, err := v.snapshot(0, "rangefinder")
	if err != nil {
		return Rangefinder{}, err
	}
	return s.rangefinder, nil
}

// LastHeartbeat returns the time since the last autopilot heartbeat
func (v *Vehicle) LastHeartbeat() (time.Duration, error) {
	s, err := v.snapshot(seenHeartbeat, "heartbeat")
	if err != nil {
		return 0, err
	}
	return v.now().Sub(s.lastHeartbeat), nil
}

// Stats returns a copy of the link statistics
func (v *Vehicle) Stats() Statistics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return *v.stats
}

// Parameter reads a named parameter with PARAM_REQUEST_READ, re-sending the
// request every ParamRetryInterval until ParamTimeout
func (v *Vehicle) Parameter(ctx context.Context, name string) (float64, error) {
	if name == "" || len(name) > maxParamNameLen {
		return 0, fmt.Errorf("%w: %q", ErrInvalidParamName, name)
	}

	ch, err := v.subscribe(name)
	if err != nil {
		return 0, err
	}
	defer v.unsubscribe(name, ch)

	readCtx, cancel := context.WithTimeout(ctx, v.opts.ParamTimeout)
	defer cancel()

	ticker := time.NewTicker(v.opts.ParamRetryInterval)
	defer ticker.Stop()

	v.requestParam(name)
	for {
		select {
		case value := <-ch:
			return value, nil

		case <-ticker.C:
			v.log.WithField("param", name).Debug("Retrying parameter read")
			v.requestParam(name)

		case <-v.done:
			return 0, ErrClosed

		case <-readCtx.Done():
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w %s after %s", ErrParamTimeout, name, v.opts.ParamTimeout)
		}
	}
}

func (v *Vehicle) subscribe(name string) (chan float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrClosed
	}
	ch := make(chan float64, 1)
	v.waiters[name] = append(v.waiters[name], ch)
	return ch, nil
}

func (v *Vehicle) unsubscribe(name string, ch chan float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	list := v.waiters[name]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(v.waiters, name)
	} else {
		v.waiters[name] = list
	}
}

func (v *Vehicle) requestParam(name string) {
	v.mu.Lock()
	t := v.target
	v.mu.Unlock()

	v.write(&ardupilotmega.MessageParamRequestRead{
		TargetSystem:    t.systemID,
		TargetComponent: t.componentID,
		ParamId:         name,
		ParamIndex:      -1,
	})
}

// Close shuts down the MAVLink node and the transport. It is safe to call
// more than once.
func (v *Vehicle) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	v.stop()

	if v.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		stats := v.Stats()
		v.log.Debug("\n" + stats.Summary(v.now()))
	}
	return nil
}

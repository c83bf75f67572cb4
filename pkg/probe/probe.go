// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package probe runs a one-shot autopilot connection check: connect, read a
// fixed set of telemetry attributes, check heartbeat liveness and report.
package probe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/mavprobe/pkg/vehicle"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Vehicle is the live autopilot handle the probe reads from
type Vehicle interface {
	Version() (vehicle.Version, error)
	Capabilities() (vehicle.Capabilities, error)
	Mode() (string, error)
	Armed() (bool, error)
	SystemStatus() (string, error)
	GPS() (vehicle.GPSInfo, error)
	Location() (vehicle.LocationGlobal, error)
	Battery() (vehicle.Battery, error)
	Attitude() (vehicle.Attitude, error)
	Rangefinder() (vehicle.Rangefinder, error)
	Parameter(ctx context.Context, name string) (float64, error)
	LastHeartbeat() (time.Duration, error)
	Close() error
}

// Connector opens a vehicle and blocks until it is ready or
// cfg.ReadyTimeout elapses
type Connector func(ctx context.Context, cfg Config) (Vehicle, error)

// Result summarises a successful run
type Result struct {
	Parameter       float64
	HeartbeatActive bool
	HeartbeatAge    time.Duration
}

// Probe is a single connection test
type Probe struct {
	cfg     Config
	connect Connector
	report  *Report
	log     *logrus.Entry

	sleep     func(time.Duration)
	listPorts func() ([]string, error)
}

// New creates a probe that writes its report to out
func New(cfg Config, connect Connector, out io.Writer) *Probe {
	return &Probe{
		cfg:       cfg,
		connect:   connect,
		report:    NewReport(out),
		log:       logrus.WithField("address", cfg.Address),
		sleep:     time.Sleep,
		listPorts: serial.GetPortsList,
	}
}

// Run performs the probe. Any connect or read failure is printed with
// troubleshooting hints and returned as *Error. The vehicle is closed on
// every path once connect succeeds.
func (p *Probe) Run(ctx context.Context) (res *Result, err error) {
	r := p.report

	r.Banner("Autopilot Connection Test")
	r.Blank()
	r.Line("Connecting to vehicle on %s", p.cfg.Address)
	if !p.cfg.IsWebSocket() {
		r.Line("Baud rate: %d", p.cfg.BaudRate)
	}
	r.Line("Please wait...")
	r.Blank()

	started := time.Now()
	v, cerr := p.connect(ctx, p.cfg)
	if cerr != nil {
		return nil, p.fail(connectError(cerr))
	}
	p.log.WithField("elapsed", time.Since(started).Round(time.Millisecond)).Debug("Vehicle ready")

	defer func() {
		if closeErr := v.Close(); closeErr != nil {
			p.log.WithError(closeErr).Warn("Failed to close vehicle")
		}
		if err == nil {
			r.Passed()
			r.Blank()
			r.Line("The companion computer is successfully communicating with the autopilot!")
		}
	}()

	r.Success("Connection successful!")
	r.Blank()

	res = &Result{}
	steps := []func(Vehicle) *Error{
		p.vehicleInfo,
		p.gpsInfo,
		p.batteryInfo,
		p.attitudeInfo,
		p.rangefinderInfo,
	}
	for _, step := range steps {
		if perr := step(v); perr != nil {
			return nil, p.fail(perr)
		}
	}

	if perr := p.parameterTest(ctx, v, res); perr != nil {
		return nil, p.fail(perr)
	}
	if perr := p.heartbeatTest(v, res); perr != nil {
		return nil, p.fail(perr)
	}

	return res, nil
}

func (p *Probe) fail(err *Error) error {
	var ports []string
	if isPortNotFound(err) && !p.cfg.IsWebSocket() {
		found, lerr := p.listPorts()
		if lerr != nil {
			p.log.WithError(lerr).Warn("Failed to enumerate serial ports")
		} else {
			ports = append([]string{}, found...)
		}
	}

	p.log.WithFields(logrus.Fields{
		"kind": err.Kind,
		"op":   err.Op,
	}).WithError(err.Err).Debug("Probe failed")

	p.report.Failed(err, p.cfg, ports)
	return err
}

func (p *Probe) vehicleInfo(v Vehicle) *Error {
	r := p.report
	r.Section("VEHICLE INFORMATION")

	version, err := v.Version()
	if err != nil {
		return readError("read firmware version", err)
	}
	r.Field("Autopilot Firmware Version", version)

	caps, err := v.Capabilities()
	if err != nil {
		return readError("read capabilities", err)
	}
	r.Field("Autopilot Capabilities", caps)

	mode, err := v.Mode()
	if err != nil {
		return readError("read mode", err)
	}
	r.Field("Vehicle Mode", mode)

	armed, err := v.Armed()
	if err != nil {
		return readError("read armed state", err)
	}
	r.Field("Armed", armed)

	status, err := v.SystemStatus()
	if err != nil {
		return readError("read system status", err)
	}
	r.Field("System Status", status)
	r.Blank()
	return nil
}

func (p *Probe) gpsInfo(v Vehicle) *Error {
	r := p.report
	r.Section("GPS INFORMATION")

	gps, err := v.GPS()
	if err != nil {
		return readError("read gps", err)
	}
	r.Field("GPS Fix Type", gps.FixType)
	r.Field("Number of Satellites", vehicle.FormatInt(gps.SatellitesVisible))

	loc, err := v.Location()
	if err != nil {
		return readError("read location", err)
	}
	r.Field("Location", loc)
	r.Blank()
	return nil
}

func (p *Probe) batteryInfo(v Vehicle) *Error {
	r := p.report
	r.Section("BATTERY INFORMATION")

	battery, err := v.Battery()
	if err != nil {
		return readError("read battery", err)
	}
	r.Field("Voltage", fmt.Sprintf("%vV", battery.Voltage))
	r.Field("Current", vehicle.FormatFloat(battery.Current)+"A")
	r.Field("Battery Level", vehicle.FormatInt(battery.Level)+"%")
	r.Blank()
	return nil
}

func (p *Probe) attitudeInfo(v Vehicle) *Error {
	r := p.report
	r.Section("ATTITUDE INFORMATION")

	att, err := v.Attitude()
	if err != nil {
		return readError("read attitude", err)
	}
	r.Field("Pitch", att.Pitch)
	r.Field("Roll", att.Roll)
	r.Field("Yaw", att.Yaw)
	r.Blank()
	return nil
}

func (p *Probe) rangefinderInfo(v Vehicle) *Error {
	r := p.report
	r.Section("RANGEFINDER")

	rf, err := v.Rangefinder()
	if err != nil {
		return readError("read rangefinder", err)
	}
	r.Field("Distance", vehicle.FormatFloat(rf.Distance)+"m")
	r.Field("Voltage", vehicle.FormatFloat(rf.Voltage)+"V")
	r.Blank()
	return nil
}

func (p *Probe) parameterTest(ctx context.Context, v Vehicle, res *Result) *Error {
	r := p.report
	r.Section("PARAMETER TEST")
	r.Line("Reading %s parameter...", p.cfg.Parameter)

	value, err := v.Parameter(ctx, p.cfg.Parameter)
	if err != nil {
		return readError("read parameter "+p.cfg.Parameter, err)
	}
	res.Parameter = value
	r.Field(p.cfg.Parameter, value)
	r.Blank()
	return nil
}

// heartbeatTest samples the heartbeat age across a fixed delay. An age that
// grew means no heartbeat arrived while we slept.
func (p *Probe) heartbeatTest(v Vehicle, res *Result) *Error {
	r := p.report
	r.Section("HEARTBEAT TEST")
	r.Line("Monitoring heartbeat for %s...", formatSeconds(p.cfg.HeartbeatDelay))

	before, err := v.LastHeartbeat()
	if err != nil {
		return readError("read heartbeat", err)
	}
	p.sleep(p.cfg.HeartbeatDelay)
	after, err := v.LastHeartbeat()
	if err != nil {
		return readError("read heartbeat", err)
	}

	res.HeartbeatAge = after
	res.HeartbeatActive = after <= before
	if res.HeartbeatActive {
		r.Success("Heartbeat active (last: %.1fs ago)", after.Seconds())
	} else {
		r.Failure("No heartbeat detected!")
		p.log.WithFields(logrus.Fields{
			"before": before,
			"after":  after,
		}).Warn("Heartbeat age grew during monitoring")
	}
	r.Blank()
	return nil
}

func formatSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}

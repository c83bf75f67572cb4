// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import (
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Message kinds tracked for readiness
const (
	seenHeartbeat = 1 << iota
	seenVersion
	seenGPS
	seenAttitude
	seenSysStatus
	seenPosition
	seenRangefinder

	readyMask = seenHeartbeat | seenVersion | seenGPS | seenAttitude | seenSysStatus
)

var readyNames = []struct {
	bit  int
	name string
}{
	{seenHeartbeat, "HEARTBEAT"},
	{seenVersion, "AUTOPILOT_VERSION"},
	{seenGPS, "GPS_RAW_INT"},
	{seenAttitude, "ATTITUDE"},
	{seenSysStatus, "SYS_STATUS"},
}

// state is the latest snapshot of everything the autopilot reported
type state struct {
	seen int

	vehicleType   int
	autopilotType int
	baseMode      uint8
	customMode    uint32
	systemStatus  int
	lastHeartbeat time.Time

	swVersion    uint32
	capabilities uint64

	gps         GPSInfo
	location    LocationGlobal
	battery     Battery
	attitude    Attitude
	rangefinder Rangefinder
}

// apply folds one decoded message into the snapshot. It returns the value of
// a PARAM_VALUE message so the caller can hand it to waiting readers.
func (s *state) apply(msg message.Message, now time.Time) (param string, value float64, isParam bool) {
	switch m := msg.(type) {
	case *ardupilotmega.MessageHeartbeat:
		s.vehicleType = int(m.Type)
		s.autopilotType = int(m.Autopilot)
		s.baseMode = uint8(m.BaseMode)
		s.customMode = m.CustomMode
		s.systemStatus = int(m.SystemStatus)
		s.lastHeartbeat = now
		s.seen |= seenHeartbeat

	case *ardupilotmega.MessageAutopilotVersion:
		s.swVersion = m.FlightSwVersion
		s.capabilities = uint64(m.Capabilities)
		s.seen |= seenVersion

	case *ardupilotmega.MessageGpsRawInt:
		s.gps = GPSInfo{
			FixType:           int(m.FixType),
			SatellitesVisible: unlessUnknown(int(m.SatellitesVisible), 255),
			EPH:               unlessUnknown(int(m.Eph), 0xFFFF),
			EPV:               unlessUnknown(int(m.Epv), 0xFFFF),
		}
		s.seen |= seenGPS

	case *ardupilotmega.MessageGlobalPositionInt:
		lat := float64(m.Lat) / 1e7
		lon := float64(m.Lon) / 1e7
		alt := float64(m.Alt) / 1000
		s.location = LocationGlobal{Lat: &lat, Lon: &lon, Alt: &alt}
		s.seen |= seenPosition

	case *ardupilotmega.MessageSysStatus:
		b := Battery{Voltage: float64(m.VoltageBattery) / 1000}
		if m.CurrentBattery != -1 {
			current := float64(m.CurrentBattery) / 100
			b.Current = &current
		}
		if m.BatteryRemaining != -1 {
			level := int(m.BatteryRemaining)
			b.Level = &level
		}
		s.battery = b
		s.seen |= seenSysStatus

	case *ardupilotmega.MessageAttitude:
		s.attitude = Attitude{
			Pitch: widen(m.Pitch),
			Roll:  widen(m.Roll),
			Yaw:   widen(m.Yaw),
		}
		s.seen |= seenAttitude

	case *ardupilotmega.MessageRangefinder:
		distance := widen(m.Distance)
		voltage := widen(m.Voltage)
		s.rangefinder = Rangefinder{Distance: &distance, Voltage: &voltage}
		s.seen |= seenRangefinder

	case *ardupilotmega.MessageParamValue:
		return strings.TrimRight(m.ParamId, "\x00"), widen(m.ParamValue), true
	}
	return "", 0, false
}

func (s *state) has(bits int) bool {
	return s.seen&bits == bits
}

func (s *state) ready() bool {
	return s.has(readyMask)
}

// missing lists the readiness messages not yet received
func (s *state) missing() []string {
	var names []string
	for _, r := range readyNames {
		if s.seen&r.bit == 0 {
			names = append(names, r.name)
		}
	}
	return names
}

func (s *state) version() Version {
	return Version{
		AutopilotType: s.autopilotType,
		VehicleType:   s.vehicleType,
		Raw:           s.swVersion,
	}
}

func (s *state) armed() bool {
	return s.baseMode&modeFlagSafetyArmed != 0
}

func unlessUnknown(v, unknown int) *int {
	if v == unknown {
		return nil
	}
	return &v
}

// isAutopilotHeartbeat reports whether a heartbeat comes from a flight
// controller rather than a ground station or companion component
func isAutopilotHeartbeat(hb *ardupilotmega.MessageHeartbeat) bool {
	return int(hb.Autopilot) != autopilotInvalid && int(hb.Type) != typeGCS
}

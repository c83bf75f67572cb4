// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the autopilot firmware version reported by AUTOPILOT_VERSION
type Version struct {
	AutopilotType int
	VehicleType   int
	Raw           uint32 // flight_sw_version: major<<24 | minor<<16 | patch<<8 | type
}

// Major returns the major version number
func (v Version) Major() int { return int(v.Raw>>24) & 0xFF }

// Minor returns the minor version number
func (v Version) Minor() int { return int(v.Raw>>16) & 0xFF }

// Patch returns the patch version number
func (v Version) Patch() int { return int(v.Raw>>8) & 0xFF }

// ReleaseType returns the FIRMWARE_VERSION_TYPE name of the build
func (v Version) ReleaseType() string {
	switch t := v.Raw & 0xFF; {
	case t < 64:
		return "dev"
	case t < 128:
		return "alpha"
	case t < 192:
		return "beta"
	case t < 255:
		return "rc"
	default:
		return "official"
	}
}

// IsStable reports whether the build is an official release
func (v Version) IsStable() bool {
	return v.Raw&0xFF == 255
}

func (v Version) String() string {
	var prefix string
	switch v.AutopilotType {
	case autopilotArduPilot:
		prefix = "APM:"
	case autopilotPX4:
		prefix = "PX4:"
	default:
		prefix = fmt.Sprintf("Autopilot%d:", v.AutopilotType)
	}

	switch classify(v.VehicleType) {
	case classCopter:
		prefix += "Copter-"
	case classPlane:
		prefix += "Plane-"
	case classRover:
		prefix += "Rover-"
	case classSub:
		prefix += "Sub-"
	default:
		prefix += fmt.Sprintf("VehicleType%d-", v.VehicleType)
	}

	s := fmt.Sprintf("%s%d.%d.%d", prefix, v.Major(), v.Minor(), v.Patch())
	if !v.IsStable() {
		s += "-" + v.ReleaseType()
	}
	return s
}

// Capabilities is the MAV_PROTOCOL_CAPABILITY bitmask of the autopilot
type Capabilities uint64

var capabilityNames = []string{
	"MISSION_FLOAT",
	"PARAM_FLOAT",
	"MISSION_INT",
	"COMMAND_INT",
	"PARAM_ENCODE_BYTEWISE",
	"FTP",
	"SET_ATTITUDE_TARGET",
	"SET_POSITION_TARGET_LOCAL_NED",
	"SET_POSITION_TARGET_GLOBAL_INT",
	"TERRAIN",
	"SET_ACTUATOR_TARGET",
	"FLIGHT_TERMINATION",
	"COMPASS_CALIBRATION",
	"MAVLINK2",
	"MISSION_FENCE",
	"MISSION_RALLY",
	"FLIGHT_INFORMATION",
	"PARAM_ENCODE_C_CAST",
	"COMPONENT_IMPLEMENTS_GIMBAL_MANAGER",
	"COMPONENT_ACCEPTS_GCS_CONTROL",
}

// Has reports whether every bit of flag is set
func (c Capabilities) Has(flag Capabilities) bool {
	return c&flag == flag
}

// Names returns the names of the set capability bits, lowest bit first
func (c Capabilities) Names() []string {
	var names []string
	for bit := 0; bit < 64; bit++ {
		if c&(1<<bit) == 0 {
			continue
		}
		if bit < len(capabilityNames) {
			names = append(names, capabilityNames[bit])
		} else {
			names = append(names, fmt.Sprintf("BIT%d", bit))
		}
	}
	return names
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), ", ")
}

// GPSInfo is the GPS_RAW_INT summary of the primary receiver
type GPSInfo struct {
	FixType           int
	SatellitesVisible *int // nil when the receiver reports unknown (255)
	EPH               *int // cm, nil when unknown
	EPV               *int // cm, nil when unknown
}

func (g GPSInfo) String() string {
	return fmt.Sprintf("GPSInfo:fix=%d,num_sat=%s", g.FixType, formatInt(g.SatellitesVisible))
}

// LocationGlobal is a position in the global frame with MSL altitude
type LocationGlobal struct {
	Lat *float64 // degrees
	Lon *float64 // degrees
	Alt *float64 // meters above mean sea level
}

func (l LocationGlobal) String() string {
	return fmt.Sprintf("LocationGlobal:lat=%s,lon=%s,alt=%s",
		formatFloat(l.Lat), formatFloat(l.Lon), formatFloat(l.Alt))
}

// Battery is the SYS_STATUS battery summary
type Battery struct {
	Voltage float64  // volts
	Current *float64 // amps, nil when not measured
	Level   *int     // percent remaining, nil when not estimated
}

func (b Battery) String() string {
	return fmt.Sprintf("Battery:voltage=%s,current=%s,level=%s",
		strconv.FormatFloat(b.Voltage, 'f', -1, 64), formatFloat(b.Current), formatInt(b.Level))
}

// Attitude holds the vehicle attitude in radians
type Attitude struct {
	Pitch float64
	Roll  float64
	Yaw   float64
}

func (a Attitude) String() string {
	return fmt.Sprintf("Attitude:pitch=%v,yaw=%v,roll=%v", a.Pitch, a.Yaw, a.Roll)
}

// Rangefinder is the most recent downward rangefinder reading
type Rangefinder struct {
	Distance *float64 // meters
	Voltage  *float64 // volts
}

func (r Rangefinder) String() string {
	return fmt.Sprintf("Rangefinder: distance=%s, voltage=%s", formatFloat(r.Distance), formatFloat(r.Voltage))
}

// FormatFloat renders an optional reading, printing None when absent
func FormatFloat(v *float64) string {
	return formatFloat(v)
}

// FormatInt renders an optional counter, printing None when absent
func FormatInt(v *int) string {
	return formatInt(v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "None"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return "None"
	}
	return strconv.Itoa(*v)
}

// widen converts a float32 wire value to float64 without float32 noise digits
func widen(f float32) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return v
}

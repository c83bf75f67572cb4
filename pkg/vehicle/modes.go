// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import "fmt"

// MAV_AUTOPILOT values
const (
	autopilotArduPilot = 3
	autopilotInvalid   = 8
	autopilotPX4       = 12
)

// MAV_TYPE values
const (
	typeFixedWing  = 1
	typeQuadrotor  = 2
	typeCoaxial    = 3
	typeHelicopter = 4
	typeGCS        = 6
	typeRover      = 10
	typeBoat       = 11
	typeSubmarine  = 12
	typeHexarotor  = 13
	typeOctorotor  = 14
	typeTricopter  = 15
	typeVTOLFirst  = 19
	typeVTOLLast   = 25
	typeDodeca     = 29
	typeDecarotor  = 35
)

// MAV_MODE_FLAG_SAFETY_ARMED
const modeFlagSafetyArmed = 0x80

type vehicleClass int

const (
	classUnknown vehicleClass = iota
	classCopter
	classPlane
	classRover
	classSub
)

// classify maps a MAV_TYPE to the ArduPilot firmware family that flies it
func classify(mavType int) vehicleClass {
	switch {
	case mavType == typeQuadrotor, mavType == typeCoaxial, mavType == typeHelicopter,
		mavType == typeHexarotor, mavType == typeOctorotor, mavType == typeTricopter,
		mavType == typeDodeca, mavType == typeDecarotor:
		return classCopter
	case mavType == typeFixedWing, mavType >= typeVTOLFirst && mavType <= typeVTOLLast:
		return classPlane
	case mavType == typeRover, mavType == typeBoat:
		return classRover
	case mavType == typeSubmarine:
		return classSub
	default:
		return classUnknown
	}
}

var copterModes = map[uint32]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	11: "DRIFT",
	13: "SPORT",
	14: "FLIP",
	15: "AUTOTUNE",
	16: "POSHOLD",
	17: "BRAKE",
	18: "THROW",
	19: "AVOID_ADSB",
	20: "GUIDED_NOGPS",
	21: "SMART_RTL",
	22: "FLOWHOLD",
	23: "FOLLOW",
	24: "ZIGZAG",
	25: "SYSTEMID",
	26: "AUTOROTATE",
	27: "AUTO_RTL",
}

var planeModes = map[uint32]string{
	0:  "MANUAL",
	1:  "CIRCLE",
	2:  "STABILIZE",
	3:  "TRAINING",
	4:  "ACRO",
	5:  "FBWA",
	6:  "FBWB",
	7:  "CRUISE",
	8:  "AUTOTUNE",
	10: "AUTO",
	11: "RTL",
	12: "LOITER",
	13: "TAKEOFF",
	14: "AVOID_ADSB",
	15: "GUIDED",
	16: "INITIALISING",
	17: "QSTABILIZE",
	18: "QHOVER",
	19: "QLOITER",
	20: "QLAND",
	21: "QRTL",
	22: "QAUTOTUNE",
	23: "QACRO",
	24: "THERMAL",
	25: "LOITER_ALT_QLAND",
}

var roverModes = map[uint32]string{
	0:  "MANUAL",
	1:  "ACRO",
	3:  "STEERING",
	4:  "HOLD",
	5:  "LOITER",
	6:  "FOLLOW",
	7:  "SIMPLE",
	8:  "DOCK",
	9:  "CIRCLE",
	10: "AUTO",
	11: "RTL",
	12: "SMART_RTL",
	15: "GUIDED",
	16: "INITIALISING",
}

var subModes = map[uint32]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	7:  "CIRCLE",
	9:  "SURFACE",
	16: "POSHOLD",
	19: "MANUAL",
	20: "MOTOR_DETECT",
	21: "SURFTRAK",
}

// ModeName resolves an ArduPilot custom_mode for the given MAV_TYPE
func ModeName(mavType int, customMode uint32) string {
	var table map[uint32]string
	switch classify(mavType) {
	case classCopter:
		table = copterModes
	case classPlane:
		table = planeModes
	case classRover:
		table = roverModes
	case classSub:
		table = subModes
	}
	if name, ok := table[customMode]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", customMode)
}

var systemStates = []string{
	"UNINIT",
	"BOOT",
	"CALIBRATING",
	"STANDBY",
	"ACTIVE",
	"CRITICAL",
	"EMERGENCY",
	"POWEROFF",
	"FLIGHT_TERMINATION",
}

// SystemStateName resolves a MAV_STATE value
func SystemStateName(state int) string {
	if state >= 0 && state < len(systemStates) {
		return systemStates[state]
	}
	return fmt.Sprintf("State(%d)", state)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import "errors"

var (
	// ErrReadyTimeout is returned when the autopilot does not become ready in time
	ErrReadyTimeout = errors.New("timeout waiting for vehicle to become ready")

	// ErrProtocolMismatch is returned when the link carries bytes that never
	// decode as MAVLink
	ErrProtocolMismatch = errors.New("no valid MAVLink frames received")

	// ErrParamTimeout is returned when a parameter read gets no PARAM_VALUE
	ErrParamTimeout = errors.New("timeout reading parameter")

	// ErrInvalidParamName is returned for names the parameter protocol cannot carry
	ErrInvalidParamName = errors.New("invalid parameter name")

	// ErrNotReported is returned when the autopilot has not sent the message
	// backing an attribute
	ErrNotReported = errors.New("not reported by autopilot")

	// ErrClosed is returned by reads on a closed vehicle
	ErrClosed = errors.New("vehicle connection closed")
)

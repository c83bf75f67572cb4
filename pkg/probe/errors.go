// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"context"
	"errors"
	"io/fs"

	"github.com/Thermoquad/mavprobe/pkg/vehicle"
	"go.bug.st/serial"
)

// Kind classifies a probe failure
type Kind int

const (
	KindOther Kind = iota
	KindConnectTimeout
	KindPermissionDenied
	KindProtocolMismatch
	KindReadFailure
)

func (k Kind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect timeout"
	case KindPermissionDenied:
		return "permission denied"
	case KindProtocolMismatch:
		return "protocol mismatch"
	case KindReadFailure:
		return "read failure"
	default:
		return "other"
	}
}

// Error is returned by Run for every failed probe
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a probe error, or KindOther for anything else
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// connectError classifies a failure to open the link or reach readiness
func connectError(err error) *Error {
	kind := KindOther
	switch {
	case errors.Is(err, vehicle.ErrReadyTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = KindConnectTimeout
	case errors.Is(err, vehicle.ErrProtocolMismatch):
		kind = KindProtocolMismatch
	case isPermissionDenied(err):
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Op: "connect", Err: err}
}

// readError wraps a failed attribute read after the link came up
func readError(op string, err error) *Error {
	return &Error{Kind: KindReadFailure, Op: op, Err: err}
}

func isPermissionDenied(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied
}

// isPortNotFound reports whether the serial device does not exist
func isPortNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound
}

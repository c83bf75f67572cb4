// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// mavprobe - MAVLink Autopilot Connection Test
//
// Opens a serial link to a flight controller, prints a one-shot telemetry
// report and exits non-zero if the autopilot cannot be reached or read.

package main

import (
	"os"

	"github.com/Thermoquad/mavprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

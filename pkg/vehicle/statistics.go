// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vehicle

import (
	"fmt"
	"time"
)

// Statistics tracks MAVLink link health for a single connection
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames    uint64
	AutopilotFrame uint64 // Frames from the selected autopilot
	ForeignFrames  uint64 // Frames from other systems (ignored)
	ParseErrors    uint64
	ChannelOpens   uint64
	ChannelCloses  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // parse errors/sec
}

// NewStatistics creates a new statistics tracker starting at now
func NewStatistics(now time.Time) *Statistics {
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordFrame counts a decoded frame. fromTarget reports whether the frame
// came from the autopilot the vehicle is bound to.
func (s *Statistics) RecordFrame(now time.Time, fromTarget bool) {
	s.TotalFrames++
	if fromTarget {
		s.AutopilotFrame++
	} else {
		s.ForeignFrames++
	}
	s.LastUpdateTime = now
}

// RecordParseError counts bytes the MAVLink parser could not decode
func (s *Statistics) RecordParseError(now time.Time) {
	s.ParseErrors++
	s.LastUpdateTime = now
}

// RecordChannel counts transport channel open/close events
func (s *Statistics) RecordChannel(now time.Time, open bool) {
	if open {
		s.ChannelOpens++
	} else {
		s.ChannelCloses++
	}
	s.LastUpdateTime = now
}

// OnlyGarbage reports whether the link carried mostly undecodable bytes and
// nothing from an autopilot, which points at a baud rate or protocol mismatch
// rather than a silent link. Noise occasionally decodes as a frame with an
// unknown message ID, so stray foreign frames do not count against it.
func (s *Statistics) OnlyGarbage() bool {
	return s.AutopilotFrame == 0 && s.ParseErrors > s.ForeignFrames
}

// CalculateRates calculates frame and error rates up to now
func (s *Statistics) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.ParseErrors) / elapsed
	}
}

// Summary returns a formatted statistics summary
func (s *Statistics) Summary(now time.Time) string {
	s.CalculateRates(now)

	var errorPercent float64
	if total := s.TotalFrames + s.ParseErrors; total > 0 {
		errorPercent = float64(s.ParseErrors) * 100.0 / float64(total)
	}

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", now.Sub(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Autopilot:       %8d\n", s.AutopilotFrame)
	if s.ForeignFrames > 0 {
		result += fmt.Sprintf("Other Systems:   %8d\n", s.ForeignFrames)
	}
	if s.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d (%.1f%%)\n", s.ParseErrors, errorPercent)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "=====================================\n"

	return result
}

// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

import (
	"time"

	"github.com/golang/glog"
)

// LatencyLog records the delay between an input sample's timestamp and
// the arena finishing its reaction to it, one measurement per event; the
// delay is not broken down by stage or by contender (spec.md §4.7
// supplement, grounded in the original driver's input_latency
// histogram).
type LatencyLog interface {
	// LogInputEvent is called once per touchpad sample, at the moment
	// the arena has finished processing it.
	LogInputEvent(received, processed time.Time)
	// LogKeyboardEvent is called for keyboard events, which the arena
	// observes only to measure end-to-end latency, never to drive the
	// state machine (spec.md §4.7 "Exact rules").
	LogKeyboardEvent(received, processed time.Time)
}

// glogLatencyLog logs samples whose processing latency crosses a
// threshold, at verbosity level 2, matching the teacher's convention of
// gating noisy per-event logging behind -v.
type glogLatencyLog struct {
	threshold time.Duration
}

// NewGlogLatencyLog returns a LatencyLog that logs via glog.V(2) any
// event whose processing took longer than threshold.
func NewGlogLatencyLog(threshold time.Duration) LatencyLog {
	return &glogLatencyLog{threshold: threshold}
}

func (l *glogLatencyLog) LogInputEvent(received, processed time.Time) {
	if d := processed.Sub(received); d > l.threshold {
		glog.V(2).Infof("gestures: input event latency %s exceeds threshold %s", d, l.threshold)
	}
}

func (l *glogLatencyLog) LogKeyboardEvent(received, processed time.Time) {
	if d := processed.Sub(received); d > l.threshold {
		glog.V(2).Infof("gestures: keyboard event latency %s exceeds threshold %s", d, l.threshold)
	}
}

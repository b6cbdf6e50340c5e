// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gestures implements the gesture recognition arena: a
// multi-contender state machine that interprets raw touchpad contact
// streams into synthesized mouse events (spec.md §3.2, §4.7).
package gestures

import "time"

// Vector2 is a 2D point or displacement in millimeters.
type Vector2 struct {
	X, Y float64
}

// Contact is one touch point of a TouchpadEvent, already converted to
// millimeters at ingest (spec.md §3.2).
type Contact struct {
	ID          uint32
	PositionMM  Vector2
	ContactSize *Vector2
	Pressure    *float64
}

// ButtonSet is a small set of physical button identifiers.
type ButtonSet map[uint8]struct{}

// NewButtonSet builds a ButtonSet from the given button ids.
func NewButtonSet(buttons ...uint8) ButtonSet {
	s := make(ButtonSet, len(buttons))
	for _, b := range buttons {
		s[b] = struct{}{}
	}
	return s
}

func (s ButtonSet) Equal(o ButtonSet) bool {
	if len(s) != len(o) {
		return false
	}
	for b := range s {
		if _, ok := o[b]; !ok {
			return false
		}
	}
	return true
}

// TouchpadEvent is one raw contact-stream sample (spec.md §3.2).
type TouchpadEvent struct {
	Timestamp      time.Time
	PressedButtons ButtonSet
	Contacts       []Contact
}

// Phase is the kind of synthesized pointer transition a MouseEvent
// carries.
type Phase int

const (
	PhaseDown Phase = iota
	PhaseUp
	PhaseMove
	PhaseWheel
)

func (p Phase) String() string {
	switch p {
	case PhaseDown:
		return "Down"
	case PhaseUp:
		return "Up"
	case PhaseMove:
		return "Move"
	case PhaseWheel:
		return "Wheel"
	default:
		return "Unknown"
	}
}

// MouseEvent is a synthesized pointer event (spec.md §3.2).
type MouseEvent struct {
	Timestamp       time.Time
	RelativeMM      Vector2
	Phase           Phase
	AffectedButtons ButtonSet
	PressedButtons  ButtonSet
	WheelDeltaMM    *float64
}

// KeyboardEvent carries only what the arena needs: a timestamp for
// latency logging (spec.md §4.7 "Exact rules").
type KeyboardEvent struct {
	Timestamp time.Time
}

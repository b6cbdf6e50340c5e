// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

import (
	"math"
	"time"
)

const (
	clickMaxMovementMM  = 5.0
	clickMaxDuration    = 500 * time.Millisecond
	primaryButton  uint8 = 0
)

func distanceMM(a, b Vector2) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// ClickFactory produces contenders for a single-contact tap-to-click:
// one contact goes down and lifts again, without traveling far or
// lingering, and is reported as a synthesized primary button click
// (spec.md §4.7 supplement; grounded in the original's click gesture
// over a single contact).
type ClickFactory struct{}

func (ClickFactory) StartFromIdle() bool { return true }

func (ClickFactory) NewContender() Contender { return &clickContender{} }

type clickContender struct {
	initial   Contact
	startTime time.Time
	haveStart bool
}

func (c *clickContender) Name() string { return "click" }

func (c *clickContender) ExamineEvent(event TouchpadEvent) ExamineResult {
	if !c.haveStart {
		if len(event.Contacts) != 1 {
			return Mismatch("click: expected exactly one contact to start")
		}
		return StillContending(&clickContender{
			initial:   event.Contacts[0],
			startTime: event.Timestamp,
			haveStart: true,
		})
	}

	if len(event.Contacts) == 0 {
		return Matched(&clickMatchedContender{downAt: c.startTime, upAt: event.Timestamp})
	}
	if len(event.Contacts) != 1 {
		return Mismatch("click: a second contact joined")
	}
	if distanceMM(event.Contacts[0].PositionMM, c.initial.PositionMM) > clickMaxMovementMM {
		return Mismatch("click: moved too far to be a tap")
	}
	if event.Timestamp.Sub(c.startTime) > clickMaxDuration {
		return Mismatch("click: held down too long to be a tap")
	}
	return StillContending(c)
}

type clickMatchedContender struct {
	downAt, upAt time.Time
}

func (c *clickMatchedContender) Name() string { return "click" }

// VerifyEvent is permissive: once the contact has lifted within the
// movement and duration budget, nothing a later sample contains can
// retroactively disqualify the click.
func (c *clickMatchedContender) VerifyEvent(event TouchpadEvent) VerifyResult {
	return StillMatched(c)
}

func (c *clickMatchedContender) ProcessBufferedEvents(buffered []TouchpadEvent) ([]MouseEvent, Winner) {
	buttons := NewButtonSet(primaryButton)
	down := MouseEvent{Timestamp: c.downAt, Phase: PhaseDown, AffectedButtons: buttons, PressedButtons: buttons}
	up := MouseEvent{Timestamp: c.upAt, Phase: PhaseUp, AffectedButtons: buttons, PressedButtons: NewButtonSet()}
	return []MouseEvent{down, up}, nil
}

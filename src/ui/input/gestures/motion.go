// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

const motionMatchThresholdMM = 2.0

// MotionFactory produces contenders for single-contact pointer motion:
// once a contact has traveled past a small threshold it commits to
// being a move rather than a click, and then forwards every further
// displacement as a relative Move mouse event until the contact lifts
// (spec.md §4.7 supplement).
type MotionFactory struct{}

func (MotionFactory) StartFromIdle() bool { return true }

func (MotionFactory) NewContender() Contender { return &motionContender{} }

type motionContender struct {
	initial   Contact
	haveStart bool
}

func (c *motionContender) Name() string { return "motion" }

func (c *motionContender) ExamineEvent(event TouchpadEvent) ExamineResult {
	if !c.haveStart {
		if len(event.Contacts) != 1 {
			return Mismatch("motion: expected exactly one contact to start")
		}
		return StillContending(&motionContender{initial: event.Contacts[0], haveStart: true})
	}

	if len(event.Contacts) != 1 {
		return Mismatch("motion: contact count changed before motion threshold")
	}
	pos := event.Contacts[0].PositionMM
	if distanceMM(pos, c.initial.PositionMM) < motionMatchThresholdMM {
		return StillContending(c)
	}
	return Matched(&motionMatchedContender{last: c.initial.PositionMM})
}

type motionMatchedContender struct {
	last Vector2
}

func (c *motionMatchedContender) Name() string { return "motion" }

func (c *motionMatchedContender) VerifyEvent(event TouchpadEvent) VerifyResult {
	if len(event.Contacts) != 1 {
		return VerifyMismatch("motion: contact count changed while matching")
	}
	return StillMatched(c)
}

func (c *motionMatchedContender) ProcessBufferedEvents(buffered []TouchpadEvent) ([]MouseEvent, Winner) {
	last := c.last
	var events []MouseEvent
	for _, e := range buffered {
		if len(e.Contacts) != 1 {
			continue
		}
		pos := e.Contacts[0].PositionMM
		delta := Vector2{X: pos.X - last.X, Y: pos.Y - last.Y}
		if delta.X != 0 || delta.Y != 0 {
			events = append(events, MouseEvent{Timestamp: e.Timestamp, Phase: PhaseMove, RelativeMM: delta})
		}
		last = pos
	}
	return events, &motionWinner{last: last}
}

type motionWinner struct {
	last Vector2
}

func (w *motionWinner) Name() string { return "motion" }

func (w *motionWinner) ProcessNewEvent(event TouchpadEvent) WinnerResult {
	if len(event.Contacts) != 1 {
		return EndGestureNoEvent()
	}
	pos := event.Contacts[0].PositionMM
	delta := Vector2{X: pos.X - w.last.X, Y: pos.Y - w.last.Y}
	next := &motionWinner{last: pos}
	if delta.X == 0 && delta.Y == 0 {
		return ContinueGesture(next, nil)
	}
	mm := MouseEvent{Timestamp: event.Timestamp, Phase: PhaseMove, RelativeMM: delta}
	return ContinueGesture(next, &mm)
}

// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

import "time"

const secondaryButton uint8 = 1

// SecondaryClickFactory produces contenders for a two-contact tap:
// both contacts land and lift together within the click budget, and
// are reported as a synthesized secondary (right) button click
// (spec.md §4.7 supplement).
type SecondaryClickFactory struct{}

func (SecondaryClickFactory) StartFromIdle() bool { return true }

func (SecondaryClickFactory) NewContender() Contender { return &secondaryClickContender{} }

type secondaryClickContender struct {
	startTime time.Time
	initial   []Contact
	haveStart bool
}

func (c *secondaryClickContender) Name() string { return "secondary-click" }

func (c *secondaryClickContender) ExamineEvent(event TouchpadEvent) ExamineResult {
	if !c.haveStart {
		if len(event.Contacts) != 2 {
			return Mismatch("secondary-click: expected exactly two contacts to start")
		}
		initial := append([]Contact(nil), event.Contacts...)
		return StillContending(&secondaryClickContender{startTime: event.Timestamp, initial: initial, haveStart: true})
	}

	if len(event.Contacts) == 0 {
		return Matched(&secondaryClickMatchedContender{downAt: c.startTime, upAt: event.Timestamp})
	}
	if len(event.Contacts) != 2 {
		return Mismatch("secondary-click: contact count changed before lift")
	}
	if event.Timestamp.Sub(c.startTime) > clickMaxDuration {
		return Mismatch("secondary-click: held down too long to be a tap")
	}
	for i, contact := range event.Contacts {
		if distanceMM(contact.PositionMM, c.initial[i].PositionMM) > clickMaxMovementMM {
			return Mismatch("secondary-click: moved too far to be a tap")
		}
	}
	return StillContending(c)
}

type secondaryClickMatchedContender struct {
	downAt, upAt time.Time
}

func (c *secondaryClickMatchedContender) Name() string { return "secondary-click" }

func (c *secondaryClickMatchedContender) VerifyEvent(event TouchpadEvent) VerifyResult {
	return StillMatched(c)
}

func (c *secondaryClickMatchedContender) ProcessBufferedEvents(buffered []TouchpadEvent) ([]MouseEvent, Winner) {
	buttons := NewButtonSet(secondaryButton)
	down := MouseEvent{Timestamp: c.downAt, Phase: PhaseDown, AffectedButtons: buttons, PressedButtons: buttons}
	up := MouseEvent{Timestamp: c.upAt, Phase: PhaseUp, AffectedButtons: buttons, PressedButtons: NewButtonSet()}
	return []MouseEvent{down, up}, nil
}

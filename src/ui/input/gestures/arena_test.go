// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures_test

import (
	"testing"
	"time"

	"go.fuchsia.dev/core/src/ui/input/gestures"
)

func at(ms int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
}

func newTestArena() *gestures.Arena {
	return gestures.NewArena([]gestures.ContenderFactory{
		gestures.ClickFactory{},
		gestures.MotionFactory{},
		gestures.SecondaryClickFactory{},
	}, nil, nil)
}

func TestClickGesture(t *testing.T) {
	a := newTestArena()

	down := gestures.TouchpadEvent{
		Timestamp: at(0),
		Contacts:  []gestures.Contact{{ID: 1, PositionMM: gestures.Vector2{X: 10, Y: 10}}},
	}
	if out := a.HandleTouchpadEvent(down); len(out) != 0 {
		t.Fatalf("down: got %d events, want 0 (contest still open)", len(out))
	}

	up := gestures.TouchpadEvent{Timestamp: at(50), Contacts: nil}
	out := a.HandleTouchpadEvent(up)
	if len(out) != 2 {
		t.Fatalf("up: got %d events, want 2 (down+up click)", len(out))
	}
	if out[0].Phase != gestures.PhaseDown || out[1].Phase != gestures.PhaseUp {
		t.Fatalf("up: got phases %v, %v, want Down, Up", out[0].Phase, out[1].Phase)
	}
	if _, ok := out[0].AffectedButtons[0]; !ok {
		t.Fatalf("click did not report primary button")
	}
}

func TestClickMismatchesOnExcessiveMovement(t *testing.T) {
	a := newTestArena()

	down := gestures.TouchpadEvent{
		Timestamp: at(0),
		Contacts:  []gestures.Contact{{ID: 1, PositionMM: gestures.Vector2{X: 0, Y: 0}}},
	}
	a.HandleTouchpadEvent(down)

	// Move far enough to exceed both click's movement budget and
	// motion's match threshold: motion should take over.
	moved := gestures.TouchpadEvent{
		Timestamp: at(20),
		Contacts:  []gestures.Contact{{ID: 1, PositionMM: gestures.Vector2{X: 10, Y: 0}}},
	}
	out := a.HandleTouchpadEvent(moved)
	if len(out) != 1 || out[0].Phase != gestures.PhaseMove {
		t.Fatalf("moved: got %v, want a single Move event from the motion winner", out)
	}
	if out[0].RelativeMM.X <= 0 {
		t.Fatalf("moved: relative X = %f, want positive", out[0].RelativeMM.X)
	}

	lifted := gestures.TouchpadEvent{Timestamp: at(40), Contacts: nil}
	if out := a.HandleTouchpadEvent(lifted); len(out) != 0 {
		t.Fatalf("lifted: got %v, want no event ending a plain motion", out)
	}
}

func TestSecondaryClickGesture(t *testing.T) {
	a := newTestArena()

	down := gestures.TouchpadEvent{
		Timestamp: at(0),
		Contacts: []gestures.Contact{
			{ID: 1, PositionMM: gestures.Vector2{X: 10, Y: 10}},
			{ID: 2, PositionMM: gestures.Vector2{X: 20, Y: 10}},
		},
	}
	a.HandleTouchpadEvent(down)

	up := gestures.TouchpadEvent{Timestamp: at(60), Contacts: nil}
	out := a.HandleTouchpadEvent(up)
	if len(out) != 2 {
		t.Fatalf("up: got %d events, want 2 (down+up secondary click)", len(out))
	}
	if _, ok := out[0].AffectedButtons[1]; !ok {
		t.Fatalf("secondary click did not report secondary button")
	}
}

func TestClickMismatchesOnLongHold(t *testing.T) {
	a := newTestArena()

	down := gestures.TouchpadEvent{
		Timestamp: at(0),
		Contacts:  []gestures.Contact{{ID: 1, PositionMM: gestures.Vector2{X: 0, Y: 0}}},
	}
	a.HandleTouchpadEvent(down)

	held := gestures.TouchpadEvent{
		Timestamp: at(1000),
		Contacts:  []gestures.Contact{{ID: 1, PositionMM: gestures.Vector2{X: 0, Y: 0}}},
	}
	// Held well past the click duration budget without moving far
	// enough to trigger motion: click drops out, motion is still
	// contending, and the contest stays open with nothing to report.
	if out := a.HandleTouchpadEvent(held); len(out) != 0 {
		t.Fatalf("held: got %v, want no events while motion still contends", out)
	}
}

func TestKeyboardEventDoesNotPerturbState(t *testing.T) {
	a := newTestArena()
	a.HandleKeyboardEvent(gestures.KeyboardEvent{Timestamp: at(0)})

	down := gestures.TouchpadEvent{
		Timestamp: at(10),
		Contacts:  []gestures.Contact{{ID: 1, PositionMM: gestures.Vector2{X: 0, Y: 0}}},
	}
	a.HandleTouchpadEvent(down)
	up := gestures.TouchpadEvent{Timestamp: at(50), Contacts: nil}
	if out := a.HandleTouchpadEvent(up); len(out) != 2 {
		t.Fatalf("click after keyboard event: got %d events, want 2", len(out))
	}
}

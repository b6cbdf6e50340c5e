// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// stateKind tags Arena's current MutableState (spec.md §3.2, §4.7).
type stateKind int

const (
	stateIdle stateKind = iota
	stateChain
	stateMatching
	stateForwarding
)

func (k stateKind) String() string {
	switch k {
	case stateIdle:
		return "Idle"
	case stateChain:
		return "Chain"
	case stateMatching:
		return "Matching"
	case stateForwarding:
		return "Forwarding"
	default:
		return "Invalid"
	}
}

// idleOrChain picks the state an empty-handed contest or a gesture that
// ended with no winner falls back to: Chain if contacts are still down
// on the pad, Idle otherwise. The two differ only in openContest: a
// contest opened from Idle skips factories whose StartFromIdle is false,
// while one opened from Chain tries every factory. Chain does not
// suppress tap gestures; click and secondary click are tried from Chain
// just as from Idle.
func idleOrChain(event TouchpadEvent) stateKind {
	if len(event.Contacts) > 0 {
		return stateChain
	}
	return stateIdle
}

type matchingState struct {
	contenders []Contender
	matched    []MatchedContender
	buffered   []TouchpadEvent
}

type forwardingState struct {
	winner Winner
}

// Arena is the gesture recognition arena (spec.md §3.2). It owns a
// single contest at a time: a fresh touchpad contact triggers a new
// contest among every registered gesture's contenders; the contest
// narrows down to at most one winner, which then owns the stream of
// further samples until it decides the gesture is over.
//
// Arena is safe for concurrent use; HandleEvent serializes internally
// the way udp.Core serializes socket operations (spec.md §5).
type Arena struct {
	mu sync.Mutex

	kind       stateKind
	matching   matchingState
	forwarding forwardingState

	factories     []ContenderFactory
	contactFilter ContactFilter
	latency       LatencyLog
}

// NewArena builds an Arena with the given gesture factories, tried in
// the order given when a new contest opens. A nil contactFilter means
// NoFilter; a nil latency means NewGlogLatencyLog(0), which logs every
// event with a nonzero latency at glog verbosity 2.
func NewArena(factories []ContenderFactory, contactFilter ContactFilter, latency LatencyLog) *Arena {
	if contactFilter == nil {
		contactFilter = NoFilter
	}
	if latency == nil {
		latency = NewGlogLatencyLog(0)
	}
	return &Arena{kind: stateIdle, factories: factories, contactFilter: contactFilter, latency: latency}
}

// HandleTouchpadEvent feeds one raw sample through the arena and
// returns the mouse events it produced, if any.
func (a *Arena) HandleTouchpadEvent(event TouchpadEvent) []MouseEvent {
	received := event.Timestamp
	event.Contacts = a.contactFilter.Filter(event.Contacts)

	a.mu.Lock()
	out := a.step(event)
	a.mu.Unlock()

	a.latency.LogInputEvent(received, time.Now())
	return out
}

// HandleKeyboardEvent records a keyboard sample for latency purposes
// only; it never perturbs the state machine (spec.md §4.7).
func (a *Arena) HandleKeyboardEvent(event KeyboardEvent) {
	a.latency.LogKeyboardEvent(event.Timestamp, time.Now())
}

// step dispatches on the current MutableState, per spec.md §4.7's
// table. Called with a.mu held.
func (a *Arena) step(event TouchpadEvent) []MouseEvent {
	switch a.kind {
	case stateIdle, stateChain:
		return a.openContest(event)
	case stateMatching:
		return a.continueMatching(event)
	case stateForwarding:
		return a.continueForwarding(event)
	default:
		panic("gestures: step: invalid state")
	}
}

// openContest starts a fresh contest from Idle or Chain, examining the
// triggering event against every eligible factory's new Contender.
func (a *Arena) openContest(event TouchpadEvent) []MouseEvent {
	fromIdle := a.kind == stateIdle

	var contenders []Contender
	var matched []MatchedContender
	for _, f := range a.factories {
		if fromIdle && !f.StartFromIdle() {
			continue
		}
		c := f.NewContender()
		switch result := c.ExamineEvent(event); result.Kind {
		case ExamineKindContender:
			contenders = append(contenders, result.Contender)
		case ExamineKindMatched:
			matched = append(matched, result.Matched)
		case ExamineKindMismatch:
			glog.V(3).Infof("gestures: %s: immediate mismatch opening contest: %s", c.Name(), result.Reason)
		}
	}

	if len(contenders) == 0 && len(matched) == 0 {
		a.kind = idleOrChain(event)
		return nil
	}

	a.kind = stateMatching
	a.matching = matchingState{contenders: contenders, matched: matched, buffered: []TouchpadEvent{event}}
	return a.resolveMatching()
}

// continueMatching feeds event to every live contender and matched
// contender, verifying matched contenders before examining plain ones
// so that a contender which just matched this round is not also asked
// to verify the very event that matched it (spec.md §4.7 "verify
// before examine").
func (a *Arena) continueMatching(event TouchpadEvent) []MouseEvent {
	st := &a.matching
	st.buffered = append(st.buffered, event)

	var stillMatched []MatchedContender
	for _, m := range st.matched {
		switch v := m.VerifyEvent(event); v.Kind {
		case VerifyKindMatched:
			stillMatched = append(stillMatched, v.Matched)
		case VerifyKindMismatch:
			glog.V(3).Infof("gestures: %s: dropped from contest: %s", m.Name(), v.Reason)
		}
	}
	st.matched = stillMatched

	var stillContending []Contender
	for _, c := range st.contenders {
		switch result := c.ExamineEvent(event); result.Kind {
		case ExamineKindContender:
			stillContending = append(stillContending, result.Contender)
		case ExamineKindMatched:
			st.matched = append(st.matched, result.Matched)
		case ExamineKindMismatch:
			glog.V(3).Infof("gestures: %s: dropped from contest: %s", c.Name(), result.Reason)
		}
	}
	st.contenders = stillContending

	return a.resolveMatching()
}

// resolveMatching checks whether the contest has narrowed to exactly
// one survivor and, if so, promotes it to Forwarding by replaying the
// buffer it accumulated since the contest opened. If every contender
// has dropped out, the arena falls back to Idle or Chain depending on
// whether contacts are still down.
func (a *Arena) resolveMatching() []MouseEvent {
	st := &a.matching
	if len(st.contenders) > 0 || len(st.matched) != 1 {
		if len(st.contenders) == 0 && len(st.matched) == 0 {
			a.kind = idleOrChain(st.buffered[len(st.buffered)-1])
		}
		return nil
	}

	winner := st.matched[0]
	buffered := st.buffered
	a.matching = matchingState{}

	events, w := winner.ProcessBufferedEvents(buffered)
	if w == nil {
		a.kind = idleOrChain(buffered[len(buffered)-1])
		return events
	}
	a.kind = stateForwarding
	a.forwarding = forwardingState{winner: w}
	return events
}

// continueForwarding hands event to the current winner and applies the
// ContinueGesture / EndGesture result (spec.md §4.7).
func (a *Arena) continueForwarding(event TouchpadEvent) []MouseEvent {
	result := a.forwarding.winner.ProcessNewEvent(event)
	switch result.Kind {
	case WinnerKindContinue:
		a.forwarding.winner = result.Winner
		if result.GeneratedMM != nil {
			return []MouseEvent{*result.GeneratedMM}
		}
		return nil
	case WinnerKindEnd:
		a.forwarding = forwardingState{}
		switch result.EndReason {
		case EndWithGeneratedEvent:
			a.kind = idleOrChain(event)
			return []MouseEvent{*result.EndEvent}
		case EndWithNoEvent:
			a.kind = idleOrChain(event)
			return nil
		case EndWithUnconsumedEvent:
			// The event that ended the gesture belongs to whatever
			// comes next; re-enter the step function immediately
			// instead of waiting for a new sample. Its own Contacts
			// decide Idle vs Chain once step dispatches back here.
			a.kind = idleOrChain(*result.UnconsumedEvent)
			return a.step(*result.UnconsumedEvent)
		default:
			panic("gestures: continueForwarding: invalid end reason")
		}
	default:
		panic("gestures: continueForwarding: invalid winner result")
	}
}

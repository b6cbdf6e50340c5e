// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

// Contender examines one touchpad sample at a time while a contest is
// open, deciding whether it is still plausibly the gesture in progress
// (spec.md §4.7).
type Contender interface {
	// ExamineEvent inspects event and returns either a still-live
	// Contender, a MatchedContender that has committed to this gesture
	// pending verification of following events, or a mismatch.
	ExamineEvent(event TouchpadEvent) ExamineResult
	// Name identifies the contender's gesture kind in logs.
	Name() string
}

// ContenderFactory produces a fresh Contender for a new contest. Each
// contest gets its own instances so contenders can hold mutable
// per-contest state (e.g. initial contact positions).
type ContenderFactory interface {
	NewContender() Contender
	// StartFromIdle reports whether this gesture may begin a contest
	// that opens directly from the Idle state, as opposed to only ever
	// following another recognized gesture while contacts stay down.
	StartFromIdle() bool
}

// ExamineResultKind tags the variant held by an ExamineResult.
type ExamineResultKind int

const (
	ExamineKindContender ExamineResultKind = iota
	ExamineKindMatched
	ExamineKindMismatch
)

// ExamineResult is the sum type returned by Contender.ExamineEvent.
type ExamineResult struct {
	Kind      ExamineResultKind
	Contender Contender
	Matched   MatchedContender
	Reason    string
}

func StillContending(c Contender) ExamineResult {
	return ExamineResult{Kind: ExamineKindContender, Contender: c}
}

func Matched(m MatchedContender) ExamineResult {
	return ExamineResult{Kind: ExamineKindMatched, Matched: m}
}

func Mismatch(reason string) ExamineResult {
	return ExamineResult{Kind: ExamineKindMismatch, Reason: reason}
}

// MatchedContender has provisionally recognized its gesture and is
// waiting either to be confirmed as the sole remaining contender (and
// asked to replay the buffer) or to be disqualified by a later event
// (spec.md §4.7).
type MatchedContender interface {
	// VerifyEvent re-checks a buffered event against the now-stronger
	// commitment of having matched. It never returns to plain
	// Contender status: a MatchedContender either stays matched or
	// drops out.
	VerifyEvent(event TouchpadEvent) VerifyResult
	// ProcessBufferedEvents runs once, when this is the sole surviving
	// contender: it replays every event buffered since the contest
	// opened and returns the mouse events they produce along with a
	// Winner to continue receiving new events directly.
	ProcessBufferedEvents(buffered []TouchpadEvent) ([]MouseEvent, Winner)
	Name() string
}

// VerifyResultKind tags the variant held by a VerifyResult.
type VerifyResultKind int

const (
	VerifyKindMatched VerifyResultKind = iota
	VerifyKindMismatch
)

// VerifyResult is the sum type returned by MatchedContender.VerifyEvent.
type VerifyResult struct {
	Kind    VerifyResultKind
	Matched MatchedContender
	Reason  string
}

func StillMatched(m MatchedContender) VerifyResult {
	return VerifyResult{Kind: VerifyKindMatched, Matched: m}
}

func VerifyMismatch(reason string) VerifyResult {
	return VerifyResult{Kind: VerifyKindMismatch, Reason: reason}
}

// Winner has exclusive control of the input stream until it ends the
// gesture (spec.md §4.7).
type Winner interface {
	ProcessNewEvent(event TouchpadEvent) WinnerResult
	Name() string
}

// EndGestureReason distinguishes the three ways a Winner can relinquish
// control, per spec.md §4.7.
type EndGestureReason int

const (
	// EndWithGeneratedEvent: the winner consumed the event and produced
	// one last MouseEvent before ending.
	EndWithGeneratedEvent EndGestureReason = iota
	// EndWithUnconsumedEvent: the event that ended the gesture was not
	// part of it and must be re-examined by a new contest immediately,
	// without waiting for the next input sample.
	EndWithUnconsumedEvent
	// EndWithNoEvent: the gesture ended with nothing left to report.
	EndWithNoEvent
)

// WinnerResultKind tags the variant held by a WinnerResult.
type WinnerResultKind int

const (
	WinnerKindContinue WinnerResultKind = iota
	WinnerKindEnd
)

// WinnerResult is the sum type returned by Winner.ProcessNewEvent.
type WinnerResult struct {
	Kind WinnerResultKind

	// Set when Kind == WinnerKindContinue.
	Winner      Winner
	GeneratedMM *MouseEvent

	// Set when Kind == WinnerKindEnd.
	EndReason       EndGestureReason
	EndEvent        *MouseEvent
	UnconsumedEvent *TouchpadEvent
}

func ContinueGesture(next Winner, event *MouseEvent) WinnerResult {
	return WinnerResult{Kind: WinnerKindContinue, Winner: next, GeneratedMM: event}
}

func EndGestureWithEvent(event MouseEvent) WinnerResult {
	return WinnerResult{Kind: WinnerKindEnd, EndReason: EndWithGeneratedEvent, EndEvent: &event}
}

func EndGestureUnconsumed(event TouchpadEvent) WinnerResult {
	return WinnerResult{Kind: WinnerKindEnd, EndReason: EndWithUnconsumedEvent, UnconsumedEvent: &event}
}

func EndGestureNoEvent() WinnerResult {
	return WinnerResult{Kind: WinnerKindEnd, EndReason: EndWithNoEvent}
}

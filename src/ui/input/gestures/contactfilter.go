// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gestures

// ContactFilter strips contacts that should never reach a contender,
// e.g. palm-rejected touches reported by firmware that individual
// gesture implementations should not have to know about (spec.md §4.7
// supplement: the original driver hosts this as a pluggable hook on
// the arena rather than baking the policy into every contender).
type ContactFilter interface {
	Filter(contacts []Contact) []Contact
}

// ContactFilterFunc adapts a function to a ContactFilter.
type ContactFilterFunc func([]Contact) []Contact

func (f ContactFilterFunc) Filter(contacts []Contact) []Contact { return f(contacts) }

// NoFilter passes every contact through unchanged.
var NoFilter ContactFilter = ContactFilterFunc(func(c []Contact) []Contact { return c })

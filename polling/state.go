// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polling

import (
	"bytes"
	"time"

	pn532 "github.com/ZaparooProject/go-pn532-core"
)

// EventKind says what happened to the card in the field.
type EventKind int

const (
	// EventArrived is sent when a card enters the field.
	EventArrived EventKind = iota
	// EventRemoved is sent when a card has been missing for
	// RemovalThreshold polls, or immediately when another card replaces it.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventArrived:
		return "arrived"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a card arrival or removal.
type Event struct {
	At     time.Time
	Target *pn532.Target // nil for removals
	UID    []byte
	Kind   EventKind
}

// CardState tracks the card currently in the field
type CardState struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Target    *pn532.Target
	Misses    int
	Present   bool
}

// UID returns the present card's UID, or nil.
func (cs *CardState) UID() []byte {
	if cs.Target == nil {
		return nil
	}
	return cs.Target.UID
}

// observe folds one poll result into the state and returns the events it
// causes. A nil target is an empty poll.
func (cs *CardState) observe(target *pn532.Target, at time.Time, threshold int) []Event {
	var events []Event

	if target == nil {
		if !cs.Present {
			return nil
		}
		cs.Misses++
		if cs.Misses >= threshold {
			events = append(events, cs.removed(at))
		}
		return events
	}

	if cs.Present && bytes.Equal(cs.UID(), target.UID) {
		cs.Misses = 0
		cs.LastSeen = at
		cs.Target = target
		return nil
	}
	if cs.Present {
		events = append(events, cs.removed(at))
	}

	cs.Present = true
	cs.Target = target
	cs.FirstSeen = at
	cs.LastSeen = at
	cs.Misses = 0
	return append(events, Event{Kind: EventArrived, UID: target.UID, Target: target, At: at})
}

// removed resets the state to idle and returns the removal event.
func (cs *CardState) removed(at time.Time) Event {
	ev := Event{Kind: EventRemoved, UID: cs.UID(), At: at}
	*cs = CardState{}
	return ev
}

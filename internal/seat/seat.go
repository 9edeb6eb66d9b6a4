// Copyright 2025 The vtd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux && cgo

// Package seat implements component G: the ordered session list, the
// active-session scheduler, the display list, and the four hotkey
// grabs, tied to one VT's wake state.
package seat

import (
	"github.com/rs/zerolog"

	"github.com/vtdaemon/vtd/internal/inputagg"
	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vt"
	"github.com/vtdaemon/vtd/internal/vtderr"
	"github.com/vtdaemon/vtd/internal/vtdlog"
	"github.com/vtdaemon/vtd/internal/xkb"
)

// EventType names the kind of SessionEvent delivered to a session
// callback.
type EventType int

const (
	EventActivate EventType = iota
	EventDeactivate
	EventDisplayNew
	EventDisplayGone
	EventUnregister
)

// SessionEvent is the client-visible session event (§6.2).
type SessionEvent struct {
	Type    EventType
	Display *Display
}

// SessionCallback is the collaborator a registered session supplies;
// a non-nil return on EventDeactivate is a veto, as for the VT layer.
type SessionCallback func(ev SessionEvent) error

// Session is one registered session on a seat.
type Session struct {
	seat    *Seat
	cb      SessionCallback
	enabled bool
	isDummy bool
}

func (s *Session) Enabled() bool { return s.enabled }
func (s *Session) IsDummy() bool { return s.isDummy }

// Display is one output attached to a seat.
type Display struct {
	seat      *Seat
	Handle    interface{}
	activated bool
}

// SeatEventType names the seat-level notification (§6.2).
type SeatEventType int

const (
	SeatWakeUp SeatEventType = iota
	SeatSleep
	SeatHup
)

// GrabAction names one of the four fixed hotkey actions (§4.G).
type GrabAction int

const (
	GrabSessionNext GrabAction = iota
	GrabSessionPrev
	GrabSessionClose
	GrabTerminalNew
)

// Grab is a (mod-mask, keysyms, action) hotkey definition. It matches
// an InputEvent when Mods equals the event's mod mask exactly and any
// of Keysyms equals any of the event's keysyms.
type Grab struct {
	Mods    xkb.ModMask
	Keysyms []uint32
	Action  GrabAction
}

// TerminalFactory is the out-of-scope collaborator the terminal-new
// grab asks to mint a fresh session callback.
type TerminalFactory interface {
	CreateSession() (SessionCallback, error)
}

// Seat is component G.
type Seat struct {
	name string
	l    *loop.Loop
	agg  *inputagg.Aggregator
	v    vt.VT

	displays []*Display
	sessions []*Session
	current  *Session
	dummy    *Session

	awake      bool
	sessionMax int

	grabs      []Grab
	factory    TerminalFactory
	hookHandle inputagg.HookHandle

	onSeatEvent func(SeatEventType)

	log zerolog.Logger
}

// New creates a seat and installs its hotkey filter on agg's hook list.
// AttachVT must be called separately once the VT backend is chosen,
// since the chooser itself needs a Client (the Seat implements
// vt.Client via OnVTEvent).
func New(l *loop.Loop, name string, agg *inputagg.Aggregator, sessionMax int, grabs []Grab, factory TerminalFactory, onSeatEvent func(SeatEventType)) *Seat {
	s := &Seat{
		l:          l,
		name:       name,
		agg:        agg,
		sessionMax: sessionMax,
		grabs:      grabs,
		factory:    factory,
		onSeatEvent: onSeatEvent,
		log:        vtdlog.For("seat").With().Str("seat", name).Logger(),
	}
	s.hookHandle = agg.RegisterCallback(s.handleInput)
	return s
}

// AttachVT records the VT backend this seat owns.
func (s *Seat) AttachVT(v vt.VT) { s.v = v }

// InstallDummy registers a session that is always eligible whenever no
// other enabled session exists, per §3.1's dummy-session note.
func (s *Seat) InstallDummy(cb SessionCallback) *Session {
	sess := &Session{seat: s, cb: cb, enabled: true, isDummy: true}
	s.dummy = sess
	s.sessions = append(s.sessions, sess)
	if s.current == nil {
		s.current = sess
	}
	return sess
}

// RegisterSession appends a new session at the tail of the ordered
// list, enforcing the per-seat cap, and fires display-new for every
// already-activated display.
func (s *Seat) RegisterSession(cb SessionCallback) (*Session, error) {
	if s.sessionMax > 0 && len(s.sessions) >= s.sessionMax {
		return nil, vtderr.New(vtderr.CapExceeded, "seat.RegisterSession", nil)
	}
	sess := &Session{seat: s, cb: cb, enabled: false}
	s.sessions = append(s.sessions, sess)
	for _, d := range s.displays {
		if d.activated {
			_ = s.callSession(sess, SessionEvent{Type: EventDisplayNew, Display: d})
		}
	}
	return sess, nil
}

// UnregisterSession runs pick-next if sess was current, removes it from
// the list, fires one unregister notification, and nulls its seat
// pointer.
func (s *Seat) UnregisterSession(sess *Session) {
	if s.current == sess {
		s.pickNext(sess)
	}
	for i, cur := range s.sessions {
		if cur == sess {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	_ = s.callSession(sess, SessionEvent{Type: EventUnregister})
	sess.seat = nil
}

// Enable toggles sess eligible; if the dummy was current, enabling a
// real session activates it immediately.
func (s *Seat) Enable(sess *Session) {
	sess.enabled = true
	if s.current == s.dummy && s.dummy != nil {
		_ = s.Activate(sess)
	}
}

// Disable toggles sess ineligible.
func (s *Seat) Disable(sess *Session) {
	sess.enabled = false
}

// Activate makes sess current, firing deactivate on the old current and
// activate on sess if the seat is awake.
func (s *Seat) Activate(sess *Session) error {
	if sess == s.current {
		return nil
	}
	if !sess.enabled {
		return vtderr.New(vtderr.InvalidArgument, "seat.Activate", nil)
	}
	if s.awake {
		if s.current != nil {
			_ = s.callSession(s.current, SessionEvent{Type: EventDeactivate})
		}
		_ = s.callSession(sess, SessionEvent{Type: EventActivate})
	}
	s.current = sess
	return nil
}

// Deactivate fires deactivate on sess (if current and awake) then runs
// pick-next.
func (s *Seat) Deactivate(sess *Session) error {
	if sess != s.current {
		return vtderr.New(vtderr.InvalidArgument, "seat.Deactivate", nil)
	}
	if s.awake {
		_ = s.callSession(sess, SessionEvent{Type: EventDeactivate})
	}
	s.pickNext(sess)
	return nil
}

// pickNext implements the rotation rule: starting just after excluding,
// wrapping at the tail, skipping excluding and the dummy, pick the
// first enabled session; fall back to the dummy; fire activate on the
// result if the seat is awake.
func (s *Seat) pickNext(excluding *Session) {
	next := s.rotate(excluding, 1)
	s.current = next
	if s.awake && next != nil {
		_ = s.callSession(next, SessionEvent{Type: EventActivate})
	}
}

func (s *Seat) rotate(from *Session, dir int) *Session {
	n := len(s.sessions)
	if n == 0 {
		return nil
	}
	start := -1
	for i, sess := range s.sessions {
		if sess == from {
			start = i
			break
		}
	}
	if start < 0 {
		for _, cand := range s.sessions {
			if cand == from || cand == s.dummy {
				continue
			}
			if cand.enabled {
				return cand
			}
		}
		return s.dummy
	}
	for off := 1; off <= n; off++ {
		idx := ((start+dir*off)%n + n) % n
		cand := s.sessions[idx]
		if cand == from || cand == s.dummy {
			continue
		}
		if cand.enabled {
			return cand
		}
	}
	return s.dummy
}

func (s *Seat) sessionNext() {
	if s.current == nil {
		return
	}
	if next := s.rotate(s.current, 1); next != nil {
		_ = s.Activate(next)
	}
}

func (s *Seat) sessionPrev() {
	if s.current == nil {
		return
	}
	if prev := s.rotate(s.current, -1); prev != nil {
		_ = s.Activate(prev)
	}
}

// AddDisplay links d into the seat's display list, activates it, and
// fires display-new on every registered session.
func (s *Seat) AddDisplay(handle interface{}) *Display {
	d := &Display{seat: s, Handle: handle}
	s.displays = append(s.displays, d)
	d.activated = true
	for _, sess := range s.sessions {
		_ = s.callSession(sess, SessionEvent{Type: EventDisplayNew, Display: d})
	}
	return d
}

// RemoveDisplay fires display-gone on every session (if d had been
// activated) and unlinks it.
func (s *Seat) RemoveDisplay(d *Display) {
	if d.activated {
		for _, sess := range s.sessions {
			_ = s.callSession(sess, SessionEvent{Type: EventDisplayGone, Display: d})
		}
	}
	for i, cur := range s.displays {
		if cur == d {
			s.displays = append(s.displays[:i], s.displays[i+1:]...)
			return
		}
	}
}

// OnVTEvent implements vt.Client: the seat's VT hookup (§4.G).
func (s *Seat) OnVTEvent(ev vt.Event) int {
	switch ev.Action {
	case vt.ActionActivate:
		s.awake = true
		if s.onSeatEvent != nil {
			s.onSeatEvent(SeatWakeUp)
		}
		s.agg.WakeUp()
		for _, d := range s.displays {
			if !d.activated {
				d.activated = true
				for _, sess := range s.sessions {
					_ = s.callSession(sess, SessionEvent{Type: EventDisplayNew, Display: d})
				}
			}
		}
		if s.current != nil {
			_ = s.callSession(s.current, SessionEvent{Type: EventActivate})
		}
		return 0
	case vt.ActionDeactivate:
		if s.current != nil {
			if err := s.callSession(s.current, SessionEvent{Type: EventDeactivate}); err != nil && !ev.Force {
				return 1
			}
		}
		s.agg.Sleep()
		if s.onSeatEvent != nil {
			s.onSeatEvent(SeatSleep)
		}
		s.awake = false
		return 0
	case vt.ActionHup:
		if s.onSeatEvent != nil {
			s.onSeatEvent(SeatHup)
		}
		return 0
	}
	return 0
}

func (s *Seat) callSession(sess *Session, ev SessionEvent) error {
	if sess == nil || sess.cb == nil {
		return nil
	}
	err := sess.cb(ev)
	if err != nil {
		s.log.Warn().Err(err).Msg("session callback returned error")
	}
	return err
}

// handleInput is the seat's registered aggregator hook: it matches the
// four grabs in turn and performs the first match.
func (s *Seat) handleInput(ev *xkb.InputEvent) {
	if ev.Handled {
		return
	}
	for _, g := range s.grabs {
		if matchGrab(g, ev) {
			ev.Handled = true
			s.performGrab(g)
			return
		}
	}
}

func matchGrab(g Grab, ev *xkb.InputEvent) bool {
	if ev.Mods != g.Mods {
		return false
	}
	for _, want := range g.Keysyms {
		for _, got := range ev.Keysyms {
			if want == got {
				return true
			}
		}
	}
	return false
}

func (s *Seat) performGrab(g Grab) {
	switch g.Action {
	case GrabSessionNext:
		s.sessionNext()
	case GrabSessionPrev:
		s.sessionPrev()
	case GrabSessionClose:
		if s.current != nil && s.current != s.dummy {
			s.UnregisterSession(s.current)
		}
	case GrabTerminalNew:
		if s.factory == nil {
			return
		}
		cb, err := s.factory.CreateSession()
		if err != nil {
			s.log.Warn().Err(err).Msg("terminal factory failed to create session")
			return
		}
		sess, err := s.RegisterSession(cb)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to register new terminal session")
			return
		}
		s.Enable(sess)
		_ = s.Activate(sess)
	}
}

// Close releases the seat's aggregator hook registration.
func (s *Seat) Close() {
	s.agg.UnregisterCallback(s.hookHandle)
}

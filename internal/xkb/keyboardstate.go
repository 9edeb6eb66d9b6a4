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

package xkb

// KeyState is the per-record key transition reported by the evdev driver.
type KeyState int

const (
	Released KeyState = iota
	Pressed
	Repeated
)

// InputEvent is the per-dispatch value fanned out to input hook
// callbacks. It is not retained across the callback fan-out; callers
// that need to keep one (the per-device repeat buffer) must copy it.
type InputEvent struct {
	// Handled is mutable: any hook callback may set it to true, but
	// every registered callback still runs regardless.
	Handled bool

	// Keycode is the raw evdev keycode (not yet offset by +8).
	Keycode uint16

	// ASCII is a best-effort 7-bit representation of the first keysym,
	// or 0 if it has none (modifier keys and non-printable keysyms
	// always yield 0).
	ASCII byte

	Mods       ModMask
	Keysyms    []uint32
	Codepoints []rune
}

// KeyboardState is one device's XKB automaton, layered on a shared Keymap.
type KeyboardState struct {
	keymap *Keymap
	state  *State

	// ledWriter, if set, is invoked whenever the LED subset changes so
	// the owning device can write EV_LED records back to the kernel.
	ledWriter func(num, caps, scroll bool)
	lastNum, lastCaps, lastScroll bool
}

// NewKeyboardState creates a KeyboardState with a fresh xkb_state
// automaton over the given (already-referenced) keymap.
func NewKeyboardState(keymap *Keymap) *KeyboardState {
	return &KeyboardState{keymap: keymap, state: keymap.NewState()}
}

// Destroy releases the underlying xkb_state.
func (ks *KeyboardState) Destroy() {
	ks.state.Destroy()
}

// SetLEDWriter installs the callback invoked on LED subset change.
func (ks *KeyboardState) SetLEDWriter(fn func(num, caps, scroll bool)) {
	ks.ledWriter = fn
}

// KeyRepeats reports whether rawCode is flagged repeatable in the keymap.
func (ks *KeyboardState) KeyRepeats(rawCode uint16) bool {
	return ks.keymap.KeyRepeats(uint32(rawCode) + 8)
}

// Process implements the exact contract of spec.md §4.C: repeated key
// states are discarded (handled by the per-device timer instead); the
// keysym list is queried before the automaton is updated; an LED
// subset change is written back; and an event is produced only for a
// press that yielded at least one keysym.
func (ks *KeyboardState) Process(keyState KeyState, rawCode uint16) (*InputEvent, bool) {
	if keyState == Repeated {
		return nil, false
	}

	keycode := uint32(rawCode) + 8

	keysyms, codepoints := ks.state.Syms(keycode)

	dir := KeyUp
	if keyState == Pressed {
		dir = KeyDown
	}
	ks.state.UpdateKey(keycode, dir)

	ks.syncLEDs()

	if len(keysyms) == 0 || keyState == Released {
		return nil, false
	}

	ev := &InputEvent{
		Keycode:    rawCode,
		Mods:       ks.state.Mods(),
		Keysyms:    keysyms,
		Codepoints: codepoints,
	}
	if len(codepoints) > 0 {
		ev.ASCII = asciiOf(codepoints[0])
	}
	return ev, true
}

// SyncKey feeds a single Down/Up transition into the automaton without
// producing an InputEvent or an LED writeback. Used by internal/inputdev
// to replay the sleep/wake pressed-bit delta (P4): the kernel already
// knows about these transitions, there is nothing to report upward.
func (ks *KeyboardState) SyncKey(rawCode uint16, down bool) {
	keycode := uint32(rawCode) + 8
	dir := KeyUp
	if down {
		dir = KeyDown
	}
	ks.state.UpdateKey(keycode, dir)
}

// SyncLEDs resets the last-known LED subset to match a freshly-queried
// hardware snapshot, without invoking the LED writer. Called once on
// Wake so the next genuine LED change (not this resync) is what
// triggers a writeback.
func (ks *KeyboardState) SyncLEDs(num, caps, scroll bool) {
	ks.lastNum, ks.lastCaps, ks.lastScroll = num, caps, scroll
}

func (ks *KeyboardState) syncLEDs() {
	num := ks.state.LEDActive(LEDNum)
	caps := ks.state.LEDActive(LEDCaps)
	scroll := ks.state.LEDActive(LEDScroll)
	if num == ks.lastNum && caps == ks.lastCaps && scroll == ks.lastScroll {
		return
	}
	ks.lastNum, ks.lastCaps, ks.lastScroll = num, caps, scroll
	if ks.ledWriter != nil {
		ks.ledWriter(num, caps, scroll)
	}
}

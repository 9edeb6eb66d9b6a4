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

/*
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import "unsafe"

// KeyDirection is the direction passed to xkb_state_update_key.
type KeyDirection int

const (
	KeyUp   KeyDirection = C.XKB_KEY_UP
	KeyDown KeyDirection = C.XKB_KEY_DOWN
)

// State wraps one xkb_state automaton, private to a single device.
type State struct {
	keymap *Keymap

	ptr *C.struct_xkb_state

	// indices resolved once against the keymap, avoiding a string lookup
	// (xkb_keymap_mod_get_index) on every key event.
	idxShift, idxLock, idxCtrl, idxAlt, idxLogo C.xkb_mod_index_t
}

func (s *State) resolveModIndices() {
	s.idxShift = C.xkb_keymap_mod_get_index(s.keymap.ptr, cstr(xkbModNameShift))
	s.idxLock = C.xkb_keymap_mod_get_index(s.keymap.ptr, cstr(xkbModNameCaps))
	s.idxCtrl = C.xkb_keymap_mod_get_index(s.keymap.ptr, cstr(xkbModNameCtrl))
	s.idxAlt = C.xkb_keymap_mod_get_index(s.keymap.ptr, cstr(xkbModNameAlt))
	s.idxLogo = C.xkb_keymap_mod_get_index(s.keymap.ptr, cstr(xkbModNameLogo))
}

// cstr returns a NUL-terminated copy of s in Go memory, valid for the
// cgo call it is passed to; used for the fixed modifier names (resolved
// once per State) and the LED names (looked up on every LEDActive call).
func cstr(s string) *C.char {
	b := []byte(s)
	b = append(b, 0)
	return (*C.char)(unsafe.Pointer(&b[0]))
}

// Destroy releases the xkb_state and the keymap reference it held.
func (s *State) Destroy() {
	if s.ptr == nil {
		return
	}
	C.xkb_state_unref(s.ptr)
	s.ptr = nil
	s.keymap.Unref()
}

// UpdateKey feeds one Down/Up transition for keycode (the XKB keycode,
// already offset by +8 from the raw evdev code) into the automaton.
func (s *State) UpdateKey(keycode uint32, dir KeyDirection) {
	C.xkb_state_update_key(s.ptr, C.xkb_keycode_t(keycode), C.enum_xkb_key_direction(dir))
}

// Syms returns the keysyms currently bound to keycode in the automaton's
// effective layout/level, and their UTF-32 codepoints (InvalidCodepoint
// where a keysym has no Unicode mapping).
func (s *State) Syms(keycode uint32) (keysyms []uint32, codepoints []rune) {
	var raw *C.xkb_keysym_t
	n := C.xkb_state_key_get_syms(s.ptr, C.xkb_keycode_t(keycode), &raw)
	if n <= 0 || raw == nil {
		return nil, nil
	}
	slice := unsafe.Slice(raw, int(n))
	keysyms = make([]uint32, n)
	codepoints = make([]rune, n)
	for i, ks := range slice {
		keysyms[i] = uint32(ks)
		cp := C.xkb_keysym_to_utf32(ks)
		if cp == 0 {
			codepoints[i] = InvalidCodepoint
		} else {
			codepoints[i] = rune(cp)
		}
	}
	return keysyms, codepoints
}

// Mods returns the core's fixed modifier mask derived from the
// automaton's currently effective modifiers.
func (s *State) Mods() ModMask {
	var m ModMask
	if s.modActive(s.idxShift) {
		m |= ModShift
	}
	if s.modActive(s.idxLock) {
		m |= ModLock
	}
	if s.modActive(s.idxCtrl) {
		m |= ModControl
	}
	if s.modActive(s.idxAlt) {
		m |= ModAlt
	}
	if s.modActive(s.idxLogo) {
		m |= ModLogo
	}
	return m
}

func (s *State) modActive(idx C.xkb_mod_index_t) bool {
	if idx == C.XKB_MOD_INVALID {
		return false
	}
	return C.xkb_state_mod_index_is_active(s.ptr, idx, C.XKB_STATE_MODS_EFFECTIVE) == 1
}

// LED names the three LEDs the core drives back to the device.
type LED int

const (
	LEDNum LED = iota
	LEDCaps
	LEDScroll
)

var ledNames = [...]string{"Num Lock", "Caps Lock", "Scroll Lock"}

// LEDActive reports whether led is currently lit in the automaton.
func (s *State) LEDActive(led LED) bool {
	idx := C.xkb_keymap_led_get_index(s.keymap.ptr, cstr(ledNames[led]))
	if idx == C.XKB_LED_INVALID {
		return false
	}
	return C.xkb_state_led_index_is_active(s.ptr, idx) == 1
}

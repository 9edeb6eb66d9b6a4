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

package xkb

import "unicode"

// ModMask is the core's fixed, bit-stable modifier mask. No other
// modifiers are surfaced, regardless of what the compiled keymap defines.
type ModMask uint8

const (
	ModShift ModMask = 1 << iota
	ModLock          // caps lock
	ModControl
	ModAlt
	ModLogo // super/windows/command key
)

// standard XKB modifier names, used to look up each bit's index in a
// compiled keymap via xkb_keymap_mod_get_index.
const (
	xkbModNameShift = "Shift"
	xkbModNameCaps  = "Lock"
	xkbModNameCtrl  = "Control"
	xkbModNameAlt   = "Mod1"
	xkbModNameLogo  = "Mod4"
)

// asciiOf returns a best-effort 7-bit representation of codepoint, or 0
// if it has none. Modifier keysyms carry no UTF-32 codepoint and arrive
// here as InvalidCodepoint; they, and printable-range misses such as
// control characters, yield 0.
func asciiOf(codepoint rune) byte {
	if codepoint <= 0 || codepoint >= 0x80 {
		return 0
	}
	if !unicode.IsPrint(codepoint) {
		return 0
	}
	return byte(codepoint)
}

// InvalidCodepoint is the sentinel stored in place of a keysym's UTF-32
// codepoint when the keysym has no Unicode mapping.
const InvalidCodepoint rune = -1

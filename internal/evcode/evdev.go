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

//go:build linux

package evcode

// Event type numbers from <linux/input-event-codes.h>. Only EV_KEY and
// EV_LED are acted on by the core; every other type is discarded at the
// InputDevice read loop per spec.md's stated non-support of mice/switches.
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_ABS = 0x03
	EV_MSC = 0x04
	EV_SW  = 0x05
	EV_LED = 0x11
	EV_SND = 0x12
	EV_REP = 0x14
	EV_FF  = 0x15
	EV_MAX = 0x1f
	EV_CNT = EV_MAX + 1
)

// Key state values carried in input_event.Value for EV_KEY records.
const (
	KeyReleased = 0
	KeyPressed  = 1
	KeyRepeated = 2
)

// LED numbers written back via EV_LED records.
const (
	LED_NUML    = 0x00
	LED_CAPSL   = 0x01
	LED_SCROLLL = 0x02
	LED_MAX     = 0x0f
	LED_CNT     = LED_MAX + 1
)

// A representative span of evdev keyboard key codes, enough to recognize
// a "normal keyboard key" during capability probe and to name the
// function-row/modifier codes the VT hotkey filter inspects.
const (
	KEY_ESC       = 1
	KEY_1         = 2
	KEY_A         = 30
	KEY_LEFTCTRL  = 29
	KEY_LEFTSHIFT = 42
	KEY_LEFTALT   = 56
	KEY_LEFTMETA  = 125
	KEY_RIGHTCTRL = 97
	KEY_RIGHTALT  = 100
	KEY_RIGHTMETA = 126
	KEY_F1        = 59
	KEY_F2        = 60
	KEY_F3        = 61
	KEY_F4        = 62
	KEY_F5        = 63
	KEY_F6        = 64
	KEY_F7        = 65
	KEY_F8        = 66
	KEY_F9        = 67
	KEY_F10       = 68
	KEY_F11       = 87
	KEY_F12       = 88
	KEY_MAX       = 0x2ff
	KEY_CNT       = KEY_MAX + 1
)

// Ioctl request codes used by internal/inputdev to probe and drive a
// /dev/input/eventN node. 'E' (0x45) is the evdev ioctl magic.
var (
	EVIOCGVERSION = IOR('E', 0x01, int32(0))
	EVIOCGID      = IOR('E', 0x02, InputID{})
	EVIOCGREP     = IOR('E', 0x03, [2]uint32{})
	EVIOCSREP     = IOW('E', 0x03, [2]uint32{})
)

// EVIOCGBIT returns the ioctl code to read the evtype capability bitmap
// (evtype == 0 reads the set of supported event types themselves) into a
// buffer of the given byte length.
func EVIOCGBIT(evtype, length uint) uint {
	return IORSized(0x45, 0x20+evtype, length)
}

// EVIOCGKEY returns the ioctl code to read the current per-keycode
// pressed-bits snapshot into a buffer of the given byte length.
func EVIOCGKEY(length uint) uint {
	return IORSized(0x45, 0x18, length)
}

// EVIOCGLED returns the ioctl code to read the current LED bitmask into a
// buffer of the given byte length.
func EVIOCGLED(length uint) uint {
	return IORSized(0x45, 0x19, length)
}

// InputID mirrors struct input_id.
type InputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// RawEvent mirrors struct input_event on a 64-bit Linux system: two
// timeval fields followed by type, code, value.
type RawEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// TestBit reports whether bit pos is set in the evdev capability buffer b.
func TestBit(b []byte, pos uint) bool {
	idx := pos / 8
	if int(idx) >= len(b) {
		return false
	}
	return b[idx]&(1<<(pos%8)) != 0
}

// maxCodePerType names the highest valid code for the event types the
// core cares about, mirroring the per-type *_MAX constants in
// <linux/input-event-codes.h>.
var maxCodePerType = map[uint16]uint{
	EV_SYN: 0x0f,
	EV_KEY: KEY_MAX,
	EV_LED: LED_MAX,
}

// MaxCode reports the highest valid code for evtype, if the core has an
// opinion about it.
func MaxCode(evtype uint16) (uint, bool) {
	v, ok := maxCodePerType[evtype]
	return v, ok
}

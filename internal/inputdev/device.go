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

// Package inputdev drives one /dev/input/eventN node: capability probe,
// batch reads of input_event records on top of internal/loop, sleep/wake
// reconciliation against the kernel-reported pressed-key bitmap, and the
// per-device auto-repeat timer. The keymap/automaton side of things is
// internal/xkb; inputdev owns the fd, the loop watch, and the repeat
// timer that xkb knows nothing about.
package inputdev

import (
	"encoding/binary"
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/evcode"
	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vtdlog"
	"github.com/vtdaemon/vtd/internal/xkb"

	"github.com/rs/zerolog"
)

const (
	recordBytes  = 24 // sizeof(struct input_event) on a 64-bit kernel
	blockRecords = 16
)

func bitmapLen(maxCode uint) int {
	return int((maxCode + 8) / 8)
}

// Probe opens path briefly to decide whether it is worth attaching as an
// InputDevice: it must advertise EV_KEY and at least one ordinary
// keyboard key (as opposed to only mouse/joystick buttons). has_leds
// records whether EV_LED is in the type bitmap.
func Probe(path string) (hasKeys, hasLEDs bool, err error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, false, err
	}
	defer unix.Close(fd)

	evBits := make([]byte, bitmapLen(evcode.EV_MAX))
	if err := ioctlBuf(fd, evcode.EVIOCGBIT(0, uint(len(evBits))), evBits); err != nil {
		return false, false, err
	}
	if !evcode.TestBit(evBits, evcode.EV_KEY) {
		return false, false, nil
	}
	hasLEDs = evcode.TestBit(evBits, evcode.EV_LED)

	keyBits := make([]byte, bitmapLen(evcode.KEY_MAX))
	if err := ioctlBuf(fd, evcode.EVIOCGBIT(evcode.EV_KEY, uint(len(keyBits))), keyBits); err != nil {
		return false, false, err
	}
	return hasInterestingKey(keyBits), hasLEDs, nil
}

// hasInterestingKey reports whether bits advertises at least one key
// from the ordinary keyboard range, distinguishing a keyboard from a
// device that only exposes a couple of BTN_* codes.
func hasInterestingKey(bits []byte) bool {
	for _, code := range []uint{
		evcode.KEY_ESC, evcode.KEY_1, evcode.KEY_A,
		evcode.KEY_LEFTSHIFT, evcode.KEY_LEFTCTRL, evcode.KEY_F1,
	} {
		if evcode.TestBit(bits, code) {
			return true
		}
	}
	return false
}

// Device is one attached keyboard-capable evdev node.
type Device struct {
	path    string
	fd      int
	hasLEDs bool

	l     *loop.Loop
	watch *loop.FdWatch

	keymap *xkb.Keymap
	kstate *xkb.KeyboardState

	onEvent func(d *Device, ev *xkb.InputEvent)
	onGone  func(d *Device)

	repeatDelay, repeatRate time.Duration
	repeatTimer             *loop.TimerWatch
	repeatArmed             bool
	repeatKeycode           uint16
	repeatEvent             *xkb.InputEvent

	// sleepSnapshot holds the EVIOCGKEY bitmap captured at the most
	// recent Sleep, consumed and cleared by the next Wake.
	sleepSnapshot []byte

	log zerolog.Logger
}

// New creates a Device over a keymap already known to have useful
// capabilities (the caller runs Probe first). The device starts asleep
// (fd == -1); the owning aggregator calls Wake if it is itself awake.
func New(path string, hasLEDs bool, keymap *xkb.Keymap, repeatDelay, repeatRate time.Duration,
	onEvent func(d *Device, ev *xkb.InputEvent), onGone func(d *Device)) *Device {

	d := &Device{
		path:        path,
		fd:          -1,
		hasLEDs:     hasLEDs,
		keymap:      keymap.Ref(),
		onEvent:     onEvent,
		onGone:      onGone,
		repeatDelay: repeatDelay,
		repeatRate:  repeatRate,
		log:         vtdlog.For("inputdev").With().Str("path", path).Logger(),
	}
	d.kstate = xkb.NewKeyboardState(d.keymap)
	if hasLEDs {
		d.kstate.SetLEDWriter(d.writeLEDs)
	}
	return d
}

func (d *Device) Path() string { return d.path }

// Rfd is the device's registered fd, or -1 while asleep. Used by the
// aggregator to check the awake invariant (P3).
func (d *Device) Rfd() int { return d.fd }

// Wake opens the node and registers it for readiness; if this is not
// the first wake, it reconciles any key transitions that happened
// while the device was asleep against the kernel-reported snapshot.
func (d *Device) Wake(l *loop.Loop) error {
	if d.fd >= 0 {
		return nil
	}
	fd, err := unix.Open(d.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	d.fd = fd
	d.l = l

	if d.hasLEDs {
		ledBits := make([]byte, bitmapLen(evcode.LED_MAX))
		if err := ioctlBuf(fd, evcode.EVIOCGLED(uint(len(ledBits))), ledBits); err == nil {
			d.kstate.SyncLEDs(
				evcode.TestBit(ledBits, evcode.LED_NUML),
				evcode.TestBit(ledBits, evcode.LED_CAPSL),
				evcode.TestBit(ledBits, evcode.LED_SCROLLL),
			)
		}
	}

	if d.sleepSnapshot != nil {
		cur := make([]byte, bitmapLen(evcode.KEY_MAX))
		if err := ioctlBuf(fd, evcode.EVIOCGKEY(uint(len(cur))), cur); err == nil {
			d.reconcile(d.sleepSnapshot, cur)
		}
		d.sleepSnapshot = nil
	}

	w, err := l.AddFd(fd, loop.Readable, d.onReadable)
	if err != nil {
		unix.Close(fd)
		d.fd = -1
		return err
	}
	d.watch = w
	return nil
}

// reconcile feeds one XKB_KEY_DOWN or XKB_KEY_UP for every keycode whose
// pressed bit differs between before (at sleep time) and after (at this
// wake), so no key is left stuck in the automaton (P4).
func (d *Device) reconcile(before, after []byte) {
	n := len(before)
	if len(after) < n {
		n = len(after)
	}
	for i := 0; i < n; i++ {
		diff := before[i] ^ after[i]
		if diff == 0 {
			continue
		}
		for bit := uint(0); bit < 8; bit++ {
			if diff&(1<<bit) == 0 {
				continue
			}
			code := uint16(i)*8 + uint16(bit)
			down := after[i]&(1<<bit) != 0
			d.kstate.SyncKey(code, down)
		}
	}
}

// Sleep unregisters the watcher, stashes the pressed-key snapshot, and
// closes the fd. The repeat timer is disarmed: there is nothing to read
// events from until the next Wake.
func (d *Device) Sleep() {
	if d.fd < 0 {
		return
	}
	d.disarmRepeat()
	if d.watch != nil && d.l != nil {
		_ = d.l.RemoveFd(d.watch)
	}
	d.watch = nil

	snapshot := make([]byte, bitmapLen(evcode.KEY_MAX))
	if err := ioctlBuf(d.fd, evcode.EVIOCGKEY(uint(len(snapshot))), snapshot); err == nil {
		d.sleepSnapshot = snapshot
	}
	unix.Close(d.fd)
	d.fd = -1
}

// Destroy tears the device down permanently: sleeps it (closing the fd)
// and releases the XKB state and keymap reference.
func (d *Device) Destroy() {
	d.Sleep()
	d.kstate.Destroy()
	d.keymap.Unref()
}

func (d *Device) onReadable(w *loop.FdWatch, mask loop.ReadyMask) {
	if mask&(loop.Hup|loop.Err) != 0 {
		d.gone(io.ErrClosedPipe)
		return
	}

	buf := make([]byte, recordBytes*blockRecords)
	for {
		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			d.gone(err)
			return
		}
		if n == 0 {
			d.gone(io.EOF)
			return
		}
		if n%recordBytes != 0 {
			d.log.Warn().Int("bytes", n).Msg("partial input_event read, discarding block")
			return
		}

		count := n / recordBytes
		for i := 0; i < count; i++ {
			off := i * recordBytes
			typ := binary.LittleEndian.Uint16(buf[off+16 : off+18])
			if typ != evcode.EV_KEY {
				continue
			}
			code := binary.LittleEndian.Uint16(buf[off+18 : off+20])
			value := int32(binary.LittleEndian.Uint32(buf[off+20 : off+24]))
			d.handleKeyRecord(code, value)
		}
	}
}

func (d *Device) gone(err error) {
	d.log.Info().Err(err).Msg("input device detached")
	if d.onGone != nil {
		d.onGone(d)
	}
}

func (d *Device) handleKeyRecord(code uint16, value int32) {
	var state xkb.KeyState
	switch value {
	case evcode.KeyReleased:
		state = xkb.Released
	case evcode.KeyPressed:
		state = xkb.Pressed
	case evcode.KeyRepeated:
		state = xkb.Repeated
	default:
		return
	}

	ev, ok := d.kstate.Process(state, code)

	if state == xkb.Released {
		if d.repeatArmed && code == d.repeatKeycode {
			d.disarmRepeat()
		}
		return
	}
	if !ok {
		return
	}

	d.dispatch(ev)
	if d.kstate.KeyRepeats(code) {
		d.armRepeat(code, ev)
	}
}

func (d *Device) dispatch(ev *xkb.InputEvent) {
	ev.Handled = false
	if d.onEvent != nil {
		d.onEvent(d, ev)
	}
}

func (d *Device) armRepeat(code uint16, ev *xkb.InputEvent) {
	stored := *ev
	d.repeatKeycode = code
	d.repeatArmed = true
	d.repeatEvent = &stored

	spec := loop.TimerSpec{Initial: d.repeatDelay, Interval: d.repeatRate}
	if d.repeatTimer == nil {
		w, err := d.l.AddTimer(spec, d.onRepeatFire)
		if err != nil {
			d.log.Error().Err(err).Msg("failed to arm repeat timer")
			d.repeatArmed = false
			return
		}
		d.repeatTimer = w
		return
	}
	if err := d.l.UpdateTimer(d.repeatTimer, spec); err != nil {
		d.log.Error().Err(err).Msg("failed to rearm repeat timer")
	}
}

func (d *Device) disarmRepeat() {
	d.repeatArmed = false
	d.repeatEvent = nil
	if d.repeatTimer != nil && d.l != nil {
		_ = d.l.RemoveTimer(d.repeatTimer)
		d.repeatTimer = nil
	}
}

func (d *Device) onRepeatFire(expirations uint64) {
	if !d.repeatArmed || d.repeatEvent == nil {
		return
	}
	d.repeatEvent.Handled = false
	d.dispatch(d.repeatEvent)
}

func (d *Device) writeLEDs(num, caps, scroll bool) {
	if d.fd < 0 {
		return
	}
	d.writeLED(evcode.LED_NUML, num)
	d.writeLED(evcode.LED_CAPSL, caps)
	d.writeLED(evcode.LED_SCROLLL, scroll)
	d.writeSyn()
}

func (d *Device) writeLED(code uint16, on bool) {
	var v uint32
	if on {
		v = 1
	}
	buf := make([]byte, recordBytes)
	binary.LittleEndian.PutUint16(buf[16:18], evcode.EV_LED)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], v)
	if _, err := unix.Write(d.fd, buf); err != nil {
		d.log.Warn().Err(err).Msg("EV_LED write failed")
	}
}

func (d *Device) writeSyn() {
	buf := make([]byte, recordBytes)
	binary.LittleEndian.PutUint16(buf[16:18], evcode.EV_SYN)
	if _, err := unix.Write(d.fd, buf); err != nil {
		d.log.Warn().Err(err).Msg("SYN_REPORT write failed")
	}
}

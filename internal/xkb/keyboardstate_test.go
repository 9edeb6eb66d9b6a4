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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evdevKeyA is KEY_A (evdev code 30, per linux/input-event-codes.h).
const evdevKeyA = 30

// evdevLeftCtrl is KEY_LEFTCTRL (evdev code 29).
const evdevLeftCtrl = 29

func newTestKeyboardState(t *testing.T) *KeyboardState {
	t.Helper()
	ctx, err := NewContext()
	require.NoError(t, err)
	t.Cleanup(ctx.Unref)

	keymap, err := ctx.CompileDefault()
	require.NoError(t, err)
	t.Cleanup(keymap.Unref)

	ks := NewKeyboardState(keymap)
	t.Cleanup(ks.Destroy)
	return ks
}

func TestProcessPressProducesEventWithKeysym(t *testing.T) {
	ks := newTestKeyboardState(t)

	ev, ok := ks.Process(Pressed, evdevKeyA)
	require.True(t, ok)
	require.NotNil(t, ev)
	assert.Equal(t, uint16(evdevKeyA), ev.Keycode)
	assert.NotEmpty(t, ev.Keysyms)
}

func TestProcessReleaseProducesNoEvent(t *testing.T) {
	ks := newTestKeyboardState(t)

	ks.Process(Pressed, evdevKeyA)
	ev, ok := ks.Process(Released, evdevKeyA)
	assert.False(t, ok)
	assert.Nil(t, ev)
}

func TestProcessRepeatedIsDiscardedOutright(t *testing.T) {
	ks := newTestKeyboardState(t)

	ev, ok := ks.Process(Repeated, evdevKeyA)
	assert.False(t, ok)
	assert.Nil(t, ev)
}

func TestProcessCtrlModifierReflectedOnSubsequentKey(t *testing.T) {
	ks := newTestKeyboardState(t)

	_, ok := ks.Process(Pressed, evdevLeftCtrl)
	assert.True(t, ok, "a bare modifier press still yields its own modifier keysym (Control_L)")

	ev, ok := ks.Process(Pressed, evdevKeyA)
	require.True(t, ok)
	assert.NotZero(t, ev.Mods&ModControl)
}

func TestKeyRepeatsReflectsKeymapFlag(t *testing.T) {
	ks := newTestKeyboardState(t)
	assert.True(t, ks.KeyRepeats(evdevKeyA), "ordinary letter keys repeat")
}

func TestSyncKeyUpdatesAutomatonWithoutProducingEvent(t *testing.T) {
	ks := newTestKeyboardState(t)

	ks.SyncKey(evdevLeftCtrl, true)
	ev, ok := ks.Process(Pressed, evdevKeyA)
	require.True(t, ok)
	assert.NotZero(t, ev.Mods&ModControl, "a modifier synced via SyncKey must still be reflected in later Mods()")
}

func TestSyncLEDsSuppressesNextWriterCallIfUnchanged(t *testing.T) {
	ks := newTestKeyboardState(t)

	called := false
	ks.SetLEDWriter(func(num, caps, scroll bool) { called = true })
	ks.SyncLEDs(false, false, false)

	ks.Process(Pressed, evdevKeyA)
	assert.False(t, called, "resyncing to the automaton's already-current LED state must not fire the writer")
}

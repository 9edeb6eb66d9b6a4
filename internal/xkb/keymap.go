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

import "sync/atomic"

// Keymap wraps xkb_keymap. Refcounted and shared by every State created
// from it, mirroring the Keymap+KeymapContext sharing in KeyboardState.
type Keymap struct {
	ctx  *Context
	ptr  *C.struct_xkb_keymap
	refs int32
}

func newKeymap(ctx *Context, ptr *C.struct_xkb_keymap) *Keymap {
	ctx.Ref()
	return &Keymap{ctx: ctx, ptr: ptr, refs: 1}
}

// Ref increments the refcount and returns k for chaining.
func (k *Keymap) Ref() *Keymap {
	atomic.AddInt32(&k.refs, 1)
	C.xkb_keymap_ref(k.ptr)
	return k
}

// Unref decrements the refcount, freeing the keymap and releasing its
// context reference once it reaches zero.
func (k *Keymap) Unref() {
	C.xkb_keymap_unref(k.ptr)
	if atomic.AddInt32(&k.refs, -1) <= 0 {
		k.ptr = nil
		k.ctx.Unref()
	}
}

// KeyRepeats reports whether keycode is flagged as repeatable by the
// keymap. Used by internal/inputdev to decide whether to arm the
// per-device repeat timer on a press.
func (k *Keymap) KeyRepeats(keycode uint32) bool {
	return C.xkb_keymap_key_repeats(k.ptr, C.xkb_keycode_t(keycode)) == 1
}

// NewState creates a fresh xkb_state automaton for one device.
func (k *Keymap) NewState() *State {
	k.Ref()
	ptr := C.xkb_state_new(k.ptr)
	s := &State{keymap: k, ptr: ptr}
	s.resolveModIndices()
	return s
}

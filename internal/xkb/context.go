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
#cgo LDFLAGS: -lxkbcommon

#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// Context wraps xkb_context. It is refcounted and shared by every Keymap
// compiled from it, the way one KeymapContext is shared by every device
// on an aggregator.
type Context struct {
	ptr  *C.struct_xkb_context
	refs int32
}

// NewContext creates an xkb_context with no flags.
func NewContext() (*Context, error) {
	ptr := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ptr == nil {
		return nil, errors.New("xkb: xkb_context_new failed")
	}
	return &Context{ptr: ptr, refs: 1}, nil
}

// Ref increments the refcount and returns c for chaining.
func (c *Context) Ref() *Context {
	atomic.AddInt32(&c.refs, 1)
	C.xkb_context_ref(c.ptr)
	return c
}

// Unref decrements the refcount, freeing the underlying xkb_context once
// it reaches zero.
func (c *Context) Unref() {
	C.xkb_context_unref(c.ptr)
	if atomic.AddInt32(&c.refs, -1) <= 0 {
		c.ptr = nil
	}
}

// RuleNames is the rules/model/layout/variant/options tuple used to
// compile a keymap when no explicit keymap string is supplied.
type RuleNames struct {
	Rules   string
	Model   string
	Layout  string
	Variant string
	Options string
}

// CompileString compiles keymapStr (XKB keymap text format v1) into a
// Keymap. Preferred over CompileNames whenever keymapStr is non-empty.
func (c *Context) CompileString(keymapStr string) (*Keymap, error) {
	cstr := C.CString(keymapStr)
	defer C.free(unsafe.Pointer(cstr))
	ptr := C.xkb_keymap_new_from_string(
		c.ptr, cstr,
		C.XKB_KEYMAP_FORMAT_TEXT_V1,
		C.XKB_KEYMAP_COMPILE_NO_FLAGS,
	)
	if ptr == nil {
		return nil, errors.New("xkb: failed to compile keymap string")
	}
	return newKeymap(c, ptr), nil
}

// CompileNames compiles a keymap from a rules/model/layout/variant/options
// tuple. An all-empty RuleNames compiles the default system map.
func (c *Context) CompileNames(names RuleNames) (*Keymap, error) {
	cRules := C.CString(names.Rules)
	cModel := C.CString(names.Model)
	cLayout := C.CString(names.Layout)
	cVariant := C.CString(names.Variant)
	cOptions := C.CString(names.Options)
	defer func() {
		C.free(unsafe.Pointer(cRules))
		C.free(unsafe.Pointer(cModel))
		C.free(unsafe.Pointer(cLayout))
		C.free(unsafe.Pointer(cVariant))
		C.free(unsafe.Pointer(cOptions))
	}()
	rn := C.struct_xkb_rule_names{
		rules:   cRules,
		model:   cModel,
		layout:  cLayout,
		variant: cVariant,
		options: cOptions,
	}
	ptr := C.xkb_keymap_new_from_names(c.ptr, &rn, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if ptr == nil {
		return nil, errors.New("xkb: failed to compile keymap from rule names")
	}
	return newKeymap(c, ptr), nil
}

// CompileDefault compiles the empty-string rule tuple, the fallback used
// when both a supplied keymap string and a supplied rule tuple fail.
func (c *Context) CompileDefault() (*Keymap, error) {
	return c.CompileNames(RuleNames{})
}

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

// Package xkb binds libxkbcommon directly via cgo, following the same
// #cgo LDFLAGS + inline C-struct-pointer-field convention gio's Wayland
// backend uses for its own xkb_context/xkb_keymap/xkb_state fields. It
// exposes just enough of the C API for keyboard state tracking: compiling
// a keymap (from a supplied string or a rules/model/layout/variant/options
// tuple), updating one xkb_state per device, and reading back keysyms,
// UTF-32 codepoints, the fixed modifier mask, and LED state.
package xkb

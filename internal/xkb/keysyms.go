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

// A handful of named keysym values from xkbcommon-keysyms.h, used by
// the VT and seat hotkey filters. Plain numeric constants: no cgo
// needed to name them.
const (
	KeyF1  = 0xffbe
	KeyF2  = 0xffbf
	KeyF3  = 0xffc0
	KeyF4  = 0xffc1
	KeyF5  = 0xffc2
	KeyF6  = 0xffc3
	KeyF7  = 0xffc4
	KeyF8  = 0xffc5
	KeyF9  = 0xffc6
	KeyF10 = 0xffc7
	KeyF11 = 0xffc8
	KeyF12 = 0xffc9

	KeyControlL = 0xffe3
	KeyControlR = 0xffe4
	KeyAltL     = 0xffe9
	KeyAltR     = 0xffea
	KeySuperL   = 0xffeb
	KeySuperR   = 0xffec

	// XF86Switch_VT_1 .. XF86Switch_VT_12 are sequential.
	KeyXF86SwitchVT1 = 0x1008FE01
)

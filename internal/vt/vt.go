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

// Package vt implements the VT backend described in spec.md §4.E: a
// Real backend that drives the legacy kernel VT_SETMODE/KDSETMODE
// switch protocol, and a Fake backend for seats with no console (or
// for tests) that only ever talks to the client directly.
package vt

import "github.com/vtdaemon/vtd/internal/xkb"

// State is the VT's software switch-protocol state.
type State int

const (
	Inactive State = iota
	Active
	Deactivating
	PendingIn
	PendingOut
	Hup
	Destroyed
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Deactivating:
		return "deactivating"
	case PendingIn:
		return "pending-in"
	case PendingOut:
		return "pending-out"
	case Hup:
		return "hup"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Action names the kind of client-visible VT event (§6.2).
type Action int

const (
	ActionActivate Action = iota
	ActionDeactivate
	ActionHup
)

// Event is the client-visible VT event.
type Event struct {
	Action Action
	Target int
	Force  bool
}

// Client receives VT events. The return value matters only for
// ActionDeactivate: 0 accepts, non-zero vetoes unless Force is set (in
// which case the return value is logged only).
type Client interface {
	OnVTEvent(ev Event) int
}

// VT is the common surface both backends expose to VTMaster and the
// seat scheduler.
type VT interface {
	State() State

	// Activate requests the client be brought to the foreground. A
	// no-op if already active. A backend that has to wait for the
	// kernel to acknowledge the switch returns a vtderr.InProgress
	// error instead of blocking, and completes the switch later.
	Activate() error

	// Deactivate requests the client be backgrounded.
	Deactivate() error

	// Deallocate tears the backend down, forcing deactivation first.
	Deallocate()

	// HandleInput is installed as an inputagg.Hook; it implements the
	// backend's hotkey switch filter.
	HandleInput(ev *xkb.InputEvent)

	// HandleSignal is called by VTMaster on every SIGUSR1/SIGUSR2
	// delivery; only the Real backend does anything with it.
	HandleSignal(signo int)
}

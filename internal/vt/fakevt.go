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

package vt

import (
	"github.com/rs/zerolog"

	"github.com/vtdaemon/vtd/internal/inputagg"
	"github.com/vtdaemon/vtd/internal/vtderr"
	"github.com/vtdaemon/vtd/internal/vtdlog"
	"github.com/vtdaemon/vtd/internal/xkb"
)

// FakeVT has no OS interaction at all: every transition is a direct
// client callback, for seats with no console and for tests.
type FakeVT struct {
	agg    *inputagg.Aggregator
	client Client
	state  State
	log    zerolog.Logger
}

// NewFake registers the fake backend and wakes the aggregator — a fake
// VT is considered foreground-capable from the moment it exists.
func NewFake(agg *inputagg.Aggregator, client Client) *FakeVT {
	f := &FakeVT{agg: agg, client: client, state: Inactive, log: vtdlog.For("vt.fake")}
	agg.WakeUp()
	return f
}

func (f *FakeVT) State() State { return f.state }

func (f *FakeVT) Activate() error {
	if f.state == Active {
		return nil
	}
	f.state = Active
	f.client.OnVTEvent(Event{Action: ActionActivate})
	return nil
}

func (f *FakeVT) Deactivate() error {
	return f.deactivate(false)
}

func (f *FakeVT) deactivate(force bool) error {
	if f.state != Active {
		return nil
	}
	rc := f.client.OnVTEvent(Event{Action: ActionDeactivate, Force: force})
	if rc != 0 && !force {
		return vtderr.New(vtderr.Refused, "vt.fake.Deactivate", nil)
	}
	f.state = Inactive
	return nil
}

// HandleSignal is a no-op: the fake backend has no kernel VT to listen to.
func (f *FakeVT) HandleSignal(signo int) {}

// HandleInput toggles active state on Logo+Control+F12.
func (f *FakeVT) HandleInput(ev *xkb.InputEvent) {
	if ev.Handled || len(ev.Keysyms) == 0 {
		return
	}
	if ev.Mods != xkb.ModLogo|xkb.ModControl || ev.Keysyms[0] != xkb.KeyF12 {
		return
	}
	ev.Handled = true
	if f.state == Active {
		_ = f.deactivate(false)
	} else {
		_ = f.Activate()
	}
}

func (f *FakeVT) Deallocate() {
	if f.state == Destroyed {
		return
	}
	_ = f.deactivate(true)
	f.agg.Sleep()
	f.state = Destroyed
}

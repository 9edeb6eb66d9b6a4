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

// Package inputagg fans keyboard events out from every attached
// internal/inputdev.Device to a shared, registration-ordered hook list,
// and owns the awake refcount that decides whether devices are
// currently polled at all.
package inputagg

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/vtdaemon/vtd/internal/inputdev"
	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vtdlog"
	"github.com/vtdaemon/vtd/internal/xkb"
)

// Hook is a registered input callback. Every hook runs on every event
// regardless of what an earlier hook set Handled to (§4.D).
type Hook func(ev *xkb.InputEvent)

// Config bundles the keymap source and repeat timing passed to New.
type Config struct {
	KeymapString string // if non-empty, compiled verbatim and preferred
	Rules, Model, Layout, Variant, Options string
	RepeatDelay, RepeatRate time.Duration
}

// Aggregator is component D: the device list, the hook fan-out list,
// and the wake/sleep refcount.
type Aggregator struct {
	l   *loop.Loop
	cfg Config

	ctx    *xkb.Context
	keymap *xkb.Keymap

	devices []*inputdev.Device
	hooks   []hookEntry
	nextHookID int

	awakeCount int

	log zerolog.Logger
}

// New compiles the keymap (preferring an explicit keymap string, falling
// back to the rule-names tuple, falling back again to the empty-tuple
// default) and returns an aggregator with no devices and an awake count
// of zero.
func New(l *loop.Loop, cfg Config) (*Aggregator, error) {
	ctx, err := xkb.NewContext()
	if err != nil {
		return nil, err
	}

	keymap, err := compileKeymap(ctx, cfg)
	if err != nil {
		ctx.Unref()
		return nil, err
	}

	return &Aggregator{
		l:      l,
		cfg:    cfg,
		ctx:    ctx,
		keymap: keymap,
		log:    vtdlog.For("inputagg"),
	}, nil
}

func compileKeymap(ctx *xkb.Context, cfg Config) (*xkb.Keymap, error) {
	if cfg.KeymapString != "" {
		if km, err := ctx.CompileString(cfg.KeymapString); err == nil {
			return km, nil
		}
	}
	names := xkb.RuleNames{
		Rules: cfg.Rules, Model: cfg.Model, Layout: cfg.Layout,
		Variant: cfg.Variant, Options: cfg.Options,
	}
	if km, err := ctx.CompileNames(names); err == nil {
		return km, nil
	}
	return ctx.CompileDefault()
}

// IsAwake reports whether the wake/sleep refcount is positive.
func (a *Aggregator) IsAwake() bool { return a.awakeCount > 0 }

// WakeUp increments the refcount; on a 0→1 transition every device is
// woken. A device that fails to wake is destroyed and dropped so the
// aggregator reaches a consistent state (every remaining device with
// keys has rfd ≥ 0, matching P3).
func (a *Aggregator) WakeUp() {
	a.awakeCount++
	if a.awakeCount != 1 {
		return
	}
	kept := a.devices[:0]
	for _, d := range a.devices {
		if err := d.Wake(a.l); err != nil {
			a.log.Warn().Err(err).Str("path", d.Path()).Msg("device failed to wake, dropping")
			d.Destroy()
			continue
		}
		kept = append(kept, d)
	}
	a.devices = kept
}

// Sleep decrements the refcount; on a 1→0 transition every device is
// put to sleep.
func (a *Aggregator) Sleep() {
	if a.awakeCount == 0 {
		return
	}
	a.awakeCount--
	if a.awakeCount != 0 {
		return
	}
	for _, d := range a.devices {
		d.Sleep()
	}
}

// AddDevice probes path and, if it has useful capabilities, attaches it.
// A device with no useful capability is silently dropped. If the
// aggregator is currently awake, the new device is woken immediately.
func (a *Aggregator) AddDevice(path string) {
	hasKeys, hasLEDs, err := inputdev.Probe(path)
	if err != nil {
		a.log.Debug().Err(err).Str("path", path).Msg("input device probe failed")
		return
	}
	if !hasKeys {
		return
	}

	d := inputdev.New(path, hasLEDs, a.keymap, a.cfg.RepeatDelay, a.cfg.RepeatRate, a.dispatch, a.onDeviceGone)
	if a.IsAwake() {
		if err := d.Wake(a.l); err != nil {
			a.log.Warn().Err(err).Str("path", path).Msg("device failed to wake on attach")
			d.Destroy()
			return
		}
	}
	a.devices = append(a.devices, d)
}

// RemoveDevice finds the device at path, if any, and destroys it.
func (a *Aggregator) RemoveDevice(path string) {
	for i, d := range a.devices {
		if d.Path() == path {
			d.Destroy()
			a.devices = append(a.devices[:i], a.devices[i+1:]...)
			return
		}
	}
}

func (a *Aggregator) onDeviceGone(d *inputdev.Device) {
	for i, cur := range a.devices {
		if cur == d {
			a.devices = append(a.devices[:i], a.devices[i+1:]...)
			break
		}
	}
	d.Destroy()
}

// HookHandle identifies a registration returned by RegisterCallback,
// since a Go func value cannot in general be compared for removal.
type HookHandle int

type hookEntry struct {
	id int
	cb Hook
}

// RegisterCallback appends cb to the hook list and returns a handle for
// later UnregisterCallback.
func (a *Aggregator) RegisterCallback(cb Hook) HookHandle {
	a.nextHookID++
	id := a.nextHookID
	a.hooks = append(a.hooks, hookEntry{id: id, cb: cb})
	return HookHandle(id)
}

// UnregisterCallback removes the registration identified by h, if any.
func (a *Aggregator) UnregisterCallback(h HookHandle) {
	for i, e := range a.hooks {
		if e.id == int(h) {
			a.hooks = append(a.hooks[:i], a.hooks[i+1:]...)
			return
		}
	}
}

// dispatch fans ev out to every registered hook in registration order.
// Every hook runs regardless of what an earlier one set Handled to
// (§4.D): the seat's hotkey filter must observe the final state, but
// other observers may still want to see the raw event.
func (a *Aggregator) dispatch(_ *inputdev.Device, ev *xkb.InputEvent) {
	for _, e := range a.hooks {
		e.cb(ev)
	}
}

// Close releases every device and the shared keymap/context.
func (a *Aggregator) Close() {
	for _, d := range a.devices {
		d.Destroy()
	}
	a.devices = nil
	a.keymap.Unref()
	a.ctx.Unref()
}

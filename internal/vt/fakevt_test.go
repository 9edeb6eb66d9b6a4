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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtdaemon/vtd/internal/inputagg"
	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/xkb"
)

type fakeClient struct {
	rc     int
	events []Event
}

func (c *fakeClient) OnVTEvent(ev Event) int {
	c.events = append(c.events, ev)
	return c.rc
}

func newTestAgg(t *testing.T) *inputagg.Aggregator {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	agg, err := inputagg.New(l, inputagg.Config{})
	require.NoError(t, err)
	t.Cleanup(agg.Close)
	return agg
}

func TestFakeVTActivateNotifiesClientOnce(t *testing.T) {
	agg := newTestAgg(t)
	client := &fakeClient{}
	f := NewFake(agg, client)

	require.NoError(t, f.Activate())
	assert.Equal(t, Active, f.State())
	require.NoError(t, f.Activate())
	assert.Len(t, client.events, 1, "activating an already-active fake VT must be a no-op")
}

func TestFakeVTDeactivateVetoKeepsActive(t *testing.T) {
	agg := newTestAgg(t)
	client := &fakeClient{rc: 1}
	f := NewFake(agg, client)
	require.NoError(t, f.Activate())

	err := f.Deactivate()
	assert.Error(t, err)
	assert.Equal(t, Active, f.State())
}

func TestFakeVTDeallocateForcesDeactivation(t *testing.T) {
	agg := newTestAgg(t)
	client := &fakeClient{rc: 1}
	f := NewFake(agg, client)
	require.NoError(t, f.Activate())

	f.Deallocate()
	assert.Equal(t, Destroyed, f.State())
}

func TestFakeVTHotkeyTogglesActiveState(t *testing.T) {
	agg := newTestAgg(t)
	client := &fakeClient{}
	f := NewFake(agg, client)
	require.NoError(t, f.Activate())

	ev := &xkb.InputEvent{Mods: xkb.ModLogo | xkb.ModControl, Keysyms: []uint32{xkb.KeyF12}}
	f.HandleInput(ev)

	assert.True(t, ev.Handled)
	assert.Equal(t, Inactive, f.State())
}

func TestFakeVTHotkeyIgnoredWhenAlreadyHandled(t *testing.T) {
	agg := newTestAgg(t)
	f := NewFake(agg, &fakeClient{})
	require.NoError(t, f.Activate())

	ev := &xkb.InputEvent{Handled: true, Mods: xkb.ModLogo | xkb.ModControl, Keysyms: []uint32{xkb.KeyF12}}
	f.HandleInput(ev)

	assert.Equal(t, Active, f.State())
}

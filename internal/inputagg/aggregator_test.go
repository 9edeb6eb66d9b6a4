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

package inputagg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/xkb"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	a, err := New(l, Config{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestWakeSleepRefcountIsBalanced(t *testing.T) {
	a := newTestAggregator(t)
	assert.False(t, a.IsAwake())

	a.WakeUp()
	assert.True(t, a.IsAwake())

	a.WakeUp()
	assert.True(t, a.IsAwake())

	a.Sleep()
	assert.True(t, a.IsAwake(), "must stay awake until every WakeUp is matched")

	a.Sleep()
	assert.False(t, a.IsAwake())
}

func TestSleepWithoutWakeIsNoop(t *testing.T) {
	a := newTestAggregator(t)
	a.Sleep()
	assert.False(t, a.IsAwake())
}

func TestDispatchRunsEveryHookRegardlessOfEarlierHandled(t *testing.T) {
	a := newTestAggregator(t)

	var order []string
	a.RegisterCallback(func(ev *xkb.InputEvent) {
		order = append(order, "first")
		ev.Handled = true
	})
	a.RegisterCallback(func(ev *xkb.InputEvent) {
		order = append(order, "second")
	})

	ev := &xkb.InputEvent{}
	a.dispatch(nil, ev)

	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, ev.Handled)
}

func TestUnregisterCallbackStopsDelivery(t *testing.T) {
	a := newTestAggregator(t)

	called := false
	h := a.RegisterCallback(func(ev *xkb.InputEvent) { called = true })
	a.UnregisterCallback(h)

	a.dispatch(nil, &xkb.InputEvent{})
	assert.False(t, called)
}

func TestAddDeviceDropsNonexistentPath(t *testing.T) {
	a := newTestAggregator(t)
	a.AddDevice("/dev/input/event-does-not-exist-9999")
	assert.Empty(t, a.devices)
}

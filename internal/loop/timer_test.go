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

//go:build linux

package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFiresAfterInitialDelay(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	timer, err := l.AddTimer(TimerSpec{Initial: 10 * time.Millisecond}, func(expirations uint64) {
		fired++
		assert.GreaterOrEqual(t, expirations, uint64(1))
	})
	require.NoError(t, err)
	defer l.RemoveTimer(timer)

	_, err = l.Dispatch(500)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestUpdateTimerDisarmsOnZeroSpec(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	timer, err := l.AddTimer(TimerSpec{Initial: 10 * time.Millisecond}, func(uint64) {
		fired++
	})
	require.NoError(t, err)
	defer l.RemoveTimer(timer)

	require.NoError(t, l.UpdateTimer(timer, TimerSpec{}))

	_, err = l.Dispatch(50)
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestRemoveTimerStopsDelivery(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	timer, err := l.AddTimer(TimerSpec{Initial: 10 * time.Millisecond}, func(uint64) {
		fired++
	})
	require.NoError(t, err)
	require.NoError(t, l.RemoveTimer(timer))

	_, err = l.Dispatch(50)
	require.NoError(t, err)
	assert.Zero(t, fired)
}

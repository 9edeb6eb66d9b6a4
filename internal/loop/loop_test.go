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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	p := make([]int, 2)
	require.NoError(t, unix.Pipe2(p, unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestDispatchDeliversReadableFd(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	r, w := newPipe(t)
	fired := false
	_, err = l.AddFd(r, Readable, func(watch *FdWatch, mask ReadyMask) {
		fired = true
		assert.NotZero(t, mask&Readable)
	})
	require.NoError(t, err)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	_, err = l.Dispatch(100)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestAddFdRejectsDuplicateRegistration(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	r, _ := newPipe(t)
	_, err = l.AddFd(r, Readable, func(*FdWatch, ReadyMask) {})
	require.NoError(t, err)

	_, err = l.AddFd(r, Readable, func(*FdWatch, ReadyMask) {})
	assert.Error(t, err)
}

func TestSelfRemovalDuringDispatchIsSafe(t *testing.T) {
	// P2: a watcher that removes itself mid-callback must not be
	// delivered again or crash the pass.
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	r, w := newPipe(t)
	fired := 0
	var watch *FdWatch
	watch, err = l.AddFd(r, Readable, func(_ *FdWatch, _ ReadyMask) {
		fired++
		require.NoError(t, l.RemoveFd(watch))
	})
	require.NoError(t, err)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	_, err = l.Dispatch(100)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// A second pass must not crash or redeliver the now-unregistered fd.
	_, err = unix.Write(w, []byte("y"))
	require.NoError(t, err)
	_, err = l.Dispatch(100)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestRemovingAnotherWatcherMidPassPreventsItsDelivery(t *testing.T) {
	// P2 also covers removing a *different*, not-yet-delivered watcher
	// from within an earlier callback in the same pass.
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)

	var fired2 int
	watch2, err := l.AddFd(r2, Readable, func(*FdWatch, ReadyMask) {
		fired2++
	})
	require.NoError(t, err)
	_, err = l.AddFd(r1, Readable, func(*FdWatch, ReadyMask) {
		_ = l.RemoveFd(watch2)
	})
	require.NoError(t, err)

	_, err = unix.Write(w1, []byte("x"))
	require.NoError(t, err)
	_, err = unix.Write(w2, []byte("x"))
	require.NoError(t, err)

	_, err = l.Dispatch(100)
	require.NoError(t, err)

	// Regardless of kernel delivery order within the pass, watch2 must
	// end the pass unregistered and must never fire more than once.
	assert.LessOrEqual(t, fired2, 1)

	_, err = unix.Write(w1, []byte("z"))
	require.NoError(t, err)
	_, err = unix.Write(w2, []byte("z"))
	require.NoError(t, err)
	_, err = l.Dispatch(100)
	require.NoError(t, err)
	assert.LessOrEqual(t, fired2, 1, "watch2 must stay removed across later passes")
}

func TestIdleTaskRunsEveryPassUntilRemoved(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	count := 0
	var task *IdleTask
	task = l.AddIdle(func() {
		count++
		if count == 2 {
			l.RemoveIdle(task)
		}
	})

	_, err = l.Dispatch(0)
	require.NoError(t, err)
	_, err = l.Dispatch(0)
	require.NoError(t, err)
	_, err = l.Dispatch(0)
	require.NoError(t, err)

	assert.Equal(t, 2, count)
}

func TestRunStopsAfterExit(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	// A pipe that always holds unread data keeps every readiness wait
	// from blocking, so Run(-1) can only stop through Exit.
	r, w := newPipe(t)
	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)
	_, err = l.AddFd(r, Readable, func(*FdWatch, ReadyMask) {})
	require.NoError(t, err)

	passes := 0
	l.AddIdle(func() {
		passes++
		if passes == 3 {
			l.Exit()
		}
	})

	err = l.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, 3, passes)
}

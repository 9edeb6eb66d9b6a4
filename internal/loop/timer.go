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
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/vtderr"
)

// TimerSpec is an (initial, interval) timer programming. Setting both to
// zero disarms the timer.
type TimerSpec struct {
	Initial  time.Duration
	Interval time.Duration
}

// TimerCallback is invoked with the number of expirations observed since
// the callback last ran (normally 1, more if the loop fell behind).
type TimerCallback func(expirations uint64)

// TimerWatch is a monotonic timerfd-backed timer.
type TimerWatch struct {
	loop  *Loop
	fd    int
	watch *FdWatch
	cb    TimerCallback
}

func toItimerspec(spec TimerSpec) unix.ItimerSpec {
	return unix.ItimerSpec{
		Value:    unix.NsecToTimespec(spec.Initial.Nanoseconds()),
		Interval: unix.NsecToTimespec(spec.Interval.Nanoseconds()),
	}
}

// AddTimer creates and arms a timer per spec.
func (l *Loop) AddTimer(spec TimerSpec, cb TimerCallback) (*TimerWatch, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, vtderr.New(vtderr.OSError, "loop.AddTimer", err)
	}
	its := toItimerspec(spec)
	if err := unix.TimerfdSettime(fd, 0, &its, nil); err != nil {
		_ = unix.Close(fd)
		return nil, vtderr.New(vtderr.OSError, "loop.AddTimer", err)
	}
	t := &TimerWatch{loop: l, fd: fd, cb: cb}
	w, err := l.AddFd(fd, Readable, func(_ *FdWatch, _ ReadyMask) {
		t.onReadable()
	})
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	t.watch = w
	return t, nil
}

func (t *TimerWatch) onReadable() {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil || n != 8 {
		return
	}
	t.cb(binary.LittleEndian.Uint64(buf[:]))
}

// UpdateTimer re-arms w with a new spec; a zero spec disarms it.
func (l *Loop) UpdateTimer(w *TimerWatch, spec TimerSpec) error {
	its := toItimerspec(spec)
	if err := unix.TimerfdSettime(w.fd, 0, &its, nil); err != nil {
		return vtderr.New(vtderr.OSError, "loop.UpdateTimer", err)
	}
	return nil
}

// RemoveTimer disarms and closes w.
func (l *Loop) RemoveTimer(w *TimerWatch) error {
	_ = l.RemoveFd(w.watch)
	return unix.Close(w.fd)
}

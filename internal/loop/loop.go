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

// Package loop implements the single-threaded, cooperative event loop
// that every other core component schedules work through: level-triggered
// fd readiness via epoll, POSIX signals via signalfd, monotonic timers via
// timerfd, idle callbacks, and nested sub-loops. There are no locks; every
// method must be called from the goroutine that owns the Loop.
package loop

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/vtderr"
	"github.com/vtdaemon/vtd/internal/vtdlog"
)

// ReadyMask describes the readiness bits delivered to an FdWatch callback.
type ReadyMask uint32

const (
	Readable ReadyMask = 1 << iota
	Writable
	Hup
	Err
)

func (m ReadyMask) String() string {
	s := ""
	if m&Readable != 0 {
		s += "r"
	}
	if m&Writable != 0 {
		s += "w"
	}
	if m&Hup != 0 {
		s += "h"
	}
	if m&Err != 0 {
		s += "e"
	}
	if s == "" {
		return "-"
	}
	return s
}

// FdCallback is invoked when a registered fd becomes ready.
type FdCallback func(w *FdWatch, mask ReadyMask)

// FdWatch binds one fd to a readiness mask and callback. It is owned
// exclusively by its registering object and may be attached to at most
// one Loop at a time.
type FdWatch struct {
	loop       *Loop
	fd         int
	mask       ReadyMask
	cb         FdCallback
	registered bool
	scratchIdx int // index into loop.scratch while a dispatch pass is live, else -1
}

// Fd returns the watched file descriptor.
func (w *FdWatch) Fd() int { return w.fd }

// Loop is one instance of the cooperative event loop.
type Loop struct {
	log  zerolog.Logger
	epfd int

	watchers map[int]*FdWatch

	idle []*IdleTask

	sigSubs map[int]*sigSub // signal number -> shared signalfd state

	dispatching bool
	scratch     []scratchEntry

	exiting bool
}

type scratchEntry struct {
	w    *FdWatch
	mask ReadyMask
}

// New creates a Loop backed by a fresh epoll instance.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, vtderr.New(vtderr.OSError, "loop.New", err)
	}
	return &Loop{
		log:      vtdlog.For("loop"),
		epfd:     epfd,
		watchers: make(map[int]*FdWatch),
		sigSubs:  make(map[int]*sigSub),
	}, nil
}

// Close releases the loop's epoll fd and any signalfds it created. It
// does not close fds the caller registered with AddFd.
func (l *Loop) Close() error {
	for _, s := range l.sigSubs {
		_ = unix.Close(s.fd)
	}
	return unix.Close(l.epfd)
}

// Fd returns the loop's own epoll fd, pollable by a parent loop via
// AddNested (epoll fds themselves support poll/epoll on Linux).
func (l *Loop) Fd() int { return l.epfd }

func toEpollEvents(mask ReadyMask) uint32 {
	var e uint32
	if mask&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) ReadyMask {
	var m ReadyMask
	if e&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if e&unix.EPOLLHUP != 0 {
		m |= Hup
	}
	if e&unix.EPOLLERR != 0 {
		m |= Err
	}
	return m
}

// AddFd registers fd with the loop. It fails with AlreadyRegistered if fd
// is already attached.
func (l *Loop) AddFd(fd int, mask ReadyMask, cb FdCallback) (*FdWatch, error) {
	if _, ok := l.watchers[fd]; ok {
		return nil, vtderr.New(vtderr.AlreadyRegistered, "loop.AddFd", nil)
	}
	w := &FdWatch{loop: l, fd: fd, mask: mask, cb: cb, scratchIdx: -1}
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, vtderr.New(vtderr.OSError, "loop.AddFd", err)
	}
	w.registered = true
	l.watchers[fd] = w
	return w, nil
}

// UpdateFd atomically re-arms the readiness mask for w.
func (l *Loop) UpdateFd(w *FdWatch, mask ReadyMask) error {
	if !w.registered {
		return vtderr.New(vtderr.NotRegistered, "loop.UpdateFd", nil)
	}
	w.mask = mask
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(w.fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, w.fd, &ev); err != nil {
		return vtderr.New(vtderr.OSError, "loop.UpdateFd", err)
	}
	return nil
}

// RemoveFd deregisters w. If called from within w's own callback during
// dispatch, the pending scratch-array entry for w is nulled so it is not
// delivered again within the same pass (P2).
func (l *Loop) RemoveFd(w *FdWatch) error {
	if !w.registered {
		return vtderr.New(vtderr.NotRegistered, "loop.RemoveFd", nil)
	}
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, w.fd, nil)
	w.registered = false
	delete(l.watchers, w.fd)
	if l.dispatching && w.scratchIdx >= 0 && w.scratchIdx < len(l.scratch) {
		l.scratch[w.scratchIdx].w = nil
	}
	w.scratchIdx = -1
	return nil
}

// IdleTask is a callback invoked once per dispatch pass, before fd
// readiness handling, until removed.
type IdleTask struct {
	loop    *Loop
	cb      func()
	removed bool
}

// AddIdle registers cb to run once per dispatch pass.
func (l *Loop) AddIdle(cb func()) *IdleTask {
	t := &IdleTask{loop: l, cb: cb}
	l.idle = append(l.idle, t)
	return t
}

// RemoveIdle deregisters t. Safe to call from within t's own callback.
func (l *Loop) RemoveIdle(t *IdleTask) {
	t.removed = true
}

// AddNested attaches child's own fd as a watcher of this loop; readiness
// triggers Dispatch(child, 0).
func (l *Loop) AddNested(child *Loop) (*FdWatch, error) {
	return l.AddFd(child.Fd(), Readable, func(_ *FdWatch, _ ReadyMask) {
		_, _ = child.Dispatch(0)
	})
}

// Exit requests that Run stop after the current dispatch pass returns.
func (l *Loop) Exit() {
	l.exiting = true
}

// Dispatch runs exactly one pass: idle tasks, then one readiness wait
// bounded by timeoutMs (negative blocks indefinitely, zero polls), then
// delivery of whatever fds were found ready.
func (l *Loop) Dispatch(timeoutMs int) (int, error) {
	// Step 1: snapshot and run idle tasks. Tasks added during this pass
	// are not invoked until the next pass; self-removal takes effect
	// immediately by virtue of the removed flag being checked per task.
	snapshot := l.idle
	for _, t := range snapshot {
		if t.removed {
			continue
		}
		t.cb()
	}
	live := l.idle[:0]
	for _, t := range l.idle {
		if !t.removed {
			live = append(live, t)
		}
	}
	l.idle = live

	// Step 2: wait once.
	const maxEvents = 64
	raw := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(l.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		l.log.Error().Err(err).Msg("epoll_wait failed")
		return 0, vtderr.New(vtderr.OSError, "loop.Dispatch", err)
	}

	// Step 3: copy events into the scratch array.
	l.dispatching = true
	l.scratch = l.scratch[:0]
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		w, ok := l.watchers[fd]
		if !ok {
			continue
		}
		mask := fromEpollEvents(raw[i].Events)
		w.scratchIdx = len(l.scratch)
		l.scratch = append(l.scratch, scratchEntry{w: w, mask: mask})
	}

	// Step 4: iterate scratch in order, skipping nulled entries.
	for i := 0; i < len(l.scratch); i++ {
		e := l.scratch[i]
		if e.w == nil {
			continue
		}
		e.w.scratchIdx = -1
		e.w.cb(e.w, e.mask)
	}

	// Step 5: clear.
	l.scratch = l.scratch[:0]
	l.dispatching = false

	return n, nil
}

// Run repeatedly dispatches until Exit is called or timeoutMs elapses
// (negative means run forever).
func (l *Loop) Run(timeoutMs int) error {
	l.exiting = false
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	wait := timeoutMs
	for !l.exiting {
		if _, err := l.Dispatch(wait); err != nil {
			return err
		}
		if timeoutMs < 0 {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait = int((remaining + time.Millisecond - 1) / time.Millisecond)
	}
	return nil
}

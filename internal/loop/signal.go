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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/vtderr"
)

// addSignal sets signo's bit in set, matching the Val [16]uint64 layout
// golang.org/x/sys/unix uses for Sigset_t on Linux.
func addSignal(set *unix.Sigset_t, signo int) {
	set.Val[(signo-1)/64] |= 1 << uint((signo-1)%64)
}

// SignalCallback is invoked when signo is delivered.
type SignalCallback func(signo int)

// SignalWatch is one subscriber's handle to a signal subscription. Many
// SignalWatches for the same signal number share one underlying
// signalfd; the signal is blocked process-wide for the lifetime of any
// subscription and is deliberately never unblocked (other subsystems in
// the process may also rely on it staying blocked).
type SignalWatch struct {
	loop *Loop
	sub  *sigSub
	cb   SignalCallback
}

type sigSub struct {
	signo int
	fd    int
	watch *FdWatch
	subs  []*SignalWatch
}

const siginfoSize = 128 // sizeof(struct signalfd_siginfo)

// AddSignal subscribes cb to signo. On first subscription for signo the
// signal is blocked process-wide and a signalfd is created; subsequent
// subscriptions for the same signo share that fd.
func (l *Loop) AddSignal(signo int, cb SignalCallback) (*SignalWatch, error) {
	sub, ok := l.sigSubs[signo]
	if !ok {
		var set unix.Sigset_t
		addSignal(&set, signo)
		if err := unix.SigprocMask(unix.SIG_BLOCK, &set, nil); err != nil {
			return nil, vtderr.New(vtderr.OSError, "loop.AddSignal", err)
		}
		fd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
		if err != nil {
			return nil, vtderr.New(vtderr.OSError, "loop.AddSignal", err)
		}
		sub = &sigSub{signo: signo, fd: fd}
		l.sigSubs[signo] = sub
		w, err := l.AddFd(fd, Readable, func(_ *FdWatch, _ ReadyMask) {
			l.readSignalfd(sub)
		})
		if err != nil {
			_ = unix.Close(fd)
			delete(l.sigSubs, signo)
			return nil, err
		}
		sub.watch = w
	}
	watch := &SignalWatch{loop: l, sub: sub, cb: cb}
	sub.subs = append(sub.subs, watch)
	return watch, nil
}

func (l *Loop) readSignalfd(sub *sigSub) {
	buf := make([]byte, siginfoSize*16)
	for {
		n, err := unix.Read(sub.fd, buf)
		if err != nil || n <= 0 {
			return
		}
		for off := 0; off+siginfoSize <= n; off += siginfoSize {
			info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[off]))
			for _, s := range sub.subs {
				s.cb(int(info.Signo))
			}
		}
		if n < len(buf) {
			return
		}
	}
}

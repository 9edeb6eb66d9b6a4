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

// Package hotplug discovers evdev nodes under /dev/input at startup and
// watches the directory for later arrivals/departures with inotify, so
// the input aggregator's device list tracks hardware being plugged and
// unplugged without a udev dependency. No Go udev-netlink binding
// appears anywhere in the retrieved corpus (see DESIGN.md); inotify via
// golang.org/x/sys/unix is the same syscall layer internal/loop already
// builds on.
package hotplug

import (
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vtdlog"
)

const inputDir = "/dev/input"

// Watcher discovers evdev character devices and reports arrivals and
// departures through the two callbacks given to New.
type Watcher struct {
	l        *loop.Loop
	onAdd    func(path string)
	onRemove func(path string)
	fd       int
	wd       int
	watch    *loop.FdWatch
}

// New scans inputDir once, calling onAdd for every eventNNN node found,
// then arms an inotify watch on the directory for later changes.
func New(l *loop.Loop, onAdd, onRemove func(path string)) (*Watcher, error) {
	w := &Watcher{l: l, onAdd: onAdd, onRemove: onRemove, fd: -1, wd: -1}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		if isEventNode(ent.Name()) {
			onAdd(filepath.Join(inputDir, ent.Name()))
		}
	}

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		vtdlog.For("hotplug").Warn().Err(err).Msg("inotify unavailable, hot-plug disabled")
		return w, nil
	}
	wd, err := unix.InotifyAddWatch(fd, inputDir, unix.IN_CREATE|unix.IN_DELETE)
	if err != nil {
		unix.Close(fd)
		vtdlog.For("hotplug").Warn().Err(err).Msg("failed to watch input directory")
		return w, nil
	}
	w.fd = fd
	w.wd = wd
	w.watch, err = l.AddFd(fd, loop.Readable, w.onReadable)
	if err != nil {
		unix.Close(fd)
		w.fd, w.wd = -1, -1
		return nil, err
	}
	return w, nil
}

func isEventNode(name string) bool {
	return strings.HasPrefix(name, "event")
}

func (w *Watcher) onReadable(watch *loop.FdWatch, mask loop.ReadyMask) {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(w.fd, buf)
		if err != nil || n <= 0 {
			return
		}
		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := int(raw.Len)
			nameStart := offset + unix.SizeofInotifyEvent
			name := ""
			if nameLen > 0 {
				name = cString(buf[nameStart : nameStart+nameLen])
			}
			offset = nameStart + nameLen

			if !isEventNode(name) {
				continue
			}
			path := filepath.Join(inputDir, name)
			switch {
			case raw.Mask&unix.IN_CREATE != 0:
				w.onAdd(path)
			case raw.Mask&unix.IN_DELETE != 0:
				w.onRemove(path)
			}
		}
	}
}

func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// Close stops the inotify watch.
func (w *Watcher) Close() {
	if w.watch != nil {
		_ = w.l.RemoveFd(w.watch)
	}
	if w.fd >= 0 {
		unix.Close(w.fd)
	}
}

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
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/inputagg"
	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vtderr"
)

// BackendType names the two VT implementations a caller may allow.
type BackendType int

const (
	BackendReal BackendType = iota
	BackendFake
)

// Choose implements the three-step backend selection of spec.md §4.E.3:
// a per-seat marker file forces the fake backend; seat0 with a present
// /dev/tty0 prefers a real backend (caller-supplied path, else the
// controlling tty if stderr is one, else a freshly discovered VT);
// anything else falls back to fake.
func Choose(l *loop.Loop, agg *inputagg.Aggregator, client Client, seat string, allowed map[BackendType]bool, ttyPath string) (VT, error) {
	marker := fmt.Sprintf("/dev/ttyF%s", seat)
	if _, err := os.Stat(marker); err == nil {
		if !allowed[BackendFake] {
			return nil, vtderr.New(vtderr.NotSupported, "vt.Choose", nil)
		}
		return NewFake(agg, client), nil
	}

	if seat == "seat0" {
		if _, err := os.Stat("/dev/tty0"); err == nil {
			if !allowed[BackendReal] {
				return nil, vtderr.New(vtderr.NotSupported, "vt.Choose", nil)
			}
			path := ttyPath
			if path == "" {
				path = stderrTTYPath()
			}
			return OpenReal(l, agg, client, path)
		}
	}

	if !allowed[BackendFake] {
		return nil, vtderr.New(vtderr.NotSupported, "vt.Choose", nil)
	}
	return NewFake(agg, client), nil
}

// stderrTTYPath returns the path backing fd 2 if it refers to a tty
// device, else "" (OpenReal then falls back to VT_OPENQRY discovery).
func stderrTTYPath() string {
	fd := int(os.Stderr.Fd())
	if _, err := unix.IoctlGetTermios(fd, unix.TCGETS); err != nil {
		return ""
	}
	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return ""
	}
	return path
}

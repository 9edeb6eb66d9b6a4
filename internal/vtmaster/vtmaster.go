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

// Package vtmaster implements component F of the design: a single
// SIGUSR1/SIGUSR2 subscription shared by every VT backend on the loop,
// and the activate_all/deactivate_all bulk operations.
package vtmaster

import (
	"golang.org/x/sys/unix"

	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vt"
	"github.com/vtdaemon/vtd/internal/vtderr"
)

// Master holds every VT on a loop and routes the two VT-switch signals
// to all of them; each backend decides for itself whether a given
// delivery is relevant (a real backend checks the kernel's v_active
// against its own VT number, a fake backend ignores signals outright).
type Master struct {
	l  *loop.Loop
	vts []vt.VT
}

// New subscribes to SIGUSR1 and SIGUSR2 on l and returns an empty Master.
func New(l *loop.Loop) (*Master, error) {
	m := &Master{l: l}
	if _, err := l.AddSignal(int(unix.SIGUSR1), m.onSignal); err != nil {
		return nil, err
	}
	if _, err := l.AddSignal(int(unix.SIGUSR2), m.onSignal); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Master) onSignal(signo int) {
	for _, v := range m.vts {
		v.HandleSignal(signo)
	}
}

// Add registers v with the master.
func (m *Master) Add(v vt.VT) {
	m.vts = append(m.vts, v)
}

// Remove unregisters v.
func (m *Master) Remove(v vt.VT) {
	for i, cur := range m.vts {
		if cur == v {
			m.vts = append(m.vts[:i], m.vts[i+1:]...)
			return
		}
	}
}

// ActivateAll calls Activate on every held VT, returning the count that
// reported in-progress, or a negative count if any VT failed outright.
func (m *Master) ActivateAll() int {
	return m.bulk(func(v vt.VT) error { return v.Activate() })
}

// DeactivateAll calls Deactivate on every held VT, with the same
// return convention as ActivateAll.
func (m *Master) DeactivateAll() int {
	return m.bulk(func(v vt.VT) error { return v.Deactivate() })
}

func (m *Master) bulk(op func(v vt.VT) error) int {
	inProgress := 0
	for _, v := range m.vts {
		err := op(v)
		if err == nil {
			continue
		}
		if vtderr.Is(err, vtderr.InProgress) {
			inProgress++
			continue
		}
		return -1
	}
	return inProgress
}

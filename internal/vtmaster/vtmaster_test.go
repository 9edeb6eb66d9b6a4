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

package vtmaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/vt"
	"github.com/vtdaemon/vtd/internal/vtderr"
	"github.com/vtdaemon/vtd/internal/xkb"
)

type fakeVT struct {
	state       vt.State
	activateErr error
	signals     []int
}

func (f *fakeVT) State() vt.State           { return f.state }
func (f *fakeVT) Activate() error           { return f.activateErr }
func (f *fakeVT) Deactivate() error         { return f.activateErr }
func (f *fakeVT) Deallocate()               {}
func (f *fakeVT) HandleInput(*xkb.InputEvent) {}
func (f *fakeVT) HandleSignal(signo int)    { f.signals = append(f.signals, signo) }

func TestOnSignalRoutesToEveryHeldVT(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	m, err := New(l)
	require.NoError(t, err)

	a := &fakeVT{}
	b := &fakeVT{}
	m.Add(a)
	m.Add(b)

	m.onSignal(10)

	assert.Equal(t, []int{10}, a.signals)
	assert.Equal(t, []int{10}, b.signals)
}

func TestRemoveStopsFurtherSignalRouting(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	m, err := New(l)
	require.NoError(t, err)

	a := &fakeVT{}
	m.Add(a)
	m.Remove(a)

	m.onSignal(12)
	assert.Empty(t, a.signals)
}

func TestActivateAllCountsInProgress(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	m, err := New(l)
	require.NoError(t, err)

	m.Add(&fakeVT{activateErr: vtderr.New(vtderr.InProgress, "vt.Activate", nil)})
	m.Add(&fakeVT{activateErr: nil})
	m.Add(&fakeVT{activateErr: vtderr.New(vtderr.InProgress, "vt.Activate", nil)})

	assert.Equal(t, 2, m.ActivateAll())
}

func TestActivateAllReturnsNegativeOnHardFailure(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	m, err := New(l)
	require.NoError(t, err)

	m.Add(&fakeVT{activateErr: vtderr.New(vtderr.OSError, "vt.Activate", nil)})

	assert.Equal(t, -1, m.ActivateAll())
}

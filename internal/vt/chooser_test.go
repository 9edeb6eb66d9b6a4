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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtdaemon/vtd/internal/inputagg"
	"github.com/vtdaemon/vtd/internal/loop"
)

func TestChooseFallsBackToFakeWhenNoRealConsole(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()
	agg := newTestAgg(t)
	client := &fakeClient{}

	allowed := map[BackendType]bool{BackendReal: true, BackendFake: true}
	v, err := Choose(l, agg, client, "seat-test-nonexistent", allowed, "")
	require.NoError(t, err)

	_, isFake := v.(*FakeVT)
	assert.True(t, isFake, "a non-seat0 seat with no marker file must fall back to the fake backend")
}

func TestChooseRejectsFakeWhenDisallowed(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()
	agg := newTestAgg(t)
	client := &fakeClient{}

	allowed := map[BackendType]bool{BackendReal: true, BackendFake: false}
	_, err = Choose(l, agg, client, "seat-test-nonexistent", allowed, "")
	assert.Error(t, err)
}

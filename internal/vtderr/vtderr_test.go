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

package vtderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("epoll_ctl failed")
	err := New(OSError, "loop.AddFd", cause)

	assert.True(t, Is(err, OSError))
	assert.False(t, Is(err, InProgress))
}

func TestIsFollowsFmtWrapping(t *testing.T) {
	inner := New(InProgress, "vt.Activate", nil)
	wrapped := fmt.Errorf("activating seat0: %w", inner)

	assert.True(t, Is(wrapped, InProgress))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), NotRegistered))
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("device gone")
	err := New(HungUp, "inputdev.onReadable", cause)
	assert.Contains(t, err.Error(), "device gone")
	assert.Contains(t, err.Error(), "hung-up")
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := New(CapExceeded, "seat.RegisterSession", nil)
	assert.Equal(t, "seat.RegisterSession: cap-exceeded", err.Error())
}

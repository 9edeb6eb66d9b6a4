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

package hotplug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEventNode(t *testing.T) {
	assert.True(t, isEventNode("event0"))
	assert.True(t, isEventNode("event17"))
	assert.False(t, isEventNode("mouse0"))
	assert.False(t, isEventNode("js0"))
	assert.False(t, isEventNode(""))
}

func TestCStringStopsAtNUL(t *testing.T) {
	b := append([]byte("event3"), 0, 0, 0)
	assert.Equal(t, "event3", cString(b))
}

func TestCStringWithoutNULReturnsWholeSlice(t *testing.T) {
	assert.Equal(t, "abc", cString([]byte("abc")))
}

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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSignalDeliveredToAllSubscribers(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var gotA, gotB []int
	_, err = l.AddSignal(int(unix.SIGUSR1), func(signo int) { gotA = append(gotA, signo) })
	require.NoError(t, err)
	_, err = l.AddSignal(int(unix.SIGUSR1), func(signo int) { gotB = append(gotB, signo) })
	require.NoError(t, err)

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))

	_, err = l.Dispatch(500)
	require.NoError(t, err)

	assert.Equal(t, []int{int(unix.SIGUSR1)}, gotA)
	assert.Equal(t, []int{int(unix.SIGUSR1)}, gotB)
}

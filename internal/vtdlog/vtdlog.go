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

// Package vtdlog provides the one structured logger every core package
// logs through. It is a thin wrapper over zerolog so call sites stay
// short (vtdlog.For("loop").Debug()...) while every log line still
// carries a "component" field for filtering.
package vtdlog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	base     zerolog.Logger
	initOnce sync.Once
)

func root() zerolog.Logger {
	initOnce.Do(func() {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	})
	return base
}

// SetOutput redirects all future For() loggers to w, formatted as
// newline-delimited JSON. Intended for use by cmd/vtd at startup.
func SetOutput(w zerolog.LevelWriter) {
	initOnce.Do(func() {})
	base = zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel adjusts the global minimum level observed by For() loggers.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// For returns a logger tagged with component for the given core
// subsystem name ("loop", "inputdev", "xkb", "inputagg", "vt",
// "vtmaster", "seat").
func For(component string) zerolog.Logger {
	return root().With().Str("component", component).Logger()
}

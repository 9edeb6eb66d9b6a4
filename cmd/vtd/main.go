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

// Command vtd is the console infrastructure daemon: one event loop, one
// VT per seat, one input aggregator feeding the seat's session
// scheduler.
package main

import (
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/vtdaemon/vtd/internal/hotplug"
	"github.com/vtdaemon/vtd/internal/inputagg"
	"github.com/vtdaemon/vtd/internal/loop"
	"github.com/vtdaemon/vtd/internal/seat"
	"github.com/vtdaemon/vtd/internal/vt"
	"github.com/vtdaemon/vtd/internal/vtdlog"
	"github.com/vtdaemon/vtd/internal/vtmaster"
	"github.com/vtdaemon/vtd/internal/xkb"
)

type options struct {
	Seat string `short:"s" long:"seat" description:"seat name" default:"seat0"`
	TTY  string `long:"tty" description:"explicit VT device path, overriding auto-discovery"`

	Rules   string `long:"xkb-rules" description:"XKB rules name" default:"evdev"`
	Model   string `long:"xkb-model" description:"XKB model name" default:"pc105"`
	Layout  string `long:"xkb-layout" description:"XKB layout name" default:"us"`
	Variant string `long:"xkb-variant" description:"XKB variant name"`
	Options string `long:"xkb-options" description:"XKB options string"`

	RepeatDelay int `long:"repeat-delay" description:"key repeat delay in milliseconds" default:"400"`
	RepeatRate  int `long:"repeat-rate" description:"key repeat interval in milliseconds" default:"40"`

	SessionMax int `long:"session-max" description:"maximum concurrent sessions on this seat, 0 for unlimited"`

	AllowReal bool `long:"allow-real-vt" description:"permit the real kernel VT backend"`
	AllowFake bool `long:"allow-fake-vt" description:"permit the fake VT backend"`

	JSONLog bool `long:"json-log" description:"emit newline-delimited JSON logs instead of console output"`
	Verbose bool `short:"v" long:"verbose" description:"enable debug logging"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.JSONLog {
		vtdlog.SetOutput(zerolog.MultiLevelWriter(os.Stderr))
	}
	if opts.Verbose {
		vtdlog.SetLevel(zerolog.DebugLevel)
	}
	log := vtdlog.For("main")

	if err := run(opts); err != nil {
		log.Error().Err(err).Msg("vtd exited with error")
		os.Exit(1)
	}
}

func run(opts options) error {
	log := vtdlog.For("main")

	l, err := loop.New()
	if err != nil {
		return fmt.Errorf("create event loop: %w", err)
	}
	defer l.Close()

	agg, err := inputagg.New(l, inputagg.Config{
		Rules:       opts.Rules,
		Model:       opts.Model,
		Layout:      opts.Layout,
		Variant:     opts.Variant,
		Options:     opts.Options,
		RepeatDelay: time.Duration(opts.RepeatDelay) * time.Millisecond,
		RepeatRate:  time.Duration(opts.RepeatRate) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("create input aggregator: %w", err)
	}
	defer agg.Close()

	watcher, err := hotplug.New(l, agg.AddDevice, agg.RemoveDevice)
	if err != nil {
		return fmt.Errorf("start input device watcher: %w", err)
	}
	defer watcher.Close()

	grabs := []seat.Grab{
		{Mods: xkb.ModControl | xkb.ModAlt, Keysyms: []uint32{xkb.KeyF1}, Action: seat.GrabSessionPrev},
		{Mods: xkb.ModControl | xkb.ModAlt, Keysyms: []uint32{xkb.KeyF2}, Action: seat.GrabSessionNext},
		{Mods: xkb.ModControl | xkb.ModAlt | xkb.ModLogo, Keysyms: []uint32{xkb.KeyF1}, Action: seat.GrabSessionClose},
		{Mods: xkb.ModControl | xkb.ModAlt, Keysyms: []uint32{xkb.KeyF12}, Action: seat.GrabTerminalNew},
	}

	onSeatEvent := func(ev seat.SeatEventType) {
		switch ev {
		case seat.SeatWakeUp:
			log.Info().Str("seat", opts.Seat).Msg("seat woke up")
		case seat.SeatSleep:
			log.Info().Str("seat", opts.Seat).Msg("seat went to sleep")
		case seat.SeatHup:
			log.Warn().Str("seat", opts.Seat).Msg("seat's VT hung up")
			l.Exit()
		}
	}

	st := seat.New(l, opts.Seat, agg, opts.SessionMax, grabs, nil, onSeatEvent)
	st.InstallDummy(func(ev seat.SessionEvent) error { return nil })

	allowed := map[vt.BackendType]bool{
		vt.BackendReal: opts.AllowReal,
		vt.BackendFake: opts.AllowFake,
	}
	if !opts.AllowReal && !opts.AllowFake {
		allowed[vt.BackendReal] = true
		allowed[vt.BackendFake] = true
	}

	backend, err := vt.Choose(l, agg, st, opts.Seat, allowed, opts.TTY)
	if err != nil {
		return fmt.Errorf("choose VT backend: %w", err)
	}
	defer backend.Deallocate()
	st.AttachVT(backend)

	master, err := vtmaster.New(l)
	if err != nil {
		return fmt.Errorf("create VT master: %w", err)
	}
	master.Add(backend)
	defer master.Remove(backend)

	inputHook := agg.RegisterCallback(backend.HandleInput)
	defer agg.UnregisterCallback(inputHook)

	if err := backend.Activate(); err != nil {
		log.Debug().Err(err).Msg("initial VT activation in progress")
	}

	log.Info().Str("seat", opts.Seat).Msg("vtd running")
	return l.Run(-1)
}

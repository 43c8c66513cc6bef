// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pn532ctl talks to a PN532 reader from the shell: it prints chip
// information, reads and writes NTAG cards, drives the GPIO pins and
// reports card arrival and removal, optionally publishing to Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/ZaparooProject/go-pn532-core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalFlags struct {
	configPath string
	device     string
	transport  string
	logFormat  string
	verbose    bool
}

func usage(w io.Writer, fs *flag.FlagSet) func() {
	return func() {
		_, _ = fmt.Fprintf(w, "Usage: pn532ctl [flags] <command> [args]\n\nCommands:\n")
		names := []string{"detect"}
		for name := range commands {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			desc := "list readers found by auto-detection"
			if cmd, ok := commands[name]; ok {
				desc = cmd.usage
			}
			_, _ = fmt.Fprintf(w, "  %-11s %s\n", name, desc)
		}
		_, _ = fmt.Fprintf(w, "\nFlags:\n")
		fs.PrintDefaults()
	}
}

// loadConfig applies the file, then the flags.
func loadConfig(g *globalFlags) (*Config, error) {
	cfg := DefaultConfig()
	if g.configPath != "" {
		loaded, err := LoadConfig(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if g.device != "" {
		cfg.Device.Path = g.device
	}
	if g.transport != "" {
		cfg.Device.Transport = g.transport
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := flag.NewFlagSet("pn532ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "YAML config file")
	fs.StringVar(&g.device, "device", "", "device path (auto-detect if empty)")
	fs.StringVar(&g.transport, "transport", "", "uart, i2c or spi (guessed from the path if empty)")
	fs.StringVar(&g.logFormat, "log-format", "", "log format: auto, text or json")
	fs.BoolVar(&g.verbose, "v", false, "enable debug logging, including wire traces")
	fs.Usage = usage(stderr, fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(&g)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	log := newLogger(stderr, cfg)
	if g.verbose {
		pn532.SetDebugOutput(stderr)
		pn532.SetDebugEnabled(true)
	}

	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	a := &app{cfg: cfg, log: log, out: stdout, err: stderr}
	a.newPublisher = a.defaultPublisher

	if name == "detect" {
		err = a.detect(ctx)
	} else {
		cmd, ok := commands[name]
		if !ok {
			_, _ = fmt.Fprintf(stderr, "unknown command %q\n", name)
			fs.Usage()
			return 2
		}
		err = a.withDevice(ctx, func() error { return cmd.run(a, ctx, cmdArgs) })
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		log.Error("command failed", "command", name, "error", err)
		return 1
	}
	return 0
}

func (a *app) withDevice(ctx context.Context, fn func() error) error {
	dev, err := connect(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	a.dev = dev
	defer func() {
		if err := dev.Close(); err != nil {
			a.log.Warn("failed to close device", "error", err)
		}
	}()
	return fn()
}

func (a *app) detect(ctx context.Context) error {
	devices, err := detect(ctx, a.cfg)
	if err != nil {
		return err
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(a.out, d)
		if d.Firmware != nil {
			_, _ = fmt.Fprintf(a.out, "  firmware %s\n", d.Firmware)
		}
	}
	return nil
}

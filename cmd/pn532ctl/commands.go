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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/ntag"
	"github.com/ZaparooProject/go-pn532-core/polling"
)

// app carries what every subcommand needs.
type app struct {
	cfg *Config
	log *slog.Logger
	dev *pn532.Device
	out io.Writer
	err io.Writer
	// newPublisher is swapped in tests
	newPublisher func(ctx context.Context) (publisher, error)
}

type command struct {
	run   func(a *app, ctx context.Context, args []string) error
	usage string
}

var commands = map[string]command{
	"info":       {run: (*app).info, usage: "show firmware and chip status"},
	"read":       {run: (*app).read, usage: "wait for a card and print its UID and NDEF content"},
	"write-text": {run: (*app).writeText, usage: "wait for an NTAG and write a text record to it"},
	"gpio":       {run: (*app).gpio, usage: "print GPIO levels, or set one: gpio P30 high"},
	"watch":      {run: (*app).watch, usage: "report card arrival and removal until interrupted"},
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.err)
	return fs
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (a *app) info(ctx context.Context, args []string) error {
	if err := a.flags("info").Parse(args); err != nil {
		return err
	}

	fw := a.dev.Firmware()
	if fw == nil {
		var err error
		if fw, err = a.dev.FirmwareVersion(ctx); err != nil {
			return fmt.Errorf("firmware version: %w", err)
		}
	}
	status, ok, err := a.dev.GeneralStatus(ctx)
	if err != nil {
		return fmt.Errorf("general status: %w", err)
	}
	if !ok {
		return fmt.Errorf("general status: %w", pn532.ErrDeviceNotDetected)
	}

	_, _ = fmt.Fprintf(a.out, "Firmware:   %s\n", fw)
	_, _ = fmt.Fprintf(a.out, "ISO14443A:  %s\n", yesNo(fw.SupportsISO14443A()))
	_, _ = fmt.Fprintf(a.out, "ISO14443B:  %s\n", yesNo(fw.SupportsISO14443B()))
	_, _ = fmt.Fprintf(a.out, "ISO18092:   %s\n", yesNo(fw.SupportsISO18092()))
	_, _ = fmt.Fprintf(a.out, "RF field:   %s\n", yesNo(status.FieldPresent))
	_, _ = fmt.Fprintf(a.out, "Last error: %s\n", status.LastError)
	_, _ = fmt.Fprintf(a.out, "Targets:    %d\n", len(status.Targets))
	return nil
}

// waitForCard waits up to timeout for a card to be selected as target 1.
func (a *app) waitForCard(ctx context.Context, timeout time.Duration) (*pn532.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _ = fmt.Fprintln(a.err, "Waiting for a card...")
	target, err := a.dev.WaitForTarget(ctx, a.cfg.Polling.Interval)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("no card within %s", timeout)
	}
	return target, err
}

func (a *app) read(ctx context.Context, args []string) error {
	fs := a.flags("read")
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for a card")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := a.waitForCard(ctx, *timeout)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "UID:  %s\n", target.UIDString())
	_, _ = fmt.Fprintf(a.out, "ATQA: %02X%02X  SAK: %02X\n", target.ATQA[0], target.ATQA[1], target.SAK)

	tag := ntag.New(a.dev)
	typ, err := tag.Detect(ctx)
	if err != nil {
		var perr *pn532.PN532Error
		if errors.Is(err, ntag.ErrNotNTAG) || errors.As(err, &perr) {
			_, _ = fmt.Fprintln(a.out, "Type: not an NTAG")
			return nil
		}
		return fmt.Errorf("identify card: %w", err)
	}
	_, _ = fmt.Fprintf(a.out, "Type: %s (%d bytes)\n", typ, typ.UserBytes())

	msg, err := tag.ReadNDEF(ctx)
	if errors.Is(err, ntag.ErrNoNDEF) {
		_, _ = fmt.Fprintln(a.out, "NDEF: empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read NDEF: %w", err)
	}

	if text, err := ntag.Text(msg); err == nil {
		_, _ = fmt.Fprintf(a.out, "Text: %q\n", text)
		return nil
	}
	if uri, err := ntag.URI(msg); err == nil {
		_, _ = fmt.Fprintf(a.out, "URI:  %s\n", uri)
		return nil
	}
	_, _ = fmt.Fprintf(a.out, "NDEF: %d record(s)\n", len(msg.Records))
	return nil
}

func (a *app) writeText(ctx context.Context, args []string) error {
	fs := a.flags("write-text")
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for a card")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return errors.New("usage: write-text [-timeout d] TEXT")
	}
	text := fs.Arg(0)

	target, err := a.waitForCard(ctx, *timeout)
	if err != nil {
		return err
	}
	if err := ntag.New(a.dev).WriteText(ctx, text); err != nil {
		return fmt.Errorf("write to %s: %w", target.UIDString(), err)
	}
	_, _ = fmt.Fprintf(a.out, "Wrote %q to %s\n", text, target.UIDString())
	return nil
}

func parseLevel(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "high", "1", "on":
		return true, nil
	case "low", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid level %q, want high or low", s)
	}
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

func (a *app) gpio(ctx context.Context, args []string) error {
	fs := a.flags("gpio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch fs.NArg() {
	case 0:
		state, ok, err := a.dev.ReadGPIO(ctx)
		if err != nil {
			return fmt.Errorf("read GPIO: %w", err)
		}
		if !ok {
			return fmt.Errorf("read GPIO: %w", pn532.ErrDeviceNotDetected)
		}
		for pin := pn532.GPIOPin(0); pin.Valid(); pin++ {
			_, _ = fmt.Fprintf(a.out, "%-4s %s\n", pin, levelName(state.Pin(pin)))
		}
		return nil
	case 2:
		pin, err := pn532.ParseGPIOPin(strings.ToUpper(fs.Arg(0)))
		if err != nil {
			return err
		}
		high, err := parseLevel(fs.Arg(1))
		if err != nil {
			return err
		}
		ok, err := a.dev.WritePin(ctx, pin, high)
		if err != nil {
			return fmt.Errorf("write %s: %w", pin, err)
		}
		if !ok {
			return fmt.Errorf("write %s: %w", pin, pn532.ErrDeviceNotDetected)
		}
		_, _ = fmt.Fprintf(a.out, "%s %s\n", pin, levelName(high))
		return nil
	default:
		return errors.New("usage: gpio [PIN high|low]")
	}
}

func (a *app) watch(ctx context.Context, args []string) error {
	if err := a.flags("watch").Parse(args); err != nil {
		return err
	}

	guard := pn532.NewGuard(a.dev)
	monitor, err := polling.NewMonitor(guard, a.cfg.monitorConfig())
	if err != nil {
		return err
	}

	pub, err := a.newPublisher(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			a.log.Warn("failed to close publisher", "error", err)
		}
	}()

	_, _ = fmt.Fprintln(a.err, "Watching for cards. Press Ctrl+C to stop...")
	err = monitor.Run(ctx, func(ev polling.Event) {
		_, _ = fmt.Fprintf(a.out, "%s %-7s %x\n", ev.At.Format(time.RFC3339), ev.Kind, ev.UID)
		if err := pub.Publish(ctx, ev); err != nil {
			a.log.Warn("failed to publish card event", "kind", ev.Kind.String(), "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// defaultPublisher publishes to Redis when configured and only logs
// otherwise.
func (a *app) defaultPublisher(ctx context.Context) (publisher, error) {
	if a.cfg.Redis.Addr == "" {
		return logPublisher{log: a.log}, nil
	}
	return newRedisPublisher(ctx, a.cfg.Redis, a.log)
}

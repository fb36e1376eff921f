package adb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Bridge owns device discovery and the process-wide device selection.
// Runs never read the selection directly: they take a Client snapshot
// from Current, so a selection change mid-run cannot redirect it.
type Bridge struct {
	runner Runner
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	serial string
}

// NewBridge creates a bridge. serial pins the initial selection and may
// be empty.
func NewBridge(runner Runner, serial string, opts Options, logger *slog.Logger) *Bridge {
	return &Bridge{
		runner: runner,
		opts:   opts.withDefaults(),
		logger: logger,
		serial: serial,
	}
}

// Devices lists every attached device with its state.
func (b *Bridge) Devices(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.CommandTimeout)
	defer cancel()

	res, err := b.runner.Run(ctx, b.opts.Path, []string{"devices"})
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}

	if res.ExitCode != 0 {
		return nil, failure("devices", "", res)
	}

	return parseDevices(res.Stdout), nil
}

// Online lists the serials of devices in the "device" state.
func (b *Bridge) Online(ctx context.Context) ([]string, error) {
	devices, err := b.Devices(ctx)
	if err != nil {
		return nil, err
	}

	var serials []string

	for _, d := range devices {
		if d.Online() {
			serials = append(serials, d.Serial)
		}
	}

	return serials, nil
}

// SelectFirst makes the first online device current, or clears the
// selection when none is online. It returns the new serial.
func (b *Bridge) SelectFirst(ctx context.Context) (string, error) {
	serials, err := b.Online(ctx)
	if err != nil {
		return "", err
	}

	serial := ""
	if len(serials) > 0 {
		serial = serials[0]
	}

	b.Select(serial)

	return serial, nil
}

// Select sets the current serial and reports whether it changed.
func (b *Bridge) Select(serial string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.serial == serial {
		return false
	}

	b.logger.Info("device selection changed",
		slog.String("from", b.serial),
		slog.String("to", serial),
	)

	b.serial = serial

	return true
}

// Serial returns the current selection.
func (b *Bridge) Serial() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.serial
}

// Current returns a Client bound to the serial selected right now.
func (b *Bridge) Current() *Client {
	return b.Client(b.Serial())
}

// Client returns a Client bound to serial.
func (b *Bridge) Client(serial string) *Client {
	return NewClient(b.runner, serial, b.opts, b.logger)
}

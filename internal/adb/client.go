// Package adb drives the Android Debug Bridge command-line tool. Client
// implements engine.Remote for a single device serial captured at
// construction; Bridge discovers devices and tracks the current one.
package adb

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/alexjbarnes/adb-sync/internal/engine"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
)

// Options configures command execution.
type Options struct {
	// Path is the adb executable. Defaults to "adb".
	Path string
	// CommandTimeout bounds short shell commands (test, mkdir, stat, rm).
	CommandTimeout time.Duration
	// ListTimeout bounds directory listings.
	ListTimeout time.Duration
	// TransferTimeout bounds a single push or pull.
	TransferTimeout time.Duration
	// Location interprets ls timestamps, which carry no zone. Defaults
	// to time.Local.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "adb"
	}

	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Second
	}

	if o.ListTimeout <= 0 {
		o.ListTimeout = 30 * time.Second
	}

	if o.TransferTimeout <= 0 {
		o.TransferTimeout = 60 * time.Second
	}

	if o.Location == nil {
		o.Location = time.Local
	}

	return o
}

// Client runs adb commands against one device. Every command carries
// "-s <serial>"; a Client with an empty serial fails every call with
// ErrNoDevice.
type Client struct {
	runner Runner
	serial string
	opts   Options
	logger *slog.Logger
}

var _ engine.Remote = (*Client)(nil)

// NewClient creates a client bound to serial.
func NewClient(runner Runner, serial string, opts Options, logger *slog.Logger) *Client {
	return &Client{
		runner: runner,
		serial: serial,
		opts:   opts.withDefaults(),
		logger: logger.With(slog.String("serial", serial)),
	}
}

// Serial returns the device serial this client targets.
func (c *Client) Serial() string {
	return c.serial
}

func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) (Result, error) {
	if c.serial == "" {
		return Result{}, apperrors.ErrNoDevice
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := append([]string{"-s", c.serial}, args...)

	c.logger.Debug("adb", slog.String("args", strings.Join(args, " ")))

	res, err := c.runner.Run(ctx, c.opts.Path, full)
	if err != nil {
		return res, fmt.Errorf("adb %s: %w", args[0], err)
	}

	return res, nil
}

func (c *Client) shell(ctx context.Context, timeout time.Duration, command string) (Result, error) {
	return c.run(ctx, timeout, "shell", command)
}

func failure(op, target string, res Result) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}

	return fmt.Errorf("adb %s %s: exit %d: %s", op, target, res.ExitCode, msg)
}

// IsConnected reports whether the device answers a trivial shell command.
func (c *Client) IsConnected(ctx context.Context) bool {
	res, err := c.shell(ctx, c.opts.CommandTimeout, "echo online")
	return err == nil && res.ExitCode == 0 && strings.Contains(res.Stdout, "online")
}

// Exists reports whether p exists on the device.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	res, err := c.shell(ctx, c.opts.CommandTimeout, "test -e "+shellescape.Quote(p)+" && echo exists")
	if err != nil {
		return false, err
	}

	return strings.Contains(res.Stdout, "exists"), nil
}

// ListShallow lists the direct children of dir. A failing ls yields an
// empty listing.
func (c *Client) ListShallow(ctx context.Context, dir string) ([]engine.RemoteEntry, error) {
	res, err := c.shell(ctx, c.opts.ListTimeout, "ls -la "+shellescape.Quote(dir))
	if err != nil {
		return nil, err
	}

	if res.ExitCode != 0 {
		c.logger.Debug("ls failed", slog.String("dir", dir), slog.String("stderr", strings.TrimSpace(res.Stderr)))
		return nil, nil
	}

	return parseLs(res.Stdout, c.opts.Location), nil
}

// ListRecursive lists every file under dir with find -printf. Devices
// whose find lacks -printf produce no parsable output, which is reported
// as an empty result so the caller can fall back to ListShallow. find
// exits non-zero when any subdirectory is unreadable but still prints
// everything it could reach, so a parsable listing wins over the exit
// code.
func (c *Client) ListRecursive(ctx context.Context, dir string) ([]engine.RemoteFile, error) {
	res, err := c.shell(ctx, c.opts.ListTimeout, "find "+shellescape.Quote(dir)+` -type f -printf '%P\t%s\t%T@\n'`)
	if err != nil {
		return nil, err
	}

	files := parseFind(res.Stdout)
	if len(files) == 0 {
		if res.ExitCode != 0 {
			c.logger.Debug("recursive listing unavailable",
				slog.String("dir", dir),
				slog.String("stderr", strings.TrimSpace(res.Stderr)),
			)
		}

		return nil, nil
	}

	if res.ExitCode != 0 {
		c.logger.Warn("recursive listing incomplete",
			slog.String("dir", dir),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", strings.TrimSpace(res.Stderr)),
		)
	}

	return files, nil
}

// Stat returns type, size and mtime for p.
func (c *Client) Stat(ctx context.Context, p string) (engine.RemoteEntry, error) {
	res, err := c.shell(ctx, c.opts.CommandTimeout, "stat -c '%F %s %Y' "+shellescape.Quote(p))
	if err != nil {
		return engine.RemoteEntry{}, err
	}

	if res.ExitCode != 0 {
		return engine.RemoteEntry{}, failure("stat", p, res)
	}

	entry, ok := parseStat(res.Stdout, path.Base(p))
	if !ok {
		return engine.RemoteEntry{}, fmt.Errorf("adb stat %s: unexpected output %q", p, strings.TrimSpace(res.Stdout))
	}

	return entry, nil
}

// Push copies a local file to the device. adb push keeps the local mtime.
func (c *Client) Push(ctx context.Context, local, remote string) error {
	res, err := c.run(ctx, c.opts.TransferTimeout, "push", local, remote)
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return failure("push", remote, res)
	}

	return nil
}

// Pull copies a device file to local, preserving its mtime.
func (c *Client) Pull(ctx context.Context, remote, local string) error {
	res, err := c.run(ctx, c.opts.TransferTimeout, "pull", "-a", remote, local)
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return failure("pull", remote, res)
	}

	return nil
}

// MakeDir creates p and any missing parents.
func (c *Client) MakeDir(ctx context.Context, p string) error {
	res, err := c.shell(ctx, c.opts.CommandTimeout, "mkdir -p "+shellescape.Quote(p))
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return failure("mkdir", p, res)
	}

	return nil
}

// Delete removes p from the device. recursive removes directories too.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) error {
	flag := "-f"
	if recursive {
		flag = "-rf"
	}

	res, err := c.shell(ctx, c.opts.CommandTimeout, "rm "+flag+" "+shellescape.Quote(p))
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return failure("rm", p, res)
	}

	return nil
}

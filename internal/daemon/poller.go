package daemon

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
)

// DeviceSelector lists online devices and holds the process-wide
// selection. *adb.Bridge satisfies it.
type DeviceSelector interface {
	Online(ctx context.Context) ([]string, error)
	Select(serial string) bool
	Serial() string
}

// SerialStore remembers the last connected device. *state.State
// satisfies it.
type SerialStore interface {
	LastSerial() string
	SetLastSerial(serial string) error
}

// PollerConfig holds the poller settings.
type PollerConfig struct {
	// Preferred is selected whenever it is online. Empty falls back to
	// the last remembered serial, then to the first online device.
	Preferred string
	Interval  time.Duration
	// Cooldown is the minimum time between two device-triggered runs of
	// the same pipeline.
	Cooldown time.Duration
}

// Poller watches for device attachment. When a device appears, or the
// selected device changes, it enqueues the auto-sync pipelines for it.
type Poller struct {
	devices   DeviceSelector
	store     SerialStore
	queue     Queue
	pipelines PipelineSource
	cfg       PollerConfig
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	connected bool
	lastAuto  map[string]time.Time
}

// NewPoller creates a poller. store may be nil.
func NewPoller(devices DeviceSelector, store SerialStore, queue Queue, pipelines PipelineSource, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Preferred == "" && store != nil {
		cfg.Preferred = store.LastSerial()
	}

	return &Poller{
		devices:   devices,
		store:     store,
		queue:     queue,
		pipelines: pipelines,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		lastAuto:  make(map[string]time.Time),
	}
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("device poller started", slog.Duration("interval", p.cfg.Interval))

	p.Poll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Connected reports whether the last poll found a device.
func (p *Poller) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connected
}

// Poll performs one discovery pass. A listing error is treated as no
// device attached.
func (p *Poller) Poll(ctx context.Context) {
	serials, err := p.devices.Online(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		p.logger.Warn("listing devices", slog.String("error", err.Error()))

		serials = nil
	}

	chosen := p.choose(serials)
	changed := p.devices.Select(chosen)

	p.mu.Lock()
	was := p.connected
	p.connected = chosen != ""
	p.mu.Unlock()

	if chosen == "" {
		if was {
			p.logger.Info("device disconnected")
		}

		return
	}

	if was && !changed {
		return
	}

	p.logger.Info("device connected", slog.String("serial", chosen))

	if p.store != nil {
		if err := p.store.SetLastSerial(chosen); err != nil {
			p.logger.Warn("saving device serial", slog.String("error", err.Error()))
		}
	}

	p.TriggerAutoSync(chosen)
}

func (p *Poller) choose(serials []string) string {
	if len(serials) == 0 {
		return ""
	}

	if p.cfg.Preferred != "" && slices.Contains(serials, p.cfg.Preferred) {
		return p.cfg.Preferred
	}

	return serials[0]
}

// TriggerAutoSync enqueues every enabled auto-sync pipeline for serial
// that has not been auto-synced within the cooldown.
func (p *Poller) TriggerAutoSync(serial string) {
	pipelines, err := p.pipelines()
	if err != nil {
		p.logger.Error("loading pipelines", slog.String("error", err.Error()))
		return
	}

	now := p.now()

	for _, pl := range autoSyncFor(pipelines, serial) {
		logger := p.logger.With(slog.String("pipeline", pl.Name))

		p.mu.Lock()
		last, seen := p.lastAuto[pl.Name]
		p.mu.Unlock()

		if seen && now.Sub(last) <= p.cfg.Cooldown {
			logger.Debug("auto sync cooling down", slog.Time("last", last))
			continue
		}

		_, err := p.queue.Submit(scheduler.Request{Pipeline: pl.Name, Trigger: scheduler.TriggerDevice}, nil)
		switch {
		case errors.Is(err, apperrors.ErrAlreadyQueued):
			logger.Debug("auto sync already queued")
			continue
		case err != nil:
			logger.Warn("queueing auto sync", slog.String("error", err.Error()))
			continue
		}

		p.mu.Lock()
		p.lastAuto[pl.Name] = now
		p.mu.Unlock()

		logger.Info("auto sync queued")
	}
}

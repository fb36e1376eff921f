package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/engine"
	"github.com/go-viper/mapstructure/v2"
	"github.com/ncruces/go-strftime"
)

// DateIntervalName is the registry name of the date interval policy.
const DateIntervalName = "date_interval"

const startDateLayout = "2006-01-02"

// DateIntervalConfig is the policy_config shape for date_interval.
type DateIntervalConfig struct {
	// BasePath is the remote directory the dated folders live under.
	// Empty means the pipeline's own remote root.
	BasePath string `mapstructure:"base_path"`
	// IntervalDays is the length of one period.
	IntervalDays int `mapstructure:"interval_days"`
	// DateFormat is a strftime layout applied to the period start.
	DateFormat string `mapstructure:"date_format"`
	// StartDate anchors period zero, as YYYY-MM-DD.
	StartDate string `mapstructure:"start_date"`
}

// dateInterval is built per run. The dated folder is fixed on first use
// so every hook of one run targets the same period.
type dateInterval struct {
	cfg   DateIntervalConfig
	start time.Time
	now   func() time.Time
	dir   string
}

// NewDateInterval returns the constructor for the date interval policy.
// It redirects the remote root to base_path/<period start>, where a new
// period begins every interval_days days counted from start_date, and
// creates that folder on the remote when a run starts.
func NewDateInterval(now func() time.Time) Constructor {
	return func(raw map[string]any) (*engine.Hooks, error) {
		cfg := DateIntervalConfig{
			IntervalDays: 10,
			DateFormat:   "%m-%d",
			StartDate:    "2026-01-01",
		}

		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
		})
		if err != nil {
			return nil, err
		}

		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("date_interval config: %w", err)
		}

		if cfg.IntervalDays <= 0 {
			return nil, fmt.Errorf("date_interval config: interval_days must be positive, got %d", cfg.IntervalDays)
		}

		if cfg.DateFormat == "" {
			return nil, fmt.Errorf("date_interval config: date_format is empty")
		}

		start, err := time.Parse(startDateLayout, cfg.StartDate)
		if err != nil {
			return nil, fmt.Errorf("date_interval config: start_date: %w", err)
		}

		p := &dateInterval{cfg: cfg, start: start, now: now}

		return &engine.Hooks{
			ResolvePaths: p.resolvePaths,
			OnStart:      p.onStart,
		}, nil
	}
}

// periodStart returns the first day of the period containing day.
func (p *dateInterval) periodStart(day time.Time) time.Time {
	y, m, d := day.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	days := int(today.Sub(p.start).Hours() / 24)

	period := days / p.cfg.IntervalDays
	if days%p.cfg.IntervalDays != 0 && days < 0 {
		period--
	}

	return p.start.AddDate(0, 0, period*p.cfg.IntervalDays)
}

func (p *dateInterval) remoteDir(spec engine.SyncSpec) string {
	if p.dir != "" {
		return p.dir
	}

	base := p.cfg.BasePath
	if base == "" {
		base = spec.Remote
	}

	p.dir = path.Join(base, strftime.Format(p.cfg.DateFormat, p.periodStart(p.now())))

	return p.dir
}

func (p *dateInterval) resolvePaths(_ context.Context, hc engine.HookContext) (string, string, error) {
	return hc.Spec.Local, p.remoteDir(hc.Spec), nil
}

func (p *dateInterval) onStart(ctx context.Context, hc engine.HookContext) error {
	dir := p.remoteDir(hc.Spec)

	exists, err := hc.Remote.Exists(ctx, dir)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	if err := hc.Remote.MakeDir(ctx, dir); err != nil {
		return err
	}

	hc.Logger.Info("created dated remote directory", slog.String("dir", dir))

	return nil
}

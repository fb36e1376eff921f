package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alexjbarnes/adb-sync/internal/engine"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	// PipelinesVersion is written to every saved pipelines file.
	PipelinesVersion = "2.0"

	pipelinesFilePerm = fs.FileMode(0o600)
	pipelinesDirPerm  = fs.FileMode(0o700)
)

// Pipeline is one persisted sync configuration.
type Pipeline struct {
	Name   string `yaml:"name"`
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
	// Device is the legacy spelling of Remote, accepted on load only.
	Device string `yaml:"device,omitempty"`
	// Serial pins the pipeline to one device. Empty means whichever
	// device is selected.
	Serial            string         `yaml:"serial,omitempty"`
	Direction         string         `yaml:"direction"`
	IncludeExtensions []string       `yaml:"include_extensions,omitempty"`
	ExcludeExtensions []string       `yaml:"exclude_extensions,omitempty"`
	Ignore            []string       `yaml:"ignore,omitempty"`
	SyncDays          int            `yaml:"sync_days"`
	Policy            string         `yaml:"policy,omitempty"`
	PolicyConfig      map[string]any `yaml:"policy_config,omitempty"`
	AutoSync          bool           `yaml:"auto_sync"`
	Enabled           *bool          `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the pipeline takes part in "run all" and
// auto sync. Pipelines are enabled unless explicitly disabled.
func (p Pipeline) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// normalize folds legacy fields and canonicalizes extensions and the
// direction spelling. Unknown directions are left for Validate.
func (p *Pipeline) normalize() {
	p.Name = strings.TrimSpace(p.Name)

	if p.Remote == "" {
		p.Remote = p.Device
	}

	p.Device = ""

	if d, err := engine.ParseDirection(p.Direction); err == nil {
		p.Direction = string(d)
	}

	p.IncludeExtensions = normalizeExtensions(p.IncludeExtensions)
	p.ExcludeExtensions = normalizeExtensions(p.ExcludeExtensions)
}

func normalizeExtensions(exts []string) []string {
	var out []string

	for _, e := range exts {
		if e = engine.NormalizeExtension(e); e != "" && !slices.Contains(out, e) {
			out = append(out, e)
		}
	}

	return out
}

// Validate checks the fields a run cannot do without.
func (p Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}

	if p.Local == "" {
		return fmt.Errorf("pipeline %q: local path is required", p.Name)
	}

	if p.Remote == "" {
		return fmt.Errorf("pipeline %q: remote path is required", p.Name)
	}

	if _, err := engine.ParseDirection(p.Direction); err != nil {
		return fmt.Errorf("pipeline %q: %w", p.Name, err)
	}

	if p.SyncDays < 0 {
		return fmt.Errorf("pipeline %q: sync_days must not be negative", p.Name)
	}

	return nil
}

// Spec converts the pipeline to the engine's run configuration.
func (p Pipeline) Spec() (engine.SyncSpec, error) {
	if err := p.Validate(); err != nil {
		return engine.SyncSpec{}, err
	}

	dir, _ := engine.ParseDirection(p.Direction)

	return engine.SyncSpec{
		Name:              p.Name,
		Local:             p.Local,
		Remote:            p.Remote,
		Direction:         dir,
		IncludeExtensions: slices.Clone(p.IncludeExtensions),
		ExcludeExtensions: slices.Clone(p.ExcludeExtensions),
		Ignore:            slices.Clone(p.Ignore),
		SyncDays:          p.SyncDays,
		Policy:            p.Policy,
		PolicyConfig:      p.PolicyConfig,
	}.Clone(), nil
}

// Pipelines is the on-disk pipeline list. Order is preserved.
type Pipelines struct {
	Version   string     `yaml:"version"`
	Pipelines []Pipeline `yaml:"pipelines"`
}

// LoadPipelines reads the pipelines file. A missing file yields an empty
// list. Unknown keys are rejected so typos surface early.
func LoadPipelines(path string) (*Pipelines, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Pipelines{Version: PipelinesVersion}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading pipelines: %w", err)
	}

	return ParsePipelines(data)
}

// ParsePipelines decodes and validates a pipelines document.
func ParsePipelines(data []byte) (*Pipelines, error) {
	var ps Pipelines

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&ps); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing pipelines: %w", err)
	}

	if ps.Version == "" {
		ps.Version = PipelinesVersion
	}

	seen := make(map[string]bool, len(ps.Pipelines))

	for i := range ps.Pipelines {
		p := &ps.Pipelines[i]
		p.normalize()

		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", i+1, err)
		}

		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate pipeline name %q", p.Name)
		}

		seen[p.Name] = true
	}

	return &ps, nil
}

// Save writes the list to path atomically via a temp file and rename.
func (ps *Pipelines) Save(path string) error {
	ps.Version = PipelinesVersion

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(ps); err != nil {
		return fmt.Errorf("encoding pipelines: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding pipelines: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), pipelinesDirPerm); err != nil {
		return fmt.Errorf("creating pipelines directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pipelines-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing pipelines: %w", err)
	}

	if err := tmp.Chmod(pipelinesFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting pipelines permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing pipelines: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing pipelines file: %w", err)
	}

	return nil
}

func (ps *Pipelines) index(name string) int {
	return slices.IndexFunc(ps.Pipelines, func(p Pipeline) bool { return p.Name == name })
}

// Find returns a copy of the named pipeline.
func (ps *Pipelines) Find(name string) (Pipeline, error) {
	i := ps.index(name)
	if i < 0 {
		return Pipeline{}, fmt.Errorf("%w: %s", apperrors.ErrPipelineNotFound, name)
	}

	return ps.Pipelines[i], nil
}

// Add appends a pipeline. Names must be unique.
func (ps *Pipelines) Add(p Pipeline) error {
	p.normalize()

	if err := p.Validate(); err != nil {
		return err
	}

	if ps.index(p.Name) >= 0 {
		return fmt.Errorf("pipeline %q already exists", p.Name)
	}

	ps.Pipelines = append(ps.Pipelines, p)

	return nil
}

// Update replaces the named pipeline in place. The replacement may
// carry a new name as long as it does not collide with another one.
func (ps *Pipelines) Update(name string, p Pipeline) error {
	i := ps.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrPipelineNotFound, name)
	}

	p.normalize()

	if err := p.Validate(); err != nil {
		return err
	}

	if j := ps.index(p.Name); j >= 0 && j != i {
		return fmt.Errorf("pipeline %q already exists", p.Name)
	}

	ps.Pipelines[i] = p

	return nil
}

// Delete removes the named pipeline.
func (ps *Pipelines) Delete(name string) error {
	i := ps.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrPipelineNotFound, name)
	}

	ps.Pipelines = slices.Delete(ps.Pipelines, i, i+1)

	return nil
}

// Enabled returns the enabled pipelines in file order.
func (ps *Pipelines) Enabled() []Pipeline {
	var out []Pipeline

	for _, p := range ps.Pipelines {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}

	return out
}

// AutoSync returns the enabled pipelines with auto_sync set.
func (ps *Pipelines) AutoSync() []Pipeline {
	var out []Pipeline

	for _, p := range ps.Enabled() {
		if p.AutoSync {
			out = append(out, p)
		}
	}

	return out
}

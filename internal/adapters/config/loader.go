// Package config loads tally.yaml and the TALLY_* environment overlay.
package config

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"

	"github.com/caarlos0/env/v11"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFilename is read when no path is given.
	DefaultFilename = "tally.yaml"
	// EnvPrefix prefixes every overlay variable.
	EnvPrefix = "TALLY_"
	// PathEnv names the variable holding the config path.
	PathEnv = EnvPrefix + "CONFIG"
)

// Loader implements ports.ConfigLoader.
type Loader struct {
	// Environ supplies the overlay variables; os.Environ when nil.
	Environ func() []string
}

var _ ports.ConfigLoader = (*Loader)(nil)

// NewLoader creates a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the settings at path over the defaults and applies the overlay.
// A missing file is not an error.
func (l *Loader) Load(path string) (domain.Settings, error) {
	defaults := domain.DefaultSettings()
	file := fromSettings(defaults)
	file.Categories = maps.Clone(defaults.Categories)

	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return domain.Settings{}, zerr.With(zerr.Wrap(domain.ErrConfigReadFailed, err.Error()), "path", path)
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return domain.Settings{}, zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, err.Error()), "path", path)
		}
	}

	if err := l.overlay(&file); err != nil {
		return domain.Settings{}, err
	}

	settings := file.settings()
	if err := Validate(settings); err != nil {
		return domain.Settings{}, zerr.With(err, "path", path)
	}
	return settings, nil
}

func (l *Loader) overlay(file *Tallyfile) error {
	ov := envOverlay{
		StoreDriver: file.Store.Driver,
		StorePath:   file.Store.Path,
		RedisURL:    file.Store.RedisURL,
		BaseURL:     file.Provider.BaseURL,
		MinSpacing:  file.RateLimit.MinSpacing,
		LogLevel:    file.LogLevel,
		Listen:      file.Listen,
		Channels:    file.Channels,
	}

	opts := env.Options{Prefix: EnvPrefix}
	if l.Environ != nil {
		opts.Environment = env.ToMap(l.Environ())
	}
	if err := env.ParseWithOptions(&ov, opts); err != nil {
		return zerr.Wrap(domain.ErrConfigParseFailed, err.Error())
	}

	file.Store.Driver = ov.StoreDriver
	file.Store.Path = ov.StorePath
	file.Store.RedisURL = ov.RedisURL
	file.Provider.BaseURL = ov.BaseURL
	file.RateLimit.MinSpacing = ov.MinSpacing
	file.LogLevel = ov.LogLevel
	file.Listen = ov.Listen
	file.Channels = ov.Channels
	return nil
}

// Validate rejects settings the engine cannot run with.
func Validate(s domain.Settings) error {
	invalid := func(field string) error {
		return zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "invalid setting"), "field", field)
	}

	switch {
	case s.Concurrency < 1:
		return invalid("queue.concurrency")
	case s.RefreshCooldown <= 0:
		return invalid("refresh_cooldown")
	case s.RateLimit.Params.MinSpacing < 0:
		return invalid("rate_limit.min_spacing")
	case s.RateLimit.Params.AbusePause <= 0:
		return invalid("rate_limit.abuse_pause")
	case s.RateLimit.Params.ChallengePause <= 0:
		return invalid("rate_limit.challenge_pause")
	case s.RateLimit.JitterMin <= 0 || s.RateLimit.JitterMax < s.RateLimit.JitterMin:
		return invalid("rate_limit.jitter_min")
	case s.Challenge.AttemptTimeout <= 0:
		return invalid("challenge.attempt_timeout")
	case s.Challenge.SolveTimeout <= 0:
		return invalid("challenge.solve_timeout")
	case s.Challenge.PollInterval <= 0:
		return invalid("challenge.poll_interval")
	case s.Provider.RequestsPerSecond <= 0:
		return invalid("provider.requests_per_second")
	}

	for name, c := range s.Categories {
		if c.Months < 0 || c.Threshold < 0 {
			return invalid("categories." + name)
		}
	}
	return nil
}

type pathKey struct{}

// WithPath returns a context carrying the config path chosen on the command line.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// PathFrom returns the config path in ctx, then $TALLY_CONFIG, then DefaultFilename.
func PathFrom(ctx context.Context) string {
	if p, ok := ctx.Value(pathKey{}).(string); ok && p != "" {
		return p
	}
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultFilename
}

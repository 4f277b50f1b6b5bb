package config

import (
	"time"

	"go.trai.ch/tally/internal/core/domain"
)

// Tallyfile is the structure of tally.yaml.
type Tallyfile struct {
	Categories      map[string]domain.Category `yaml:"categories"`
	Channels        []string                   `yaml:"channels"`
	RefreshCooldown time.Duration              `yaml:"refresh_cooldown"`
	LogLevel        string                     `yaml:"log_level"`
	Listen          string                     `yaml:"listen"`
	Telemetry       bool                       `yaml:"telemetry"`
	RateLimit       RateLimitDTO               `yaml:"rate_limit"`
	Challenge       ChallengeDTO               `yaml:"challenge"`
	Queue           QueueDTO                   `yaml:"queue"`
	Recheck         RecheckDTO                 `yaml:"recheck"`
	Store           StoreDTO                   `yaml:"store"`
	Provider        ProviderDTO                `yaml:"provider"`
}

// RateLimitDTO is the rate_limit section.
type RateLimitDTO struct {
	MinSpacing     time.Duration `yaml:"min_spacing"`
	AbusePause     time.Duration `yaml:"abuse_pause"`
	ChallengePause time.Duration `yaml:"challenge_pause"`
	JitterMin      float64       `yaml:"jitter_min"`
	JitterMax      float64       `yaml:"jitter_max"`
}

// ChallengeDTO is the challenge section.
type ChallengeDTO struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	SolveTimeout   time.Duration `yaml:"solve_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// QueueDTO is the queue section.
type QueueDTO struct {
	Concurrency int `yaml:"concurrency"`
}

// RecheckDTO is the recheck section.
type RecheckDTO struct {
	TruncatedPerMonth  time.Duration `yaml:"truncated_per_month"`
	TruncatedFloor     time.Duration `yaml:"truncated_floor"`
	UnboundedTruncated time.Duration `yaml:"unbounded_truncated"`
}

// StoreDTO is the store section.
type StoreDTO struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// ProviderDTO is the provider section.
type ProviderDTO struct {
	BaseURL           string  `yaml:"base_url"`
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// envOverlay lists the settings that TALLY_* environment variables override.
type envOverlay struct {
	StoreDriver string        `env:"STORE_DRIVER"`
	StorePath   string        `env:"STORE_PATH"`
	RedisURL    string        `env:"REDIS_URL"`
	BaseURL     string        `env:"BASE_URL"`
	MinSpacing  time.Duration `env:"MIN_SPACING"`
	LogLevel    string        `env:"LOG_LEVEL"`
	Listen      string        `env:"LISTEN"`
	Channels    []string      `env:"CHANNELS" envSeparator:","`
}

func fromSettings(s domain.Settings) Tallyfile {
	return Tallyfile{
		Categories:      s.Categories,
		Channels:        s.Channels,
		RefreshCooldown: s.RefreshCooldown,
		LogLevel:        s.LogLevel.String(),
		Listen:          s.Listen,
		Telemetry:       s.Telemetry,
		RateLimit: RateLimitDTO{
			MinSpacing:     s.RateLimit.Params.MinSpacing,
			AbusePause:     s.RateLimit.Params.AbusePause,
			ChallengePause: s.RateLimit.Params.ChallengePause,
			JitterMin:      s.RateLimit.JitterMin,
			JitterMax:      s.RateLimit.JitterMax,
		},
		Challenge: ChallengeDTO{
			AttemptTimeout: s.Challenge.AttemptTimeout,
			SolveTimeout:   s.Challenge.SolveTimeout,
			PollInterval:   s.Challenge.PollInterval,
		},
		Queue: QueueDTO{Concurrency: s.Concurrency},
		Recheck: RecheckDTO{
			TruncatedPerMonth:  s.Recheck.TruncatedPerMonth,
			TruncatedFloor:     s.Recheck.TruncatedFloor,
			UnboundedTruncated: s.Recheck.UnboundedTruncated,
		},
		Store: StoreDTO{
			Driver:   s.Store.Driver,
			Path:     s.Store.Path,
			RedisURL: s.Store.RedisURL,
		},
		Provider: ProviderDTO{
			BaseURL:           s.Provider.BaseURL,
			UserAgent:         s.Provider.UserAgent,
			RequestsPerSecond: s.Provider.RequestsPerSecond,
		},
	}
}

func (f Tallyfile) settings() domain.Settings {
	return domain.Settings{
		Categories:      f.Categories,
		Channels:        f.Channels,
		RefreshCooldown: f.RefreshCooldown,
		RateLimit: domain.RateLimitSettings{
			Params: domain.RateLimitParams{
				MinSpacing:     f.RateLimit.MinSpacing,
				AbusePause:     f.RateLimit.AbusePause,
				ChallengePause: f.RateLimit.ChallengePause,
			},
			JitterMin: f.RateLimit.JitterMin,
			JitterMax: f.RateLimit.JitterMax,
		},
		Challenge: domain.ChallengeSettings{
			AttemptTimeout: f.Challenge.AttemptTimeout,
			SolveTimeout:   f.Challenge.SolveTimeout,
			PollInterval:   f.Challenge.PollInterval,
		},
		Recheck: domain.RecheckSettings{
			TruncatedPerMonth:  f.Recheck.TruncatedPerMonth,
			TruncatedFloor:     f.Recheck.TruncatedFloor,
			UnboundedTruncated: f.Recheck.UnboundedTruncated,
		},
		Concurrency: f.Queue.Concurrency,
		Store: domain.StoreSettings{
			Driver:   f.Store.Driver,
			Path:     f.Store.Path,
			RedisURL: f.Store.RedisURL,
		},
		Provider: domain.ProviderSettings{
			BaseURL:           f.Provider.BaseURL,
			UserAgent:         f.Provider.UserAgent,
			RequestsPerSecond: f.Provider.RequestsPerSecond,
		},
		LogLevel:  domain.ParseLogLevel(f.LogLevel),
		Listen:    f.Listen,
		Telemetry: f.Telemetry,
	}
}

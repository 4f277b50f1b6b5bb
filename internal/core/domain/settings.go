package domain

import (
	"slices"
	"strings"
	"time"
)

// DefaultCategory is the category used when a lookup names none or an unknown one.
const DefaultCategory = "default"

// Category is the lookup policy for a class of listings.
type Category struct {
	Months    int `json:"months" yaml:"months"`
	Threshold int `json:"threshold" yaml:"threshold"`
}

// RecheckSettings tunes the horizon used for truncated measurements.
type RecheckSettings struct {
	TruncatedPerMonth  time.Duration
	TruncatedFloor     time.Duration
	UnboundedTruncated time.Duration
}

// RateLimitSettings holds the limiter defaults and the spacing jitter range.
type RateLimitSettings struct {
	Params    RateLimitParams
	JitterMin float64
	JitterMax float64
}

// ChallengeSettings holds the verification gate timings.
type ChallengeSettings struct {
	AttemptTimeout time.Duration
	SolveTimeout   time.Duration
	PollInterval   time.Duration
}

// StoreSettings selects and configures the state store driver.
type StoreSettings struct {
	Driver   string
	Path     string
	RedisURL string
}

// ProviderSettings configures the remote measurement provider.
type ProviderSettings struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
}

// Settings is the resolved runtime configuration.
type Settings struct {
	Categories      map[string]Category
	Channels        []string
	RefreshCooldown time.Duration
	RateLimit       RateLimitSettings
	Challenge       ChallengeSettings
	Recheck         RecheckSettings
	Concurrency     int
	Store           StoreSettings
	Provider        ProviderSettings
	LogLevel        LogLevel
	Listen          string
	Telemetry       bool
}

// DefaultSettings returns the settings used when no config file is present.
func DefaultSettings() Settings {
	return Settings{
		Categories: map[string]Category{
			DefaultCategory: {Months: 3, Threshold: 5},
			"buy":           {Months: 6, Threshold: 10},
			"sell":          {Months: 6, Threshold: 10},
		},
		RefreshCooldown: 12 * time.Hour,
		RateLimit: RateLimitSettings{
			Params: RateLimitParams{
				MinSpacing:     30 * time.Second,
				AbusePause:     5 * time.Minute,
				ChallengePause: time.Minute,
			},
			JitterMin: 0.5,
			JitterMax: 1.5,
		},
		Challenge: ChallengeSettings{
			AttemptTimeout: 20 * time.Second,
			SolveTimeout:   5 * time.Minute,
			PollInterval:   2 * time.Second,
		},
		Recheck: RecheckSettings{
			TruncatedPerMonth:  15 * 24 * time.Hour,
			TruncatedFloor:     14 * 24 * time.Hour,
			UnboundedTruncated: 30 * 24 * time.Hour,
		},
		Concurrency: 1,
		Store: StoreSettings{
			Driver: "file",
			Path:   ".tally",
		},
		Provider: ProviderSettings{
			BaseURL:           "https://arca.live",
			UserAgent:         "tally",
			RequestsPerSecond: 1,
		},
		LogLevel: LogLevelInfo,
		Listen:   "127.0.0.1:8790",
	}
}

// CategoryFor returns the policy for name, falling back to the default category.
func (s Settings) CategoryFor(name string) Category {
	if c, ok := s.Categories[name]; ok {
		return c
	}
	if c, ok := s.Categories[DefaultCategory]; ok {
		return c
	}
	return Category{Months: 3, Threshold: 5}
}

// ChannelAllowed reports whether lookups may target channel. An empty allowlist allows all.
func (s Settings) ChannelAllowed(channel string) bool {
	if len(s.Channels) == 0 {
		return true
	}
	return slices.Contains(s.Channels, channel)
}

// IsAnonymous reports whether subject is an anonymous nickname that cannot be searched.
func IsAnonymous(subject string) bool {
	return strings.HasPrefix(subject, "*") || strings.Contains(subject, "#")
}

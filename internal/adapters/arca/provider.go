// Package arca measures post counts by searching a channel's board on
// arca.live.
package arca

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/time/rate"
)

const maxBodySize = 4 << 20

var challengeMarkers = []string{
	"cf_chl_opt",
	"cdn-cgi/challenge-platform",
	"cf-turnstile",
	`id="challenge-form"`,
	`class="g-recaptcha"`,
	`class="h-captcha"`,
}

// Provider implements ports.MeasurementProvider against the board search page.
type Provider struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	limiter   *rate.Limiter
	clock     clockwork.Clock
	log       ports.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithClock replaces the clock used for window cutoffs.
func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) {
		p.clock = c
	}
}

// New creates a Provider. A non-positive request rate disables the local cap.
func New(settings domain.ProviderSettings, log ports.Logger, opts ...Option) (*Provider, error) {
	base, err := url.Parse(settings.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, zerr.With(zerr.New("invalid provider base url"), "url", settings.BaseURL)
	}

	limit := rate.Inf
	if settings.RequestsPerSecond > 0 {
		limit = rate.Limit(settings.RequestsPerSecond)
	}

	p := &Provider{
		client:    &http.Client{},
		base:      base,
		userAgent: settings.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		clock:     clockwork.NewRealClock(),
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Measure counts the subject's posts in channel within the trailing window of
// months (zero for all time).
func (p *Provider) Measure(ctx context.Context, subject, channel string, months int) (domain.Measurement, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Measurement{}, zerr.Wrap(domain.ErrNetwork, err.Error())
	}

	target := p.searchURL(subject, channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return domain.Measurement{}, zerr.With(zerr.Wrap(err, "failed to build request"), "url", target)
	}
	req.Header.Set("Accept", "text/html")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	p.log.Debug("searching board", "channel", channel, "subject", subject, "months", months)

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Measurement{}, zerr.With(zerr.Wrap(domain.ErrNetwork, err.Error()), "url", target)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return domain.Measurement{}, zerr.With(zerr.Wrap(domain.ErrNetwork, err.Error()), "url", target)
	}

	if err := classify(resp.StatusCode, body); err != nil {
		return domain.Measurement{}, zerr.With(zerr.With(err, "url", target), "status", resp.StatusCode)
	}

	page, err := parsePage(body)
	if err != nil {
		return domain.Measurement{}, zerr.With(err, "url", target)
	}
	if !page.listed {
		if page.rateLimited(body) {
			return domain.Measurement{}, zerr.With(zerr.Wrap(domain.ErrRateLimited, "rate limit page"), "url", target)
		}
		return domain.Measurement{}, zerr.With(zerr.Wrap(domain.ErrParse, "search results missing"), "url", target)
	}

	now := p.clock.Now()
	var cutoff time.Time
	if months > 0 {
		cutoff = now.AddDate(0, -months, 0)
	}
	return page.measure(subject, cutoff, now), nil
}

func (p *Provider) searchURL(subject, channel string) string {
	u := p.base.JoinPath("b", channel)
	q := url.Values{}
	q.Set("target", "nickname")
	q.Set("keyword", subject)
	u.RawQuery = q.Encode()
	return u.String()
}

// classify maps the status and raw body to a measurement error, or nil when
// the body should be parsed.
func classify(status int, body []byte) error {
	switch {
	case isChallenge(body):
		return zerr.Wrap(domain.ErrChallengePage, "verification page")
	case status == http.StatusTooManyRequests:
		return zerr.Wrap(domain.ErrRateLimited, "too many requests")
	case status >= http.StatusInternalServerError:
		return zerr.Wrap(domain.ErrNetwork, http.StatusText(status))
	case status >= http.StatusBadRequest:
		return zerr.Wrap(domain.ErrParse, http.StatusText(status))
	}
	return nil
}

func isChallenge(body []byte) bool {
	if bytes.Contains(body, []byte("list-table")) {
		return false
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return true
		}
	}
	return false
}

func (pg *page) rateLimited(body []byte) bool {
	return bytes.Contains(body, []byte("rate_limit")) ||
		strings.Contains(pg.title, "429") ||
		(strings.Contains(pg.title, "오류") && bytes.Contains(body, []byte("429")))
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.trai.ch/tally/internal/app"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/engine/cache"
)

// maxWait bounds how long a lookup may hold the request open for a measurement.
const maxWait = time.Minute

// Service is the application surface served over HTTP. *app.App implements it.
type Service interface {
	Lookup(ctx context.Context, req app.Request) (app.Result, error)
	Status(ctx context.Context) (app.Status, error)
	List(ctx context.Context, opts cache.ListOptions) ([]cache.Listed, error)
	PurgeAll(ctx context.Context) (int, error)
	PurgeKey(ctx context.Context, key domain.CacheKey) error
	ForceResume(ctx context.Context) error
	SetRateLimitParameters(ctx context.Context, p domain.RateLimitParams) error
}

var _ Service = (*app.App)(nil)

// Handler serves the API routes.
type Handler struct {
	service Service
}

type entryView struct {
	Count     int        `json:"count"`
	Label     string     `json:"label"`
	Truncated bool       `json:"truncated"`
	FetchedAt time.Time  `json:"fetched_at"`
	RecheckAt *time.Time `json:"recheck_at,omitempty"`
}

type lookupView struct {
	Key       string     `json:"key"`
	Threshold int        `json:"threshold"`
	Entry     *entryView `json:"entry,omitempty"`
	Pending   bool       `json:"pending"`
	JobID     string     `json:"job_id,omitempty"`
}

type listedView struct {
	Key     string    `json:"key"`
	Channel string    `json:"channel"`
	Months  int       `json:"months"`
	Subject string    `json:"subject"`
	Entry   entryView `json:"entry"`
}

type paramsRequest struct {
	MinSpacing     string `json:"min_spacing"`
	AbusePause     string `json:"abuse_pause"`
	ChallengePause string `json:"challenge_pause"`
}

func newEntryView(e domain.CacheEntry) *entryView {
	v := &entryView{
		Count:     e.Count,
		Label:     e.Label(),
		Truncated: e.Truncated,
		FetchedAt: e.FetchedAt,
	}
	if e.HasRecheck() {
		at := e.RecheckAt
		v.RecheckAt = &at
	}
	return v
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.Request{
		Subject:  q.Get("subject"),
		Channel:  q.Get("channel"),
		Category: q.Get("category"),
	}

	var err error
	if req.Months, err = optionalInt(q.Get("months")); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "months: "+err.Error())
		return
	}
	if req.Threshold, err = optionalInt(q.Get("threshold")); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "threshold: "+err.Error())
		return
	}
	wait, err := waitDuration(q.Get("wait"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "wait: "+err.Error())
		return
	}

	res, err := h.service.Lookup(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	view := lookupView{Key: res.Key.String(), Threshold: res.Threshold}
	if res.Entry != nil {
		view.Entry = newEntryView(*res.Entry)
	}
	if !res.Pending() {
		writeSuccess(w, http.StatusOK, view)
		return
	}

	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		entry, err := res.Future.Wait(ctx)
		switch {
		case err == nil:
			view.Entry = newEntryView(entry)
			writeSuccess(w, http.StatusOK, view)
			return
		case !errors.Is(err, context.DeadlineExceeded):
			writeDomainError(w, r, err)
			return
		}
	}

	view.Pending = true
	view.JobID = res.Future.ID()
	writeSuccess(w, http.StatusAccepted, view)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

func (h *Handler) listCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := cache.ListOptions{
		Filter: cache.Filter(q.Get("filter")),
		Query:  q.Get("q"),
	}
	switch opts.Filter {
	case "":
		opts.Filter = cache.FilterAll
	case cache.FilterAll, cache.FilterLow, cache.FilterHigh, cache.FilterRecheck:
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_query", "unknown filter "+strconv.Quote(string(opts.Filter)))
		return
	}
	if raw := q.Get("threshold"); raw != "" {
		threshold, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_query", "threshold: "+err.Error())
			return
		}
		opts.Threshold = threshold
	}

	listed, err := h.service.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]listedView, 0, len(listed))
	for _, l := range listed {
		views = append(views, listedView{
			Key:     l.Key.String(),
			Channel: l.Key.Channel,
			Months:  l.Key.Months,
			Subject: l.Key.Subject,
			Entry:   *newEntryView(l.Entry),
		})
	}
	writeSuccess(w, http.StatusOK, views)
}

func (h *Handler) purgeAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.PurgeAll(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"purged": n})
}

func (h *Handler) purgeKey(w http.ResponseWriter, r *http.Request) {
	months, err := strconv.Atoi(strings.TrimSuffix(chi.URLParam(r, "months"), "m"))
	if err != nil || months < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_key", "months must be a non-negative integer")
		return
	}
	key := domain.NewCacheKey(chi.URLParam(r, "channel"), months, chi.URLParam(r, "subject"))
	if key.Channel == "" || key.Subject == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_key", "channel and subject are required")
		return
	}

	if err := h.service.PurgeKey(r.Context(), key); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ForceResume(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	var (
		p   domain.RateLimitParams
		err error
	)
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"min_spacing", req.MinSpacing, &p.MinSpacing},
		{"abuse_pause", req.AbusePause, &p.AbusePause},
		{"challenge_pause", req.ChallengePause, &p.ChallengePause},
	} {
		if f.raw == "" {
			continue
		}
		if *f.dst, err = time.ParseDuration(f.raw); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_params", f.name+": "+err.Error())
			return
		}
	}

	if err := h.service.SetRateLimitParameters(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func optionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil //nolint:nilnil // absent value
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func waitDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return min(max(d, 0), maxWait), nil
}

// Package fetch drives window planning, cache lookups and API calls for the
// daily and load curve endpoints.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jgoulah/meterfetch/internal/cache"
	"github.com/jgoulah/meterfetch/internal/logger"
	"github.com/jgoulah/meterfetch/internal/planner"
	"github.com/jgoulah/meterfetch/pkg/models"
)

// DefaultMaxCalls bounds the network calls of one load curve retrieval
const DefaultMaxCalls = 50

// RawFetcher performs the network call for one window
type RawFetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (status int, body []byte, err error)
}

// StopReason tells why a load curve walk ended
type StopReason int

const (
	StopExhausted StopReason = iota // every planned window was resolved
	StopBudget                      // the call budget was spent
	StopFailure                     // a window failed; payloads are partial
)

func (r StopReason) String() string {
	switch r {
	case StopBudget:
		return "call budget reached"
	case StopFailure:
		return "window failed"
	default:
		return "range covered"
	}
}

// LoadCurveResult holds the payloads of a load curve walk, most recent first
type LoadCurveResult struct {
	Payloads     []models.RawPayload
	Windows      []models.DateWindow
	NetworkCalls int
	CacheHits    int
	StopReason   StopReason
	// Failure is set when StopReason is StopFailure
	Failure *models.FetchError
}

// Partial reports whether the walk was cut short by a failed window
func (r *LoadCurveResult) Partial() bool {
	return r.StopReason == StopFailure
}

// Orchestrator resolves windows through the cache first, then the API
type Orchestrator struct {
	fetcher    RawFetcher
	cache      cache.Cache
	planner    *planner.Planner
	logger     *slog.Logger
	writeCache bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithoutCacheWrites keeps reading the cache but never stores new payloads
func WithoutCacheWrites() Option {
	return func(o *Orchestrator) { o.writeCache = false }
}

// WithPlanner replaces the default uncapped planner
func WithPlanner(p *planner.Planner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// New creates an orchestrator. A nil cache disables caching entirely.
func New(fetcher RawFetcher, c cache.Cache, log *slog.Logger, opts ...Option) *Orchestrator {
	log = logger.OrDiscard(log)
	o := &Orchestrator{
		fetcher:    fetcher,
		cache:      c,
		planner:    planner.New(log, 0),
		logger:     log,
		writeCache: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchDaily fetches a daily endpoint in one call over req.Window, clamped to
// the endpoint's history limit. Any failure is returned without data.
func (o *Orchestrator) FetchDaily(ctx context.Context, req models.FetchRequest) (models.RawPayload, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.Endpoint.IsDaily() {
		return nil, fmt.Errorf("%w: %s is not a daily endpoint", models.ErrWrongEndpoint, req.Endpoint)
	}

	seq, err := o.planner.Plan(req.Window, req.Endpoint)
	if err != nil {
		return nil, err
	}
	w, _ := seq.Next()

	o.logger.Info("loading daily data", slog.String("endpoint", req.Endpoint.String()), slog.String("window", w.String()))

	payload, _, err := o.resolve(ctx, req.WithWindow(w))
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchLoadCurve walks req.Window backward one week at a time. Cache hits do
// not count toward maxCalls (non-positive means DefaultMaxCalls). A failed
// window ends the walk and the payloads gathered so far are returned with a
// nil error; the failure is reported in the result.
func (o *Orchestrator) FetchLoadCurve(ctx context.Context, req models.FetchRequest, maxCalls int) (*LoadCurveResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Endpoint != models.LoadCurve {
		return nil, fmt.Errorf("%w: %s is not the load curve endpoint", models.ErrWrongEndpoint, req.Endpoint)
	}
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}

	seq, err := o.planner.Plan(req.Window, req.Endpoint)
	if err != nil {
		return nil, err
	}
	if req.Window.Days() > models.LoadCurveMaxDays {
		o.logger.Info("load curve range longer than one call allows, paging by week",
			slog.String("range", seq.Range().String()),
			slog.Int("max_calls", maxCalls),
		)
	}

	result := &LoadCurveResult{StopReason: StopExhausted}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		w, ok := seq.Next()
		if !ok {
			break
		}

		o.logger.Info("loading load curve window", slog.String("window", w.String()))

		payload, fetched, err := o.resolve(ctx, req.WithWindow(w))
		if fetched {
			result.NetworkCalls++
		} else if err == nil {
			result.CacheHits++
		}

		if err != nil {
			var fe *models.FetchError
			if !errors.As(err, &fe) || ctx.Err() != nil {
				return nil, err
			}
			o.logger.Warn("window failed, returning partial load curve",
				slog.String("window", w.String()),
				slog.Int("status", fe.Status),
				slog.Int("payloads", len(result.Payloads)),
			)
			result.StopReason = StopFailure
			result.Failure = fe
			break
		}

		result.Payloads = append(result.Payloads, payload)
		result.Windows = append(result.Windows, w)

		if result.NetworkCalls >= maxCalls {
			o.logger.Warn("call budget reached, stopping", slog.Int("max_calls", maxCalls))
			result.StopReason = StopBudget
			break
		}
	}

	return result, nil
}

// resolve returns the payload for one window and whether the network was hit
func (o *Orchestrator) resolve(ctx context.Context, req models.FetchRequest) (models.RawPayload, bool, error) {
	key := cache.KeyFor(req)

	if o.cache != nil {
		payload, ok, err := o.cache.Lookup(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("looking up cache: %w", err)
		}
		if ok {
			o.logger.Debug("cache hit", slog.String("key", key.String()))
			return payload, false, nil
		}
	}

	status, body, err := o.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, true, &models.FetchError{Window: req.Window, Status: status, Err: err}
	}
	if status != http.StatusOK {
		return nil, true, &models.FetchError{Window: req.Window, Status: status, Body: string(body)}
	}

	if o.cache != nil && o.writeCache {
		if err := o.cache.Store(ctx, key, body); err != nil {
			return nil, true, fmt.Errorf("storing %s in cache: %w", key, err)
		}
	}

	return body, true, nil
}

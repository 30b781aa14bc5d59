package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/model"
	ppotel "github.com/timvw/tab-switcher/internal/otel"
)

var tracer = otel.Tracer("tab-switcher")

// ErrCaptureUnavailable marks a transient capture failure. The scheduler
// never retries it directly; the entry stays stale and is picked up again on
// a later tick.
var ErrCaptureUnavailable = errors.New("preview capture unavailable")

// Fetcher captures the text of a tab's active window. mux.Multiplexer
// satisfies it.
type Fetcher interface {
	CaptureWindow(ctx context.Context, id model.TabIdentity, cols, rows int) ([]string, error)
}

// SchedulerConfig holds the budgets the scheduler enforces.
type SchedulerConfig struct {
	Cols       int           // preview width in cells
	Rows       int           // preview height in lines
	MaxVisible int           // cards shown at once
	Neighbors  int           // extra MRU neighbours fetched on each side of the visible window
	StaleAfter time.Duration // freshness budget per entry
	Spacing    time.Duration // minimum gap between two dispatches
}

// Scheduler decides which preview to refresh on each tick.
//
// Tick and Complete are called from the single control loop. Fetch runs the
// capture itself and is meant to be called off the loop.
type Scheduler struct {
	cfg     SchedulerConfig
	cache   *Cache
	fetcher Fetcher
	metrics *ppotel.Metrics
	log     pslog.Logger

	lastDispatch time.Time
	dispatched   bool
}

// NewScheduler creates a scheduler over cache. metrics and log may be nil.
func NewScheduler(cfg SchedulerConfig, cache *Cache, fetcher Fetcher, metrics *ppotel.Metrics, log pslog.Logger) *Scheduler {
	if cfg.MaxVisible < 1 {
		cfg.MaxVisible = 1
	}
	if cfg.Neighbors < 0 {
		cfg.Neighbors = 0
	}
	return &Scheduler{cfg: cfg, cache: cache, fetcher: fetcher, metrics: metrics, log: log}
}

// Config returns the scheduler's budgets.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}

// VisibleWindow returns the half-open range [start, end) of the cards shown
// for n tabs with the given highlight, keeping the highlight centred where
// possible.
func VisibleWindow(n, highlight, maxVisible int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if maxVisible < 1 {
		maxVisible = 1
	}
	if n <= maxVisible {
		return 0, n
	}
	highlight = clamp(highlight, 0, n-1)
	start := highlight - maxVisible/2
	if start < 0 {
		start = 0
	}
	end := start + maxVisible
	if end > n {
		end = n
	}
	start = end - maxVisible
	return start, end
}

// Candidates returns the tabs worth having fresh previews for, best first:
// the highlighted tab, then the rest of the visible window and its
// neighbours by circular distance from the highlight. At equal distance the
// forward neighbour comes before the backward one.
func (s *Scheduler) Candidates(order []model.TabIdentity, highlight int) []model.TabIdentity {
	n := len(order)
	if n == 0 {
		return nil
	}
	highlight = clamp(highlight, 0, n-1)
	start, end := VisibleWindow(n, highlight, s.cfg.MaxVisible)

	include := make([]bool, n)
	lo, hi := start-s.cfg.Neighbors, end-1+s.cfg.Neighbors
	if hi-lo+1 >= n {
		for i := range include {
			include[i] = true
		}
	} else {
		for i := lo; i <= hi; i++ {
			include[mod(i, n)] = true
		}
	}

	out := make([]model.TabIdentity, 0, n)
	added := make([]bool, n)
	for d := 0; d <= n/2 && len(out) < n; d++ {
		for _, i := range [2]int{mod(highlight+d, n), mod(highlight-d, n)} {
			if include[i] && !added[i] {
				added[i] = true
				out = append(out, order[i])
			}
		}
	}
	return out
}

// Tick dispatches at most one fetch: the best-ranked candidate that is stale
// and not already in flight, and only when the spacing budget allows. The
// returned identity has been marked in flight; the caller must run the fetch
// and hand the result to Complete.
func (s *Scheduler) Tick(now time.Time, candidates []model.TabIdentity) (model.TabIdentity, bool) {
	if s.dispatched && now.Sub(s.lastDispatch) < s.cfg.Spacing {
		return model.TabIdentity{}, false
	}
	for _, id := range candidates {
		key := id.PreviewKey()
		if !s.cache.IsStale(key, s.cfg.StaleAfter, now) {
			continue
		}
		if !s.cache.MarkInFlight(key) {
			continue
		}
		s.lastDispatch = now
		s.dispatched = true
		if s.log != nil {
			s.log.Trace("preview dispatch", "tab", id.Tab, "window", id.Window)
		}
		s.metrics.RecordFetchDispatched(context.Background())
		return id, true
	}
	return model.TabIdentity{}, false
}

// Complete applies a finished fetch. On success the lines are stored with
// capturedAt unless the tab was evicted while the fetch ran; on failure only
// the in-flight flag is cleared so the previous preview stays visible as
// stale-but-usable.
func (s *Scheduler) Complete(id model.TabIdentity, lines []string, capturedAt time.Time, err error) {
	key := id.PreviewKey()
	if err != nil {
		s.cache.ClearInFlight(key)
		if s.log != nil {
			s.log.Debug("preview fetch failed", "tab", id.Tab, "window", id.Window, "err", err)
		}
		return
	}
	if !s.cache.Fill(key, lines, capturedAt) && s.log != nil {
		s.log.Debug("preview fetch for evicted tab dropped", "tab", id.Tab, "window", id.Window)
	}
}

// Fetch captures and bounds the preview for id. It blocks on the
// multiplexer and must not run on the control loop.
func (s *Scheduler) Fetch(ctx context.Context, id model.TabIdentity) ([]string, error) {
	ctx, span := tracer.Start(ctx, "preview_fetch",
		trace.WithAttributes(
			attribute.String("tab.id", id.Tab),
			attribute.String("tab.window", id.Window),
		))
	defer span.End()

	start := time.Now()
	lines, err := s.fetcher.CaptureWindow(ctx, id, s.cfg.Cols, s.cfg.Rows)
	s.metrics.RecordFetchDuration(ctx, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordFetchFailed(ctx)
		return nil, fmt.Errorf("%w: %s: %w", ErrCaptureUnavailable, id, err)
	}
	lines = Bound(lines, s.cfg.Cols, s.cfg.Rows)
	span.SetAttributes(attribute.Int("preview.lines", len(lines)))
	s.metrics.RecordFetchCompleted(ctx)
	return lines, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mod(i, n int) int {
	return ((i % n) + n) % n
}

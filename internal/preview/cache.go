// Package preview caches captured tab text and schedules refreshes under a
// dispatch-spacing budget and a staleness budget.
package preview

import (
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/model"
)

// Entry is the cached preview of one tab/window.
type Entry struct {
	Lines      []string
	CapturedAt time.Time
	InFlight   bool
}

// Record is the persisted form of an entry.
type Record struct {
	Lines      []string  `json:"lines"`
	CapturedAt time.Time `json:"ts"`
}

// Persister stores preview records for one scope. state.Scope implements it.
type Persister interface {
	LoadPreviews() (map[model.PreviewKey]Record, error)
	SavePreviews(map[model.PreviewKey]Record) error
}

// Cache maps preview keys to their last captured text.
//
// All methods are safe for concurrent use; MarkInFlight is an atomic
// test-and-set so at most one fetch per key is outstanding.
type Cache struct {
	mu      sync.RWMutex
	entries map[model.PreviewKey]*Entry

	persister  Persister
	memoryOnly bool
	log        pslog.Logger
}

// NewCache creates an empty cache. persister may be nil for a memory-only
// cache; log may be nil.
func NewCache(persister Persister, log pslog.Logger) *Cache {
	return &Cache{
		entries:    make(map[model.PreviewKey]*Entry),
		persister:  persister,
		memoryOnly: persister == nil,
		log:        log,
	}
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key model.PreviewKey) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Lines = append([]string(nil), e.Lines...)
	return out, true
}

// Put stores lines captured at ts and clears the in-flight flag. A write
// older than the stored capture is dropped so out-of-order completions
// cannot regress an entry.
func (c *Cache) Put(key model.PreviewKey, lines []string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &Entry{}
		c.entries[key] = e
	}
	e.store(lines, ts)
}

// Fill stores the result of a fetch like Put, but only while key still has
// an entry. A fetch for a tab evicted or retained away in the meantime is
// dropped so it is neither shown nor persisted. It reports whether the
// result was kept.
func (c *Cache) Fill(key model.PreviewKey, lines []string, ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.store(lines, ts)
	return true
}

func (e *Entry) store(lines []string, ts time.Time) {
	e.InFlight = false
	if !e.CapturedAt.IsZero() && ts.Before(e.CapturedAt) {
		return
	}
	e.Lines = append([]string(nil), lines...)
	e.CapturedAt = ts
}

// MarkInFlight sets the in-flight flag for key unless it is already set.
// It returns true when the caller acquired the right to fetch.
func (c *Cache) MarkInFlight(key model.PreviewKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &Entry{}
		c.entries[key] = e
	}
	if e.InFlight {
		return false
	}
	e.InFlight = true
	return true
}

// ClearInFlight releases the in-flight flag without touching the capture
// timestamp, so a failed fetch is retried once the entry is still stale.
func (c *Cache) ClearInFlight(key model.PreviewKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.InFlight = false
	}
}

// InFlight reports whether a fetch for key is outstanding.
func (c *Cache) InFlight(key model.PreviewKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && e.InFlight
}

// IsStale reports whether key has no capture or its capture is older than
// threshold at now.
func (c *Cache) IsStale(key model.PreviewKey, threshold time.Duration, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.CapturedAt.IsZero() {
		return true
	}
	return now.Sub(e.CapturedAt) > threshold
}

// Evict removes every entry belonging to tab.
func (c *Cache) Evict(tab string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.Tab() == tab {
			delete(c.entries, key)
		}
	}
}

// Retain drops entries whose tab is not in live.
func (c *Cache) Retain(live []model.TabIdentity) {
	keep := make(map[string]bool, len(live))
	for _, id := range live {
		keep[id.Tab] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if !keep[key.Tab()] {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load replaces the cache contents with the persisted records. Failures
// leave the cache empty and are logged; they are never fatal.
func (c *Cache) Load() {
	if c.persister == nil {
		return
	}
	records, err := c.persister.LoadPreviews()
	if err != nil {
		c.warn("preview cache load failed, starting empty", "err", err)
		records = nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[model.PreviewKey]*Entry, len(records))
	for key, r := range records {
		c.entries[key] = &Entry{Lines: r.Lines, CapturedAt: r.CapturedAt}
	}
	c.debug("preview cache loaded", "entries", len(c.entries))
}

// Persist writes captured entries through the persister. After the first
// failed write the cache stays memory-only for the rest of the process.
func (c *Cache) Persist() {
	c.mu.RLock()
	if c.memoryOnly {
		c.mu.RUnlock()
		return
	}
	records := make(map[model.PreviewKey]Record, len(c.entries))
	for key, e := range c.entries {
		if e.CapturedAt.IsZero() {
			continue
		}
		records[key] = Record{Lines: e.Lines, CapturedAt: e.CapturedAt}
	}
	c.mu.RUnlock()

	if err := c.persister.SavePreviews(records); err != nil {
		c.warn("preview cache save failed, continuing in memory", "err", err)
		c.mu.Lock()
		c.memoryOnly = true
		c.mu.Unlock()
	}
}

func (c *Cache) warn(msg string, kv ...any) {
	if c.log != nil {
		c.log.Warn(msg, kv...)
	}
}

func (c *Cache) debug(msg string, kv ...any) {
	if c.log != nil {
		c.log.Debug(msg, kv...)
	}
}

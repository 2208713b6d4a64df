package grouping

import (
	"strings"
	"sync"
	"time"
)

const sweepEvery = 1024

// Deduper 记录近期出现过的 order id，用于在分组前丢弃重复告警。
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string][]time.Time
	marks  int
	latest time.Time
}

func NewDeduper(window time.Duration) *Deduper {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Deduper{window: window, seen: make(map[string][]time.Time)}
}

func (d *Deduper) Window() time.Duration {
	return d.window
}

// Seen reports whether an earlier record with the same owner, instrument and
// order id lies within the window of ts. An empty order id is never a duplicate.
func (d *Deduper) Seen(owner, instrument, orderID string, ts time.Time) bool {
	if strings.TrimSpace(orderID) == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.within(d.seen[dedupeKey(owner, instrument, orderID)], ts)
}

// Mark records an accepted order id.
func (d *Deduper) Mark(owner, instrument, orderID string, ts time.Time) {
	if strings.TrimSpace(orderID) == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := dedupeKey(owner, instrument, orderID)
	d.seen[key] = append(d.seen[key], ts)
	if ts.After(d.latest) {
		d.latest = ts
	}
	d.marks++
	if d.marks%sweepEvery == 0 {
		d.sweep()
	}
}

// Seed checks timestamps loaded from storage and remembers them.
func (d *Deduper) Seed(owner, instrument, orderID string, stored []time.Time, ts time.Time) bool {
	if len(stored) == 0 {
		return false
	}
	for _, t := range stored {
		d.Mark(owner, instrument, orderID, t)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.within(stored, ts)
}

func (d *Deduper) within(stamps []time.Time, ts time.Time) bool {
	for _, t := range stamps {
		diff := ts.Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if diff <= d.window {
			return true
		}
	}
	return false
}

// sweep drops stamps far behind the newest one seen. Caller holds mu.
func (d *Deduper) sweep() {
	cutoff := d.latest.Add(-10 * d.window)
	for key, stamps := range d.seen {
		kept := stamps[:0]
		for _, t := range stamps {
			if !t.Before(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(d.seen, key)
			continue
		}
		d.seen[key] = kept
	}
}

func dedupeKey(owner, instrument, orderID string) string {
	return owner + "|" + instrument + "|" + strings.TrimSpace(orderID)
}

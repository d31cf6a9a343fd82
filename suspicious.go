package authcore

import (
	"sync"
	"time"
)

// suspicionMaxSources bounds detector memory; stale sources are evicted
// once the map grows past it.
const suspicionMaxSources = 5000

// SuspicionDetector correlates failed logins by source address across
// accounts, which the per-account lockout cannot see. A source that
// accumulates enough failures inside the rolling window is flagged once
// and its history reset.
type SuspicionDetector struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	hitsByAddr map[string][]time.Time
	maxSources int
}

func NewSuspicionDetector(cfg Config) *SuspicionDetector {
	cfg = cfg.WithDefaults()

	return &SuspicionDetector{
		limit:      cfg.SuspicionLimit,
		window:     cfg.SuspicionWindow,
		hitsByAddr: make(map[string][]time.Time),
		maxSources: suspicionMaxSources,
	}
}

// RecordFailure notes a failed login from the address and reports
// whether the rolling-window threshold was just crossed.
func (d *SuspicionDetector) RecordFailure(sourceAddr string) bool {
	if sourceAddr == "" {
		return false
	}

	now := time.Now()
	threshold := now.Add(-d.window)

	d.mu.Lock()
	defer d.mu.Unlock()

	hits := d.hitsByAddr[sourceAddr]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	filtered = append(filtered, now)

	if len(filtered) >= d.limit {
		// flag once, then start a fresh window for this source
		delete(d.hitsByAddr, sourceAddr)
		return true
	}

	d.hitsByAddr[sourceAddr] = filtered

	if len(d.hitsByAddr) > d.maxSources {
		for key, value := range d.hitsByAddr {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(d.hitsByAddr, key)
			}
		}
	}

	return false
}

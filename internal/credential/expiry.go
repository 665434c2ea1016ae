package credential

import (
	"strconv"
	"time"
)

// expiryWarnWindow is how far ahead of an expires_at stamp the sweep
// starts warning.
const expiryWarnWindow = 30 * time.Minute

// SweepExpiry demotes active entries whose payload carries a passed
// expires_at stamp and invokes warn for entries expiring within the warn
// window. The stamp is either a unix timestamp or RFC 3339 text; entries
// without one are skipped.
func (p *Pool) SweepExpiry(now time.Time, warn func(id string, remaining time.Duration)) {
	p.mu.Lock()

	type upcoming struct {
		id        string
		remaining time.Duration
	}

	var (
		warned  []upcoming
		changed bool
	)

	for i := range p.entries {
		e := &p.entries[i]
		if e.Status != StatusActive {
			continue
		}

		expiresAt, ok := parseExpiry(e.Payload["expires_at"])
		if !ok {
			continue
		}

		if !expiresAt.After(now) {
			e.Status = StatusExpired
			e.LastError = "credential expired"
			changed = true

			continue
		}

		if remaining := expiresAt.Sub(now); remaining <= expiryWarnWindow {
			warned = append(warned, upcoming{id: e.ID, remaining: remaining})
		}
	}

	if changed {
		if err := p.store.Save(p.entries); err != nil {
			// Demotion survives in memory; the next mutation retries the
			// write.
			_ = err
		}
	}

	p.mu.Unlock()

	if warn != nil {
		for _, u := range warned {
			warn(u.id, u.remaining)
		}
	}
}

func parseExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0), true
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}

	return time.Time{}, false
}

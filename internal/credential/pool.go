package credential

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Strategy selects how Next picks among active entries.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round-robin"
	StrategyRandom     Strategy = "random"
)

// ErrNoCredentials is returned when a pool has no active entries.
var ErrNoCredentials = errors.New("no active credentials available")

// Pool owns the ordered credential entries for one provider. All access is
// serialized through the pool's mutex; every mutating call persists the full
// entry list to the store before returning.
type Pool struct {
	provider  string
	store     Store
	failLimit int

	mu       sync.Mutex
	entries  []Entry
	strategy Strategy
	cursor   int
}

// PoolOptions tweaks pool behavior. Zero values select the defaults.
type PoolOptions struct {
	Strategy  Strategy
	FailLimit int
}

func NewPool(provider string, store Store, opts PoolOptions) (*Pool, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load credential pool for %s: %w", provider, err)
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyRoundRobin
	}

	failLimit := opts.FailLimit
	if failLimit <= 0 {
		failLimit = DefaultFailLimit
	}

	return &Pool{
		provider:  provider,
		store:     store,
		failLimit: failLimit,
		entries:   entries,
		strategy:  strategy,
	}, nil
}

// Next selects an active entry per the configured strategy and stamps its
// last-used time. Returns nil when no entry is active. The round-robin
// cursor wraps modulo the current active subset and advances exactly once
// per successful call.
func (p *Pool) Next() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.selectLocked(p.activeIndexesLocked())
}

// NextExcluding behaves like Next but never returns the entry with the
// given id, so failover always reaches a distinct credential when one is
// active, regardless of strategy. Returns nil when the excluded entry is
// the only active one.
func (p *Pool) NextExcluding(exclude string) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []int

	for _, i := range p.activeIndexesLocked() {
		if p.entries[i].ID != exclude {
			candidates = append(candidates, i)
		}
	}

	return p.selectLocked(candidates)
}

func (p *Pool) selectLocked(candidates []int) *Entry {
	if len(candidates) == 0 {
		return nil
	}

	var idx int

	switch p.strategy {
	case StrategyRandom:
		idx = candidates[rand.Intn(len(candidates))]
	default:
		idx = candidates[p.cursor%len(candidates)]
		p.cursor = (p.cursor + 1) % len(candidates)
	}

	now := time.Now()
	p.entries[idx].LastUsed = &now

	if err := p.store.Save(p.entries); err != nil {
		// Selection already happened; a failed stamp write is not fatal.
		_ = err
	}

	entry := p.entries[idx]

	return &entry
}

// MarkSuccess resets the failure count and restores a failed entry to
// active. Expired entries stay expired; success does not resurrect them.
func (p *Pool) MarkSuccess(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.findLocked(id)
	if e == nil {
		return fmt.Errorf("credential %s not found", id)
	}

	e.FailCount = 0
	e.LastError = ""

	if e.Status == StatusFailed {
		e.Status = StatusActive
	}

	return p.saveLocked()
}

// MarkFailed records a failure and demotes the entry once the consecutive
// failure count reaches the pool's fail limit.
func (p *Pool) MarkFailed(id string, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.findLocked(id)
	if e == nil {
		return fmt.Errorf("credential %s not found", id)
	}

	e.FailCount++

	if cause != nil {
		e.LastError = cause.Error()
	}

	if e.FailCount >= p.failLimit {
		e.Status = StatusFailed
	}

	return p.saveLocked()
}

// MarkExpired unconditionally sets the entry expired.
func (p *Pool) MarkExpired(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.findLocked(id)
	if e == nil {
		return fmt.Errorf("credential %s not found", id)
	}

	e.Status = StatusExpired

	return p.saveLocked()
}

// ResetStatus restores an entry to active with a clean failure count,
// regardless of its current status.
func (p *Pool) ResetStatus(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.findLocked(id)
	if e == nil {
		return fmt.Errorf("credential %s not found", id)
	}

	e.Status = StatusActive
	e.FailCount = 0
	e.LastError = ""

	return p.saveLocked()
}

// Add appends a new active entry for the given payload and returns its id.
func (p *Pool) Add(payload map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := Entry{
		ID:      uuid.NewString(),
		Payload: payload,
		Status:  StatusActive,
		AddedAt: time.Now(),
	}

	p.entries = append(p.entries, entry)

	if err := p.saveLocked(); err != nil {
		return "", err
	}

	return entry.ID, nil
}

// Remove deletes the entry with the given id. Returns false when absent.
func (p *Pool) Remove(id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		if p.entries[i].ID == id {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			p.cursor = 0

			return true, p.saveLocked()
		}
	}

	return false, nil
}

// Reorder rearranges entries to match the given id sequence. Entries not
// mentioned keep their relative order and are appended, so no entry is ever
// lost by a partial reorder.
func (p *Pool) Reorder(ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	reordered := make([]Entry, 0, len(p.entries))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		for i := range p.entries {
			if p.entries[i].ID == id && !seen[id] {
				reordered = append(reordered, p.entries[i])
				seen[id] = true

				break
			}
		}
	}

	for i := range p.entries {
		if !seen[p.entries[i].ID] {
			reordered = append(reordered, p.entries[i])
		}
	}

	p.entries = reordered
	p.cursor = 0

	return p.saveLocked()
}

func (p *Pool) SetStrategy(s Strategy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.strategy = s
	p.cursor = 0

	return p.saveLocked()
}

func (p *Pool) Strategy() Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.strategy
}

func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.entries)
}

func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.activeIndexesLocked())
}

// Summary returns counts plus the redacted per-entry projection.
func (p *Pool) Summary() PoolSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	summary := PoolSummary{
		Provider: p.provider,
		Total:    len(p.entries),
		Strategy: p.strategy,
		Entries:  make([]EntrySummary, 0, len(p.entries)),
	}

	now := time.Now()

	for i := range p.entries {
		e := &p.entries[i]

		switch e.Status {
		case StatusActive:
			summary.Active++
		case StatusExpired:
			summary.Expired++
		case StatusFailed:
			summary.Failed++
		}

		expiresSoon := false
		if expiresAt, ok := parseExpiry(e.Payload["expires_at"]); ok {
			expiresSoon = expiresAt.After(now) && expiresAt.Sub(now) <= expiryWarnWindow
		}

		summary.Entries = append(summary.Entries, EntrySummary{
			ID:          e.ID,
			Status:      e.Status,
			FailCount:   e.FailCount,
			LastUsed:    e.LastUsed,
			LastError:   e.LastError,
			AddedAt:     e.AddedAt,
			ExpiresSoon: expiresSoon,
		})
	}

	return summary
}

func (p *Pool) Provider() string {
	return p.provider
}

func (p *Pool) activeIndexesLocked() []int {
	var active []int

	for i := range p.entries {
		if p.entries[i].Status == StatusActive {
			active = append(active, i)
		}
	}

	return active
}

func (p *Pool) findLocked(id string) *Entry {
	for i := range p.entries {
		if p.entries[i].ID == id {
			return &p.entries[i]
		}
	}

	return nil
}

func (p *Pool) saveLocked() error {
	if err := p.store.Save(p.entries); err != nil {
		return fmt.Errorf("persist credential pool for %s: %w", p.provider, err)
	}

	return nil
}

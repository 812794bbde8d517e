package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// Backend names reported in metrics and logs.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// HistoryEntry is a compact record of one analysis, newest first in listings.
type HistoryEntry struct {
	ID             string          `json:"id"`
	Kind           ruleengine.Kind `json:"type"`
	Input          string          `json:"input"`
	IsPhishing     bool            `json:"is_phishing"`
	Score          float64         `json:"score"`
	MatchedRules   []string        `json:"rules_matched"`
	RuleSetVersion string          `json:"rule_set_version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewHistoryEntry summarizes a verdict.
func NewHistoryEntry(v *ruleengine.Verdict) HistoryEntry {
	matched := v.Matched()
	names := make([]string, len(matched))
	for i, o := range matched {
		names[i] = o.RuleName
	}
	return HistoryEntry{
		ID:             uuid.NewString(),
		Kind:           v.Kind,
		Input:          v.Input,
		IsPhishing:     v.IsPhishing,
		Score:          v.Score,
		MatchedRules:   names,
		RuleSetVersion: v.RuleSetVersion,
		CreatedAt:      time.Now().UTC(),
	}
}

// HistoryStore keeps the most recent analyses per candidate kind.
// An empty kind in List and Clear means every kind.
type HistoryStore interface {
	Append(ctx context.Context, entry HistoryEntry) error
	List(ctx context.Context, kind ruleengine.Kind, limit int) ([]HistoryEntry, error)
	Clear(ctx context.Context, kind ruleengine.Kind) error
	Backend() string
}

// MemoryHistory is a bounded, process-local HistoryStore.
type MemoryHistory struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[ruleengine.Kind][]HistoryEntry // oldest first
}

// NewMemoryHistory keeps at most maxEntries per kind.
func NewMemoryHistory(maxEntries int) *MemoryHistory {
	validation.AssertPositive(maxEntries, "cache", "history maxEntries")
	return &MemoryHistory{
		maxEntries: maxEntries,
		entries:    make(map[ruleengine.Kind][]HistoryEntry),
	}
}

// Append records entry, evicting the oldest entry of its kind when full.
func (h *MemoryHistory) Append(_ context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[entry.Kind], entry)
	if len(list) > h.maxEntries {
		list = slices.Clone(list[len(list)-h.maxEntries:])
	}
	h.entries[entry.Kind] = list
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 means all retained entries.
func (h *MemoryHistory) List(_ context.Context, kind ruleengine.Kind, limit int) ([]HistoryEntry, error) {
	h.mu.RLock()
	var out []HistoryEntry
	for k, list := range h.entries {
		if kind != "" && k != kind {
			continue
		}
		out = append(out, list...)
	}
	h.mu.RUnlock()

	return newestFirst(out, limit), nil
}

// Clear drops the entries of kind (or all entries when kind is empty).
func (h *MemoryHistory) Clear(_ context.Context, kind ruleengine.Kind) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if kind == "" {
		clear(h.entries)
		return nil
	}
	delete(h.entries, kind)
	return nil
}

// Backend returns "memory".
func (h *MemoryHistory) Backend() string { return BackendMemory }

// newestFirst sorts entries by creation time descending and truncates to limit.
func newestFirst(entries []HistoryEntry, limit int) []HistoryEntry {
	slices.SortStableFunc(entries, func(a, b HistoryEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries
}

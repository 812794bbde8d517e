package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/store"
	"github.com/rafaeljc/phishguard/internal/testsupport"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// mutableSource lets a test swap the definitions between reloads.
type mutableSource struct {
	mu   sync.Mutex
	defs []ruleengine.Definition
	err  error
}

func (m *mutableSource) Name() string { return "test" }

func (m *mutableSource) Definitions(context.Context) ([]ruleengine.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defs, m.err
}

func (m *mutableSource) set(defs []ruleengine.Definition, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs, m.err = defs, err
}

type chanEvents struct {
	ch  chan string
	err error
}

func (c chanEvents) Subscribe(context.Context) (<-chan string, error) {
	return c.ch, c.err
}

// flakyEvents hands out the queued subscription results in order, then blocks forever.
type flakyEvents struct {
	mu      sync.Mutex
	results []chanEvents
	calls   int
}

func (f *flakyEvents) Subscribe(context.Context) (<-chan string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return make(chan string), nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next.ch, next.err
}

func (f *flakyEvents) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ipRule(name string, weight float64) ruleengine.Definition {
	return ruleengine.Definition{Name: name, Kind: ruleengine.KindURL, Type: ruleengine.RuleTypeIPHost, Weight: weight}
}

// Not parallel: reload metrics are process-wide.
func TestService_Reload(t *testing.T) {
	t.Run("Should activate the default library", func(t *testing.T) {
		reg := ruleengine.NewRegistry()
		svc := New(discard, Config{}, DefaultSource(), reg)

		require.ErrorIs(t, svc.Check(context.Background()), ErrNotLoaded)

		testsupport.AssertMetricDelta(t, "phishguard_rules_reloads_total", map[string]string{"status": "success"}, 1, func() {
			changed, err := svc.Reload(context.Background())
			require.NoError(t, err)
			assert.True(t, changed)
		})

		defaults := ruleengine.DefaultRuleSets()
		for _, kind := range ruleengine.Kinds {
			assert.Equal(t, defaults[kind].Version(), reg.Load(kind).Version(), "kind %s", kind)
		}
		assert.NoError(t, svc.Check(context.Background()))
		assert.Equal(t, float64(defaults[ruleengine.KindURL].Len()),
			testsupport.GetMetricValue(t, "phishguard_rules_active_count", map[string]string{"kind": "url"}))
	})

	t.Run("Should report unchanged when definitions did not move", func(t *testing.T) {
		svc := New(discard, Config{}, DefaultSource(), ruleengine.NewRegistry())
		_, err := svc.Reload(context.Background())
		require.NoError(t, err)

		testsupport.AssertMetricDelta(t, "phishguard_rules_reloads_total", map[string]string{"status": "unchanged"}, 1, func() {
			changed, err := svc.Reload(context.Background())
			require.NoError(t, err)
			assert.False(t, changed)
		})
	})

	t.Run("Should keep previous sets when a definition is invalid", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		svc := New(discard, Config{}, src, reg)
		_, err := svc.Reload(context.Background())
		require.NoError(t, err)
		before := reg.Load(ruleengine.KindURL)

		src.set([]ruleengine.Definition{
			ipRule("ip", 1),
			{Name: "urgent", Kind: ruleengine.KindEmail, Type: ruleengine.RuleTypeKeywords, Weight: 1, Value: json.RawMessage(`{"keywords":["urgent"]}`)},
			ipRule("ip", 2),
		}, nil)

		testsupport.AssertMetricDelta(t, "phishguard_rules_reloads_total", map[string]string{"status": "fail"}, 1, func() {
			_, err = svc.Reload(context.Background())
		})

		var dup *ruleengine.DuplicateRuleNameError
		require.ErrorAs(t, err, &dup)
		assert.ErrorIs(t, err, ruleengine.ErrRuleConstruction)
		assert.Same(t, before, reg.Load(ruleengine.KindURL))
		assert.Equal(t, 0, reg.Load(ruleengine.KindEmail).Len(), "no kind is swapped when any kind fails")
	})

	t.Run("Should keep previous sets when the source fails", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		svc := New(discard, Config{}, src, reg)
		_, err := svc.Reload(context.Background())
		require.NoError(t, err)
		before := reg.Load(ruleengine.KindURL)

		src.set(nil, errors.New("connection refused"))
		_, err = svc.Reload(context.Background())

		assert.ErrorContains(t, err, "connection refused")
		assert.Same(t, before, reg.Load(ruleengine.KindURL))
	})

	t.Run("Should empty a kind whose definitions were removed", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		svc := New(discard, Config{}, src, reg)
		_, err := svc.Reload(context.Background())
		require.NoError(t, err)

		src.set(nil, nil)
		changed, err := svc.Reload(context.Background())

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0, reg.Load(ruleengine.KindURL).Len())
	})

	t.Run("Should reload through PublishRulesChanged", func(t *testing.T) {
		src := &mutableSource{}
		reg := ruleengine.NewRegistry()
		svc := New(discard, Config{}, src, reg)

		src.set([]ruleengine.Definition{ipRule("ip", 1)}, nil)
		require.NoError(t, svc.PublishRulesChanged(context.Background(), "url"))
		assert.Equal(t, 1, reg.Load(ruleengine.KindURL).Len())
	})
}

func TestService_Run(t *testing.T) {
	t.Run("Should reload on notifications and stop on cancel", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		events := chanEvents{ch: make(chan string, 1)}
		svc := New(discard, Config{Interval: time.Hour}, src, reg, WithEvents(events))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 1 },
			2*time.Second, 10*time.Millisecond, "initial reload")

		src.set([]ruleengine.Definition{ipRule("ip", 1), ipRule("ip2", 1)}, nil)
		events.ch <- "url"

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 2 },
			2*time.Second, 10*time.Millisecond, "reload after notification")

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not stop after cancel")
		}
	})

	t.Run("Should fall back to polling when the subscription fails", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		svc := New(discard, Config{Interval: 10 * time.Millisecond}, src, reg,
			WithEvents(chanEvents{err: errors.New("redis down")}))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = svc.Run(ctx) }()

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 1 },
			2*time.Second, 10*time.Millisecond)

		src.set([]ruleengine.Definition{ipRule("a", 1), ipRule("b", 1), ipRule("c", 1)}, nil)

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 3 },
			2*time.Second, 10*time.Millisecond, "reload on tick")
	})

	t.Run("Should resubscribe when the notification channel closes", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		first, second := make(chan string), make(chan string, 1)
		events := &flakyEvents{results: []chanEvents{{ch: first}, {ch: second}}}
		// No polling: only notifications can trigger reloads after the first one.
		svc := New(discard, Config{ResubscribeDelay: 5 * time.Millisecond}, src, reg, WithEvents(events))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = svc.Run(ctx) }()

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 1 },
			2*time.Second, 10*time.Millisecond, "initial reload")

		close(first)
		require.Eventually(t, func() bool { return events.callCount() == 2 },
			2*time.Second, 5*time.Millisecond, "resubscribe")

		src.set([]ruleengine.Definition{ipRule("ip", 1), ipRule("ip2", 1)}, nil)
		second <- "url"

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 2 },
			2*time.Second, 10*time.Millisecond, "reload after resubscribe")
	})

	t.Run("Should retry a failed subscription with backoff", func(t *testing.T) {
		src := &mutableSource{defs: []ruleengine.Definition{ipRule("ip", 1)}}
		reg := ruleengine.NewRegistry()
		events := &flakyEvents{results: []chanEvents{
			{err: errors.New("redis down")},
			{err: errors.New("redis still down")},
		}}
		svc := New(discard, Config{ResubscribeDelay: 5 * time.Millisecond}, src, reg, WithEvents(events))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = svc.Run(ctx) }()

		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 1 },
			2*time.Second, 10*time.Millisecond, "initial reload")

		// The third attempt succeeds and triggers a catch-up reload.
		src.set([]ruleengine.Definition{ipRule("a", 1), ipRule("b", 1)}, nil)
		require.Eventually(t, func() bool { return events.callCount() == 3 },
			2*time.Second, 5*time.Millisecond, "third subscription attempt")
		require.Eventually(t, func() bool { return reg.Load(ruleengine.KindURL).Len() == 2 },
			2*time.Second, 10*time.Millisecond, "catch-up reload")
	})
}

func TestSources(t *testing.T) {
	t.Parallel()

	t.Run("Should isolate static definitions from caller mutation", func(t *testing.T) {
		t.Parallel()
		defs := []ruleengine.Definition{ipRule("ip", 1)}
		src := NewStaticSource(defs)
		defs[0].Name = "mutated"

		got, err := src.Definitions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ip", got[0].Name)
	})

	t.Run("Should read a YAML pack from disk", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: contains_ip_address
    kind: url
    type: IP_HOST
    weight: 0.25
`), 0o600))

		got, err := NewFileSource(path).Definitions(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "contains_ip_address", got[0].Name)
	})

	t.Run("Should report a missing pack", func(t *testing.T) {
		t.Parallel()
		_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Definitions(context.Background())
		assert.Error(t, err)
	})

	t.Run("Should convert enabled store records", func(t *testing.T) {
		t.Parallel()
		repo := &fakeRepo{recs: []*store.RuleRecord{
			{Kind: ruleengine.KindURL, Name: "ip", Type: ruleengine.RuleTypeIPHost, Weight: 0.25},
		}}

		got, err := NewStoreSource(repo).Definitions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []ruleengine.Definition{ipRule("ip", 0.25)}, got)
	})
}

// fakeRepo implements only the method the syncer needs; others panic via the nil interface.
type fakeRepo struct {
	store.RuleRepository
	recs []*store.RuleRecord
}

func (f *fakeRepo) ListEnabledRules(context.Context) ([]*store.RuleRecord, error) {
	return f.recs, nil
}

package syncer

import (
	"context"
	"fmt"
	"slices"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/store"
)

// Source yields the complete list of rule definitions, all kinds mixed, in evaluation order.
type Source interface {
	Name() string
	Definitions(ctx context.Context) ([]ruleengine.Definition, error)
}

// StaticSource serves a fixed list of definitions (e.g. the built-in library).
type StaticSource struct {
	defs []ruleengine.Definition
}

// NewStaticSource copies defs.
func NewStaticSource(defs []ruleengine.Definition) *StaticSource {
	return &StaticSource{defs: slices.Clone(defs)}
}

// DefaultSource serves the built-in URL and email rule library.
func DefaultSource() *StaticSource {
	return NewStaticSource(ruleengine.DefaultDefinitions())
}

// Name returns "static".
func (s *StaticSource) Name() string { return "static" }

// Definitions returns a copy of the definitions.
func (s *StaticSource) Definitions(context.Context) ([]ruleengine.Definition, error) {
	return slices.Clone(s.defs), nil
}

// FileSource reads a YAML or JSON rule pack on every reload, so edits are picked up live.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the pack at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns "file".
func (s *FileSource) Name() string { return "file" }

// Definitions parses the pack.
func (s *FileSource) Definitions(context.Context) ([]ruleengine.Definition, error) {
	defs, err := ruleengine.LoadDefinitions(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule pack %s: %w", s.path, err)
	}
	return defs, nil
}

// StoreSource reads the enabled rules from PostgreSQL.
type StoreSource struct {
	repo store.RuleRepository
}

// NewStoreSource creates a source backed by repo.
func NewStoreSource(repo store.RuleRepository) *StoreSource {
	if repo == nil {
		panic("syncer: rule repository cannot be nil")
	}
	return &StoreSource{repo: repo}
}

// Name returns "postgres".
func (s *StoreSource) Name() string { return "postgres" }

// Definitions converts the enabled records.
func (s *StoreSource) Definitions(ctx context.Context) ([]ruleengine.Definition, error) {
	recs, err := s.repo.ListEnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]ruleengine.Definition, len(recs))
	for i, r := range recs {
		defs[i] = r.Definition()
	}
	return defs, nil
}

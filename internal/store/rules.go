// Package store provides the Data Access Layer (Repository) for rule definitions.
// It handles all direct interactions with the PostgreSQL database using the pgx driver.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// Compile-time check to verify that PostgresStore implements RuleRepository.
var _ RuleRepository = (*PostgresStore)(nil)

// Sentinel errors returned by the repository.
var (
	ErrRuleNotFound    = errors.New("rule not found")
	ErrRuleExists      = errors.New("rule already exists")
	ErrVersionConflict = errors.New("rule was modified concurrently")
)

// AppendPosition asks CreateRule to place the rule after every existing rule of its kind.
const AppendPosition = -1

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// RuleRecord mirrors the 'rules' table.
type RuleRecord struct {
	ID          int64           `db:"id"`
	Kind        ruleengine.Kind `db:"kind"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Type        string          `db:"type"`
	Weight      float64         `db:"weight"`
	Value       json.RawMessage `db:"value"`
	Enabled     bool            `db:"enabled"`
	Position    int             `db:"position"`
	Version     int64           `db:"version"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Definition converts the record into the engine's declarative form.
func (r *RuleRecord) Definition() ruleengine.Definition {
	return ruleengine.Definition{
		Name:        r.Name,
		Description: r.Description,
		Kind:        r.Kind,
		Type:        r.Type,
		Weight:      r.Weight,
		Value:       r.Value,
	}
}

// RecordFromDefinition builds an enabled record appended at the end of its kind.
func RecordFromDefinition(d ruleengine.Definition) *RuleRecord {
	return &RuleRecord{
		Kind:        d.Kind,
		Name:        d.Name,
		Description: d.Description,
		Type:        d.Type,
		Weight:      d.Weight,
		Value:       d.Value,
		Enabled:     true,
		Position:    AppendPosition,
	}
}

// RuleRepository defines the interface for rule persistence operations.
type RuleRepository interface {
	// CreateRule inserts a rule and populates ID, Position, Version and timestamps.
	CreateRule(ctx context.Context, r *RuleRecord) error

	// GetRule returns the rule identified by (kind, name).
	GetRule(ctx context.Context, kind ruleengine.Kind, name string) (*RuleRecord, error)

	// ListRules returns a page of rules (all kinds when kind is empty) and the total count.
	ListRules(ctx context.Context, kind ruleengine.Kind, limit, offset int) ([]*RuleRecord, int64, error)

	// UpdateRule writes r if its Version still matches the stored one (optimistic locking).
	// On success r.Version and r.UpdatedAt are refreshed.
	UpdateRule(ctx context.Context, r *RuleRecord) error

	// DeleteRule removes the rule identified by (kind, name).
	DeleteRule(ctx context.Context, kind ruleengine.Kind, name string) error

	// ListEnabledRules returns every enabled rule in evaluation order (kind, position, id).
	ListEnabledRules(ctx context.Context) ([]*RuleRecord, error)

	// SeedRules inserts the definitions that do not exist yet and returns how many were added.
	SeedRules(ctx context.Context, defs []ruleengine.Definition) (int, error)
}

// PostgresStore is the implementation of RuleRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "store", "database pool")
	return &PostgresStore{db: db}
}

const ruleColumns = `id, kind, name, description, type, weight, value, enabled, position, version, created_at, updated_at`

// insertRule resolves AppendPosition to one past the highest position of the kind.
const insertRule = `
	INSERT INTO rules (kind, name, description, type, weight, value, enabled, position)
	VALUES ($1, $2, $3, $4, $5, $6, $7,
		CASE WHEN $8 < 0
			THEN (SELECT COALESCE(MAX(position) + 1, 0) FROM rules WHERE kind = $1)
			ELSE $8
		END)
`

// CreateRule inserts a new rule.
// It uses the RETURNING clause to get the server-generated fields efficiently.
func (s *PostgresStore) CreateRule(ctx context.Context, r *RuleRecord) error {
	query := insertRule + ` RETURNING id, position, version, created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		string(r.Kind),
		r.Name,
		r.Description,
		r.Type,
		r.Weight,
		nullableJSON(r.Value),
		r.Enabled,
		r.Position,
	).Scan(&r.ID, &r.Position, &r.Version, &r.CreatedAt, &r.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrRuleExists, r.Kind, r.Name)
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// GetRule retrieves a single rule.
func (s *PostgresStore) GetRule(ctx context.Context, kind ruleengine.Kind, name string) (*RuleRecord, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE kind = $1 AND name = $2`

	r, err := scanRule(s.db.QueryRow(ctx, query, string(kind), name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRuleNotFound, kind, name)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

// ListRules retrieves a page of rules in evaluation order.
// It executes two queries: one for the total count and one for the data.
func (s *PostgresStore) ListRules(ctx context.Context, kind ruleengine.Kind, limit, offset int) ([]*RuleRecord, int64, error) {
	// An empty kind matches every row.
	filter := `($1 = '' OR kind = $1)`

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM rules WHERE `+filter, string(kind)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	if total == 0 {
		return []*RuleRecord{}, 0, nil
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE ` + filter + `
		ORDER BY kind, position, id
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, string(kind), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules, err := collectRules(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// UpdateRule writes every mutable column, guarded by the expected version.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *RuleRecord) error {
	query := `
		UPDATE rules
		SET description = $3, type = $4, weight = $5, value = $6, enabled = $7, position = $8,
			version = version + 1, updated_at = NOW()
		WHERE kind = $1 AND name = $2 AND version = $9
		RETURNING id, version, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		string(r.Kind),
		r.Name,
		r.Description,
		r.Type,
		r.Weight,
		nullableJSON(r.Value),
		r.Enabled,
		r.Position,
		r.Version,
	).Scan(&r.ID, &r.Version, &r.CreatedAt, &r.UpdatedAt)

	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	// No row matched: either the rule is gone or the version moved on.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rules WHERE kind = $1 AND name = $2)`, string(r.Kind), r.Name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", ErrRuleNotFound, r.Kind, r.Name)
	}
	return fmt.Errorf("%w: %s/%s (expected version %d)", ErrVersionConflict, r.Kind, r.Name, r.Version)
}

// DeleteRule removes a rule.
func (s *PostgresStore) DeleteRule(ctx context.Context, kind ruleengine.Kind, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM rules WHERE kind = $1 AND name = $2`, string(kind), name)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrRuleNotFound, kind, name)
	}
	return nil
}

// ListEnabledRules returns the rules the syncer compiles into rule sets.
func (s *PostgresStore) ListEnabledRules(ctx context.Context) ([]*RuleRecord, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE enabled ORDER BY kind, position, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows, 0)
}

// SeedRules inserts definitions in a single transaction, keeping existing rows untouched.
// Definitions keep their relative order within each kind.
func (s *PostgresStore) SeedRules(ctx context.Context, defs []ruleengine.Definition) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	// Rollback is a no-op after Commit.
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, d := range defs {
		tag, err := tx.Exec(ctx, insertRule+` ON CONFLICT (kind, name) DO NOTHING`,
			string(d.Kind), d.Name, d.Description, d.Type, d.Weight, nullableJSON(d.Value), true, AppendPosition,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to seed rule %s/%s: %w", d.Kind, d.Name, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return inserted, nil
}

func scanRule(row pgx.Row) (*RuleRecord, error) {
	var (
		r     RuleRecord
		kind  string
		value []byte
	)
	if err := row.Scan(
		&r.ID,
		&kind,
		&r.Name,
		&r.Description,
		&r.Type,
		&r.Weight,
		&value,
		&r.Enabled,
		&r.Position,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Kind = ruleengine.Kind(kind)
	if len(value) > 0 {
		r.Value = json.RawMessage(value)
	}
	return &r, nil
}

func collectRules(rows pgx.Rows, capacity int) ([]*RuleRecord, error) {
	rules := make([]*RuleRecord, 0, capacity)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return rules, nil
}

// nullableJSON maps empty parameters to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

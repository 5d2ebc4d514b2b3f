// Package pricing stores per-model token prices and resolves the price for a
// concrete model name. Prices live in SQLite so operators can adjust them
// without a rebuild.
package pricing

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ModelPrice is the cost per million tokens for one model or model family.
type ModelPrice struct {
	Model            string
	InputPerMillion  float64
	OutputPerMillion float64
}

// Lookup resolves prices by model name.
type Lookup interface {
	// FindByModel returns the price for a model, nil when unknown. Matching
	// is exact first, then longest prefix, so versioned names like
	// "gpt-4o-2024-08-06" resolve through the "gpt-4o" family entry.
	FindByModel(model string) (*ModelPrice, error)
	Close() error
}

// Store is a SQLite-backed Lookup.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the price database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open price db: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS model_prices (
			model TEXT PRIMARY KEY,
			input_per_million REAL NOT NULL,
			output_per_million REAL NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init price schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// seed inserts defaults for known model families without overwriting
// operator-tuned rows.
func (s *Store) seed() error {
	defaults := []ModelPrice{
		{"gpt-4o", 2.50, 10.00},
		{"gpt-4o-mini", 0.15, 0.60},
		{"gpt-4.1", 2.00, 8.00},
		{"o3", 2.00, 8.00},
		{"claude-sonnet-4", 3.00, 15.00},
		{"claude-haiku-4", 1.00, 5.00},
		{"claude-opus-4", 15.00, 75.00},
		{"gemini-2.5-pro", 1.25, 10.00},
		{"gemini-2.5-flash", 0.30, 2.50},
		{"MiniMax-M2", 0.30, 1.20},
	}
	for _, p := range defaults {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO model_prices (model, input_per_million, output_per_million) VALUES (?, ?, ?)`,
			p.Model, p.InputPerMillion, p.OutputPerMillion,
		)
		if err != nil {
			return fmt.Errorf("seed price for %s: %w", p.Model, err)
		}
	}
	return nil
}

// Upsert inserts or replaces a price row.
func (s *Store) Upsert(p ModelPrice) error {
	_, err := s.db.Exec(
		`INSERT INTO model_prices (model, input_per_million, output_per_million) VALUES (?, ?, ?)
		 ON CONFLICT(model) DO UPDATE SET input_per_million = excluded.input_per_million, output_per_million = excluded.output_per_million`,
		p.Model, p.InputPerMillion, p.OutputPerMillion,
	)
	return err
}

// FindByModel resolves the price for a model name: exact match first, then
// the longest prefix row. Returns nil when no row applies.
func (s *Store) FindByModel(model string) (*ModelPrice, error) {
	if p, err := s.find(model); err != nil || p != nil {
		return p, err
	}

	rows, err := s.db.Query(`SELECT model, input_per_million, output_per_million FROM model_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var best *ModelPrice
	for rows.Next() {
		var p ModelPrice
		if err := rows.Scan(&p.Model, &p.InputPerMillion, &p.OutputPerMillion); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(model, p.Model) {
			continue
		}
		if best == nil || len(p.Model) > len(best.Model) {
			q := p
			best = &q
		}
	}
	return best, rows.Err()
}

func (s *Store) find(model string) (*ModelPrice, error) {
	var p ModelPrice
	err := s.db.QueryRow(
		`SELECT model, input_per_million, output_per_million FROM model_prices WHERE model = ?`, model,
	).Scan(&p.Model, &p.InputPerMillion, &p.OutputPerMillion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ Lookup = (*Store)(nil)

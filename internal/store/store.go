// Package store holds the pgx-backed persistence for tasks, webhook events,
// and the product/marketplace catalog. All tables live in the markethub
// schema; queries are plain SQL against a shared pool.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultListLimit bounds list queries when the caller does not pass a
// limit.
const DefaultListLimit = 50

// Store wraps a pgx pool with the typed queries the rest of the system
// uses. One instance serves the task, event, and catalog tables.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// jsonText marshals v for a ::jsonb cast. Passing TEXT and casting in SQL
// avoids some driver type ambiguity issues.
func jsonText(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalMap decodes a jsonb column into a map, returning nil for NULL or
// JSON null.
func unmarshalMap(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// unmarshalStrings decodes a jsonb array column, returning nil for NULL.
func unmarshalStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	_ = json.Unmarshal(b, &out)
	return out
}

// --- null helpers ---

func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func intPtr(ni sql.NullInt32) *int {
	if ni.Valid {
		n := int(ni.Int32)
		return &n
	}
	return nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

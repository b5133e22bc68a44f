// Package reconcile upserts projected UNL records into the store, one table
// at a time, isolating failures per record.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/parlsync/internal/unl"
)

// Column is one named value.
type Column struct {
	Name  string
	Value interface{}
}

// Key identifies an entity row; composite keys list every column in order.
type Key []Column

// Map returns the key as a column map for query building.
func (k Key) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(k))
	for _, c := range k {
		m[c.Name] = c.Value
	}
	return m
}

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, c := range k {
		parts[i] = fmt.Sprintf("%s=%v", c.Name, c.Value)
	}
	return strings.Join(parts, ",")
}

// Columns are non-key column values, nil meaning NULL.
type Columns map[string]interface{}

// Policy describes how records of one table map onto one entity table.
type Policy struct {
	// Kind is the ledger tag for runs of this policy.
	Kind string
	// Table is the target table.
	Table string
	// Key extracts the external key. Any error counts the record as failed.
	Key func(rec unl.Record) (Key, error)
	// Columns derives the full column set written on both insert and update.
	Columns func(rec unl.Record) (Columns, error)
	// InsertDefaults are written on insert only, beneath Columns.
	InsertDefaults Columns
}

// Session is a store connection pinned for one table pass.
type Session interface {
	Exists(ctx context.Context, table string, key Key) (bool, error)
	Insert(ctx context.Context, table string, values map[string]interface{}) error
	Update(ctx context.Context, table string, key Key, values map[string]interface{}) error
}

// Store hands out sessions. The connection is released when fn returns,
// whatever the outcome.
type Store interface {
	Session(ctx context.Context, fn func(Session) error) error
}

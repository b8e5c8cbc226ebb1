// Package sqlstore implements the atomicops.ExistenceChecker interface on top
// of database/sql, so reference resolution can batch its lookups into one
// query per resource type.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Table maps one public resource type onto its backing table.
type Table struct {
	Name     string // The table name.
	IDColumn string // The identity column name, "id" when empty.
}

func (t Table) idColumn() string {
	if t.IDColumn == "" {
		return "id"
	}
	return t.IDColumn
}

// Store answers existence checks by querying the identity columns of the
// mapped tables. It holds no per-request state and is safe for concurrent
// use.
type Store struct {
	db     *sql.DB
	tables map[string]Table
}

// New returns a store over db with the given resource-type-to-table mapping.
func New(db *sql.DB, tables map[string]Table) *Store {
	return &Store{db: db, tables: tables}
}

// Exists reports which of the given ids have no row in the resource type's
// table, preserving input order. An unmapped resource type is an error: the
// registry and the table mapping must agree.
func (s *Store) Exists(ctx context.Context, resourceType string, ids []any) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	table, ok := s.tables[resourceType]
	if !ok {
		return nil, fmt.Errorf("sqlstore: no table mapped for resource type '%s'", resourceType)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		table.idColumn(), table.Name, table.idColumn(), placeholders)

	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "sqlstore: query %s", table.Name)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, pkgerrors.Wrap(err, "sqlstore: scan id")
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "sqlstore: iterate rows")
	}

	missing := make([]any, 0)
	for _, id := range ids {
		if _, ok := found[fmt.Sprint(id)]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

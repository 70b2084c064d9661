package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotReadOnly is returned when a statement other than SELECT/WITH is
// submitted through Query. The agent is never allowed to mutate trip data.
var ErrNotReadOnly = errors.New("only read-only SELECT statements are allowed")

// maxResultRows caps the textual rendering of a result set so a runaway
// query cannot blow up the agent context.
const maxResultRows = 200

// Store wraps the SQLite trip database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the SQLite database at path. The caller is
// responsible for calling Close.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path the store was opened with.
func (s *Store) Path() string { return s.path }

// Query runs a read-only SQL statement and renders the result set as text
// suitable for feeding back into the agent.
func (s *Store) Query(ctx context.Context, query string) (string, error) {
	if err := checkReadOnly(query); err != nil {
		return "", err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	return renderRows(rows)
}

// Tables lists the user tables in the database.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.masterNames(ctx, "table")
}

// Views lists the views in the database.
func (s *Store) Views(ctx context.Context) ([]string, error) {
	return s.masterNames(ctx, "view")
}

// TableSchema returns the CREATE statement for a table or view.
func (s *Store) TableSchema(ctx context.Context, name string) (string, error) {
	var ddl sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE name = ? AND type IN ('table', 'view')`, name,
	).Scan(&ddl)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("table or view %q not found", name)
	}
	if err != nil {
		return "", fmt.Errorf("read schema for %q: %w", name, err)
	}
	return ddl.String, nil
}

// Info summarizes the database for startup logging and the agent prompt.
type Info struct {
	Dialect string
	Tables  []string
	Views   []string
}

// Info reports the dialect plus available tables and views.
func (s *Store) Info(ctx context.Context) (Info, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return Info{}, err
	}
	views, err := s.Views(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{Dialect: "sqlite", Tables: tables, Views: views}, nil
}

// Count returns the row count of a table or view.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) masterNames(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%' ORDER BY name`, kind)
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// checkReadOnly accepts a single SELECT or WITH statement and nothing else.
func checkReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ErrNotReadOnly
	}
	if rest := strings.TrimRight(trimmed, "; \t\r\n"); strings.Contains(rest, ";") {
		// No statement batching.
		return ErrNotReadOnly
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return ErrNotReadOnly
	}
	return nil
}

// renderRows flattens a result set into a pipe-separated text block.
func renderRows(rows *sql.Rows) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	b.WriteString("\n")

	values := make([]sql.NullString, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	count := 0
	truncated := 0
	for rows.Next() {
		if count >= maxResultRows {
			truncated++
			continue
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return "", err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				fields[i] = v.String
			} else {
				fields[i] = "NULL"
			}
		}
		b.WriteString(strings.Join(fields, " | "))
		b.WriteString("\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if count == 0 {
		return "(no rows)", nil
	}
	if truncated > 0 {
		fmt.Fprintf(&b, "... (%d more rows omitted)\n", truncated)
	}
	return b.String(), nil
}

// quoteIdent quotes an identifier for SQLite, keeping spaces and punctuation
// exactly as they appear in the CSV headers.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

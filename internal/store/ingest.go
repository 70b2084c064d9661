package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// viewDDL builds thin normalized views on top of the raw CSV tables. The raw
// tables keep the exact CSV column names; the views only alias them, so
// re-ingesting never renames source data.
const viewDDL = `
DROP VIEW IF EXISTS users;
DROP VIEW IF EXISTS trips;
DROP VIEW IF EXISTS trip_users;

CREATE VIEW users AS
WITH all_ids AS (
  SELECT DISTINCT "User ID" AS user_id FROM raw_users
  UNION
  SELECT DISTINCT "Booking User ID" FROM raw_trips
  UNION
  SELECT DISTINCT "User ID" FROM raw_trip_users
)
SELECT
  ai.user_id,
  ru."Age" AS age
FROM all_ids ai
LEFT JOIN raw_users ru ON ai.user_id = ru."User ID"
WHERE ai.user_id IS NOT NULL AND ai.user_id <> '';

CREATE VIEW trips AS
SELECT
  "Trip ID"            AS trip_id,
  "Booking User ID"    AS booking_user_id,
  "Trip Date and Time" AS started_at,
  "Pick Up Latitude"   AS pickup_lat,
  "Pick Up Longitude"  AS pickup_lng,
  "Drop Off Latitude"  AS dropoff_lat,
  "Drop Off Longitude" AS dropoff_lng,
  "Pick Up Address"    AS pickup_address,
  "Drop Off Address"   AS dropoff_address,
  "Total Passengers"   AS total_passengers
FROM raw_trips;

CREATE VIEW trip_users AS
SELECT DISTINCT
  rt."Trip ID" AS trip_id,
  rt."Booking User ID" AS user_id,
  'booker' AS role
FROM raw_trips rt
UNION
SELECT DISTINCT
  rtu."Trip ID" AS trip_id,
  rtu."User ID" AS user_id,
  NULL AS role
FROM raw_trip_users rtu;
`

// IngestCSV drops and recreates a raw table from a CSV file, preserving the
// header names verbatim and storing every value as TEXT. Returns the number
// of rows loaded.
func (s *Store) IngestCSV(ctx context.Context, table, csvPath string) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", csvPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", csvPath, err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("%s: empty CSV, no header row", csvPath)
	}
	headers := records[0]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return 0, fmt.Errorf("drop %s: %w", table, err)
	}

	cols := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = quoteIdent(h) + " TEXT"
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return 0, fmt.Errorf("create %s: %w", table, err)
	}

	quoted := make([]string, len(headers))
	placeholders := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = quoteIdent(h)
		placeholders[i] = "?"
	}
	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return 0, fmt.Errorf("prepare insert for %s: %w", table, err)
	}
	defer stmt.Close()

	loaded := 0
	for _, record := range records[1:] {
		args := make([]any, len(headers))
		for i := range headers {
			if i < len(record) {
				args[i] = record[i]
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		loaded++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ingest of %s: %w", table, err)
	}
	return loaded, nil
}

// CreateViews (re)builds the normalized read-only views over the raw tables.
// Requires raw_trips, raw_users, and raw_trip_users to exist.
func (s *Store) CreateViews(ctx context.Context) error {
	for _, stmt := range strings.Split(viewDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create views: %w", err)
		}
	}
	return nil
}

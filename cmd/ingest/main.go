package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/fetti/rideagent/internal/store"
)

var (
	dbPath      string
	tripsCSV    string
	usersCSV    string
	checkinsCSV string
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the ride-sharing trip CSVs into the SQLite database",
	Long: `ingest rebuilds the trip database from the raw CSV exports.

The three CSVs are loaded exactly as-is into raw_trips, raw_users, and
raw_trip_users (every column TEXT, headers preserved verbatim), then the
read-only views trips, users, and trip_users are (re)created on top.`,
	RunE: runIngest,
}

func init() {
	rootCmd.Flags().StringVar(&dbPath, "db", "rides.sqlite", "path to the SQLite database to create or replace")
	rootCmd.Flags().StringVar(&tripsCSV, "trips", "data/trip_data.csv", "trip data CSV")
	rootCmd.Flags().StringVar(&usersCSV, "users", "data/customer_demographics.csv", "customer demographics CSV")
	rootCmd.Flags().StringVar(&checkinsCSV, "checkins", "data/checked_in.csv", "trip check-in CSV (Trip ID, User ID)")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	tables := []struct {
		name string
		path string
	}{
		{"raw_trips", tripsCSV},
		{"raw_users", usersCSV},
		{"raw_trip_users", checkinsCSV},
	}

	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		n, err := st.IngestCSV(ctx, t.name, t.path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", t.name, err)
		}
		counts[t.name] = n
	}

	if err := st.CreateViews(ctx); err != nil {
		return err
	}

	fmt.Printf("Loaded RAW: trips=%d, users_rows=%d, trip_users_rows=%d\n",
		counts["raw_trips"], counts["raw_users"], counts["raw_trip_users"])
	fmt.Printf("SQLite DB created at: %s\n", dbPath)
	fmt.Println("- Raw tables: raw_trips, raw_users, raw_trip_users (exact CSV columns)")
	fmt.Println("- Views: trips, users, trip_users (read-only, normalized)")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.SetFlags(0)
		log.Println("error:", err)
		os.Exit(1)
	}
}

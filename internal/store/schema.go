package store

import (
	"database/sql"
	"fmt"
)

// columnSet returns the set of column names PRAGMA table_info reports for
// table, or nil if the table does not exist.
func columnSet(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &primaryKey); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, rows.Err()
}

func hasAll(cols map[string]bool, names ...string) bool {
	for _, n := range names {
		if !cols[n] {
			return false
		}
	}
	return true
}

// ensureSchema implements spec.md §4.4's migration contract: if an expected
// table is missing required columns, drop and recreate it; if only the
// rating_history market-data columns are missing, ALTER-ADD them in place.
func ensureSchema(db *sql.DB) error {
	statsCols, err := columnSet(db, "rating_stats")
	if err != nil {
		return err
	}
	if statsCols != nil && !hasAll(statsCols, "daily_rating", "weekly_rating", "daily_changed_at", "weekly_changed_at") {
		if _, err := db.Exec(`DROP TABLE IF EXISTS rating_stats`); err != nil {
			return err
		}
	}
	if _, err := db.Exec(ddlRatingStats); err != nil {
		return fmt.Errorf("create rating_stats: %w", err)
	}

	mainCols, err := columnSet(db, "rating_main")
	if err != nil {
		return err
	}
	if mainCols != nil && !hasAll(mainCols, "daily_rating", "daily_prev", "weekly_rating", "weekly_prev") {
		if _, err := db.Exec(`DROP TABLE IF EXISTS rating_main`); err != nil {
			return err
		}
	}
	if _, err := db.Exec(ddlRatingMain); err != nil {
		return fmt.Errorf("create rating_main: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_rating_main_ticker_timestamp ON rating_main(ticker, timestamp DESC)`); err != nil {
		return err
	}

	historyCols, err := columnSet(db, "rating_history")
	if err != nil {
		return err
	}
	if historyCols != nil && !hasAll(historyCols, "daily_rating", "daily_prev", "weekly_rating", "weekly_prev") {
		if _, err := db.Exec(`DROP TABLE IF EXISTS rating_history`); err != nil {
			return err
		}
		historyCols = nil
	}
	if _, err := db.Exec(ddlRatingHistory); err != nil {
		return fmt.Errorf("create rating_history: %w", err)
	}
	if historyCols != nil {
		// Legacy table already has the rating columns; ALTER-ADD any
		// market-data columns a pre-upgrade database is missing.
		for _, col := range []struct{ name, ctype string }{
			{"exchange", "TEXT"}, {"market", "TEXT"}, {"currency", "TEXT"},
			{"price", "REAL"}, {"change_pct", "REAL"}, {"change_abs", "REAL"},
			{"high", "REAL"}, {"low", "REAL"},
		} {
			if !historyCols[col.name] {
				if _, err := db.Exec(fmt.Sprintf("ALTER TABLE rating_history ADD COLUMN %s %s", col.name, col.ctype)); err != nil {
					return fmt.Errorf("alter rating_history add %s: %w", col.name, err)
				}
			}
		}
	}

	accCols, err := columnSet(db, "rating_accuracy")
	if err != nil {
		return err
	}
	if accCols != nil && !hasAll(accCols, "currency", "high", "low", "price_prev") {
		if _, err := db.Exec(`DROP TABLE IF EXISTS rating_accuracy`); err != nil {
			return err
		}
	}
	if _, err := db.Exec(ddlRatingAccuracy); err != nil {
		return fmt.Errorf("create rating_accuracy: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_rating_accuracy_ticker ON rating_accuracy(ticker)`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_rating_accuracy_ticker_timestamp ON rating_accuracy(ticker, timestamp DESC)`); err != nil {
		return err
	}

	return nil
}

const ddlRatingStats = `
CREATE TABLE IF NOT EXISTS rating_stats (
	ticker TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	daily_val REAL,
	daily_rating TEXT,
	daily_changed_at TEXT,
	weekly_val REAL,
	weekly_rating TEXT,
	weekly_changed_at TEXT,
	PRIMARY KEY (ticker, timestamp)
)`

const ddlRatingMain = `
CREATE TABLE IF NOT EXISTS rating_main (
	ticker TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	daily_val REAL,
	daily_rating TEXT,
	daily_prev TEXT,
	daily_changed_at TEXT,
	weekly_val REAL,
	weekly_rating TEXT,
	weekly_prev TEXT,
	weekly_changed_at TEXT,
	currency TEXT,
	price REAL,
	change_pct REAL,
	change_abs REAL,
	high REAL,
	low REAL,
	PRIMARY KEY (ticker, timestamp)
)`

const ddlRatingHistory = `
CREATE TABLE IF NOT EXISTS rating_history (
	ticker TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	daily_val REAL,
	daily_rating TEXT,
	daily_prev TEXT,
	daily_changed_at TEXT,
	weekly_val REAL,
	weekly_rating TEXT,
	weekly_prev TEXT,
	weekly_changed_at TEXT,
	exchange TEXT,
	market TEXT,
	currency TEXT,
	price REAL,
	change_pct REAL,
	change_abs REAL,
	high REAL,
	low REAL,
	PRIMARY KEY (ticker, timestamp)
)`

const ddlRatingAccuracy = `
CREATE TABLE IF NOT EXISTS rating_accuracy (
	ticker TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	price REAL,
	price_prev REAL,
	change_pct REAL,
	currency TEXT,
	high REAL,
	low REAL,
	window_day INTEGER NOT NULL,
	daily_rating TEXT,
	daily_prev TEXT,
	samplesize_daily INTEGER NOT NULL,
	correct_daily INTEGER NOT NULL,
	incorrect_daily INTEGER NOT NULL,
	accuracy_daily REAL NOT NULL,
	weekly_rating TEXT,
	weekly_prev TEXT,
	samplesize_weekly INTEGER NOT NULL,
	correct_weekly INTEGER NOT NULL,
	incorrect_weekly INTEGER NOT NULL,
	accuracy_weekly REAL NOT NULL,
	PRIMARY KEY (ticker, timestamp)
)`

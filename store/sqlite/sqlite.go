/*
Package sqlite provides a SQLite-backed lifecycle.RunStore.

PURPOSE:
  Keeps the history of reconciliation runs so the API can list past runs
  and serve their records, rollups and diagnostics without re-reading the
  source files.

APPEND-ONLY ENFORCEMENT:
  A run is written once, inside one transaction, and never rewritten:
  - No UPDATE statements on runs or run_records
  - No DELETE statements outside Reset
  - Triggers reject updates at the database level
  A new reconciliation is a new run.

KEY TABLES:
  runs:        One row per run with its summary counts and diagnostics JSON
  run_records: Reconciled records of a run, in output order

Amounts and rates are stored as decimal strings so a stored run reads back
exactly as it was computed.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite WAL mode.

USAGE:
  store, err := sqlite.New("./data/lifecycle.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - lifecycle/run.go: Run, RunSummary and the RunStore interface
  - lifecycle/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/tas"
)

// Store implements lifecycle.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ lifecycle.RunStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		trigger TEXT NOT NULL,
		source TEXT,
		created_at TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		matched INTEGER NOT NULL,
		apportionment_only INTEGER NOT NULL,
		execution_only INTEGER NOT NULL,
		dropped_rows INTEGER NOT NULL,
		diagnostics_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at);

	CREATE TABLE IF NOT EXISTS run_records (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		account_identifier TEXT NOT NULL,
		sub_unit TEXT NOT NULL,
		sub_unit_abbreviation TEXT,
		account_title TEXT,
		fund_type TEXT NOT NULL,
		budget_category TEXT NOT NULL,
		apportionment TEXT NOT NULL,
		obligations TEXT NOT NULL,
		outlays TEXT NOT NULL,
		appropriated TEXT NOT NULL,
		unobligated_balance TEXT NOT NULL,
		apportionment_fiscal_years TEXT NOT NULL,
		reporting_fiscal_years TEXT NOT NULL,
		execution_titles TEXT NOT NULL,
		match_status TEXT NOT NULL,
		obligation_rate TEXT NOT NULL,
		outlay_rate TEXT NOT NULL,
		execution_rate TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	);

	-- One record per full identifier within a run
	CREATE UNIQUE INDEX IF NOT EXISTS idx_run_records_identifier
		ON run_records(run_id, account_identifier);

	CREATE TRIGGER IF NOT EXISTS runs_append_only
		BEFORE UPDATE ON runs
	BEGIN
		SELECT RAISE(ABORT, 'runs are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS run_records_append_only
		BEFORE UPDATE ON run_records
	BEGIN
		SELECT RAISE(ABORT, 'run records are append-only');
	END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun writes a run and all of its records atomically.
func (s *Store) SaveRun(ctx context.Context, run lifecycle.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	diagJSON, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	summary := run.Summary()
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO runs
		(id, trigger, source, created_at, record_count, matched,
		 apportionment_only, execution_only, dropped_rows, diagnostics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Trigger),
		nullString(run.Source),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		summary.Records,
		summary.Matched,
		summary.ApportionmentOnly,
		summary.ExecutionOnly,
		summary.DroppedRows,
		string(diagJSON),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("run %s already stored", run.ID)
		}
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx, `
		INSERT INTO run_records
		(run_id, position, account_identifier, sub_unit, sub_unit_abbreviation,
		 account_title, fund_type, budget_category, apportionment, obligations,
		 outlays, appropriated, unobligated_balance, apportionment_fiscal_years,
		 reporting_fiscal_years, execution_titles, match_status, obligation_rate,
		 outlay_rate, execution_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range run.Records {
		appFYs, _ := json.Marshal(nonNilInts(r.ApportionmentFiscalYears))
		repFYs, _ := json.Marshal(nonNilInts(r.ReportingFiscalYears))
		titles, _ := json.Marshal(nonNilStrings(r.ExecutionTitles))

		_, err := stmt.ExecContext(ctx,
			run.ID,
			i,
			r.Identifier.String(),
			r.SubUnit,
			nullString(r.SubUnitAbbreviation),
			nullString(r.AccountTitle),
			r.FundType,
			r.BudgetCategory,
			r.Apportionment.String(),
			r.Obligations.String(),
			r.Outlays.String(),
			r.Appropriated.String(),
			r.UnobligatedBalance.String(),
			string(appFYs),
			string(repFYs),
			string(titles),
			string(r.Status),
			r.Rates.ObligationRate.String(),
			r.Rates.OutlayRate.String(),
			r.Rates.ExecutionRate.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to save record %s: %w", r.Identifier, err)
		}
	}

	return sqlTx.Commit()
}

// GetRun loads a run with its records in output order.
func (s *Store) GetRun(ctx context.Context, id string) (*lifecycle.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var run lifecycle.Run
	var trigger, createdAt, diagJSON string
	var source sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trigger, source, created_at, diagnostics_json
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &trigger, &source, &createdAt, &diagJSON)
	if err == sql.ErrNoRows {
		return nil, &lifecycle.RunNotFoundError{RunID: id}
	}
	if err != nil {
		return nil, err
	}

	run.Trigger = lifecycle.Trigger(trigger)
	run.Source = source.String
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if err := json.Unmarshal([]byte(diagJSON), &run.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics of run %s: %w", id, err)
	}

	records, err := s.loadRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Records = records

	return &run, nil
}

// ListRuns returns run summaries newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]lifecycle.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger, source, created_at, record_count, matched,
			apportionment_only, execution_only, dropped_rows
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []lifecycle.RunSummary{}
	for rows.Next() {
		var sum lifecycle.RunSummary
		var trigger, createdAt string
		var source sql.NullString
		if err := rows.Scan(
			&sum.ID, &trigger, &source, &createdAt, &sum.Records, &sum.Matched,
			&sum.ApportionmentOnly, &sum.ExecutionOnly, &sum.DroppedRows,
		); err != nil {
			return nil, err
		}
		sum.Trigger = lifecycle.Trigger(trigger)
		sum.Source = source.String
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM run_records;
		DELETE FROM runs;
	`)
	return err
}

func (s *Store) loadRecords(ctx context.Context, runID string) ([]lifecycle.ReconciledRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_identifier, sub_unit, sub_unit_abbreviation, account_title,
			fund_type, budget_category, apportionment, obligations, outlays,
			appropriated, unobligated_balance, apportionment_fiscal_years,
			reporting_fiscal_years, execution_titles, match_status,
			obligation_rate, outlay_rate, execution_rate
		FROM run_records
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []lifecycle.ReconciledRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (lifecycle.ReconciledRecord, error) {
	var r lifecycle.ReconciledRecord
	var ident, status string
	var abbreviation, title sql.NullString
	var app, obl, out, appr, unob string
	var appFYs, repFYs, titles string
	var oblRate, outRate, exeRate string

	if err := rows.Scan(
		&ident, &r.SubUnit, &abbreviation, &title,
		&r.FundType, &r.BudgetCategory, &app, &obl, &out,
		&appr, &unob, &appFYs,
		&repFYs, &titles, &status,
		&oblRate, &outRate, &exeRate,
	); err != nil {
		return r, err
	}

	id, err := tas.ParseIdentifier(ident)
	if err != nil {
		return r, err
	}
	r.Identifier = id
	r.Simplified = id.Simplified()
	r.Period = id.Period()
	r.Type = id.Type()
	r.SubUnitAbbreviation = abbreviation.String
	r.AccountTitle = title.String
	r.Status = lifecycle.MatchStatus(status)

	amounts := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&r.Apportionment, app},
		{&r.Obligations, obl},
		{&r.Outlays, out},
		{&r.Appropriated, appr},
		{&r.UnobligatedBalance, unob},
		{&r.Rates.ObligationRate, oblRate},
		{&r.Rates.OutlayRate, outRate},
		{&r.Rates.ExecutionRate, exeRate},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.raw); err != nil {
			return r, fmt.Errorf("record %s: %w", ident, err)
		}
	}

	if err := json.Unmarshal([]byte(appFYs), &r.ApportionmentFiscalYears); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(repFYs), &r.ReportingFiscalYears); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(titles), &r.ExecutionTitles); err != nil {
		return r, err
	}

	return r, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

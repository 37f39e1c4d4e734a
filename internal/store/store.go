// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

// Package store persists settlement runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"cointax/internal/taxlot"
)

var schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tax_lines (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    asset TEXT NOT NULL,
    acquired_at TEXT NOT NULL,
    disposed_at TEXT NOT NULL,
    quantity TEXT NOT NULL,
    proceeds TEXT NOT NULL,
    cost_basis TEXT NOT NULL,
    gain_loss TEXT NOT NULL,
    term TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id),
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS income_lines (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    asset TEXT NOT NULL,
    received_at TEXT NOT NULL,
    quantity TEXT NOT NULL,
    fair_value TEXT NOT NULL,
    taxable_amount TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id),
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS open_lots (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    asset TEXT NOT NULL,
    acquired_at TEXT NOT NULL,
    quantity TEXT NOT NULL,
    unit_cost TEXT NOT NULL,
    fee TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id),
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS failures (
    run_id TEXT NOT NULL,
    asset TEXT NOT NULL,
    error TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id)
);
`

const timeLayout = time.RFC3339Nano

const (
	insertRun        = `INSERT INTO runs (id, created_at) VALUES (?, ?)`
	insertFailure    = `INSERT INTO failures (run_id, asset, error) VALUES (?, ?, ?)`
	insertTaxLine    = `INSERT INTO tax_lines (run_id, seq, asset, acquired_at, disposed_at, quantity, proceeds, cost_basis, gain_loss, term) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertIncomeLine = `INSERT INTO income_lines (run_id, seq, asset, received_at, quantity, fair_value, taxable_amount) VALUES (?, ?, ?, ?, ?, ?, ?)`
	insertOpenLot    = `INSERT INTO open_lots (run_id, seq, asset, acquired_at, quantity, unit_cost, fee) VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectTaxLines   = `SELECT asset, acquired_at, disposed_at, quantity, proceeds, cost_basis, gain_loss, term FROM tax_lines WHERE run_id = ? ORDER BY seq`
	selectFailures   = `SELECT asset, error FROM failures WHERE run_id = ?`
)

type Store struct {
	db *sql.DB
}

// New wraps an open database. The schema must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) the SQLite file at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores every asset result of one settlement in a single
// transaction and returns the new run id.
func (s *Store) SaveRun(ctx context.Context, results []taxlot.AssetResult) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin: %w", err)
	}
	runID := uuid.NewString()
	if err := saveRun(ctx, tx, runID, results); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return runID, nil
}

func saveRun(ctx context.Context, tx *sql.Tx, runID string, results []taxlot.AssetResult) error {
	if _, err := tx.ExecContext(ctx, insertRun,
		runID, time.Now().UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	var taxSeq, incomeSeq, lotSeq int
	for _, r := range results {
		for _, in := range r.IncomeLines {
			_, err := tx.ExecContext(ctx, insertIncomeLine,
				runID, incomeSeq, in.Asset, in.ReceivedAt.Format(timeLayout),
				in.Quantity.String(), in.FairValuePerUnit.String(), in.TaxableAmount.String())
			if err != nil {
				return fmt.Errorf("store: insert income line %s: %w", in.Asset, err)
			}
			incomeSeq++
		}
		if r.Err != nil {
			if _, err := tx.ExecContext(ctx, insertFailure,
				runID, r.Asset, r.Err.Error()); err != nil {
				return fmt.Errorf("store: insert failure %s: %w", r.Asset, err)
			}
			continue
		}
		for _, tl := range r.TaxLines {
			_, err := tx.ExecContext(ctx, insertTaxLine,
				runID, taxSeq, tl.Asset, tl.AcquiredAt.Format(timeLayout), tl.DisposedAt.Format(timeLayout),
				tl.Quantity.String(), tl.Proceeds.String(), tl.CostBasis.String(), tl.GainLoss.String(), string(tl.Term))
			if err != nil {
				return fmt.Errorf("store: insert tax line %s: %w", tl.Asset, err)
			}
			taxSeq++
		}
		for _, lot := range r.OpenLots {
			_, err := tx.ExecContext(ctx, insertOpenLot,
				runID, lotSeq, lot.Asset, lot.AcquiredAt.Format(timeLayout),
				lot.Quantity.String(), lot.UnitCost.String(), lot.Fee.String())
			if err != nil {
				return fmt.Errorf("store: insert open lot %s: %w", lot.Asset, err)
			}
			lotSeq++
		}
	}
	return nil
}

// LoadTaxLines returns the tax lines of a run in the order they were saved.
func (s *Store) LoadTaxLines(ctx context.Context, runID string) ([]taxlot.TaxLine, error) {
	rows, err := s.db.QueryContext(ctx, selectTaxLines, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query tax lines: %w", err)
	}
	defer rows.Close()

	var lines []taxlot.TaxLine
	for rows.Next() {
		var tl taxlot.TaxLine
		var acquired, disposed, term string
		if err := rows.Scan(&tl.Asset, &acquired, &disposed, &tl.Quantity, &tl.Proceeds, &tl.CostBasis, &tl.GainLoss, &term); err != nil {
			return nil, fmt.Errorf("store: scan tax line: %w", err)
		}
		if tl.AcquiredAt, err = time.Parse(timeLayout, acquired); err != nil {
			return nil, fmt.Errorf("store: tax line acquired_at: %w", err)
		}
		if tl.DisposedAt, err = time.Parse(timeLayout, disposed); err != nil {
			return nil, fmt.Errorf("store: tax line disposed_at: %w", err)
		}
		tl.Term = taxlot.Term(term)
		lines = append(lines, tl)
	}
	return lines, rows.Err()
}

// Failures returns asset -> error message for the failed assets of a run.
func (s *Store) Failures(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, selectFailures, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query failures: %w", err)
	}
	defer rows.Close()

	failed := make(map[string]string)
	for rows.Next() {
		var asset, msg string
		if err := rows.Scan(&asset, &msg); err != nil {
			return nil, fmt.Errorf("store: scan failure: %w", err)
		}
		failed[asset] = msg
	}
	return failed, rows.Err()
}

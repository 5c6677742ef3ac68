// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQL implements a medium using a SQL database.
// Every bank shares the table `nvram_cells`, keyed by bank name and index;
// a cell without a row reads back as zero bytes.
type SQL struct {
	driver string
	dsn    string
	bank   string
	layout Layout
	db     *sql.DB
}

// NewSQL creates a new SQL medium. The driver must be registered by the caller.
func NewSQL(driver, dsn, bank string) *SQL {
	return &SQL{
		driver: driver,
		dsn:    dsn,
		bank:   bank,
	}
}

// NewSQLite creates a SQL medium on the pure-Go SQLite driver.
func NewSQLite(path, bank string) *SQL {
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	return NewSQL("sqlite", dsn, bank)
}

// Open connects to the DB and creates the schema if needed.
func (s *SQL) Open(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(s.bank) == "" {
		return fmt.Errorf("bank name is required")
	}

	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping db: %w", err)
	}

	s.db = db
	if err := s.initSchema(); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to init schema: %w", err)
	}

	// Rows beyond the layout belong to an older, larger bank.
	if _, err := db.Exec("DELETE FROM nvram_cells WHERE bank = ? AND idx >= ?", s.bank, layout.CellCount); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to trim cells: %w", err)
	}

	s.layout = layout
	return nil
}

func (s *SQL) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS nvram_cells (
		bank TEXT NOT NULL,
		idx INTEGER NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (bank, idx)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQL) ReadCell(index int, p []byte) error {
	if s.db == nil {
		return fmt.Errorf("sql medium is not open")
	}
	if err := s.layout.check(index, p); err != nil {
		return err
	}

	var value []byte
	err := s.db.QueryRow("SELECT value FROM nvram_cells WHERE bank = ? AND idx = ?", s.bank, index).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		clear(p)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query cell: %w", err)
	}
	if len(value) != len(p) {
		return fmt.Errorf("stored cell is %d bytes, want %d", len(value), len(p))
	}
	copy(p, value)
	return nil
}

// WriteCell upserts the cell row.
func (s *SQL) WriteCell(index int, p []byte) error {
	if s.db == nil {
		return fmt.Errorf("sql medium is not open")
	}
	if err := s.layout.check(index, p); err != nil {
		return err
	}

	query := "INSERT INTO nvram_cells (bank, idx, value) VALUES (?, ?, ?) ON CONFLICT(bank, idx) DO UPDATE SET value=excluded.value"
	if _, err := s.db.Exec(query, s.bank, index, append([]byte(nil), p...)); err != nil {
		return fmt.Errorf("failed to persist cell: %w", err)
	}
	return nil
}

// Sync is a no-op: every WriteCell is its own committed statement.
func (s *SQL) Sync() error {
	return nil
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

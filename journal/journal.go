// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package journal records finished XML-RPC calls in SQLite.
package journal

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/luxfi/xmlrpc"
)

// ErrNotFound is returned by Get for an unknown identifier.
var ErrNotFound = errors.New("journal: entry not found")

// Entry is one finished call.
type Entry struct {
	ID            string
	URL           string
	Method        string
	State         string
	Fault         bool
	FaultCode     int
	FaultString   string
	Error         string
	ResponseXML   string
	Started       time.Time
	Finished      time.Time
	BytesSent     int64
	BytesReceived int64
}

// IsFault reports whether the call completed with a fault.
func (e Entry) IsFault() bool { return e.Fault }

// Duration is zero for calls that never started.
func (e Entry) Duration() time.Duration {
	if e.Started.IsZero() {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// Store owns the journal database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path. Call Init before use.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own database.
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init applies pragmas and the schema.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','2');`,
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			method TEXT NOT NULL,
			state TEXT NOT NULL,
			is_fault INTEGER NOT NULL DEFAULT 0,
			fault_code INTEGER NOT NULL DEFAULT 0,
			fault_string TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			response_xml TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			bytes_sent INTEGER NOT NULL DEFAULT 0,
			bytes_received INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_finished ON calls(finished_at);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return s.migrate(ctx)
}

// migrate brings a version 1 calls table up to date.
func (s *Store) migrate(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('calls') WHERE name = 'is_fault';`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if n > 0 {
		return nil
	}
	stmts := []string{
		`ALTER TABLE calls ADD COLUMN is_fault INTEGER NOT NULL DEFAULT 0;`,
		`UPDATE calls SET is_fault = 1 WHERE fault_code != 0 OR fault_string != '';`,
		`UPDATE meta SET value = '2' WHERE key = 'schemaVersion';`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// Record stores e, replacing an earlier entry with the same ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calls(id, url, method, state, is_fault, fault_code, fault_string, error,
			response_xml, started_at, finished_at, bytes_sent, bytes_received)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, e.ID, e.URL, e.Method, e.State, e.Fault, e.FaultCode, e.FaultString, e.Error,
		e.ResponseXML, unixMilli(e.Started), unixMilli(e.Finished), e.BytesSent, e.BytesReceived)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, url, method, state, is_fault, fault_code, fault_string, error,
	response_xml, started_at, finished_at, bytes_sent, bytes_received FROM calls`

// Get returns the entry for id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// List returns up to limit entries, most recently finished first. A
// non-positive limit returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY finished_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Entry, error) {
	var (
		e                 Entry
		started, finished int64
	)
	err := r.Scan(&e.ID, &e.URL, &e.Method, &e.State, &e.Fault, &e.FaultCode, &e.FaultString, &e.Error,
		&e.ResponseXML, &started, &finished, &e.BytesSent, &e.BytesReceived)
	if err != nil {
		return Entry{}, err
	}
	e.Started = fromUnixMilli(started)
	e.Finished = fromUnixMilli(finished)
	return e, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// EntryFromSummary converts a finished connection into a journal entry.
func EntryFromSummary(s xmlrpc.Summary) Entry {
	e := Entry{
		ID:            s.ID,
		State:         s.State.String(),
		Started:       s.Started,
		Finished:      s.Finished,
		BytesSent:     s.BytesSent,
		BytesReceived: s.BytesReceived,
	}
	if s.Request != nil {
		e.URL = s.Request.URL()
		e.Method = s.Request.Method()
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	if resp := s.Response; resp != nil {
		if resp.IsFault() {
			e.Fault = true
			e.FaultCode, e.FaultString = resp.FaultCode(), resp.FaultString()
		}
		var buf bytes.Buffer
		if err := xmlrpc.EncodeResponse(&buf, resp); err == nil {
			e.ResponseXML = buf.String()
		}
	}
	return e
}

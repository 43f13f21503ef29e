// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package correlation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hpc-ci-bridge/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS correlations (
	ci_key       TEXT    NOT NULL,
	scheduler_id TEXT    NOT NULL,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (ci_key, scheduler_id)
);`

// SQLiteStore is a Store persisted in a single sqlite file. The file is
// opened for every operation and each operation runs in one EXCLUSIVE
// transaction, so concurrent poller processes never interleave writes.
type SQLiteStore struct {
	path        string
	busyTimeout time.Duration
}

// NewSQLiteStore returns a store backed by the file at path. The file is
// created on first use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path, busyTimeout: 10 * time.Second}
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// uriPath escapes the characters that end or escape the path of a sqlite URI
// filename.
var uriPath = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func (s *SQLiteStore) dsn() string {
	return fmt.Sprintf("file:%s?_txlock=exclusive&_busy_timeout=%d", uriPath.Replace(s.path), s.busyTimeout.Milliseconds())
}

// withTx opens the database, runs fn inside an exclusive transaction and
// commits. The transaction is rolled back and the database closed on every
// path.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) (err error) {
	db, err := sql.Open("sqlite3", s.dsn())
	if err != nil {
		return &StoreError{Op: op, Path: s.path, Err: err}
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: op, Path: s.path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, schema); err != nil {
		return &StoreError{Op: op, Path: s.path, Err: err}
	}
	if err = fn(tx); err != nil {
		return &StoreError{Op: op, Path: s.path, Err: err}
	}
	if err = tx.Commit(); err != nil {
		return &StoreError{Op: op, Path: s.path, Err: err}
	}
	return nil
}

// Lookup implements Store. A store that cannot be read looks empty.
func (s *SQLiteStore) Lookup(ctx context.Context, key string) ([]string, bool) {
	var ids []string
	err := s.withTx(ctx, "lookup", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT scheduler_id FROM correlations WHERE ci_key = ? ORDER BY created_at, rowid`, key)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		logging.Error("Failed to read from correlation store: %v", err)
		return nil, false
	}
	return ids, len(ids) > 0
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, key, schedulerID string) error {
	return s.withTx(ctx, "record", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO correlations (ci_key, scheduler_id, created_at) VALUES (?, ?, ?)`,
			key, schedulerID, time.Now().Unix())
		return err
	})
}

// Reconcile implements Store. An ambiguous live set leaves the store as is.
func (s *SQLiteStore) Reconcile(ctx context.Context, live *LiveSet) error {
	if live.Ambiguous() {
		logging.Warn("Live scheduler query was not fully parsed; keeping all entries in %s", s.path)
		return nil
	}
	return s.withTx(ctx, "reconcile", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT DISTINCT scheduler_id FROM correlations`)
		if err != nil {
			return err
		}
		var dead []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if !live.Contains(id) {
				dead = append(dead, id)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range dead {
			logging.Debug("Removing finished scheduler job %s from correlation store", id)
			if _, err := tx.ExecContext(ctx, `DELETE FROM correlations WHERE scheduler_id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	return s.withTx(ctx, "remove", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM correlations WHERE ci_key = ?`, key)
		return err
	})
}

// All implements Store. A store that cannot be read looks empty.
func (s *SQLiteStore) All(ctx context.Context) Records {
	records := Records{}
	err := s.withTx(ctx, "read", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT ci_key, scheduler_id FROM correlations ORDER BY ci_key, created_at, rowid`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key, id string
			if err := rows.Scan(&key, &id); err != nil {
				return err
			}
			records[key] = append(records[key], id)
		}
		return rows.Err()
	})
	if err != nil {
		logging.Error("Failed to read from correlation store, treating it as empty: %v", err)
		return Records{}
	}
	return records
}

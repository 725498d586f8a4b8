// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// FileName is the name of the database file within the ledger directory.
const FileName = "ledger.sqlite"

func init() {
	ledger.RegisterFactory("sqlite", func(params ledger.Parameters) (ledger.Ledger, error) {
		if params.Directory == "" {
			return nil, fmt.Errorf("%w: sqlite ledger requires a directory", ledger.ErrMissingParameters)
		}
		return Open(params.Directory, params.Logger)
	})
}

// Ledger is a ledger.Ledger stored in a SQLite database. The connection pool
// is limited to a single connection, so transactions are applied one at a
// time, each inside a SQL transaction.
type Ledger struct {
	db     *sql.DB
	log    *slog.Logger
	mutex  sync.RWMutex // < guards closed; held shared by in-flight operations
	closed bool
}

// Open opens or creates a ledger database in the given directory.
func Open(directory string, logger *slog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(directory, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to database: %w", err), db.Close())
	}

	// SQLite supports a single writer only.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to execute %q: %w", pragma, err), db.Close())
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to apply schema: %w", err), db.Close())
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, log: logger.With("ledger", "sqlite")}, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, address common.Address) (ledger.Record, bool, error) {
	var program, data []byte
	var version int64
	err := q.QueryRowContext(ctx,
		"SELECT program, version, data FROM records WHERE address = ?", address[:],
	).Scan(&program, &version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, false, nil
	}
	if err != nil {
		return ledger.Record{}, false, err
	}
	if len(program) != common.AddressSize {
		return ledger.Record{}, false, fmt.Errorf("corrupted record at %v: invalid program length %d", address, len(program))
	}
	res := ledger.Record{Version: uint64(version), Data: data}
	copy(res.Program[:], program)
	return res, true, nil
}

func put(ctx context.Context, tx *sql.Tx, entry ledger.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (address, program, version, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			program = excluded.program,
			version = excluded.version,
			data = excluded.data
	`, entry.Address[:], entry.Record.Program[:], int64(entry.Record.Version), entry.Record.Data)
	return err
}

func (l *Ledger) Get(ctx context.Context, address common.Address) (ledger.Record, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.Record{}, ledger.ErrClosed
	}
	record, found, err := get(ctx, l.db, address)
	if err != nil {
		return ledger.Record{}, err
	}
	if !found {
		return ledger.Record{}, ledger.ErrNotFound
	}
	return record, nil
}

func (l *Ledger) Submit(ctx context.Context, tx *ledger.Transaction) *ledger.Pending {
	return ledger.Async(func() (ledger.Receipt, error) {
		return l.apply(ctx, tx)
	})
}

func (l *Ledger) apply(ctx context.Context, tx *ledger.Transaction) (res ledger.Receipt, err error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.Receipt{}, ledger.ErrClosed
	}

	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(sqlTx.Rollback()))
		}
	}()

	entries, err := ledger.Prepare(tx, func(address common.Address) (ledger.Record, bool, error) {
		return get(ctx, sqlTx, address)
	})
	if err != nil {
		return ledger.Receipt{}, err
	}
	for _, entry := range entries {
		if err := put(ctx, sqlTx, entry); err != nil {
			return ledger.Receipt{}, fmt.Errorf("failed to write record %v: %w", entry.Address, err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	digest := tx.Digest()
	l.log.Debug("transaction applied", "digest", digest, "writes", len(entries))
	return ledger.Receipt{Transaction: digest, Writes: len(entries)}, nil
}

func (l *Ledger) Scan(ctx context.Context, visit func(common.Address, ledger.Record) error) error {
	entries, err := l.all(ctx)
	if err != nil {
		return err
	}
	// Rows are fully read before visiting, since the single connection must
	// be available to the visitor.
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(entry.Address, entry.Record); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) all(ctx context.Context) ([]ledger.Entry, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return nil, ledger.ErrClosed
	}
	rows, err := l.db.QueryContext(ctx, "SELECT address, program, version, data FROM records ORDER BY address")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Entry
	for rows.Next() {
		var address, program, data []byte
		var version int64
		if err := rows.Scan(&address, &program, &version, &data); err != nil {
			return nil, err
		}
		if len(address) != common.AddressSize || len(program) != common.AddressSize {
			return nil, fmt.Errorf("corrupted record with address %x", address)
		}
		entry := ledger.Entry{Record: ledger.Record{Version: uint64(version), Data: data}}
		copy(entry.Address[:], address)
		copy(entry.Record.Program[:], program)
		res = append(res, entry)
	}
	return res, rows.Err()
}

func (l *Ledger) Restore(ctx context.Context, entries []ledger.Entry) (err error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.ErrClosed
	}
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(sqlTx.Rollback()))
		}
	}()
	for i, entry := range entries {
		_, found, err := get(ctx, sqlTx, entry.Address)
		if err != nil {
			return err
		}
		if found {
			return &ledger.OpError{Index: i, Address: entry.Address, Err: ledger.ErrAlreadyAllocated}
		}
		if err := put(ctx, sqlTx, entry); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// Close waits for in-flight operations and closes the database.
func (l *Ledger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

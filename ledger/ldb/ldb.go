// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func init() {
	ledger.RegisterFactory("ldb", func(params ledger.Parameters) (ledger.Ledger, error) {
		if params.Directory == "" {
			return nil, fmt.Errorf("%w: ldb ledger requires a directory", ledger.ErrMissingParameters)
		}
		return Open(params.Directory, params.Logger)
	})
}

// TableSpace is the key prefix separating different kinds of data in the
// database.
type TableSpace byte

const (
	RecordTable TableSpace = 'R'
)

// dbKey is the database key of a record.
type dbKey [1 + common.AddressSize]byte

func recordKey(address common.Address) dbKey {
	var k dbKey
	k[0] = byte(RecordTable)
	copy(k[1:], address[:])
	return k
}

// Ledger is a ledger.Ledger backed by a LevelDB instance. Transactions are
// validated and written inside a LevelDB transaction, which serializes all
// writers and commits atomically.
type Ledger struct {
	db     *leveldb.DB
	log    *slog.Logger
	mutex  sync.RWMutex // < guards closed; held shared by in-flight operations
	closed bool
}

// Open opens or creates a ledger in the given directory.
func Open(directory string, logger *slog.Logger) (*Ledger, error) {
	db, err := leveldb.OpenFile(directory, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb in %s: %w", directory, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, log: logger.With("ledger", "ldb")}, nil
}

func (l *Ledger) Get(ctx context.Context, address common.Address) (ledger.Record, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.Record{}, ledger.ErrClosed
	}
	key := recordKey(address)
	data, err := l.db.Get(key[:], nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ledger.Record{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Record{}, err
	}
	return ledger.DecodeRecord(data)
}

func (l *Ledger) Submit(ctx context.Context, tx *ledger.Transaction) *ledger.Pending {
	return ledger.Async(func() (ledger.Receipt, error) {
		return l.apply(ctx, tx)
	})
}

func (l *Ledger) apply(ctx context.Context, tx *ledger.Transaction) (ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.Receipt{}, ledger.ErrClosed
	}

	trx, err := l.db.OpenTransaction()
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to open leveldb transaction: %w", err)
	}
	entries, err := ledger.Prepare(tx, func(address common.Address) (ledger.Record, bool, error) {
		key := recordKey(address)
		data, err := trx.Get(key[:], nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return ledger.Record{}, false, nil
		}
		if err != nil {
			return ledger.Record{}, false, err
		}
		record, err := ledger.DecodeRecord(data)
		return record, err == nil, err
	})
	if err != nil {
		trx.Discard()
		return ledger.Receipt{}, err
	}
	for _, entry := range entries {
		key := recordKey(entry.Address)
		if err := trx.Put(key[:], ledger.EncodeRecord(entry.Record), nil); err != nil {
			trx.Discard()
			return ledger.Receipt{}, err
		}
	}
	if err := trx.Commit(); err != nil {
		trx.Discard()
		return ledger.Receipt{}, fmt.Errorf("failed to commit leveldb transaction: %w", err)
	}
	digest := tx.Digest()
	l.log.Debug("transaction applied", "digest", digest, "writes", len(entries))
	return ledger.Receipt{Transaction: digest, Writes: len(entries)}, nil
}

func (l *Ledger) Scan(ctx context.Context, visit func(common.Address, ledger.Record) error) error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.ErrClosed
	}
	iter := l.db.NewIterator(util.BytesPrefix([]byte{byte(RecordTable)}), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var address common.Address
		copy(address[:], iter.Key()[1:])
		record, err := ledger.DecodeRecord(iter.Value())
		if err != nil {
			return fmt.Errorf("corrupted record at %v: %w", address, err)
		}
		if err := visit(address, record); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (l *Ledger) Restore(ctx context.Context, entries []ledger.Entry) error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.ErrClosed
	}
	trx, err := l.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("failed to open leveldb transaction: %w", err)
	}
	for i, entry := range entries {
		key := recordKey(entry.Address)
		exists, err := trx.Has(key[:], nil)
		if err != nil {
			trx.Discard()
			return err
		}
		if exists {
			trx.Discard()
			return &ledger.OpError{Index: i, Address: entry.Address, Err: ledger.ErrAlreadyAllocated}
		}
		if err := trx.Put(key[:], ledger.EncodeRecord(entry.Record), nil); err != nil {
			trx.Discard()
			return err
		}
	}
	return trx.Commit()
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

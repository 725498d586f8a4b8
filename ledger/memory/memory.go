// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package memory

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
)

const initCapacity = 1_000

func init() {
	ledger.RegisterFactory("memory", func(ledger.Parameters) (ledger.Ledger, error) {
		return NewLedger(), nil
	})
}

// Ledger is an in-memory implementation of ledger.Ledger. Transactions are
// applied synchronously while holding an exclusive lock.
type Ledger struct {
	mutex  sync.RWMutex
	data   map[common.Address]ledger.Record
	closed bool
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		data: make(map[common.Address]ledger.Record, initCapacity),
	}
}

// Size returns the number of allocated records.
func (l *Ledger) Size() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.data)
}

func (l *Ledger) Get(ctx context.Context, address common.Address) (ledger.Record, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return ledger.Record{}, ledger.ErrClosed
	}
	record, found := l.data[address]
	if !found {
		return ledger.Record{}, ledger.ErrNotFound
	}
	return clone(record), nil
}

func (l *Ledger) Submit(ctx context.Context, tx *ledger.Transaction) *ledger.Pending {
	if err := ctx.Err(); err != nil {
		return ledger.Completed(ledger.Receipt{}, err)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return ledger.Completed(ledger.Receipt{}, ledger.ErrClosed)
	}
	entries, err := ledger.Prepare(tx, func(address common.Address) (ledger.Record, bool, error) {
		record, found := l.data[address]
		return record, found, nil
	})
	if err != nil {
		return ledger.Completed(ledger.Receipt{}, err)
	}
	for _, entry := range entries {
		l.data[entry.Address] = entry.Record
	}
	return ledger.Completed(ledger.Receipt{
		Transaction: tx.Digest(),
		Writes:      len(entries),
	}, nil)
}

func (l *Ledger) Scan(ctx context.Context, visit func(common.Address, ledger.Record) error) error {
	// Visit a copy to allow the visitor to submit transactions.
	l.mutex.RLock()
	if l.closed {
		l.mutex.RUnlock()
		return ledger.ErrClosed
	}
	addresses := slices.SortedFunc(maps.Keys(l.data), common.Address.Compare)
	records := make([]ledger.Record, len(addresses))
	for i, address := range addresses {
		records[i] = clone(l.data[address])
	}
	l.mutex.RUnlock()

	for i, address := range addresses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(address, records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Restore(ctx context.Context, entries []ledger.Entry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return ledger.ErrClosed
	}
	seen := make(map[common.Address]struct{}, len(entries))
	for i, entry := range entries {
		_, found := l.data[entry.Address]
		if _, duplicate := seen[entry.Address]; found || duplicate {
			return &ledger.OpError{Index: i, Address: entry.Address, Err: ledger.ErrAlreadyAllocated}
		}
		seen[entry.Address] = struct{}{}
	}
	for _, entry := range entries {
		l.data[entry.Address] = clone(entry.Record)
	}
	return nil
}

// Close marks the ledger as closed. All subsequent operations fail.
func (l *Ledger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.closed = true
	return nil
}

func clone(record ledger.Record) ledger.Record {
	record.Data = bytes.Clone(record.Data)
	return record
}

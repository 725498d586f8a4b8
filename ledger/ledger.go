// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ledger

//go:generate mockgen -source ledger.go -destination ledger_mocks.go -package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xsoniclabs/indexor/common"
)

// Ledger is an account-addressed, transactionally consistent record store.
// Records are allocated once at a given address with a fixed size and may
// afterwards only be updated by their owning program. Transactions are applied
// atomically: either all of their operations take effect or none does.
//
// Implementations must be safe for concurrent use. Transactions submitted
// concurrently are applied in some serial order.
type Ledger interface {
	// Get returns the record stored at the given address or ErrNotFound.
	Get(ctx context.Context, address common.Address) (Record, error)

	// Submit hands the transaction to the ledger for validation and
	// application. The outcome is delivered through the returned Pending.
	Submit(ctx context.Context, tx *Transaction) *Pending

	// Scan visits all records in the order of their addresses. Scanning stops
	// at the first error returned by the visitor.
	Scan(ctx context.Context, visit func(common.Address, Record) error) error

	// Restore writes the given entries verbatim, bypassing authorization. It is
	// intended for importing snapshots. Occupied addresses are rejected with
	// ErrAlreadyAllocated and no entry is written in that case.
	Restore(ctx context.Context, entries []Entry) error

	// Close releases all resources of the ledger.
	Close() error
}

// Record is the content of a single ledger slot.
type Record struct {
	Program common.Address // < the program owning and allowed to modify the record
	Version uint64         // < 1 after allocation, incremented by every update
	Data    []byte         // < fixed-size content, length set at allocation
}

// Entry is a record together with its address.
type Entry struct {
	Address common.Address
	Record  Record
}

// Receipt confirms the application of a transaction.
type Receipt struct {
	Transaction common.Hash // < digest of the applied transaction
	Writes      int         // < number of records written
}

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyAllocated  = errors.New("address already allocated")
	ErrVersionMismatch   = errors.New("record version mismatch")
	ErrProgramMismatch   = errors.New("record owned by different program")
	ErrRecordSize        = errors.New("data exceeds record size")
	ErrMissingSignature  = errors.New("missing required signature")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrEmptyTransaction  = errors.New("empty transaction")
	ErrClosed            = errors.New("ledger closed")
	ErrUnknownVariant    = errors.New("unknown ledger variant")
	ErrMissingParameters = errors.New("missing ledger parameters")
)

// OpError reports the operation of a transaction that could not be applied.
type OpError struct {
	Index   int            // < position of the operation in the transaction
	Address common.Address // < address targeted by the operation
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("operation %d on %v: %v", e.Index, e.Address, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

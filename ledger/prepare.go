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

import (
	"fmt"

	"github.com/0xsoniclabs/indexor/common"
)

// Prepare validates the given transaction against the state provided by read
// and computes the records to be written when applying it. The read function
// reports whether a record exists at the address; errors of read are returned
// unchanged. Rejected operations are reported as *OpError.
//
// Prepare is shared by all ledger implementations, which are responsible for
// calling it and writing the result under mutual exclusion.
func Prepare(tx *Transaction, read func(common.Address) (Record, bool, error)) ([]Entry, error) {
	if tx == nil || len(tx.Ops) == 0 {
		return nil, ErrEmptyTransaction
	}
	signed, err := authorizedAddresses(tx)
	if err != nil {
		return nil, err
	}

	// Records modified by earlier operations of this transaction.
	written := map[common.Address]int{}
	res := make([]Entry, 0, len(tx.Ops))
	lookup := func(address common.Address) (Record, bool, error) {
		if pos, found := written[address]; found {
			return res[pos].Record, true, nil
		}
		return read(address)
	}

	for i, op := range tx.Ops {
		if err := checkSigners(op, signed); err != nil {
			return nil, &OpError{Index: i, Address: op.Address, Err: err}
		}
		current, exists, err := lookup(op.Address)
		if err != nil {
			return nil, err
		}
		next, err := apply(op, current, exists)
		if err != nil {
			return nil, &OpError{Index: i, Address: op.Address, Err: err}
		}
		if pos, found := written[op.Address]; found {
			res[pos].Record = next
		} else {
			written[op.Address] = len(res)
			res = append(res, Entry{Address: op.Address, Record: next})
		}
	}
	return res, nil
}

func apply(op Op, current Record, exists bool) (Record, error) {
	switch op.Kind {
	case OpAllocate:
		if exists {
			return Record{}, ErrAlreadyAllocated
		}
		if len(op.Data) > int(op.Space) {
			return Record{}, fmt.Errorf("%w: %d > %d", ErrRecordSize, len(op.Data), op.Space)
		}
		data := make([]byte, op.Space)
		copy(data, op.Data)
		return Record{Program: op.Program, Version: 1, Data: data}, nil

	case OpUpdate:
		if !exists {
			return Record{}, ErrNotFound
		}
		if current.Program != op.Program {
			return Record{}, ErrProgramMismatch
		}
		if current.Version != op.Version {
			return Record{}, fmt.Errorf("%w: expected %d, found %d", ErrVersionMismatch, op.Version, current.Version)
		}
		if len(op.Data) > len(current.Data) {
			return Record{}, fmt.Errorf("%w: %d > %d", ErrRecordSize, len(op.Data), len(current.Data))
		}
		data := make([]byte, len(current.Data))
		copy(data, op.Data)
		return Record{Program: op.Program, Version: current.Version + 1, Data: data}, nil
	}
	return Record{}, fmt.Errorf("%w: %v", ErrInvalidOperation, op.Kind)
}

// checkSigners verifies that the program, all listed signers and, for
// allocations, the allocated address itself authorized the operation.
func checkSigners(op Op, signed map[common.Address]bool) error {
	if !signed[op.Program] {
		return fmt.Errorf("%w: program %v", ErrMissingSignature, op.Program)
	}
	if op.Kind == OpAllocate && !signed[op.Address] {
		return fmt.Errorf("%w: allocated address %v", ErrMissingSignature, op.Address)
	}
	for _, signer := range op.Signers {
		if !signed[signer] {
			return fmt.Errorf("%w: %v", ErrMissingSignature, signer)
		}
	}
	return nil
}

// authorizedAddresses verifies all signatures of the transaction and returns
// the set of addresses authorized by them.
func authorizedAddresses(tx *Transaction) (map[common.Address]bool, error) {
	digest := tx.Digest()
	res := make(map[common.Address]bool, len(tx.Signatures)+len(tx.Derived))
	for _, signature := range tx.Signatures {
		if !common.Verify(signature.Signer, digest[:], signature.Data) {
			return nil, fmt.Errorf("%w: by %v", ErrInvalidSignature, signature.Signer)
		}
		res[signature.Signer] = true
	}
	for _, derived := range tx.Derived {
		if !res[derived.Program] {
			return nil, fmt.Errorf("%w: program %v for derived signature", ErrMissingSignature, derived.Program)
		}
		address, err := common.CreateAddress(common.WithNonce(derived.Seeds, derived.Nonce), derived.Program)
		if err != nil {
			return nil, fmt.Errorf("%w: derived signature: %w", ErrInvalidSignature, err)
		}
		res[address] = true
	}
	return res, nil
}

// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package indexor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
)

// read fetches a record owned by the registry program. Records of other
// programs are reported as ledger.ErrNotFound.
func (r *Registry) read(ctx context.Context, address common.Address) (ledger.Record, error) {
	record, err := r.ledger.Get(ctx, address)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Record{}, err
		}
		return ledger.Record{}, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if record.Program != r.Program() {
		return ledger.Record{}, fmt.Errorf("%w: %v is owned by %v", ledger.ErrNotFound, address, record.Program)
	}
	return record, nil
}

// readIndex fetches an index together with the version of its record.
func (r *Registry) readIndex(ctx context.Context, address common.Address) (Index, uint64, error) {
	record, err := r.read(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return Index{}, 0, fmt.Errorf("%w: %v: %w", ErrIndexNotFound, address, err)
	}
	if err != nil {
		return Index{}, 0, err
	}
	index, err := decodeIndex(record.Data)
	if err != nil {
		return Index{}, 0, fmt.Errorf("%w: %v: %w", ErrIndexNotFound, address, err)
	}
	return index, record.Version, nil
}

// GetIndex reads the index at the given address.
func (r *Registry) GetIndex(ctx context.Context, address common.Address) (Index, error) {
	index, _, err := r.readIndex(ctx, address)
	return index, err
}

// FindIndex locates the index of the given owner and namespace.
func (r *Registry) FindIndex(ctx context.Context, owner common.Address, namespace []byte) (common.Address, Index, error) {
	address, _, err := r.DeriveIndex(owner, namespace)
	if err != nil {
		return common.Address{}, Index{}, err
	}
	index, err := r.GetIndex(ctx, address)
	return address, index, err
}

// GetPointer reads the pointer with the given name of an index.
func (r *Registry) GetPointer(ctx context.Context, index common.Address, name string) (Pointer, error) {
	address, _, err := r.DerivePointer(index, name)
	if err != nil {
		return Pointer{}, err
	}
	record, err := r.read(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return Pointer{}, fmt.Errorf("%w: %q in %v", ErrPointerNotFound, name, index)
	}
	if err != nil {
		return Pointer{}, err
	}
	return decodePointer(record.Data)
}

// Lookup reads the proof of a value registered in an index. It fails with
// ErrPointerNotFound if the value is not registered.
func (r *Registry) Lookup(ctx context.Context, index, value common.Address) (Proof, error) {
	address, _, err := r.DeriveProof(index, value)
	if err != nil {
		return Proof{}, err
	}
	record, err := r.read(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return Proof{}, fmt.Errorf("%w: value %v in %v", ErrPointerNotFound, value, index)
	}
	if err != nil {
		return Proof{}, err
	}
	return decodeProof(record.Data)
}

// Contains checks whether a value is registered in an index.
func (r *Registry) Contains(ctx context.Context, index, value common.Address) (bool, error) {
	_, err := r.Lookup(ctx, index, value)
	if errors.Is(err, ErrPointerNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Pointers lists all pointers of a serial index in creation order.
func (r *Registry) Pointers(ctx context.Context, index common.Address) ([]Pointer, error) {
	current, err := r.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if current.Mode != Serial {
		return nil, fmt.Errorf("%w: %v is %v", ErrNotSerial, index, current.Mode)
	}
	res := make([]Pointer, 0, current.Count)
	for i := uint64(0); i < current.Count; i++ {
		pointer, err := r.GetPointer(ctx, index, strconv.FormatUint(i, 10))
		if err != nil {
			return nil, err
		}
		res = append(res, pointer)
	}
	return res, nil
}

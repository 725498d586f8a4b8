// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package indexor implements collections on top of an account-addressed ledger.
//
// An Index is a record at an address derived from its owner and namespace. Each
// value registered in an index gets a Pointer, stored at an address derived
// from the index and the pointer's name, and a Proof, stored at an address
// derived from the index and the value. Since the ledger allocates every
// address only once, the Proof rejects duplicate values and the Pointer
// rejects duplicate names without any lookup table. Relationships are never
// stored; they are recovered by deriving the addresses again.
package indexor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
)

var (
	indexSeed   = []byte("idx")
	pointerSeed = []byte("ptr")
	proofSeed   = []byte("prf")
)

// IndexRef identifies a created index.
type IndexRef struct {
	Address common.Address
	Nonce   uint8
}

// PointerRef identifies the records created for a registered value.
type PointerRef struct {
	Index        common.Address
	Pointer      common.Address
	Proof        common.Address
	Name         string
	PointerNonce uint8
	ProofNonce   uint8
}

// Registry creates and reads indexes owned by a single registry program. It
// holds no state besides its configuration; all contention is resolved by the
// ledger, so a Registry may be used concurrently.
type Registry struct {
	ledger  ledger.Ledger
	program *ledger.KeySigner
	log     *slog.Logger
}

// NewRegistry creates a registry operating on the given ledger under the
// program identified by the given key.
func NewRegistry(l ledger.Ledger, program common.KeyPair, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ledger:  l,
		program: ledger.NewKeySigner(program),
		log:     logger.With("component", "registry"),
	}
}

// Program returns the address of the registry program owning all records.
func (r *Registry) Program() common.Address {
	return r.program.Address()
}

// DeriveIndex computes the address of the index of the given owner and
// namespace without accessing the ledger.
func (r *Registry) DeriveIndex(owner common.Address, namespace []byte) (common.Address, uint8, error) {
	if len(namespace) > MaxNamespaceLen {
		return common.Address{}, 0, fmt.Errorf("%w: %d bytes exceed maximum of %d", ErrInvalidNamespace, len(namespace), MaxNamespaceLen)
	}
	return common.FindAddress(indexSeeds(owner, namespace), r.Program())
}

// DerivePointer computes the address of the pointer with the given name.
func (r *Registry) DerivePointer(index common.Address, name string) (common.Address, uint8, error) {
	if err := checkName(name); err != nil {
		return common.Address{}, 0, err
	}
	return common.FindAddress(pointerSeeds(index, name), r.Program())
}

// DeriveProof computes the address of the proof of the given value.
func (r *Registry) DeriveProof(index, value common.Address) (common.Address, uint8, error) {
	return common.FindAddress(proofSeeds(index, value), r.Program())
}

func indexSeeds(owner common.Address, namespace []byte) [][]byte {
	return [][]byte{indexSeed, owner[:], namespace}
}

func pointerSeeds(index common.Address, name string) [][]byte {
	return [][]byte{pointerSeed, index[:], []byte(name)}
}

func proofSeeds(index, value common.Address) [][]byte {
	return [][]byte{proofSeed, index[:], value[:]}
}

func checkName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes exceed maximum of %d", ErrInvalidName, len(name), MaxNameLen)
	}
	return nil
}

// Batch collects the operations of several index and pointer creations to
// be committed in a single atomic transaction. Operations planned later see
// the effects of earlier ones. A Batch is not safe for concurrent use.
type Batch struct {
	ops     []ledger.Op
	roles   []role
	derived []ledger.DerivedSignature // < authorizing the registry's allocations
	indexes map[common.Address]*indexState
}

type role struct {
	kind roleKind
	mode Mode
}

type roleKind uint8

const (
	roleForeign roleKind = iota
	roleIndex
	roleProof
	rolePointer
	roleCount
)

// indexState is the content of an index as it will be after the operations
// planned so far, and the record version it will have at that point.
type indexState struct {
	index   Index
	version uint64
}

// NewBatch creates an empty batch.
func (r *Registry) NewBatch() *Batch {
	return &Batch{indexes: map[common.Address]*indexState{}}
}

// Add appends operations of other programs to the batch. Their signatures
// need to be provided when committing.
func (b *Batch) Add(ops ...ledger.Op) {
	for _, op := range ops {
		b.ops = append(b.ops, op)
		b.roles = append(b.roles, role{kind: roleForeign})
	}
}

// Len returns the number of planned ledger operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) add(op ledger.Op, r role) {
	b.ops = append(b.ops, op)
	b.roles = append(b.roles, r)
}

// allocate adds the allocation of a record at an address derived for the
// registry program from the given seeds.
func (b *Batch) allocate(op ledger.Op, r role, seeds [][]byte, nonce uint8) {
	b.add(op, r)
	b.derived = append(b.derived, ledger.DerivedSignature{
		Program: op.Program,
		Seeds:   seeds,
		Nonce:   nonce,
	})
}

// PlanIndex adds the creation of an index to the batch.
func (r *Registry) PlanIndex(b *Batch, owner, payer common.Address, namespace []byte, mode Mode) (IndexRef, error) {
	if !mode.valid() {
		return IndexRef{}, fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}
	address, nonce, err := r.DeriveIndex(owner, namespace)
	if err != nil {
		return IndexRef{}, err
	}
	namespace = append([]byte{}, namespace...)
	if _, found := b.indexes[address]; found {
		return IndexRef{}, fmt.Errorf("%w: %v planned twice", ErrAlreadyExists, address)
	}
	index := Index{
		Owner:     owner,
		Namespace: namespace,
		Mode:      mode,
		Nonce:     nonce,
	}
	b.allocate(
		ledger.Allocate(address, r.Program(), indexSize, index.encode(), signers(owner, payer)...),
		role{kind: roleIndex}, indexSeeds(owner, namespace), nonce,
	)
	b.indexes[address] = &indexState{index: index, version: 1}
	return IndexRef{Address: address, Nonce: nonce}, nil
}

// LoadIndex returns the index as it will be after all operations planned in
// the batch so far. Indexes not yet known to the batch are read from the
// ledger; later commits fail with ErrConflict if they changed meanwhile.
func (r *Registry) LoadIndex(ctx context.Context, b *Batch, index common.Address) (Index, error) {
	state, err := r.load(ctx, b, index)
	if err != nil {
		return Index{}, err
	}
	return state.index, nil
}

func (r *Registry) load(ctx context.Context, b *Batch, index common.Address) (*indexState, error) {
	if state, found := b.indexes[index]; found {
		return state, nil
	}
	current, version, err := r.readIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	state := &indexState{index: current, version: version}
	b.indexes[index] = state
	return state, nil
}

// PlanPointer adds the registration of a value in an index to the batch. The
// index is read from the ledger unless it is already known to the batch. For
// serial indexes an empty name selects the next name in sequence; any other
// name must match it.
func (r *Registry) PlanPointer(ctx context.Context, b *Batch, index common.Address, name string, value, owner, payer common.Address) (PointerRef, error) {
	state, err := r.load(ctx, b, index)
	if err != nil {
		return PointerRef{}, err
	}
	if owner != state.index.Owner {
		return PointerRef{}, fmt.Errorf("%w: %v is not the owner of index %v", ErrUnauthorized, owner, index)
	}

	switch state.index.Mode {
	case Serial:
		expected := strconv.FormatUint(state.index.Count, 10)
		if name == "" {
			name = expected
		} else if name != expected {
			return PointerRef{}, fmt.Errorf("%w: serial name %q does not match expected %q", ErrInvariantViolation, name, expected)
		}
	case Freeform:
		if err := checkName(name); err != nil {
			return PointerRef{}, err
		}
	default:
		return PointerRef{}, fmt.Errorf("%w: index %v has mode %v", ErrInvariantViolation, index, state.index.Mode)
	}

	pointerAddress, pointerNonce, err := r.DerivePointer(index, name)
	if err != nil {
		return PointerRef{}, err
	}
	proofAddress, proofNonce, err := r.DeriveProof(index, value)
	if err != nil {
		return PointerRef{}, err
	}

	proof := Proof{Name: name, Nonce: proofNonce}
	pointer := Pointer{Name: name, Value: value, Nonce: pointerNonce}
	updated := state.index
	updated.Count++

	program := r.Program()
	required := signers(owner, payer)
	b.allocate(
		ledger.Allocate(proofAddress, program, proofSize, proof.encode(), required...),
		role{kind: roleProof, mode: updated.Mode}, proofSeeds(index, value), proofNonce,
	)
	b.allocate(
		ledger.Allocate(pointerAddress, program, pointerSize, pointer.encode(), required...),
		role{kind: rolePointer, mode: updated.Mode}, pointerSeeds(index, name), pointerNonce,
	)
	b.add(ledger.Update(index, program, state.version, updated.encode(), owner), role{kind: roleCount, mode: updated.Mode})
	state.index = updated
	state.version++

	return PointerRef{
		Index:        index,
		Pointer:      pointerAddress,
		Proof:        proofAddress,
		Name:         name,
		PointerNonce: pointerNonce,
		ProofNonce:   proofNonce,
	}, nil
}

// Commit submits all operations of the batch as one transaction, signed by
// the registry program and the given signers, and waits for its outcome.
// The registry authorizes the addresses of all records it allocates; records
// of other programs need to be authorized by the given signers.
func (r *Registry) Commit(ctx context.Context, b *Batch, signers ...ledger.Signer) (ledger.Receipt, error) {
	tx := ledger.NewTransaction(b.ops...)
	r.program.Sign(tx)
	tx.Derived = append(tx.Derived, b.derived...)
	for _, signer := range signers {
		signer.Sign(tx)
	}
	receipt, err := r.ledger.Submit(ctx, tx).Await(ctx)
	if err != nil {
		return ledger.Receipt{}, b.mapError(err)
	}
	return receipt, nil
}

// mapError translates a ledger failure into the registry's error kinds based
// on the role of the failing operation.
func (b *Batch) mapError(err error) error {
	var opErr *ledger.OpError
	if !errors.As(err, &opErr) {
		switch {
		case errors.Is(err, ledger.ErrMissingSignature), errors.Is(err, ledger.ErrInvalidSignature):
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case errors.Is(err, ledger.ErrEmptyTransaction):
			return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
		}
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if opErr.Index < 0 || opErr.Index >= len(b.roles) {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	r := b.roles[opErr.Index]
	if r.kind == roleForeign {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrMissingSignature),
		errors.Is(err, ledger.ErrInvalidSignature),
		errors.Is(err, ledger.ErrProgramMismatch):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, ledger.ErrAlreadyAllocated):
		switch r.kind {
		case roleIndex:
			return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
		case roleProof:
			return fmt.Errorf("%w: %w", ErrDuplicateValue, err)
		case rolePointer:
			if r.mode == Serial {
				return fmt.Errorf("%w: serial name taken: %w", ErrConflict, err)
			}
			return fmt.Errorf("%w: %w", ErrDuplicateName, err)
		}
	case errors.Is(err, ledger.ErrVersionMismatch) && r.kind == roleCount:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, ledger.ErrNotFound) && r.kind == roleCount:
		return fmt.Errorf("%w: %w", ErrIndexNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
}

// CreateIndex creates an index of the given owner and namespace. There can
// only be one index per owner and namespace; creating it again fails with
// ErrAlreadyExists.
func (r *Registry) CreateIndex(ctx context.Context, owner, payer ledger.Signer, namespace []byte, mode Mode) (IndexRef, error) {
	b := r.NewBatch()
	ref, err := r.PlanIndex(b, owner.Address(), payer.Address(), namespace, mode)
	if err != nil {
		return IndexRef{}, err
	}
	if _, err := r.Commit(ctx, b, owner, payer); err != nil {
		return IndexRef{}, err
	}
	r.log.Info("index created", "index", ref.Address, "owner", owner.Address(), "mode", mode)
	return ref, nil
}

// CreatePointer registers a value in an index. The value gets a pointer
// under the given name and a proof, and the index count is incremented, all
// in one transaction. Serial indexes fail with ErrConflict if another pointer
// was registered since the index was read; no retry is attempted.
func (r *Registry) CreatePointer(ctx context.Context, index common.Address, name string, value common.Address, owner, payer ledger.Signer) (PointerRef, error) {
	b := r.NewBatch()
	ref, err := r.PlanPointer(ctx, b, index, name, value, owner.Address(), payer.Address())
	if err != nil {
		return PointerRef{}, err
	}
	if _, err := r.Commit(ctx, b, owner, payer); err != nil {
		return PointerRef{}, err
	}
	r.log.Debug("pointer created", "index", index, "name", ref.Name, "value", value)
	return ref, nil
}

// signers lists the distinct addresses required to sign an operation.
func signers(owner, payer common.Address) []common.Address {
	if owner == payer {
		return []common.Address{owner}
	}
	return []common.Address{owner, payer}
}

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
	"encoding/binary"
	"fmt"

	"github.com/0xsoniclabs/indexor/common"
)

// OpKind enumerates the kinds of record operations.
type OpKind uint8

const (
	// OpAllocate creates a record at an unoccupied address.
	OpAllocate OpKind = iota + 1
	// OpUpdate overwrites the data of an existing record.
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpAllocate:
		return "allocate"
	case OpUpdate:
		return "update"
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// Op is a single record operation of a transaction. Every operation requires
// a signature of the owning program and of all listed signers. Allocations
// additionally require a signature for the allocated address, which for
// derived addresses only the deriving program can provide.
type Op struct {
	Kind    OpKind
	Address common.Address
	Program common.Address   // < owner of the record
	Space   uint32           // < allocate only: fixed size of the record
	Version uint64           // < update only: expected current version
	Data    []byte           // < at most Space (allocate) or record size (update)
	Signers []common.Address // < additional required signers
}

// Allocate creates an operation allocating a record of the given size at the
// given address. The data is zero-padded to the full size.
func Allocate(address, program common.Address, space uint32, data []byte, signers ...common.Address) Op {
	return Op{
		Kind:    OpAllocate,
		Address: address,
		Program: program,
		Space:   space,
		Data:    data,
		Signers: signers,
	}
}

// Update creates an operation replacing the data of the record at the given
// address. It only succeeds if the record is still at the given version.
func Update(address, program common.Address, version uint64, data []byte, signers ...common.Address) Op {
	return Op{
		Kind:    OpUpdate,
		Address: address,
		Program: program,
		Version: version,
		Data:    data,
		Signers: signers,
	}
}

// Signature is an ed25519 signature of the transaction digest.
type Signature struct {
	Signer common.Address
	Data   []byte
}

// DerivedSignature authorizes a derived address on behalf of the program it
// was derived for. It is only honored if the program signed the transaction.
type DerivedSignature struct {
	Program common.Address
	Seeds   [][]byte
	Nonce   uint8
}

// Transaction is an atomic list of operations with its authorizations.
type Transaction struct {
	Ops        []Op
	Signatures []Signature
	Derived    []DerivedSignature
}

// NewTransaction creates an unsigned transaction for the given operations.
func NewTransaction(ops ...Op) *Transaction {
	return &Transaction{Ops: ops}
}

var digestMarker = []byte("indexor/transaction")

// Digest computes the hash signed by the transaction's signers. It covers all
// operations but none of the authorizations.
func (t *Transaction) Digest() common.Hash {
	buffer := make([]byte, 0, 256)
	buffer = append(buffer, digestMarker...)
	buffer = binary.BigEndian.AppendUint32(buffer, uint32(len(t.Ops)))
	for _, op := range t.Ops {
		buffer = append(buffer, byte(op.Kind))
		buffer = append(buffer, op.Address[:]...)
		buffer = append(buffer, op.Program[:]...)
		buffer = binary.BigEndian.AppendUint32(buffer, op.Space)
		buffer = binary.BigEndian.AppendUint64(buffer, op.Version)
		buffer = binary.BigEndian.AppendUint32(buffer, uint32(len(op.Data)))
		buffer = append(buffer, op.Data...)
		buffer = binary.BigEndian.AppendUint32(buffer, uint32(len(op.Signers)))
		for _, signer := range op.Signers {
			buffer = append(buffer, signer[:]...)
		}
	}
	return common.Keccak256(buffer)
}

// Signer authorizes transactions on behalf of an address.
type Signer interface {
	// Address is the address authorized by this signer's signatures.
	Address() common.Address
	// Sign adds the signer's authorization to the transaction. The
	// transaction's operations must not be modified afterwards.
	Sign(tx *Transaction)
}

// KeySigner signs transactions with a key pair.
type KeySigner struct {
	key common.KeyPair
}

// NewKeySigner creates a signer for the given key pair.
func NewKeySigner(key common.KeyPair) *KeySigner {
	return &KeySigner{key: key}
}

func (s *KeySigner) Address() common.Address {
	return s.key.Address()
}

func (s *KeySigner) Sign(tx *Transaction) {
	digest := tx.Digest()
	tx.Signatures = append(tx.Signatures, Signature{
		Signer: s.key.Address(),
		Data:   s.key.Sign(digest[:]),
	})
}

// DerivedSigner signs for an address derived from seeds under a program. It
// holds the program's key, since only the program may sign for its derived
// addresses.
type DerivedSigner struct {
	program *KeySigner
	seeds   [][]byte
	nonce   uint8
	address common.Address
}

// NewDerivedSigner creates a signer for the address derived from the given
// seeds under the program identified by the key.
func NewDerivedSigner(program common.KeyPair, seeds ...[]byte) (*DerivedSigner, error) {
	address, nonce, err := common.FindAddress(seeds, program.Address())
	if err != nil {
		return nil, err
	}
	return &DerivedSigner{
		program: NewKeySigner(program),
		seeds:   seeds,
		nonce:   nonce,
		address: address,
	}, nil
}

func (s *DerivedSigner) Address() common.Address {
	return s.address
}

// Program returns the address of the program the address is derived for.
func (s *DerivedSigner) Program() common.Address {
	return s.program.Address()
}

// Nonce returns the nonce of the derived address.
func (s *DerivedSigner) Nonce() uint8 {
	return s.nonce
}

func (s *DerivedSigner) Sign(tx *Transaction) {
	s.program.Sign(tx)
	tx.Derived = append(tx.Derived, DerivedSignature{
		Program: s.program.Address(),
		Seeds:   s.seeds,
		Nonce:   s.nonce,
	})
}

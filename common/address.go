// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressSize is the number of bytes of an Address.
const AddressSize = 32

// Address identifies a record slot in the ledger. Addresses are either the
// public keys of signing identities or addresses derived from seeds by
// CreateAddress / FindAddress, which never coincide with a public key.
type Address [AddressSize]byte

// Hash is a 32-byte Keccak-256 digest.
type Hash [32]byte

// ParseAddress parses the 0x-prefixed hex representation of an address.
func ParseAddress(s string) (Address, error) {
	var res Address
	err := res.UnmarshalText([]byte(s))
	return res, err
}

// AddressFromNumber creates an address with the given number in its trailing
// bytes. Intended for tests and tooling.
func AddressFromNumber(num int) (address Address) {
	address[AddressSize-4] = byte(num >> 24)
	address[AddressSize-3] = byte(num >> 16)
	address[AddressSize-2] = byte(num >> 8)
	address[AddressSize-1] = byte(num)
	return
}

func (a Address) String() string {
	return hexutil.Encode(a[:])
}

// IsZero reports whether the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Compare orders addresses lexicographically by their bytes.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	data, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", text, err)
	}
	if len(data) != AddressSize {
		return fmt.Errorf("invalid address %q: expected %d bytes, got %d", text, AddressSize, len(data))
	}
	copy(a[:], data)
	return nil
}

func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// Keccak256 computes the Keccak-256 hash of the concatenation of the given
// byte slices.
func Keccak256(data ...[]byte) Hash {
	return Hash(crypto.Keccak256Hash(data...))
}

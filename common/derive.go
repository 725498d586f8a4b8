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
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

const (
	// MaxSeeds is the maximum number of seeds of a derivation, including the
	// nonce seed appended by FindAddress.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed in bytes.
	MaxSeedLen = 64
)

var (
	ErrTooManySeeds   = errors.New("too many seeds")
	ErrSeedTooLong    = errors.New("seed too long")
	ErrOnCurve        = errors.New("derived address is a valid public key")
	ErrNonceExhausted = errors.New("no viable nonce for derivation")
)

// derivedMarker separates derived addresses from other Keccak-256 uses.
var derivedMarker = []byte("indexor/derived-address")

// CreateAddress derives an address from the given seeds within the scope of
// the given program. The result is deterministic. Seeds are length-prefixed, so
// different seed sequences never hash the same input, even if their
// concatenations are equal.
//
// Derived addresses are guaranteed not to be valid ed25519 points, so no
// signing identity can own them. If the hash happens to be a point,
// ErrOnCurve is returned and a different seed sequence has to be used.
func CreateAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}
	hasher := sha3.NewLegacyKeccak256()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Address{}, fmt.Errorf("%w: seed %d has %d bytes, limit is %d", ErrSeedTooLong, i, len(seed), MaxSeedLen)
		}
		hasher.Write([]byte{byte(len(seed))})
		hasher.Write(seed)
	}
	hasher.Write(program[:])
	hasher.Write(derivedMarker)

	var res Address
	hasher.Sum(res[:0])
	if IsOnCurve(res) {
		return Address{}, ErrOnCurve
	}
	return res, nil
}

// FindAddress searches for the highest nonce in [0,255] for which
// CreateAddress on the seeds extended by the nonce produces a valid derived
// address. The nonce is needed to re-create the address with CreateAddress.
func FindAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, fmt.Errorf("%w: %d seeds leave no room for the nonce", ErrTooManySeeds, len(seeds))
	}
	extended := make([][]byte, len(seeds)+1)
	copy(extended, seeds)
	for nonce := 255; nonce >= 0; nonce-- {
		extended[len(seeds)] = []byte{byte(nonce)}
		address, err := CreateAddress(extended, program)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return Address{}, 0, err
		}
		return address, uint8(nonce), nil
	}
	return Address{}, 0, ErrNonceExhausted
}

// WithNonce returns the seeds extended by the given nonce, in the form
// accepted by CreateAddress.
func WithNonce(seeds [][]byte, nonce uint8) [][]byte {
	res := make([][]byte, len(seeds)+1)
	copy(res, seeds)
	res[len(seeds)] = []byte{nonce}
	return res
}

// IsOnCurve reports whether the address is the encoding of a point on the
// ed25519 curve, i.e. whether it may be a public key.
func IsOnCurve(address Address) bool {
	_, err := new(edwards25519.Point).SetBytes(address[:])
	return err == nil
}

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
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyPair is an ed25519 signing identity. Its address is its public key.
type KeyPair struct {
	key ed25519.PrivateKey
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (KeyPair, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return KeyPair{key: key}, nil
}

// KeyPairFromSeed recreates a key pair from its 32-byte seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("invalid key seed length %d, expected %d", len(seed), ed25519.SeedSize)
	}
	return KeyPair{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Address returns the public key of the pair as an address.
func (k KeyPair) Address() Address {
	return Address(k.key.Public().(ed25519.PublicKey))
}

// Seed returns the private seed the pair can be recreated from.
func (k KeyPair) Seed() []byte {
	return k.key.Seed()
}

// Sign signs the given message.
func (k KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.key, message)
}

// Verify checks a signature of the given address over message.
func Verify(signer Address, message, signature []byte) bool {
	return ed25519.Verify(signer[:], message, signature)
}

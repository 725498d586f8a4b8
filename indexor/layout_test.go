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
	"testing"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/stretchr/testify/require"
)

func TestLayout_RecordSizesAreFixed(t *testing.T) {
	index := Index{Namespace: []byte("ns"), Mode: Serial}
	require.Len(t, index.encode(), 108)
	pointer := Pointer{Name: "0"}
	require.Len(t, pointer.encode(), 67)
	proof := Proof{Name: "0"}
	require.Len(t, proof.encode(), 35)
}

func TestLayout_IndexFieldsArePreserved(t *testing.T) {
	index := Index{
		Owner:     common.Address{1, 2, 3},
		Namespace: make([]byte, MaxNamespaceLen),
		Mode:      Freeform,
		Count:     1<<40 + 7,
		Nonce:     254,
	}
	index.Namespace[MaxNamespaceLen-1] = 0xFF
	restored, err := decodeIndex(index.encode())
	require.NoError(t, err)
	require.Equal(t, index, restored)
}

func TestLayout_RecordsOfOtherKindsAreRejected(t *testing.T) {
	pointer := Pointer{Name: "abc", Value: common.Address{1}}
	proof := Proof{Name: "abc"}

	_, err := decodeIndex(pointer.encode())
	require.ErrorIs(t, err, ErrInvariantViolation)
	_, err = decodePointer(proof.encode())
	require.ErrorIs(t, err, ErrInvariantViolation)
	_, err = decodeProof(pointer.encode())
	require.ErrorIs(t, err, ErrInvariantViolation)
	_, err = decodeProof(nil)
	require.ErrorIs(t, err, ErrInvariantViolation)

	// A proof-sized record with a pointer tag is still not a proof.
	data := proof.encode()
	data[0] = byte(kindPointer)
	_, err = decodeProof(data)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestLayout_CorruptedLengthsAreDetected(t *testing.T) {
	pointer := Pointer{Name: "abc"}
	data := pointer.encode()
	data[1] = MaxNameLen + 1
	_, err := decodePointer(data)
	require.ErrorIs(t, err, ErrInvariantViolation)

	index := Index{Mode: Serial}
	data = index.encode()
	data[33] = MaxNamespaceLen + 1
	_, err = decodeIndex(data)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestMode_TextualFormCanBeParsed(t *testing.T) {
	for _, mode := range []Mode{Serial, Freeform} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		require.Equal(t, mode, parsed)
	}
	_, err := ParseMode("ordered")
	require.ErrorIs(t, err, ErrInvalidMode)
	require.Equal(t, "Mode(7)", Mode(7).String())
}

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
	"encoding/binary"
	"fmt"

	"github.com/0xsoniclabs/indexor/common"
)

// Mode selects how the names of an index's pointers are chosen.
type Mode uint8

const (
	// Serial indexes name their pointers "0", "1", ... in creation order.
	Serial Mode = iota + 1
	// Freeform indexes use caller-supplied pointer names.
	Freeform
)

func (m Mode) String() string {
	switch m {
	case Serial:
		return "serial"
	case Freeform:
		return "freeform"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode converts the textual form of a mode back into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "serial":
		return Serial, nil
	case "freeform":
		return Freeform, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) valid() bool {
	return m == Serial || m == Freeform
}

const (
	MaxNamespaceLen = 64 // < bytes reserved for the namespace of an index
	MaxNameLen      = 32 // < bytes reserved for the name of a pointer
)

// kind tags the first byte of every record stored by the registry.
type kind byte

const (
	kindIndex kind = iota + 1
	kindPointer
	kindProof
)

const (
	indexSize   = 1 + 32 + 1 + MaxNamespaceLen + 1 + 8 + 1
	pointerSize = 1 + 1 + MaxNameLen + 32 + 1
	proofSize   = 1 + 1 + MaxNameLen + 1
)

// Index is a namespace-scoped registry record counting its pointers.
type Index struct {
	Owner     common.Address
	Namespace []byte
	Mode      Mode
	Count     uint64
	Nonce     uint8
}

// Pointer maps a name within an index to a value.
type Pointer struct {
	Name  string
	Value common.Address
	Nonce uint8
}

// Proof records that a value is registered in an index and under which name.
type Proof struct {
	Name  string
	Nonce uint8
}

func (i *Index) encode() []byte {
	res := make([]byte, indexSize)
	res[0] = byte(kindIndex)
	copy(res[1:33], i.Owner[:])
	res[33] = byte(len(i.Namespace))
	copy(res[34:34+MaxNamespaceLen], i.Namespace)
	res[98] = byte(i.Mode)
	binary.BigEndian.PutUint64(res[99:107], i.Count)
	res[107] = i.Nonce
	return res
}

func decodeIndex(data []byte) (Index, error) {
	if len(data) != indexSize || kind(data[0]) != kindIndex {
		return Index{}, errNotARecord("index", data)
	}
	var res Index
	copy(res.Owner[:], data[1:33])
	length := int(data[33])
	if length > MaxNamespaceLen {
		return Index{}, fmt.Errorf("%w: namespace length %d", ErrInvariantViolation, length)
	}
	res.Namespace = append([]byte{}, data[34:34+length]...)
	res.Mode = Mode(data[98])
	res.Count = binary.BigEndian.Uint64(data[99:107])
	res.Nonce = data[107]
	return res, nil
}

func (p *Pointer) encode() []byte {
	res := make([]byte, pointerSize)
	res[0] = byte(kindPointer)
	res[1] = byte(len(p.Name))
	copy(res[2:2+MaxNameLen], p.Name)
	copy(res[34:66], p.Value[:])
	res[66] = p.Nonce
	return res
}

func decodePointer(data []byte) (Pointer, error) {
	if len(data) != pointerSize || kind(data[0]) != kindPointer {
		return Pointer{}, errNotARecord("pointer", data)
	}
	name, err := decodeName(data[1:34])
	if err != nil {
		return Pointer{}, err
	}
	res := Pointer{Name: name, Nonce: data[66]}
	copy(res.Value[:], data[34:66])
	return res, nil
}

func (p *Proof) encode() []byte {
	res := make([]byte, proofSize)
	res[0] = byte(kindProof)
	res[1] = byte(len(p.Name))
	copy(res[2:2+MaxNameLen], p.Name)
	res[34] = p.Nonce
	return res
}

func decodeProof(data []byte) (Proof, error) {
	if len(data) != proofSize || kind(data[0]) != kindProof {
		return Proof{}, errNotARecord("proof", data)
	}
	name, err := decodeName(data[1:34])
	if err != nil {
		return Proof{}, err
	}
	return Proof{Name: name, Nonce: data[34]}, nil
}

// decodeName reads a length-prefixed name field.
func decodeName(field []byte) (string, error) {
	length := int(field[0])
	if length > MaxNameLen {
		return "", fmt.Errorf("%w: name length %d", ErrInvariantViolation, length)
	}
	return string(field[1 : 1+length]), nil
}

func errNotARecord(what string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty record is not a %s", ErrInvariantViolation, what)
	}
	return fmt.Errorf("%w: record of kind %d and size %d is not a %s", ErrInvariantViolation, data[0], len(data), what)
}

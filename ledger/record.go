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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/0xsoniclabs/indexor/common"
)

const recordHeaderSize = common.AddressSize + 8

// EncodeRecord serializes a record as program, version and data.
func EncodeRecord(record Record) []byte {
	res := make([]byte, 0, recordHeaderSize+len(record.Data))
	res = append(res, record.Program[:]...)
	res = binary.BigEndian.AppendUint64(res, record.Version)
	return append(res, record.Data...)
}

// DecodeRecord parses a record produced by EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	if len(data) < recordHeaderSize {
		return Record{}, fmt.Errorf("record encoding too short: %d < %d", len(data), recordHeaderSize)
	}
	var res Record
	copy(res.Program[:], data)
	res.Version = binary.BigEndian.Uint64(data[common.AddressSize:])
	res.Data = bytes.Clone(data[recordHeaderSize:])
	return res, nil
}

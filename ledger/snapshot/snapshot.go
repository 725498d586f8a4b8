// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package snapshot exports the content of a ledger into a portable stream and
// restores ledgers from such streams.
//
// A snapshot is a snappy-compressed stream starting with a magic header,
// followed by one entry per record in address order:
//
//	address(32) program(32) version(8) length(4) data(length)
//
// All integers are big endian.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
	"github.com/golang/snappy"
)

// MaxRecordSize bounds the data length accepted when importing a snapshot.
const MaxRecordSize = 1 << 20

var magic = []byte("indexor-snapshot-v1\n")

var (
	ErrInvalidHeader = errors.New("invalid snapshot header")
	ErrCorrupted     = errors.New("corrupted snapshot")
)

// Export writes all records of the given ledger to w and returns the number of
// exported records.
func Export(ctx context.Context, l ledger.Ledger, w io.Writer) (int, error) {
	out := snappy.NewBufferedWriter(w)
	if _, err := out.Write(magic); err != nil {
		return 0, err
	}
	count := 0
	header := make([]byte, 0, 2*len(common.Address{})+8+4)
	err := l.Scan(ctx, func(address common.Address, record ledger.Record) error {
		header = header[:0]
		header = append(header, address[:]...)
		header = append(header, record.Program[:]...)
		header = binary.BigEndian.AppendUint64(header, record.Version)
		header = binary.BigEndian.AppendUint32(header, uint32(len(record.Data)))
		if _, err := out.Write(header); err != nil {
			return err
		}
		if _, err := out.Write(record.Data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, errors.Join(err, out.Close())
	}
	return count, out.Close()
}

// Import reads a snapshot from r and restores its records into the given
// ledger. The whole snapshot is read before restoring it in a single atomic
// Restore call, so either all records are written or none. If any address of
// the snapshot is already occupied, the import fails with
// ledger.ErrAlreadyAllocated.
func Import(ctx context.Context, r io.Reader, l ledger.Ledger) (int, error) {
	in := bufio.NewReader(snappy.NewReader(r))

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(in, header); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if !bytes.Equal(header, magic) {
		return 0, ErrInvalidHeader
	}

	var entries []ledger.Entry
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		entry, err := readEntry(in)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if n := len(entries); n > 0 && entries[n-1].Address.Compare(entry.Address) >= 0 {
			return 0, fmt.Errorf("%w: address %v out of order", ErrCorrupted, entry.Address)
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := l.Restore(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// readEntry parses the next entry. It returns io.EOF only if the stream ends
// exactly at an entry boundary.
func readEntry(in *bufio.Reader) (ledger.Entry, error) {
	var entry ledger.Entry
	var buffer [2*32 + 8 + 4]byte
	if _, err := io.ReadFull(in, buffer[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return entry, io.EOF
		}
		return entry, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	copy(entry.Address[:], buffer[0:32])
	copy(entry.Record.Program[:], buffer[32:64])
	entry.Record.Version = binary.BigEndian.Uint64(buffer[64:72])
	length := binary.BigEndian.Uint32(buffer[72:76])
	if length > MaxRecordSize {
		return entry, fmt.Errorf("%w: record of %d bytes at %v", ErrCorrupted, length, entry.Address)
	}
	entry.Record.Data = make([]byte, length)
	if _, err := io.ReadFull(in, entry.Record.Data); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return entry, nil
}

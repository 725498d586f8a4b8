// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
	"github.com/0xsoniclabs/indexor/ledger/ldb"
	"github.com/0xsoniclabs/indexor/ledger/memory"
	"github.com/0xsoniclabs/indexor/ledger/sqlite"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func fill(t *testing.T, l ledger.Ledger, n int) []ledger.Entry {
	t.Helper()
	entries := make([]ledger.Entry, 0, n)
	for i := range n {
		entries = append(entries, ledger.Entry{
			Address: common.AddressFromNumber(i),
			Record: ledger.Record{
				Program: common.Address{byte(i % 3)},
				Version: uint64(i + 1),
				Data:    bytes.Repeat([]byte{byte(i)}, i%40),
			},
		})
	}
	require.NoError(t, l.Restore(context.Background(), entries))
	return entries
}

func collect(t *testing.T, l ledger.Ledger) []ledger.Entry {
	t.Helper()
	var res []ledger.Entry
	require.NoError(t, l.Scan(context.Background(), func(address common.Address, record ledger.Record) error {
		res = append(res, ledger.Entry{Address: address, Record: record})
		return nil
	}))
	return res
}

func TestSnapshot_ExportedLedgerCanBeImported(t *testing.T) {
	for _, size := range []int{0, 1, 10, 2000} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			require := require.New(t)
			source := memory.NewLedger()
			fill(t, source, size)

			var buffer bytes.Buffer
			exported, err := Export(context.Background(), source, &buffer)
			require.NoError(err)
			require.Equal(size, exported)

			target, err := sqlite.Open(t.TempDir(), nil)
			require.NoError(err)
			defer target.Close()

			imported, err := Import(context.Background(), &buffer, target)
			require.NoError(err)
			require.Equal(size, imported)

			want := collect(t, source)
			got := collect(t, target)
			require.Equal(len(want), len(got))
			for i := range want {
				require.Equal(want[i].Address, got[i].Address)
				require.Equal(want[i].Record.Program, got[i].Record.Program)
				require.Equal(want[i].Record.Version, got[i].Record.Version)
				require.Equal(len(want[i].Record.Data), len(got[i].Record.Data))
				require.Equal(string(want[i].Record.Data), string(got[i].Record.Data))
			}
		})
	}
}

func TestSnapshot_ImportIntoOccupiedLedgerFails(t *testing.T) {
	source := memory.NewLedger()
	fill(t, source, 5)
	var buffer bytes.Buffer
	_, err := Export(context.Background(), source, &buffer)
	require.NoError(t, err)

	target := memory.NewLedger()
	fill(t, target, 1)
	_, err = Import(context.Background(), &buffer, target)
	require.ErrorIs(t, err, ledger.ErrAlreadyAllocated)
	require.Equal(t, 1, target.Size())
}

func TestSnapshot_FailedImportWritesNothing(t *testing.T) {
	targets := map[string]func(t *testing.T) ledger.Ledger{
		"memory": func(t *testing.T) ledger.Ledger {
			return memory.NewLedger()
		},
		"ldb": func(t *testing.T) ledger.Ledger {
			l, err := ldb.Open(t.TempDir(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
		"sqlite": func(t *testing.T) ledger.Ledger {
			l, err := sqlite.Open(t.TempDir(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
	}
	for name, open := range targets {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			source := memory.NewLedger()
			fill(t, source, 2000)
			exported := collect(t, source)
			last := exported[len(exported)-1]

			var buffer bytes.Buffer
			_, err := Export(context.Background(), source, &buffer)
			require.NoError(err)

			target := open(t)
			require.NoError(target.Restore(context.Background(), []ledger.Entry{last}))

			imported, err := Import(context.Background(), &buffer, target)
			require.ErrorIs(err, ledger.ErrAlreadyAllocated)
			require.Equal(0, imported)
			require.Equal([]ledger.Entry{last}, collect(t, target))
		})
	}
}

func TestSnapshot_UnorderedEntriesAreDetected(t *testing.T) {
	for name, addresses := range map[string][]common.Address{
		"descending": {{2}, {1}},
		"duplicate":  {{1}, {1}},
	} {
		t.Run(name, func(t *testing.T) {
			var buffer bytes.Buffer
			out := snappyWriter(&buffer)
			_, err := out.Write(magic)
			require.NoError(t, err)
			for _, address := range addresses {
				header := append(address[:], make([]byte, 32)...)
				header = binary.BigEndian.AppendUint64(header, 1)
				header = binary.BigEndian.AppendUint32(header, 0)
				_, err = out.Write(header)
				require.NoError(t, err)
			}
			require.NoError(t, out.Close())

			target := memory.NewLedger()
			_, err = Import(context.Background(), &buffer, target)
			require.ErrorIs(t, err, ErrCorrupted)
			require.Equal(t, 0, target.Size())
		})
	}
}

func TestSnapshot_InvalidHeaderIsDetected(t *testing.T) {
	var buffer bytes.Buffer
	out := snappyWriter(&buffer)
	_, err := out.Write([]byte("something-else-entirely"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	_, err = Import(context.Background(), &buffer, memory.NewLedger())
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestSnapshot_TruncatedStreamIsDetected(t *testing.T) {
	var buffer bytes.Buffer
	out := snappyWriter(&buffer)
	_, err := out.Write(magic)
	require.NoError(t, err)
	_, err = out.Write(make([]byte, 40))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	_, err = Import(context.Background(), &buffer, memory.NewLedger())
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestSnapshot_ScanErrorsArePropagated(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := ledger.NewMockLedger(ctrl)
	injected := fmt.Errorf("injected")
	l.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(injected)

	_, err := Export(context.Background(), l, &bytes.Buffer{})
	require.ErrorIs(t, err, injected)
}

func snappyWriter(buffer *bytes.Buffer) *snappy.Writer {
	return snappy.NewBufferedWriter(buffer)
}

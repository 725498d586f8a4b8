// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/ledger"
	"github.com/0xsoniclabs/indexor/ledger/ldb"
	"github.com/0xsoniclabs/indexor/ledger/memory"
	"github.com/0xsoniclabs/indexor/ledger/sqlite"
	"github.com/stretchr/testify/require"
)

var (
	_ ledger.Ledger = (*memory.Ledger)(nil)
	_ ledger.Ledger = (*ldb.Ledger)(nil)
	_ ledger.Ledger = (*sqlite.Ledger)(nil)
)

func initLedgersMap() map[string]func(t *testing.T) ledger.Ledger {
	return map[string]func(t *testing.T) ledger.Ledger{
		"memory": func(t *testing.T) ledger.Ledger {
			return memory.NewLedger()
		},
		"ldb": func(t *testing.T) ledger.Ledger {
			l, err := ldb.Open(t.TempDir(), nil)
			if err != nil {
				t.Fatalf("failed to open leveldb ledger; %s", err)
			}
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
		"sqlite": func(t *testing.T) ledger.Ledger {
			l, err := sqlite.Open(t.TempDir(), nil)
			if err != nil {
				t.Fatalf("failed to open sqlite ledger; %s", err)
			}
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
	}
}

func newKey(t *testing.T) common.KeyPair {
	t.Helper()
	key, err := common.GenerateKeyPair()
	require.NoError(t, err)
	return key
}

// slot creates a signer for an address derived for the program.
func slot(t *testing.T, program common.KeyPair, seed string) *ledger.DerivedSigner {
	t.Helper()
	signer, err := ledger.NewDerivedSigner(program, []byte(seed))
	require.NoError(t, err)
	return signer
}

func submit(t *testing.T, l ledger.Ledger, tx *ledger.Transaction) error {
	t.Helper()
	_, err := l.Submit(context.Background(), tx).Await(context.Background())
	return err
}

func TestLedger_UnknownAddressIsNotFound(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			_, err := l.Get(context.Background(), common.Address{1})
			require.ErrorIs(t, err, ledger.ErrNotFound)
		})
	}
}

func TestLedger_AllocatedRecordsCanBeRead(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			program := newKey(t)
			account := slot(t, program, "a")

			tx := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 4, []byte{1, 2}))
			account.Sign(tx)
			receipt, err := l.Submit(context.Background(), tx).Await(context.Background())
			require.NoError(t, err)
			require.Equal(t, tx.Digest(), receipt.Transaction)
			require.Equal(t, 1, receipt.Writes)

			record, err := l.Get(context.Background(), account.Address())
			require.NoError(t, err)
			require.Equal(t, ledger.Record{
				Program: program.Address(),
				Version: 1,
				Data:    []byte{1, 2, 0, 0},
			}, record)
		})
	}
}

func TestLedger_AddressesCanOnlyBeAllocatedOnce(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			program := newKey(t)
			account := slot(t, program, "a")

			first := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 1, []byte{1}))
			account.Sign(first)
			require.NoError(t, submit(t, l, first))

			second := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 1, []byte{2}))
			account.Sign(second)
			require.ErrorIs(t, submit(t, l, second), ledger.ErrAlreadyAllocated)

			record, err := l.Get(context.Background(), account.Address())
			require.NoError(t, err)
			require.Equal(t, []byte{1}, record.Data)
		})
	}
}

func TestLedger_FailingTransactionsHaveNoEffect(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			program := newKey(t)
			a, b, c := slot(t, program, "a"), slot(t, program, "b"), slot(t, program, "c")

			setup := ledger.NewTransaction(ledger.Allocate(c.Address(), program.Address(), 1, nil))
			c.Sign(setup)
			require.NoError(t, submit(t, l, setup))

			tx := ledger.NewTransaction(
				ledger.Allocate(a.Address(), program.Address(), 1, nil),
				ledger.Allocate(b.Address(), program.Address(), 1, nil),
				ledger.Allocate(c.Address(), program.Address(), 1, nil),
			)
			for _, signer := range []ledger.Signer{a, b, c} {
				signer.Sign(tx)
			}
			err := submit(t, l, tx)
			var opErr *ledger.OpError
			require.True(t, errors.As(err, &opErr))
			require.Equal(t, 2, opErr.Index)

			for _, address := range []common.Address{a.Address(), b.Address()} {
				_, err := l.Get(context.Background(), address)
				require.ErrorIs(t, err, ledger.ErrNotFound)
			}
		})
	}
}

func TestLedger_UpdatesIncrementVersion(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			program := newKey(t)
			signer := ledger.NewKeySigner(program)
			account := slot(t, program, "a")

			tx := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 2, nil))
			account.Sign(tx)
			require.NoError(t, submit(t, l, tx))

			for version := uint64(1); version < 5; version++ {
				tx := ledger.NewTransaction(ledger.Update(account.Address(), program.Address(), version, []byte{byte(version)}))
				signer.Sign(tx)
				require.NoError(t, submit(t, l, tx))
			}

			record, err := l.Get(context.Background(), account.Address())
			require.NoError(t, err)
			require.Equal(t, uint64(5), record.Version)
			require.Equal(t, []byte{4, 0}, record.Data)

			stale := ledger.NewTransaction(ledger.Update(account.Address(), program.Address(), 3, []byte{9}))
			signer.Sign(stale)
			require.ErrorIs(t, submit(t, l, stale), ledger.ErrVersionMismatch)
		})
	}
}

func TestLedger_ConcurrentAllocationsHaveSingleWinner(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			program := newKey(t)
			account := slot(t, program, "a")

			const N = 16
			errs := make([]error, N)
			var wg sync.WaitGroup
			for i := range N {
				wg.Add(1)
				go func() {
					defer wg.Done()
					tx := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 1, []byte{byte(i)}))
					account.Sign(tx)
					_, errs[i] = l.Submit(context.Background(), tx).Await(context.Background())
				}()
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				if err == nil {
					successes++
				} else {
					require.ErrorIs(t, err, ledger.ErrAlreadyAllocated)
				}
			}
			require.Equal(t, 1, successes)
		})
	}
}

func TestLedger_ScanVisitsRecordsInAddressOrder(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			program := newKey(t)

			accounts := []*ledger.DerivedSigner{
				slot(t, program, "a"), slot(t, program, "b"), slot(t, program, "c"),
			}
			tx := ledger.NewTransaction()
			data := map[common.Address][]byte{}
			var expected []common.Address
			for i, account := range accounts {
				tx.Ops = append(tx.Ops, ledger.Allocate(account.Address(), program.Address(), 1, []byte{byte(i)}))
				data[account.Address()] = []byte{byte(i)}
				expected = append(expected, account.Address())
			}
			for _, account := range accounts {
				account.Sign(tx)
			}
			require.NoError(t, submit(t, l, tx))
			slices.SortFunc(expected, common.Address.Compare)

			var visited []common.Address
			err := l.Scan(context.Background(), func(address common.Address, record ledger.Record) error {
				require.Equal(t, data[address], record.Data)
				visited = append(visited, address)
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, expected, visited)

			stop := fmt.Errorf("stop")
			count := 0
			err = l.Scan(context.Background(), func(common.Address, ledger.Record) error {
				count++
				return stop
			})
			require.ErrorIs(t, err, stop)
			require.Equal(t, 1, count)
		})
	}
}

func TestLedger_RestoreIsWriteOnce(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			entries := []ledger.Entry{
				{Address: common.Address{1}, Record: ledger.Record{Program: common.Address{9}, Version: 4, Data: []byte{1}}},
				{Address: common.Address{2}, Record: ledger.Record{Program: common.Address{9}, Version: 1, Data: []byte{2}}},
			}
			require.NoError(t, l.Restore(context.Background(), entries))

			record, err := l.Get(context.Background(), common.Address{1})
			require.NoError(t, err)
			require.Equal(t, entries[0].Record, record)

			err = l.Restore(context.Background(), []ledger.Entry{
				{Address: common.Address{3}, Record: ledger.Record{Program: common.Address{9}, Version: 1, Data: []byte{3}}},
				{Address: common.Address{2}, Record: ledger.Record{Program: common.Address{9}, Version: 1}},
			})
			require.ErrorIs(t, err, ledger.ErrAlreadyAllocated)
			_, err = l.Get(context.Background(), common.Address{3})
			require.ErrorIs(t, err, ledger.ErrNotFound)
		})
	}
}

func TestLedger_ClosedLedgerRejectsOperations(t *testing.T) {
	for name, open := range initLedgersMap() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			require.NoError(t, l.Close())

			_, err := l.Get(context.Background(), common.Address{1})
			require.ErrorIs(t, err, ledger.ErrClosed)

			program := newKey(t)
			account := slot(t, program, "a")
			tx := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 1, nil))
			account.Sign(tx)
			require.ErrorIs(t, submit(t, l, tx), ledger.ErrClosed)
		})
	}
}

func TestLedger_PersistentVariantsKeepDataAcrossReopening(t *testing.T) {
	openers := map[string]func(dir string) (ledger.Ledger, error){
		"ldb": func(dir string) (ledger.Ledger, error) {
			return ldb.Open(dir, nil)
		},
		"sqlite": func(dir string) (ledger.Ledger, error) {
			return sqlite.Open(dir, nil)
		},
	}
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			l, err := open(dir)
			require.NoError(t, err)

			program := newKey(t)
			account := slot(t, program, "a")
			tx := ledger.NewTransaction(ledger.Allocate(account.Address(), program.Address(), 3, []byte{1, 2, 3}))
			account.Sign(tx)
			require.NoError(t, submit(t, l, tx))
			require.NoError(t, l.Close())

			l, err = open(dir)
			require.NoError(t, err)
			defer l.Close()
			record, err := l.Get(context.Background(), account.Address())
			require.NoError(t, err)
			require.Equal(t, []byte{1, 2, 3}, record.Data)
		})
	}
}

func TestOpen_RegisteredVariantsCanBeOpened(t *testing.T) {
	require.Equal(t, []string{"ldb", "memory", "sqlite"}, ledger.Variants())
	for _, variant := range ledger.Variants() {
		t.Run(variant, func(t *testing.T) {
			l, err := ledger.Open(ledger.Parameters{Variant: variant, Directory: t.TempDir()})
			require.NoError(t, err)
			require.NoError(t, l.Close())
		})
	}
}

func TestOpen_UnknownVariantIsRejected(t *testing.T) {
	_, err := ledger.Open(ledger.Parameters{Variant: "unknown"})
	require.ErrorIs(t, err, ledger.ErrUnknownVariant)
}

func TestOpen_PersistentVariantsRequireDirectory(t *testing.T) {
	for _, variant := range []string{"ldb", "sqlite"} {
		_, err := ledger.Open(ledger.Parameters{Variant: variant})
		require.ErrorIs(t, err, ledger.ErrMissingParameters)
	}
}

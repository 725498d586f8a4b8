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

import "context"

// Pending is the placeholder for the outcome of a submitted transaction. The
// ledger fulfills it once the transaction was applied or rejected. A Pending
// can only be awaited once.
type Pending struct {
	c <-chan outcome
}

type outcome struct {
	receipt Receipt
	err     error
}

// Completed creates a Pending that is already fulfilled with the given
// outcome. Useful for ledgers applying transactions synchronously.
func Completed(receipt Receipt, err error) *Pending {
	c := make(chan outcome, 1)
	c <- outcome{receipt, err}
	close(c)
	return &Pending{c: c}
}

// Async runs the given function in a background goroutine and fulfills the
// returned Pending with its result.
func Async(apply func() (Receipt, error)) *Pending {
	c := make(chan outcome, 1)
	go func() {
		receipt, err := apply()
		c <- outcome{receipt, err}
		close(c)
	}()
	return &Pending{c: c}
}

// Await blocks until the outcome is available or the context is done. A
// cancelled wait does not cancel the transaction; it may still be applied.
func (p *Pending) Await(ctx context.Context) (Receipt, error) {
	select {
	case res := <-p.c:
		return res.receipt, res.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

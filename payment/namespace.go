// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package payment

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/0xsoniclabs/indexor/common"
)

var (
	ErrInvalidChronology           = errors.New("the timestamps must be chronological")
	ErrInvalidProcessAtIntraMinute = errors.New("task indexes cannot be scheduled for processing intra-minute")
	ErrInvalidProcessAtPast        = errors.New("task indexes cannot be scheduled for processing in the past")
	ErrAmountOverflow              = errors.New("total payment amount overflows")
	ErrMemoTooLong                 = errors.New("memo too long")
	ErrInvalidRole                 = errors.New("invalid role")
	ErrNotInitialized              = errors.New("payment program not initialized")
	ErrAlreadyInitialized          = errors.New("payment program already initialized")
	ErrPaymentNotFound             = errors.New("payment not found")
	ErrTaskNotFound                = errors.New("task not found")
)

// Role is the side a party takes in a payment.
type Role uint8

const (
	Creditor Role = iota + 1
	Debtor
)

func (r Role) String() string {
	switch r {
	case Creditor:
		return "creditor"
	case Debtor:
		return "debtor"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func (r Role) prefix() (string, error) {
	switch r {
	case Creditor:
		return "cp_", nil
	case Debtor:
		return "dp_", nil
	}
	return "", fmt.Errorf("%w: %v", ErrInvalidRole, r)
}

// PaymentIndexNamespace is the namespace of the index listing the payments
// of a party in the given role.
func PaymentIndexNamespace(party common.Address, role Role) ([]byte, error) {
	prefix, err := role.prefix()
	if err != nil {
		return nil, err
	}
	return append([]byte(prefix), party[:]...), nil
}

// TaskIndexNamespace is the namespace of the index listing the tasks to be
// processed at the given time.
func TaskIndexNamespace(processAt time.Time) []byte {
	return []byte("payment.tasks." + strconv.FormatInt(processAt.Unix(), 10))
}

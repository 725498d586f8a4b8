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
	"encoding/binary"
	"fmt"
	"time"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/holiman/uint256"
)

const (
	MaxMemoLen = 64
	maxIDLen   = 32
)

type kind byte

const (
	kindAuthority kind = iota + 1
	kindPayment
	kindTask
)

const (
	authoritySize = 1 + 1
	paymentSize   = 1 + 1 + maxIDLen + 1 + MaxMemoLen + 32 + 32 + 8 + 8 + 8 + 8 + 1
	taskSize      = 1 + 1 + maxIDLen + 32 + 1 + 1
)

// Payment is a one-time or recurring transfer from a debtor to a creditor.
type Payment struct {
	ID                 string
	Memo               string
	Debtor             common.Address
	Creditor           common.Address
	Amount             uint64
	RecurrenceInterval time.Duration // < zero for one-time payments
	StartAt            time.Time
	EndAt              time.Time
	Nonce              uint8
}

// Transfers is the number of transfers the payment consists of.
func (p *Payment) Transfers() uint64 {
	return transfers(p.RecurrenceInterval, p.StartAt, p.EndAt)
}

// Total is the sum of all transfers of the payment.
func (p *Payment) Total() (uint64, error) {
	return total(p.Transfers(), p.Amount)
}

func transfers(interval time.Duration, start, end time.Time) uint64 {
	if interval == 0 {
		return 1
	}
	return uint64(end.Sub(start) / interval)
}

func total(transfers, amount uint64) (uint64, error) {
	res, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(transfers), uint256.NewInt(amount))
	if overflow || !res.IsUint64() {
		return 0, fmt.Errorf("%w: %d transfers of %d", ErrAmountOverflow, transfers, amount)
	}
	return res.Uint64(), nil
}

// TaskStatus is the processing state of a task.
type TaskStatus uint8

const (
	TaskPending TaskStatus = iota
	TaskMarkedForRepetition
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskMarkedForRepetition:
		return "marked-for-repetition"
	}
	return fmt.Sprintf("TaskStatus(%d)", uint8(s))
}

// Task schedules the processing of a payment.
type Task struct {
	ID      string
	Payment common.Address
	Status  TaskStatus
	Nonce   uint8
}

func encodeAuthority(nonce uint8) []byte {
	return []byte{byte(kindAuthority), nonce}
}

func (p *Payment) encode() []byte {
	res := make([]byte, 0, paymentSize)
	res = append(res, byte(kindPayment))
	res = appendString(res, p.ID, maxIDLen)
	res = appendString(res, p.Memo, MaxMemoLen)
	res = append(res, p.Debtor[:]...)
	res = append(res, p.Creditor[:]...)
	res = binary.BigEndian.AppendUint64(res, p.Amount)
	res = binary.BigEndian.AppendUint64(res, uint64(p.RecurrenceInterval/time.Second))
	res = binary.BigEndian.AppendUint64(res, uint64(p.StartAt.Unix()))
	res = binary.BigEndian.AppendUint64(res, uint64(p.EndAt.Unix()))
	return append(res, p.Nonce)
}

func decodePayment(data []byte) (Payment, error) {
	if len(data) != paymentSize || kind(data[0]) != kindPayment {
		return Payment{}, fmt.Errorf("%w: not a payment record", ErrPaymentNotFound)
	}
	var res Payment
	var err error
	pos := 1
	if res.ID, pos, err = readString(data, pos, maxIDLen); err != nil {
		return Payment{}, err
	}
	if res.Memo, pos, err = readString(data, pos, MaxMemoLen); err != nil {
		return Payment{}, err
	}
	pos += copy(res.Debtor[:], data[pos:])
	pos += copy(res.Creditor[:], data[pos:])
	res.Amount = binary.BigEndian.Uint64(data[pos:])
	res.RecurrenceInterval = time.Duration(binary.BigEndian.Uint64(data[pos+8:])) * time.Second
	res.StartAt = time.Unix(int64(binary.BigEndian.Uint64(data[pos+16:])), 0).UTC()
	res.EndAt = time.Unix(int64(binary.BigEndian.Uint64(data[pos+24:])), 0).UTC()
	res.Nonce = data[pos+32]
	return res, nil
}

func (t *Task) encode() []byte {
	res := make([]byte, 0, taskSize)
	res = append(res, byte(kindTask))
	res = appendString(res, t.ID, maxIDLen)
	res = append(res, t.Payment[:]...)
	return append(res, byte(t.Status), t.Nonce)
}

func decodeTask(data []byte) (Task, error) {
	if len(data) != taskSize || kind(data[0]) != kindTask {
		return Task{}, fmt.Errorf("%w: not a task record", ErrTaskNotFound)
	}
	var res Task
	id, pos, err := readString(data, 1, maxIDLen)
	if err != nil {
		return Task{}, err
	}
	res.ID = id
	pos += copy(res.Payment[:], data[pos:])
	res.Status = TaskStatus(data[pos])
	res.Nonce = data[pos+1]
	return res, nil
}

// appendString appends a length-prefixed field of fixed capacity.
func appendString(buffer []byte, s string, capacity int) []byte {
	buffer = append(buffer, byte(len(s)))
	field := make([]byte, capacity)
	copy(field, s)
	return append(buffer, field...)
}

func readString(data []byte, pos, capacity int) (string, int, error) {
	length := int(data[pos])
	if length > capacity {
		return "", 0, fmt.Errorf("corrupted field length %d exceeds %d", length, capacity)
	}
	return string(data[pos+1 : pos+1+length]), pos + 1 + capacity, nil
}

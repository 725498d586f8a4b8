// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package payment is a program layering payment ledgers on top of the index
// registry. Every party gets one serial index of payments per role, scoped by
// a namespace derived from the party's address, and every minute gets an
// index of tasks to process. All indexes are owned by the program's authority,
// an address derived from the program, which signs for them through derived
// signatures.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/indexor"
	"github.com/0xsoniclabs/indexor/ledger"
)

var (
	authoritySeed = []byte("aut")
	paymentSeed   = []byte("pay")
	taskSeed      = []byte("tsk")
)

// PaymentParams describe a payment to be created.
type PaymentParams struct {
	Memo               string
	Amount             uint64
	RecurrenceInterval time.Duration // < zero for one-time payments
	StartAt            time.Time
	EndAt              time.Time
}

// PaymentRef identifies the records created for a payment.
type PaymentRef struct {
	ID      string
	Payment common.Address
	Task    common.Address
}

// Program creates payments and maintains the indexes referring to them.
type Program struct {
	registry  *indexor.Registry
	ledger    ledger.Ledger
	key       common.KeyPair
	authority *ledger.DerivedSigner
	log       *slog.Logger
	now       func() time.Time
}

// NewProgram creates a payment program identified by the given key, storing
// its indexes in the given registry.
func NewProgram(registry *indexor.Registry, l ledger.Ledger, key common.KeyPair, logger *slog.Logger) (*Program, error) {
	authority, err := ledger.NewDerivedSigner(key, authoritySeed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive payment authority: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Program{
		registry:  registry,
		ledger:    l,
		key:       key,
		authority: authority,
		log:       logger.With("component", "payment"),
		now:       time.Now,
	}, nil
}

// Address returns the address of the payment program.
func (p *Program) Address() common.Address {
	return p.authority.Program()
}

// Authority returns the derived address owning all indexes of the program.
func (p *Program) Authority() common.Address {
	return p.authority.Address()
}

// Initialize allocates the authority record. It is required once before any
// payment can be created.
func (p *Program) Initialize(ctx context.Context, payer ledger.Signer) error {
	tx := ledger.NewTransaction(ledger.Allocate(
		p.Authority(), p.Address(), authoritySize, encodeAuthority(p.authority.Nonce()), payer.Address(),
	))
	p.authority.Sign(tx)
	payer.Sign(tx)
	if _, err := p.ledger.Submit(ctx, tx).Await(ctx); err != nil {
		if errors.Is(err, ledger.ErrAlreadyAllocated) {
			return fmt.Errorf("%w: %w", ErrAlreadyInitialized, err)
		}
		return fmt.Errorf("%w: %w", indexor.ErrLedgerUnavailable, err)
	}
	p.log.Info("payment program initialized", "authority", p.Authority())
	return nil
}

func (p *Program) checkInitialized(ctx context.Context) error {
	record, err := p.ledger.Get(ctx, p.Authority())
	if errors.Is(err, ledger.ErrNotFound) {
		return ErrNotInitialized
	}
	if err != nil {
		return fmt.Errorf("%w: %w", indexor.ErrLedgerUnavailable, err)
	}
	if record.Program != p.Address() || len(record.Data) != authoritySize || kind(record.Data[0]) != kindAuthority {
		return fmt.Errorf("%w: unexpected record at authority %v", ErrNotInitialized, p.Authority())
	}
	return nil
}

// CreatePaymentIndex creates the index of payments of a party in a role.
func (p *Program) CreatePaymentIndex(ctx context.Context, party common.Address, role Role, payer ledger.Signer) (indexor.IndexRef, error) {
	namespace, err := PaymentIndexNamespace(party, role)
	if err != nil {
		return indexor.IndexRef{}, err
	}
	return p.createIndex(ctx, namespace, payer)
}

// CreateTaskIndex creates the index of tasks to be processed at the given
// time, which must be a whole minute in the future.
func (p *Program) CreateTaskIndex(ctx context.Context, processAt time.Time, payer ledger.Signer) (indexor.IndexRef, error) {
	if processAt.Unix()%60 != 0 || processAt.Nanosecond() != 0 {
		return indexor.IndexRef{}, fmt.Errorf("%w: %v", ErrInvalidProcessAtIntraMinute, processAt)
	}
	if !processAt.After(p.now()) {
		return indexor.IndexRef{}, fmt.Errorf("%w: %v", ErrInvalidProcessAtPast, processAt)
	}
	return p.createIndex(ctx, TaskIndexNamespace(processAt), payer)
}

func (p *Program) createIndex(ctx context.Context, namespace []byte, payer ledger.Signer) (indexor.IndexRef, error) {
	if err := p.checkInitialized(ctx); err != nil {
		return indexor.IndexRef{}, err
	}
	b := p.registry.NewBatch()
	ref, err := p.registry.PlanIndex(b, p.Authority(), payer.Address(), namespace, indexor.Serial)
	if err != nil {
		return indexor.IndexRef{}, err
	}
	if _, err := p.registry.Commit(ctx, b, p.authority, payer); err != nil {
		return indexor.IndexRef{}, err
	}
	p.log.Debug("index created", "index", ref.Address, "namespace", string(namespace))
	return ref, nil
}

func validate(params PaymentParams) error {
	if len(params.Memo) > MaxMemoLen {
		return fmt.Errorf("%w: %d bytes exceed maximum of %d", ErrMemoTooLong, len(params.Memo), MaxMemoLen)
	}
	switch {
	case params.RecurrenceInterval < 0:
		return fmt.Errorf("%w: negative recurrence interval", ErrInvalidChronology)
	case params.RecurrenceInterval%time.Second != 0:
		return fmt.Errorf("%w: recurrence interval must be whole seconds", ErrInvalidChronology)
	case params.RecurrenceInterval == 0 && !params.StartAt.Equal(params.EndAt):
		return fmt.Errorf("%w: one-time payment must start and end at the same time", ErrInvalidChronology)
	case params.EndAt.Before(params.StartAt):
		return fmt.Errorf("%w: payment ends before it starts", ErrInvalidChronology)
	}
	_, err := total(transfers(params.RecurrenceInterval, params.StartAt, params.EndAt), params.Amount)
	return err
}

// CreatePayment records a payment from the debtor to the creditor. The
// payment is registered in the payment indexes of both parties and a task
// for it in the task index of its start time, all in one transaction. The
// indexes must exist. Concurrent payments touching the same indexes fail
// with indexor.ErrConflict.
func (p *Program) CreatePayment(ctx context.Context, debtor ledger.Signer, creditor common.Address, params PaymentParams) (PaymentRef, error) {
	if err := validate(params); err != nil {
		return PaymentRef{}, err
	}
	if err := p.checkInitialized(ctx); err != nil {
		return PaymentRef{}, err
	}

	creditorIndex, err := p.paymentIndex(creditor, Creditor)
	if err != nil {
		return PaymentRef{}, err
	}
	debtorIndex, err := p.paymentIndex(debtor.Address(), Debtor)
	if err != nil {
		return PaymentRef{}, err
	}
	taskIndex, _, err := p.registry.DeriveIndex(p.Authority(), TaskIndexNamespace(params.StartAt))
	if err != nil {
		return PaymentRef{}, err
	}

	b := p.registry.NewBatch()
	debtorPayments, err := p.registry.LoadIndex(ctx, b, debtorIndex)
	if err != nil {
		return PaymentRef{}, fmt.Errorf("debtor payment index: %w", err)
	}
	tasks, err := p.registry.LoadIndex(ctx, b, taskIndex)
	if err != nil {
		return PaymentRef{}, fmt.Errorf("task index: %w", err)
	}

	id := strconv.FormatUint(debtorPayments.Count, 10)
	paymentSigner, err := ledger.NewDerivedSigner(p.key, paymentSeed, debtorIndex[:], []byte(id))
	if err != nil {
		return PaymentRef{}, err
	}
	taskID := strconv.FormatUint(tasks.Count, 10)
	taskSigner, err := ledger.NewDerivedSigner(p.key, taskSeed, taskIndex[:], []byte(taskID))
	if err != nil {
		return PaymentRef{}, err
	}
	paymentAddress, taskAddress := paymentSigner.Address(), taskSigner.Address()

	owner, payer := p.Authority(), debtor.Address()
	if _, err := p.registry.PlanPointer(ctx, b, creditorIndex, "", paymentAddress, owner, payer); err != nil {
		return PaymentRef{}, fmt.Errorf("creditor payment index: %w", err)
	}
	if _, err := p.registry.PlanPointer(ctx, b, debtorIndex, id, paymentAddress, owner, payer); err != nil {
		return PaymentRef{}, fmt.Errorf("debtor payment index: %w", err)
	}
	if _, err := p.registry.PlanPointer(ctx, b, taskIndex, taskID, taskAddress, owner, payer); err != nil {
		return PaymentRef{}, fmt.Errorf("task index: %w", err)
	}

	payment := Payment{
		ID:                 id,
		Memo:               params.Memo,
		Debtor:             debtor.Address(),
		Creditor:           creditor,
		Amount:             params.Amount,
		RecurrenceInterval: params.RecurrenceInterval,
		StartAt:            params.StartAt,
		EndAt:              params.EndAt,
		Nonce:              paymentSigner.Nonce(),
	}
	task := Task{
		ID:      taskID,
		Payment: paymentAddress,
		Status:  TaskPending,
		Nonce:   taskSigner.Nonce(),
	}
	b.Add(
		ledger.Allocate(paymentAddress, p.Address(), paymentSize, payment.encode(), payer),
		ledger.Allocate(taskAddress, p.Address(), taskSize, task.encode(), payer),
	)

	if _, err := p.registry.Commit(ctx, b, p.authority, debtor, paymentSigner, taskSigner); err != nil {
		return PaymentRef{}, err
	}
	p.log.Info("payment created", "payment", paymentAddress, "id", id, "debtor", payer, "creditor", creditor)
	return PaymentRef{ID: id, Payment: paymentAddress, Task: taskAddress}, nil
}

func (p *Program) paymentIndex(party common.Address, role Role) (common.Address, error) {
	namespace, err := PaymentIndexNamespace(party, role)
	if err != nil {
		return common.Address{}, err
	}
	address, _, err := p.registry.DeriveIndex(p.Authority(), namespace)
	return address, err
}

func (p *Program) read(ctx context.Context, address common.Address, notFound error) (ledger.Record, error) {
	record, err := p.ledger.Get(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Record{}, fmt.Errorf("%w: %v", notFound, address)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: %w", indexor.ErrLedgerUnavailable, err)
	}
	if record.Program != p.Address() {
		return ledger.Record{}, fmt.Errorf("%w: %v is owned by %v", notFound, address, record.Program)
	}
	return record, nil
}

// GetPayment reads the payment at the given address.
func (p *Program) GetPayment(ctx context.Context, address common.Address) (Payment, error) {
	record, err := p.read(ctx, address, ErrPaymentNotFound)
	if err != nil {
		return Payment{}, err
	}
	return decodePayment(record.Data)
}

// GetTask reads the task at the given address.
func (p *Program) GetTask(ctx context.Context, address common.Address) (Task, error) {
	record, err := p.read(ctx, address, ErrTaskNotFound)
	if err != nil {
		return Task{}, err
	}
	return decodeTask(record.Data)
}

// Payments lists the payments of a party in a role in creation order.
func (p *Program) Payments(ctx context.Context, party common.Address, role Role) ([]Payment, error) {
	index, err := p.paymentIndex(party, role)
	if err != nil {
		return nil, err
	}
	pointers, err := p.registry.Pointers(ctx, index)
	if err != nil {
		return nil, err
	}
	res := make([]Payment, 0, len(pointers))
	for _, pointer := range pointers {
		payment, err := p.GetPayment(ctx, pointer.Value)
		if err != nil {
			return nil, err
		}
		res = append(res, payment)
	}
	return res, nil
}

// Tasks lists the tasks to be processed at the given time.
func (p *Program) Tasks(ctx context.Context, processAt time.Time) ([]Task, error) {
	index, _, err := p.registry.DeriveIndex(p.Authority(), TaskIndexNamespace(processAt))
	if err != nil {
		return nil, err
	}
	pointers, err := p.registry.Pointers(ctx, index)
	if err != nil {
		return nil, err
	}
	res := make([]Task, 0, len(pointers))
	for _, pointer := range pointers {
		task, err := p.GetTask(ctx, pointer.Value)
		if err != nil {
			return nil, err
		}
		res = append(res, task)
	}
	return res, nil
}

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

import "errors"

var (
	ErrAlreadyExists      = errors.New("index already exists")
	ErrDuplicateValue     = errors.New("value already registered in index")
	ErrDuplicateName      = errors.New("name already used in index")
	ErrConflict           = errors.New("index modified concurrently")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
	ErrIndexNotFound      = errors.New("index not found")
	ErrPointerNotFound    = errors.New("pointer not found")
	ErrInvalidName        = errors.New("invalid pointer name")
	ErrInvalidNamespace   = errors.New("invalid namespace")
	ErrInvalidMode        = errors.New("invalid index mode")
	ErrNotSerial          = errors.New("index is not serial")
)

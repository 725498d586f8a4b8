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
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Parameters configure the creation of a ledger.
type Parameters struct {
	Variant   string       // < the name of the implementation, e.g. "memory"
	Directory string       // < location of the data for persistent variants
	Logger    *slog.Logger // < optional, slog.Default() if nil
}

// Factory creates a ledger instance for the given parameters.
type Factory func(params Parameters) (Ledger, error)

var (
	factoriesMutex sync.Mutex
	factories      = map[string]Factory{}
)

// RegisterFactory makes a ledger implementation available under the given
// variant name. Implementations register themselves in their init functions,
// so importing a backend package enables it. Registering a variant twice
// panics.
func RegisterFactory(variant string, factory Factory) {
	factoriesMutex.Lock()
	defer factoriesMutex.Unlock()
	if _, found := factories[variant]; found {
		panic(fmt.Sprintf("ledger variant %q registered twice", variant))
	}
	factories[variant] = factory
}

// Variants lists the names of all registered implementations in sorted order.
func Variants() []string {
	factoriesMutex.Lock()
	defer factoriesMutex.Unlock()
	res := make([]string, 0, len(factories))
	for variant := range factories {
		res = append(res, variant)
	}
	slices.Sort(res)
	return res
}

// Open creates a ledger using the factory registered for params.Variant.
func Open(params Parameters) (Ledger, error) {
	factoriesMutex.Lock()
	factory, found := factories[params.Variant]
	factoriesMutex.Unlock()
	if !found {
		return nil, fmt.Errorf("%w: %q, available: %v", ErrUnknownVariant, params.Variant, Variants())
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	return factory(params)
}

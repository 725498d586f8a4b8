// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/0xsoniclabs/indexor/indexor"
	"github.com/0xsoniclabs/indexor/ledger"
	"github.com/urfave/cli/v2"
)

var (
	ownerFlag = cli.StringFlag{
		Name:  "owner",
		Usage: "address of the index owner",
	}
	namespaceFlag = cli.StringFlag{
		Name:  "namespace",
		Usage: "namespace of the index",
	}
	modeFlag = cli.StringFlag{
		Name:  "mode",
		Usage: "naming mode of the index, serial or freeform",
		Value: indexor.Serial.String(),
	}
	indexFlag = cli.StringFlag{
		Name:  "index",
		Usage: "address of the index",
	}
	nameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "name of the pointer, the next serial name if empty",
	}
	valueFlag = cli.StringFlag{
		Name:  "value",
		Usage: "address registered by the pointer",
	}
)

var DeriveCmd = cli.Command{
	Action: withDiagnostics(doDerive),
	Name:   "derive",
	Usage:  "compute the addresses of an index and optionally of a pointer and proof",
	Flags: []cli.Flag{
		&programKeyFlag,
		&ownerFlag,
		&namespaceFlag,
		&nameFlag,
		&valueFlag,
	},
}

var CreateIndexCmd = cli.Command{
	Action: withDiagnostics(doCreateIndex),
	Name:   "create-index",
	Usage:  "create an index owned by the owner key",
	Flags: []cli.Flag{
		&programKeyFlag,
		&ownerKeyFlag,
		&namespaceFlag,
		&modeFlag,
	},
}

var CreatePointerCmd = cli.Command{
	Action: withDiagnostics(doCreatePointer),
	Name:   "create-pointer",
	Usage:  "register a value in an index",
	Flags: []cli.Flag{
		&programKeyFlag,
		&ownerKeyFlag,
		&indexFlag,
		&nameFlag,
		&valueFlag,
	},
}

var ShowIndexCmd = cli.Command{
	Action: withDiagnostics(doShowIndex),
	Name:   "show-index",
	Usage:  "print an index and, for serial indexes, its pointers",
	Flags: []cli.Flag{
		&programKeyFlag,
		&indexFlag,
		&ownerFlag,
		&namespaceFlag,
	},
}

func addressFlag(context *cli.Context, flag *cli.StringFlag) (common.Address, error) {
	value := context.String(flag.Name)
	if value == "" {
		return common.Address{}, fmt.Errorf("missing --%s", flag.Name)
	}
	address, err := common.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid --%s: %w", flag.Name, err)
	}
	return address, nil
}

// withRegistry opens the ledger and runs the given function on a registry of
// the program identified by --program-key.
func withRegistry(context *cli.Context, run func(*indexor.Registry) error) (err error) {
	program, err := loadKey(context, &programKeyFlag)
	if err != nil {
		return err
	}
	l, err := openLedger(context)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, l.Close()) }()
	return run(indexor.NewRegistry(l, program, slog.Default()))
}

func doDerive(context *cli.Context) error {
	program, err := loadKey(context, &programKeyFlag)
	if err != nil {
		return err
	}
	owner, err := addressFlag(context, &ownerFlag)
	if err != nil {
		return err
	}
	// Derivation does not access the ledger.
	registry := indexor.NewRegistry(nil, program, slog.Default())
	index, nonce, err := registry.DeriveIndex(owner, []byte(context.String(namespaceFlag.Name)))
	if err != nil {
		return err
	}
	out := context.App.Writer
	fmt.Fprintf(out, "index:   %v (nonce %d)\n", index, nonce)

	if name := context.String(nameFlag.Name); name != "" {
		pointer, nonce, err := registry.DerivePointer(index, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pointer: %v (nonce %d)\n", pointer, nonce)
	}
	if context.IsSet(valueFlag.Name) {
		value, err := addressFlag(context, &valueFlag)
		if err != nil {
			return err
		}
		proof, nonce, err := registry.DeriveProof(index, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "proof:   %v (nonce %d)\n", proof, nonce)
	}
	return nil
}

func doCreateIndex(context *cli.Context) error {
	owner, err := loadKey(context, &ownerKeyFlag)
	if err != nil {
		return err
	}
	mode, err := indexor.ParseMode(context.String(modeFlag.Name))
	if err != nil {
		return err
	}
	namespace := []byte(context.String(namespaceFlag.Name))
	return withRegistry(context, func(registry *indexor.Registry) error {
		signer := ledger.NewKeySigner(owner)
		ref, err := registry.CreateIndex(context.Context, signer, signer, namespace, mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(context.App.Writer, "index: %v (nonce %d)\n", ref.Address, ref.Nonce)
		return nil
	})
}

func doCreatePointer(context *cli.Context) error {
	owner, err := loadKey(context, &ownerKeyFlag)
	if err != nil {
		return err
	}
	index, err := addressFlag(context, &indexFlag)
	if err != nil {
		return err
	}
	value, err := addressFlag(context, &valueFlag)
	if err != nil {
		return err
	}
	return withRegistry(context, func(registry *indexor.Registry) error {
		signer := ledger.NewKeySigner(owner)
		ref, err := registry.CreatePointer(context.Context, index, context.String(nameFlag.Name), value, signer, signer)
		if err != nil {
			return err
		}
		out := context.App.Writer
		fmt.Fprintf(out, "name:    %s\n", ref.Name)
		fmt.Fprintf(out, "pointer: %v (nonce %d)\n", ref.Pointer, ref.PointerNonce)
		fmt.Fprintf(out, "proof:   %v (nonce %d)\n", ref.Proof, ref.ProofNonce)
		return nil
	})
}

func doShowIndex(context *cli.Context) error {
	return withRegistry(context, func(registry *indexor.Registry) error {
		var address common.Address
		var index indexor.Index
		var err error
		if context.IsSet(indexFlag.Name) {
			if address, err = addressFlag(context, &indexFlag); err != nil {
				return err
			}
			index, err = registry.GetIndex(context.Context, address)
		} else {
			owner, ownerErr := addressFlag(context, &ownerFlag)
			if ownerErr != nil {
				return fmt.Errorf("either --%s or --%s is required: %w", indexFlag.Name, ownerFlag.Name, ownerErr)
			}
			address, index, err = registry.FindIndex(context.Context, owner, []byte(context.String(namespaceFlag.Name)))
		}
		if err != nil {
			return err
		}

		out := context.App.Writer
		fmt.Fprintf(out, "index:     %v\n", address)
		fmt.Fprintf(out, "owner:     %v\n", index.Owner)
		fmt.Fprintf(out, "namespace: %q\n", index.Namespace)
		fmt.Fprintf(out, "mode:      %v\n", index.Mode)
		fmt.Fprintf(out, "count:     %d\n", index.Count)
		if index.Mode != indexor.Serial {
			return nil
		}
		pointers, err := registry.Pointers(context.Context, address)
		if err != nil {
			return err
		}
		for _, pointer := range pointers {
			fmt.Fprintf(out, "  %s -> %v\n", pointer.Name, pointer.Value)
		}
		return nil
	})
}

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
	"os"
	"os/signal"

	"github.com/0xsoniclabs/indexor/ledger/snapshot"
	"github.com/urfave/cli/v2"
)

var ExportCmd = cli.Command{
	Action:    withDiagnostics(doExport),
	Name:      "export",
	Usage:     "write all ledger records to a snapshot file",
	ArgsUsage: "<target file>",
}

var ImportCmd = cli.Command{
	Action:    withDiagnostics(doImport),
	Name:      "import",
	Usage:     "restore ledger records from a snapshot file",
	ArgsUsage: "<source file>",
}

func doExport(context *cli.Context) (err error) {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing target file parameter")
	}
	ctx, stop := signal.NotifyContext(context.Context, os.Interrupt)
	defer stop()

	l, err := openLedger(context)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, l.Close()) }()

	file, err := os.Create(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, file.Close()) }()

	count, err := snapshot.Export(ctx, l, file)
	if err != nil {
		return fmt.Errorf("export failed after %d records: %w", count, err)
	}
	slog.Info("export finished", "records", count)
	fmt.Fprintf(context.App.Writer, "exported %d records\n", count)
	return nil
}

func doImport(context *cli.Context) (err error) {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing source file parameter")
	}
	ctx, stop := signal.NotifyContext(context.Context, os.Interrupt)
	defer stop()

	file, err := os.Open(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, file.Close()) }()

	l, err := openLedger(context)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, l.Close()) }()

	count, err := snapshot.Import(ctx, file, l)
	if err != nil {
		return fmt.Errorf("import failed after %d records: %w", count, err)
	}
	slog.Info("import finished", "records", count)
	fmt.Fprintf(context.App.Writer, "imported %d records\n", count)
	return nil
}

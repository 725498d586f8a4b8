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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/0xsoniclabs/indexor/common/diagnostics"
	"github.com/0xsoniclabs/indexor/ledger"
	_ "github.com/0xsoniclabs/indexor/ledger/ldb"
	_ "github.com/0xsoniclabs/indexor/ledger/memory"
	_ "github.com/0xsoniclabs/indexor/ledger/sqlite"
	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./cmd/indexor <command> <flags>

var (
	ledgerFlag = cli.StringFlag{
		Name:    "ledger",
		Usage:   fmt.Sprintf("ledger implementation to use, one of %v", ledger.Variants()),
		Value:   "ldb",
		EnvVars: []string{"INDEXOR_LEDGER"},
	}
	dirFlag = cli.StringFlag{
		Name:    "dir",
		Usage:   "directory holding the ledger data",
		Value:   "indexor-data",
		EnvVars: []string{"INDEXOR_DIR"},
	}
	logLevelFlag = cli.StringFlag{
		Name:    "log-level",
		Usage:   "minimum level of log messages, one of debug, info, warn, error",
		Value:   "info",
		EnvVars: []string{"INDEXOR_LOG_LEVEL"},
	}
	diagnosticsFlag = cli.IntFlag{
		Name:    "diagnostic-port",
		Usage:   "enable hosting of a realtime diagnostic server by providing a port",
		Value:   0,
		EnvVars: []string{"INDEXOR_DIAGNOSTIC_PORT"},
	}
	cpuProfileFlag = cli.StringFlag{
		Name:    "cpuprofile",
		Usage:   "sets the target file for storing CPU profiles to, disabled if empty",
		Value:   "",
		EnvVars: []string{"INDEXOR_CPUPROFILE"},
	}
	traceFlag = cli.StringFlag{
		Name:    "tracefile",
		Usage:   "sets the target file for traces to, disabled if empty",
		Value:   "",
		EnvVars: []string{"INDEXOR_TRACEFILE"},
	}
)

var commands = []*cli.Command{
	&KeygenCmd,
	&DeriveCmd,
	&CreateIndexCmd,
	&CreatePointerCmd,
	&ShowIndexCmd,
	&ExportCmd,
	&ImportCmd,
}

// withDiagnostics enables the diagnostics requested by the global flags for
// the duration of the action.
func withDiagnostics(action cli.ActionFunc) cli.ActionFunc {
	return diagnostics.AddPerformanceDiagnosticsAction(action, &diagnosticsFlag, &cpuProfileFlag, &traceFlag)
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "indexor",
		Usage:     "deterministic address index registry",
		Copyright: "(c) 2025 Sonic Operations Ltd",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&ledgerFlag,
			&dirFlag,
			&logLevelFlag,
			&diagnosticsFlag,
			&cpuProfileFlag,
			&traceFlag,
		},
		Before:   setupLogging,
		Commands: commands,
	}
}

func setupLogging(context *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(context.String(logLevelFlag.Name))); err != nil {
		return fmt.Errorf("invalid --%s: %w", logLevelFlag.Name, err)
	}
	handler := slog.NewTextHandler(context.App.ErrWriter, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// openLedger opens the ledger selected by the global flags.
func openLedger(context *cli.Context) (ledger.Ledger, error) {
	return ledger.Open(ledger.Parameters{
		Variant:   context.String(ledgerFlag.Name),
		Directory: context.String(dirFlag.Name),
		Logger:    slog.Default(),
	})
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

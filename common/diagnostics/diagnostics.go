// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package diagnostics attaches runtime profiling to command line actions.
package diagnostics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/urfave/cli/v2"
)

// AddPerformanceDiagnosticsAction wraps an action to run it with a pprof
// server on the port given by diagnosticsFlag, a CPU profile written to the
// file given by cpuProfileFlag and a runtime trace written to the file given
// by traceFlag. Each of them is disabled if its flag is unset.
func AddPerformanceDiagnosticsAction(action cli.ActionFunc, diagnosticsFlag *cli.IntFlag, cpuProfileFlag, traceFlag *cli.StringFlag) cli.ActionFunc {
	return func(context *cli.Context) (err error) {
		startDiagnosticServer(context.Int(diagnosticsFlag.Names()[0]))

		if name := strings.TrimSpace(context.String(cpuProfileFlag.Names()[0])); name != "" {
			stop, startErr := startCpuProfiler(name)
			if startErr != nil {
				return startErr
			}
			defer func() { err = errors.Join(err, stop()) }()
		}

		if name := strings.TrimSpace(context.String(traceFlag.Names()[0])); name != "" {
			stop, startErr := startTracer(name)
			if startErr != nil {
				return startErr
			}
			defer func() { err = errors.Join(err, stop()) }()
		}

		return action(context)
	}
}

func startDiagnosticServer(port int) {
	if port <= 0 || port >= (1<<16) {
		return
	}
	addr := fmt.Sprintf("localhost:%d", port)
	slog.Info("starting diagnostic server", "url", "http://"+addr+"/debug/pprof/")
	slog.Warn("block and mutex sampling enabled for diagnostics, performance may be affected")
	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			slog.Error("diagnostic server stopped", "error", err)
		}
	}()
	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)
}

func startCpuProfiler(filename string) (func() error, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return nil, errors.Join(fmt.Errorf("could not start CPU profile: %w", err), f.Close())
	}
	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}

func startTracer(filename string) (func() error, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := trace.Start(f); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to start trace: %w", err), f.Close())
	}
	return func() error {
		trace.Stop()
		return f.Close()
	}, nil
}

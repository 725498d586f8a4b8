// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package diagnostics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newTestApp(action cli.ActionFunc) *cli.App {
	diagnosticsFlag := cli.IntFlag{Name: "diagnostics"}
	cpuProfileFlag := cli.StringFlag{Name: "cpu-profile"}
	traceFlag := cli.StringFlag{Name: "trace"}
	return &cli.App{
		Action: AddPerformanceDiagnosticsAction(action, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
		Flags:  []cli.Flag{&diagnosticsFlag, &cpuProfileFlag, &traceFlag},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestAddPerformanceDiagnosticsAction_StartsRequestedDiagnostics(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	called := false
	action := func(ctx *cli.Context) error {
		require.FileExists(t, filepath.Join(dir, "cpu.profile"))
		require.FileExists(t, filepath.Join(dir, "tracer.out"))

		var statusCode int
		var lastErr error
		wait := 100 * time.Millisecond
		for i := 0; i < 10 && statusCode != http.StatusOK; i++ {
			resp, err := http.Get(fmt.Sprintf("http://localhost:%d/debug/pprof/", port))
			lastErr = err
			if resp != nil {
				statusCode = resp.StatusCode
				_ = resp.Body.Close()
			}
			time.Sleep(wait)
			wait *= 2
		}
		require.NoError(t, lastErr)
		require.Equal(t, http.StatusOK, statusCode)

		called = true
		return nil
	}

	args := []string{"cmd",
		"--diagnostics", fmt.Sprint(port),
		"--cpu-profile", filepath.Join(dir, "cpu.profile"),
		"--trace", filepath.Join(dir, "tracer.out"),
	}
	require.NoError(t, newTestApp(action).Run(args))
	require.True(t, called, "action should be called")
}

func TestAddPerformanceDiagnosticsAction_DisabledByDefault(t *testing.T) {
	called := false
	err := newTestApp(func(*cli.Context) error {
		called = true
		return nil
	}).Run([]string{"cmd"})
	require.NoError(t, err)
	require.True(t, called)
}

func TestAddPerformanceDiagnosticsAction_ActionErrorsArePropagated(t *testing.T) {
	injected := errors.New("injected")
	dir := t.TempDir()
	err := newTestApp(func(*cli.Context) error {
		return injected
	}).Run([]string{"cmd", "--cpu-profile", filepath.Join(dir, "cpu.profile")})
	require.ErrorIs(t, err, injected)
	require.FileExists(t, filepath.Join(dir, "cpu.profile"))
}

func TestAddPerformanceDiagnosticsAction_InvalidProfileLocationIsReported(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "cpu.profile")
	err := newTestApp(func(*cli.Context) error {
		t.Fatal("action must not be called")
		return nil
	}).Run([]string{"cmd", "--cpu-profile", missing})
	require.Error(t, err)
}

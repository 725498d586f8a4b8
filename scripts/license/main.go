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

	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./scripts/license --dir . [--check]

var (
	dirFlag = cli.StringFlag{
		Name:     "dir",
		Usage:    "root directory of the files to process",
		Required: true,
	}
	checkFlag = cli.BoolFlag{
		Name:  "check",
		Usage: "only report files with missing headers, do not modify them",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:   "license",
		Usage:  "add or check license headers of project files",
		Flags:  []cli.Flag{&dirFlag, &checkFlag},
		Action: process,
	}
}

func process(context *cli.Context) error {
	dir := context.String(dirFlag.Name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("invalid target directory: %w", err)
	}
	paths, err := files(dir)
	if err != nil {
		return fmt.Errorf("failed to list files in %s: %w", dir, err)
	}
	checkOnly := context.Bool(checkFlag.Name)
	var errs []error
	for _, path := range paths {
		if checkOnly {
			err = check(path)
		} else {
			err = fix(path)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("license headers processed", "files", len(paths), "failures", len(errs))
	return errors.Join(errs...)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

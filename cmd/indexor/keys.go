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
	"os"
	"strings"

	"github.com/0xsoniclabs/indexor/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
)

var KeygenCmd = cli.Command{
	Action:    withDiagnostics(doKeygen),
	Name:      "keygen",
	Usage:     "generate a new key pair and store its seed in a file",
	ArgsUsage: "<key file>",
}

var (
	programKeyFlag = cli.StringFlag{
		Name:    "program-key",
		Usage:   "file holding the key of the registry program",
		EnvVars: []string{"INDEXOR_PROGRAM_KEY"},
	}
	ownerKeyFlag = cli.StringFlag{
		Name:    "owner-key",
		Usage:   "file holding the key of the index owner, also paying for the records",
		EnvVars: []string{"INDEXOR_OWNER_KEY"},
	}
)

func doKeygen(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing key file parameter")
	}
	path := context.Args().Get(0)

	key, err := common.GenerateKeyPair()
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	_, err = fmt.Fprintln(file, hexutil.Encode(key.Seed()))
	if err := errors.Join(err, file.Close()); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	fmt.Fprintf(context.App.Writer, "address: %v\n", key.Address())
	return nil
}

// loadKey reads the key pair stored in the file named by the given flag.
func loadKey(context *cli.Context, flag *cli.StringFlag) (common.KeyPair, error) {
	path := context.String(flag.Name)
	if path == "" {
		return common.KeyPair{}, fmt.Errorf("missing --%s", flag.Name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return common.KeyPair{}, fmt.Errorf("failed to read key file: %w", err)
	}
	seed, err := hexutil.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return common.KeyPair{}, fmt.Errorf("invalid key file %s: %w", path, err)
	}
	return common.KeyPairFromSeed(seed)
}

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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLicense_RepositoryFilesCarryHeader(t *testing.T) {
	paths, err := files(filepath.Join("..", ".."))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		require.NoError(t, check(path))
	}
}

func TestLicense_MissingHeadersAreAdded(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "pkg", "a.go")
	schema := filepath.Join(dir, "pkg", "schema.sql")
	ignored := filepath.Join(dir, "_skip", "b.go")
	write(t, source, "package pkg\n")
	write(t, schema, "CREATE TABLE t (x INTEGER);\n")
	write(t, ignored, "package skip\n")

	err := newApp().Run([]string{"license", "--dir", dir, "--check"})
	require.ErrorIs(t, err, ErrMissingHeader)

	require.NoError(t, newApp().Run([]string{"license", "--dir", dir}))
	require.NoError(t, newApp().Run([]string{"license", "--dir", dir, "--check"}))

	content, err := os.ReadFile(source)
	require.NoError(t, err)
	require.Equal(t, header("//")+"\npackage pkg\n", string(content))
	content, err = os.ReadFile(schema)
	require.NoError(t, err)
	require.Equal(t, header("--")+"\nCREATE TABLE t (x INTEGER);\n", string(content))
	content, err = os.ReadFile(ignored)
	require.NoError(t, err)
	require.Equal(t, "package skip\n", string(content))

	// Fixing again leaves the files untouched.
	require.NoError(t, newApp().Run([]string{"license", "--dir", dir}))
	content, err = os.ReadFile(source)
	require.NoError(t, err)
	require.Equal(t, header("//")+"\npackage pkg\n", string(content))
}

func TestLicense_OutdatedHeadersAreReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.go")
	write(t, path, "// Copyright (c) 2022 Sonic Operations Ltd\n// old terms\n\npackage a\n")

	require.NoError(t, fix(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, header("//")+"\npackage a\n", string(content))
}

func TestLicense_GeneratedFilesAreSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.go")
	write(t, path, "// Code generated by a tool. DO NOT EDIT.\n\npackage gen\n")
	require.NoError(t, check(path))

	mocks := filepath.Join(t.TempDir(), "x_mocks.go")
	write(t, mocks, "package x\n")
	require.NoError(t, check(mocks))
}

func TestLicense_InvalidDirectoryIsRejected(t *testing.T) {
	err := newApp().Run([]string{"license", "--dir", filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

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
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed license_header.txt
var licenseHeader string

var ErrMissingHeader = errors.New("missing or incorrect license header")

// prefixes maps file name patterns to the comment prefix of their header.
// Patterns starting with a dot match extensions, others full file names.
var prefixes = map[string]string{
	".go":    "//",
	".sql":   "--",
	".yml":   "#",
	"go.mod": "//",
}

// header renders the license as a comment block using the given prefix.
func header(prefix string) string {
	var res strings.Builder
	s := bufio.NewScanner(strings.NewReader(licenseHeader))
	for s.Scan() {
		if line := s.Text(); line == "" {
			res.WriteString(prefix + "\n")
		} else {
			res.WriteString(prefix + " " + line + "\n")
		}
	}
	return res.String()
}

// prefixOf returns the comment prefix for the given file, or false if the
// file carries no header.
func prefixOf(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasSuffix(name, "_mocks.go") {
		return "", false
	}
	for pattern, prefix := range prefixes {
		if pattern[0] == '.' && strings.HasSuffix(name, pattern) || name == pattern {
			return prefix, true
		}
	}
	return "", false
}

// files lists all files below dir needing a header. Directories starting
// with an underscore or a dot are skipped, as the go tool does.
func files(dir string) ([]string, error) {
	var res []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if path != dir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := prefixOf(path); ok {
			res = append(res, path)
		}
		return nil
	})
	return res, err
}

// check verifies that the file starts with the license header.
func check(path string) error {
	prefix, ok := prefixOf(path)
	if !ok {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.HasPrefix(string(content), "// Code generated") {
		return nil
	}
	if !strings.HasPrefix(string(content), header(prefix)) {
		return fmt.Errorf("%w: %s", ErrMissingHeader, path)
	}
	return nil
}

// fix adds the license header to a file missing it. An outdated header of
// the same copyright holder, ending at the first empty line, is replaced.
func fix(path string) error {
	if err := check(path); !errors.Is(err, ErrMissingHeader) {
		return err
	}
	prefix, _ := prefixOf(path)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	body := string(content)
	if strings.HasPrefix(body, prefix+" Copyright") && strings.Contains(body, "Sonic Operations Ltd") {
		if end := strings.Index(body, "\n\n"); end >= 0 {
			body = body[end+2:]
		}
	}
	return os.WriteFile(path, []byte(header(prefix)+"\n"+body), info.Mode().Perm())
}

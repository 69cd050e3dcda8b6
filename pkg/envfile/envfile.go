// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

// FileName is the per-unit environment file inside the unit directory.
const FileName = ".env"

var (
	lineRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)
	keyRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Parse reads KEY=VALUE lines. Lines that do not match are skipped, matching
// surrounding quotes are stripped and escaped newlines are restored.
func Parse(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		env[m[1]] = unescape(unquote(m[2]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan env: %w", err)
	}
	return env, nil
}

// Read parses the file at path. A missing file is an empty map.
func Read(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to read env file", err, map[string]any{"path": path})
	}
	defer f.Close()

	env, err := Parse(f)
	if err != nil {
		return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to parse env file", err, map[string]any{"path": path})
	}
	return env, nil
}

// Format renders env sorted by key, one KEY=VALUE per line.
func Format(env map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		if !keyRe.MatchString(k) {
			return nil, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
				"invalid environment variable name", map[string]any{"key": k})
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(escape(env[k]))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Write replaces the file at path with env.
func Write(path string, env map[string]string) error {
	b, err := Format(env)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return cnserrors.WrapWithContext(cnserrors.ErrCodeFilesystem,
			"failed to write env file", err, map[string]any{"path": path})
	}
	return nil
}

// Apply loads the file at path into the process environment, overriding
// existing values. It returns the number of variables set.
func Apply(path string) (int, error) {
	env, err := Read(path)
	if err != nil {
		return 0, err
	}
	for k, v := range env {
		if err := os.Setenv(k, v); err != nil {
			return 0, cnserrors.WrapWithContext(cnserrors.ErrCodeInternal,
				"failed to set environment variable", err, map[string]any{"key": k})
		}
	}
	if len(env) > 0 {
		slog.Debug("applied env file", "path", path, "count", len(env))
	}
	return len(env), nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func escape(v string) string {
	v = strings.ReplaceAll(v, "\r\n", "\n")
	return strings.ReplaceAll(v, "\n", `\n`)
}

func unescape(v string) string {
	return strings.ReplaceAll(v, `\n`, "\n")
}

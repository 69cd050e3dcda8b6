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

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

// Runner executes an external command in dir and returns its combined output.
// A non-zero exit must be reported as an EXTERNAL_PROCESS error.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout bounds each command. Zero leaves commands bounded only by ctx.
	Timeout time.Duration
	// Env is appended to the current process environment.
	Env []string
}

// NewExecRunner returns an ExecRunner that never prompts for credentials.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{
		Timeout: timeout,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", cnserrors.WrapWithContext(cnserrors.ErrCodeExternalProcess,
			name+" not found in PATH", err, map[string]any{"command": name})
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.Env...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	slog.Debug("running command", "command", commandLine(name, args), "dir", dir)

	err = cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		ctxInfo := map[string]any{
			"command": commandLine(name, args),
			"dir":     dir,
			"output":  output,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ctxInfo["exitCode"] = exitErr.ExitCode()
		}
		code := cnserrors.ErrCodeExternalProcess
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = cnserrors.ErrCodeTimeout
		}
		return output, cnserrors.WrapWithContext(code,
			"command failed: "+commandLine(name, args)+": "+lastLine(output), err, ctxInfo)
	}

	slog.Debug("command completed", "command", commandLine(name, args), "duration", time.Since(start).String())
	return output, nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

// lastLine keeps error messages readable; the full output stays in Context.
func lastLine(output string) string {
	if output == "" {
		return "no output"
	}
	lines := strings.Split(output, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/serializer"
)

// writeOutput serializes v using --format, to --output when set or to the
// command's writer otherwise.
func writeOutput(ctx context.Context, cmd *cli.Command, v any) error {
	format, err := parseOutputFormat(cmd)
	if err != nil {
		return err
	}

	var ser serializer.Serializer
	if path := cmd.String("output"); path != "" {
		ser = serializer.NewFileWriterOrStdout(format, path)
	} else {
		ser = serializer.NewWriter(format, cmd.Root().Writer)
	}
	defer func() {
		if closer, ok := ser.(serializer.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("failed to close output", "error", err)
			}
		}
	}()

	return ser.Serialize(ctx, v)
}

func success(w io.Writer, format string, args ...any) {
	green := color.New(color.FgGreen, color.Bold)
	green.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// printError renders err for a terminal. Server-side details such as the
// failing command and its output are listed under the message.
func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(w, "Error: ")

	se := cnserrors.Root(err)
	if se == nil {
		fmt.Fprintln(w, err)
		return
	}

	fmt.Fprintf(w, "%s [%s]\n", se.Message, se.Code)
	if se.Cause != nil {
		fmt.Fprintf(w, "  %v\n", se.Cause)
	}

	keys := make([]string, 0, len(se.Context))
	for k := range se.Context {
		if k != "output" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	gray := color.New(color.FgHiBlack)
	for _, k := range keys {
		gray.Fprintf(w, "  %s: %v\n", k, se.Context[k])
	}
	if out, ok := se.Context["output"].(string); ok && strings.TrimSpace(out) != "" {
		gray.Fprintln(w, "  output:")
		for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
			gray.Fprintf(w, "    %s\n", line)
		}
	}
}

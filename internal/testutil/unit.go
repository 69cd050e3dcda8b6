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

package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/NVIDIA/unithost/pkg/loader"
	"github.com/NVIDIA/unithost/pkg/unit"
)

// BuildStep produces the default artifact without a Go toolchain.
const BuildStep = `sh -c "mkdir -p dist && echo built > dist/unit.so"`

// EchoUnit answers GET with its name and the forwarded path, and POST with
// 202 and the request body.
type EchoUnit struct {
	Name string
}

// ServeGet implements unit.Handler.
func (u EchoUnit) ServeGet(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s %s", u.Name, r.URL.Path)
}

// ServePost implements unit.Handler.
func (u EchoUnit) ServePost(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.Copy(w, r.Body)
}

// EchoLoader loads an EchoUnit named after the unit directory.
func EchoLoader() loader.Func {
	return func(ctx context.Context, dir string) (unit.Handler, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return EchoUnit{Name: filepath.Base(dir)}, nil
	}
}

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

package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
)

func TestIdentifierFromSource(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		want    string
		wantErr bool
	}{
		{"https with .git", "https://github.com/acme/sample-unit.git", "sample-unit", false},
		{"https without .git", "https://github.com/acme/sample-unit", "sample-unit", false},
		{"trailing slash", "https://github.com/acme/sample-unit/", "sample-unit", false},
		{"scp syntax", "git@github.com:acme/sample-unit.git", "sample-unit", false},
		{"scp without owner", "git@host:sample-unit.git", "sample-unit", false},
		{"local path", "/tmp/repos/sample-unit.git", "sample-unit", false},
		{"empty", "", "", true},
		{"whitespace", "   ", "", true},
		{"only .git", "https://github.com/acme/.git", "", true},
		{"dot dir", "https://github.com/acme/..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IdentifierFromSource(tt.source)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("sample-unit"))
	assert.NoError(t, ValidateIdentifier("unit_2"))
	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier(".tmp-x"))
	assert.Error(t, ValidateIdentifier("a/b"))
	assert.Error(t, ValidateIdentifier(`a\b`))
	assert.Error(t, ValidateIdentifier(".."))
}

func TestValidateIdentifierRejectsHostRoutes(t *testing.T) {
	for _, id := range []string{"api", "health", "ready", "metrics", "API"} {
		t.Run(id, func(t *testing.T) {
			err := ValidateIdentifier(id)
			require.Error(t, err)
			assert.True(t, cnserrors.IsCode(err, cnserrors.ErrCodeInvalidRequest))
		})
	}

	_, err := IdentifierFromSource("https://github.com/acme/metrics.git")
	require.Error(t, err)

	assert.NoError(t, ValidateIdentifier("api-gateway"))
	assert.NoError(t, ValidateIdentifier("healthcheck"))
}

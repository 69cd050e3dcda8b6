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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/NVIDIA/unithost/pkg/api"
	"github.com/NVIDIA/unithost/pkg/defaults"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/serializer"
	"github.com/NVIDIA/unithost/pkg/server"
	"github.com/NVIDIA/unithost/pkg/unit"
)

const (
	acceptHeader = "application/vnd.unithost.v1+json"

	// maxErrorBody bounds how much of a non-JSON error body is reported.
	maxErrorBody = 512
)

// Client talks to the unit host management API.
type Client struct {
	baseURL   *url.URL
	userAgent string

	// query serves reads; lifecycle waits for clone and build to finish.
	query     *http.Client
	lifecycle *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.query = hc
		c.lifecycle = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest,
			"server URL must be an absolute http(s) URL", map[string]any{"url": baseURL})
	}

	query := serializer.NewHttpReader()
	lifecycle := serializer.NewHttpReader(
		serializer.WithTotalTimeout(defaults.HTTPLifecycleTimeout),
		serializer.WithResponseHeaderTimeout(defaults.HTTPLifecycleTimeout),
	)

	c := &Client{
		baseURL:   u,
		userAgent: serializer.HttpReaderUserAgent,
		query:     query.Client,
		lifecycle: lifecycle.Client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Install installs the unit at sourceURL and returns its name.
func (c *Client) Install(ctx context.Context, sourceURL string) (string, error) {
	var resp api.InstallResponse
	err := c.do(ctx, c.lifecycle, http.MethodPost, "/api/units/install",
		api.InstallRequest{SourceURL: sourceURL}, &resp)
	return resp.Name, err
}

// Update pulls and rebuilds the named unit and returns its metadata.
func (c *Client) Update(ctx context.Context, name string) (unit.Metadata, error) {
	var resp api.SuccessResponse
	if err := c.do(ctx, c.lifecycle, http.MethodPut, unitPath(name), nil, &resp); err != nil {
		return unit.Metadata{}, err
	}
	if resp.Metadata == nil {
		return unit.Metadata{}, cnserrors.New(cnserrors.ErrCodeInternal, "update response has no metadata")
	}
	return *resp.Metadata, nil
}

// Uninstall removes the named unit.
func (c *Client) Uninstall(ctx context.Context, name string) error {
	return c.do(ctx, c.lifecycle, http.MethodDelete, unitPath(name), nil, nil)
}

// List returns all installed units.
func (c *Client) List(ctx context.Context) (*api.ListResponse, error) {
	var resp api.ListResponse
	if err := c.do(ctx, c.query, http.MethodGet, "/api/units", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Env returns the named unit's environment file.
func (c *Client) Env(ctx context.Context, name string) (*api.EnvBody, error) {
	var resp api.EnvBody
	if err := c.do(ctx, c.query, http.MethodGet, unitPath(name)+"/env", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Env == nil {
		resp.Env = map[string]string{}
	}
	return &resp, nil
}

// SetEnv replaces the named unit's environment file.
func (c *Client) SetEnv(ctx context.Context, name string, env map[string]string) error {
	return c.do(ctx, c.lifecycle, http.MethodPost, unitPath(name)+"/env", api.EnvBody{Env: env}, nil)
}

func unitPath(name string) string {
	return "/api/units/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return cnserrors.Wrap(cnserrors.ErrCodeInternal, "failed to encode request", err)
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInvalidRequest, "failed to create request", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		code := cnserrors.ErrCodeUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = cnserrors.ErrCodeTimeout
		}
		return cnserrors.WrapWithContext(code, "request failed", err,
			map[string]any{"method": method, "url": target.String()})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeUnavailable, "failed to read response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInternal, "failed to decode response", err)
	}
	return nil
}

// decodeError turns an ErrorResponse body back into a structured error.
func decodeError(resp *http.Response, data []byte) error {
	var er server.ErrorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Code == "" {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return cnserrors.NewWithContext(codeFromStatus(resp.StatusCode),
			fmt.Sprintf("server returned %s", resp.Status),
			map[string]any{"status": resp.StatusCode, "body": snippet})
	}

	ctx := make(map[string]any, len(er.Details)+2)
	for k, v := range er.Details {
		ctx[k] = v
	}
	ctx["status"] = resp.StatusCode
	ctx["requestId"] = er.RequestID
	return cnserrors.NewWithContext(cnserrors.ErrorCode(er.Code), er.Message, ctx)
}

func codeFromStatus(status int) cnserrors.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return cnserrors.ErrCodeInvalidRequest
	case http.StatusNotFound:
		return cnserrors.ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return cnserrors.ErrCodeMethodNotAllowed
	case http.StatusTooManyRequests:
		return cnserrors.ErrCodeRateLimitExceeded
	case http.StatusBadGateway:
		return cnserrors.ErrCodeExternalProcess
	case http.StatusServiceUnavailable:
		return cnserrors.ErrCodeUnavailable
	case http.StatusGatewayTimeout:
		return cnserrors.ErrCodeTimeout
	default:
		return cnserrors.ErrCodeInternal
	}
}

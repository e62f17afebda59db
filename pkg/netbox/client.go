// Copyright 2025 The peering-session-controller Authors
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

// Package netbox reads the live state of the routers through the NAPALM proxy of NetBox.
package netbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	MethodGetBGPNeighbors       = "get_bgp_neighbors"
	MethodGetBGPNeighborsDetail = "get_bgp_neighbors_detail"
)

const defaultTimeout = 30 * time.Second

// ErrNoDevice is returned when the router is not bound to a NetBox device.
var ErrNoDevice = errors.New("router has no netbox device")

// Client is a client of the NetBox REST API.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientConfig func(c *Client)

func WithHTTPClient(hc *http.Client) ClientConfig {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithToken(token string) ClientConfig {
	return func(c *Client) {
		c.token = token
	}
}

func NewClient(logger *slog.Logger, baseURL string, configs ...ClientConfig) *Client {
	c := &Client{
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, f := range configs {
		f(c)
	}

	return c
}

// NAPALM calls the NAPALM getter method on the device and decodes its result into out.
func (c *Client) NAPALM(ctx context.Context, deviceID int64, method string, out any) error {
	u := fmt.Sprintf("%s/api/dcim/devices/%d/napalm/?method=%s", c.baseURL, deviceID, url.QueryEscape(method))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	c.logger.Debug("request netbox napalm proxy", "deviceID", deviceID, "method", method)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", method, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read the response of %s: %w", method, err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("netbox returned %s for %s: %s", res.Status, method, truncate(string(body), 256))
	}

	results := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &results); err != nil {
		return fmt.Errorf("failed to unmarshal the response of %s: %w", method, err)
	}

	raw, ok := results[method]
	if !ok {
		return fmt.Errorf("the response has no %s result", method)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal the result of %s: %w", method, err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

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

package peeringdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the URL of the public PeeringDB.
const DefaultBaseURL = "https://www.peeringdb.com"

// networksPerRequest bounds the asn__in filter of a request.
const networksPerRequest = 100

// Client fetches records from the PeeringDB REST API and writes them into the cache.
type Client struct {
	logger     *slog.Logger
	cache      Cache
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type ClientConfig func(c *Client)

func WithBaseURL(baseURL string) ClientConfig {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithAPIKey(apiKey string) ClientConfig {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithHTTPClient(hc *http.Client) ClientConfig {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(logger *slog.Logger, cache Cache, configs ...ClientConfig) *Client {
	c := &Client{
		logger:     logger,
		cache:      cache,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: time.Minute},
	}

	for _, f := range configs {
		f(c)
	}

	return c
}

// SyncResult counts the synchronised records.
type SyncResult struct {
	IXLans        int
	Prefixes      int
	NetworkIXLans int
	Networks      int
}

// Sync fetches the prefixes and members of the ixlans, and the networks of the members.
// extraASNs are fetched along with the networks of the members.
func (c *Client) Sync(ctx context.Context, ixlanIDs []int64, extraASNs []uint32) (SyncResult, error) {
	result := SyncResult{}
	asns := slices.Clone(extraASNs)

	for _, ixlanID := range ixlanIDs {
		prefixes := make([]IXLanPrefix, 0)
		if err := c.list(ctx, "ixpfx", url.Values{"ixlan_id": {strconv.FormatInt(ixlanID, 10)}}, &prefixes); err != nil {
			return result, err
		}

		members := make([]NetworkIXLan, 0)
		if err := c.list(ctx, "netixlan", url.Values{"ixlan_id": {strconv.FormatInt(ixlanID, 10)}}, &members); err != nil {
			return result, err
		}

		if err := c.cache.PutIXLan(ctx, ixlanID, prefixes, members); err != nil {
			return result, err
		}

		for _, m := range members {
			asns = append(asns, m.ASN)
		}

		result.IXLans++
		result.Prefixes += len(prefixes)
		result.NetworkIXLans += len(members)
	}

	n, err := c.SyncNetworks(ctx, asns)
	result.Networks = n
	if err != nil {
		return result, err
	}

	c.logger.Info("synchronised peeringdb cache",
		"ixlans", result.IXLans,
		"prefixes", result.Prefixes,
		"netixlans", result.NetworkIXLans,
		"networks", result.Networks,
	)
	return result, nil
}

// SyncNetworks fetches the networks of the ASNs and returns how many were cached.
func (c *Client) SyncNetworks(ctx context.Context, asns []uint32) (int, error) {
	asns = slices.Clone(asns)
	slices.Sort(asns)
	asns = slices.Compact(asns)

	synced := 0
	for chunk := range slices.Chunk(asns, networksPerRequest) {
		in := make([]string, 0, len(chunk))
		for _, asn := range chunk {
			in = append(in, strconv.FormatUint(uint64(asn), 10))
		}

		networks := make([]Network, 0)
		if err := c.list(ctx, "net", url.Values{"asn__in": {strings.Join(in, ",")}}, &networks); err != nil {
			return synced, err
		}

		if err := c.cache.PutNetworks(ctx, networks); err != nil {
			return synced, err
		}
		synced += len(networks)
	}

	return synced, nil
}

// list fetches the records of the object type into out.
func (c *Client) list(ctx context.Context, object string, query url.Values, out any) error {
	u := fmt.Sprintf("%s/api/%s?%s", c.baseURL, object, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	c.logger.Debug("request peeringdb", "object", object, "query", query.Encode())
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", object, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return fmt.Errorf("peeringdb returned %s for %s: %s", res.Status, object, string(body))
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s: %w", object, err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", object, err)
	}
	return nil
}

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
	"net/netip"
	"slices"
	"sort"
	"sync"
)

// MemoryCache is an in-memory Cache, for testing and for running without Redis.
type MemoryCache struct {
	mu sync.RWMutex

	networks  map[uint32]Network
	prefixes  map[int64][]IXLanPrefix
	netixlans map[int64][]NetworkIXLan
}

var _ Cache = &MemoryCache{}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		networks:  make(map[uint32]Network),
		prefixes:  make(map[int64][]IXLanPrefix),
		netixlans: make(map[int64][]NetworkIXLan),
	}
}

// GetNetwork implements Cache
func (c *MemoryCache) GetNetwork(_ context.Context, asn uint32) (*Network, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.networks[asn]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

// ListIXLanPrefixes implements Cache
func (c *MemoryCache) ListIXLanPrefixes(_ context.Context, ixlanID int64) ([]IXLanPrefix, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.prefixes[ixlanID]), nil
}

// ListNetworkIXLans implements Cache
func (c *MemoryCache) ListNetworkIXLans(_ context.Context, ixlanID int64) ([]NetworkIXLan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.netixlans[ixlanID]), nil
}

// GetNetworkIXLan implements Cache
func (c *MemoryCache) GetNetworkIXLan(_ context.Context, id int64) (*NetworkIXLan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, members := range c.netixlans {
		for _, n := range members {
			if n.ID == id {
				return &n, nil
			}
		}
	}
	return nil, ErrNotFound
}

// FindNetworkIXLanByIP implements Cache
func (c *MemoryCache) FindNetworkIXLanByIP(_ context.Context, ip netip.Addr) (*NetworkIXLan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ixlanIDs := make([]int64, 0, len(c.netixlans))
	for id := range c.netixlans {
		ixlanIDs = append(ixlanIDs, id)
	}
	sort.Slice(ixlanIDs, func(i, j int) bool { return ixlanIDs[i] < ixlanIDs[j] })

	for _, id := range ixlanIDs {
		for _, n := range c.netixlans[id] {
			if n.HasAddress(ip) {
				return &n, nil
			}
		}
	}
	return nil, ErrNotFound
}

// PutNetworks implements Cache
func (c *MemoryCache) PutNetworks(_ context.Context, networks []Network) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range networks {
		c.networks[n.ASN] = n
	}
	return nil
}

// PutIXLan implements Cache
func (c *MemoryCache) PutIXLan(_ context.Context, ixlanID int64, prefixes []IXLanPrefix, netixlans []NetworkIXLan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prefixes[ixlanID] = slices.Clone(prefixes)
	c.netixlans[ixlanID] = slices.Clone(netixlans)
	return nil
}

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
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "peeringdb"

// RedisCache is a Cache stored in Redis.
//
// keys:
//
//	<prefix>:net:<asn>               JSON of the network
//	<prefix>:ixlan:<id>:ixpfx        JSON list of the prefixes of the ixlan
//	<prefix>:ixlan:<id>:netixlan     hash of netixlan ID -> JSON of the member
//	<prefix>:netixlan:<id>           ixlan ID of the member
//	<prefix>:netixlan:ip:<addr>      netixlan ID of the member having the address
type RedisCache struct {
	logger *slog.Logger
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Cache = &RedisCache{}

type RedisCacheConfig func(c *RedisCache)

// WithKeyPrefix changes the prefix of every key. defaults to "peeringdb".
func WithKeyPrefix(prefix string) RedisCacheConfig {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// WithTTL expires the records after ttl. zero keeps them forever.
func WithTTL(ttl time.Duration) RedisCacheConfig {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

func NewRedisCache(logger *slog.Logger, rdb redis.UniversalClient, configs ...RedisCacheConfig) *RedisCache {
	c := &RedisCache{
		logger: logger,
		rdb:    rdb,
		prefix: defaultKeyPrefix,
	}

	for _, f := range configs {
		f(c)
	}

	return c
}

func (c *RedisCache) networkKey(asn uint32) string {
	return fmt.Sprintf("%s:net:%d", c.prefix, asn)
}

func (c *RedisCache) prefixesKey(ixlanID int64) string {
	return fmt.Sprintf("%s:ixlan:%d:ixpfx", c.prefix, ixlanID)
}

func (c *RedisCache) membersKey(ixlanID int64) string {
	return fmt.Sprintf("%s:ixlan:%d:netixlan", c.prefix, ixlanID)
}

func (c *RedisCache) memberKey(id int64) string {
	return fmt.Sprintf("%s:netixlan:%d", c.prefix, id)
}

func (c *RedisCache) memberIPKey(ip netip.Addr) string {
	return fmt.Sprintf("%s:netixlan:ip:%s", c.prefix, ip.Unmap().String())
}

// GetNetwork implements Cache
func (c *RedisCache) GetNetwork(ctx context.Context, asn uint32) (*Network, error) {
	b, err := c.rdb.Get(ctx, c.networkKey(asn)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get network AS%d: %w", asn, err)
	}

	n := &Network{}
	if err := json.Unmarshal(b, n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network AS%d: %w", asn, err)
	}
	return n, nil
}

// ListIXLanPrefixes implements Cache
func (c *RedisCache) ListIXLanPrefixes(ctx context.Context, ixlanID int64) ([]IXLanPrefix, error) {
	prefixes := make([]IXLanPrefix, 0)

	b, err := c.rdb.Get(ctx, c.prefixesKey(ixlanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return prefixes, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prefixes of ixlan %d: %w", ixlanID, err)
	}

	if err := json.Unmarshal(b, &prefixes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prefixes of ixlan %d: %w", ixlanID, err)
	}
	return prefixes, nil
}

// ListNetworkIXLans implements Cache
func (c *RedisCache) ListNetworkIXLans(ctx context.Context, ixlanID int64) ([]NetworkIXLan, error) {
	values, err := c.rdb.HVals(ctx, c.membersKey(ixlanID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get members of ixlan %d: %w", ixlanID, err)
	}

	members := make([]NetworkIXLan, 0, len(values))
	for _, v := range values {
		n := NetworkIXLan{}
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			c.logger.Warn("ignored broken netixlan record", "ixlan", ixlanID, "error", err)
			continue
		}
		members = append(members, n)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	return members, nil
}

// GetNetworkIXLan implements Cache
func (c *RedisCache) GetNetworkIXLan(ctx context.Context, id int64) (*NetworkIXLan, error) {
	ixlanID, err := c.rdb.Get(ctx, c.memberKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get netixlan %d: %w", id, err)
	}

	v, err := c.rdb.HGet(ctx, c.membersKey(ixlanID), strconv.FormatInt(id, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get netixlan %d: %w", id, err)
	}

	n := &NetworkIXLan{}
	if err := json.Unmarshal([]byte(v), n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal netixlan %d: %w", id, err)
	}
	return n, nil
}

// FindNetworkIXLanByIP implements Cache
func (c *RedisCache) FindNetworkIXLanByIP(ctx context.Context, ip netip.Addr) (*NetworkIXLan, error) {
	id, err := c.rdb.Get(ctx, c.memberIPKey(ip)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find netixlan of %s: %w", ip, err)
	}

	return c.GetNetworkIXLan(ctx, id)
}

// PutNetworks implements Cache
func (c *RedisCache) PutNetworks(ctx context.Context, networks []Network) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, n := range networks {
			b, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to marshal network AS%d: %w", n.ASN, err)
			}
			pipe.Set(ctx, c.networkKey(n.ASN), b, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put networks: %w", err)
	}

	return nil
}

// PutIXLan implements Cache
func (c *RedisCache) PutIXLan(ctx context.Context, ixlanID int64, prefixes []IXLanPrefix, netixlans []NetworkIXLan) error {
	// the index keys of the previous members are dropped with them.
	previous, err := c.ListNetworkIXLans(ctx, ixlanID)
	if err != nil {
		return err
	}

	prefixesJSON, err := json.Marshal(prefixes)
	if err != nil {
		return fmt.Errorf("failed to marshal prefixes of ixlan %d: %w", ixlanID, err)
	}

	staleIPKeys, err := c.ownedMemberIPKeys(ctx, previous)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		stale := []string{c.membersKey(ixlanID)}
		for _, n := range previous {
			stale = append(stale, c.memberKey(n.ID))
		}
		stale = append(stale, staleIPKeys...)
		pipe.Del(ctx, stale...)

		pipe.Set(ctx, c.prefixesKey(ixlanID), prefixesJSON, c.ttl)

		for _, n := range netixlans {
			b, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to marshal netixlan %d: %w", n.ID, err)
			}

			id := strconv.FormatInt(n.ID, 10)
			pipe.HSet(ctx, c.membersKey(ixlanID), id, b)
			pipe.Set(ctx, c.memberKey(n.ID), ixlanID, c.ttl)
			for _, ip := range n.Addresses() {
				pipe.Set(ctx, c.memberIPKey(ip), id, c.ttl)
			}
		}
		if c.ttl > 0 && len(netixlans) > 0 {
			pipe.Expire(ctx, c.membersKey(ixlanID), c.ttl)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put ixlan %d: %w", ixlanID, err)
	}

	c.logger.Debug("cached ixlan", "ixlan", ixlanID, "prefixes", len(prefixes), "members", len(netixlans))
	return nil
}

// ownedMemberIPKeys returns the address index keys of members that still point at one of them.
// an address moved to a member of another ixlan keeps its index.
func (c *RedisCache) ownedMemberIPKeys(ctx context.Context, members []NetworkIXLan) ([]string, error) {
	keys := []string{}
	owners := []string{}
	for _, n := range members {
		for _, ip := range n.Addresses() {
			keys = append(keys, c.memberIPKey(ip))
			owners = append(owners, strconv.FormatInt(n.ID, 10))
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get address index: %w", err)
	}

	owned := make([]string, 0, len(keys))
	for i, v := range values {
		if id, ok := v.(string); ok && id == owners[i] {
			owned = append(owned, keys[i])
		}
	}

	return owned, nil
}

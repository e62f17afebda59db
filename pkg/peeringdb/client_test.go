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
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func _newPeeringDBServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ixpfx", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("ixlan_id"))
		assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data": [{"id": 1, "ixlan_id": 7, "protocol": "IPv4", "prefix": "203.0.113.0/24"}]}`))
	})
	mux.HandleFunc("/api/netixlan", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [
			{"id": 100, "net_id": 10, "ix_id": 3, "ixlan_id": 7, "asn": 65001, "ipaddr4": "203.0.113.1", "ipaddr6": null, "is_rs_peer": true, "speed": 10000},
			{"id": 101, "net_id": 11, "ix_id": 3, "ixlan_id": 7, "asn": 65002, "ipaddr4": "203.0.113.2", "ipaddr6": "2001:db8::2", "is_rs_peer": false, "speed": 1000}
		]}`))
	})
	mux.HandleFunc("/api/net", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "64500,65001,65002", r.URL.Query().Get("asn__in"))
		_, _ = w.Write([]byte(`{"data": [
			{"id": 10, "asn": 65001, "name": "Example One", "irr_as_set": "AS-ONE", "info_prefixes4": 100, "info_prefixes6": 10},
			{"id": 11, "asn": 65002, "name": "Example Two", "irr_as_set": "", "info_prefixes4": 5, "info_prefixes6": 0}
		]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Sync(t *testing.T) {
	server := _newPeeringDBServer(t)
	cache := NewMemoryCache()
	c := NewClient(discardLogger(), cache, WithBaseURL(server.URL), WithAPIKey("secret"))

	result, err := c.Sync(context.Background(), []int64{7}, []uint32{64500, 65001})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{IXLans: 1, Prefixes: 1, NetworkIXLans: 2, Networks: 2}, result)

	prefixes, err := cache.ListIXLanPrefixes(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("203.0.113.0/24"), prefixes[0].Prefix)

	m, err := cache.FindNetworkIXLanByIP(context.Background(), netip.MustParseAddr("203.0.113.1"))
	require.NoError(t, err)
	assert.True(t, m.IsRSPeer)
	assert.False(t, m.IPAddr6.IsValid())

	n, err := cache.GetNetwork(context.Background(), 65002)
	require.NoError(t, err)
	assert.Equal(t, "Example Two", n.Name)
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(discardLogger(), NewMemoryCache(), WithBaseURL(server.URL))
	_, err := c.Sync(context.Background(), []int64{7}, nil)
	assert.ErrorContains(t, err, "429")
}

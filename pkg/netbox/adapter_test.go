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

package netbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const getBGPNeighborsResponse = `{
  "get_bgp_neighbors": {
    "global": {
      "router_id": "192.0.2.254",
      "peers": {
        "203.0.113.1": {"local_as": 65000, "remote_as": 65001, "remote_id": "203.0.113.1", "is_up": true, "is_enabled": true, "description": "", "uptime": 100, "address_family": {}},
        "203.0.113.2": {"local_as": 65000, "is_up": false, "is_enabled": true}
      }
    }
  }
}`

const getBGPNeighborsDetailResponse = `{
  "get_bgp_neighbors_detail": {
    "global": {
      "65001": [
        {"up": true, "local_as": 65000, "remote_as": 65001, "remote_address": "203.0.113.1",
         "connection_state": "Established", "received_prefix_count": 10, "advertised_prefix_count": 5}
      ]
    }
  }
}`

func _newTestAdapter(t *testing.T, handler http.HandlerFunc, configs ...AdapterConfig) *Adapter {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdapter(logger, NewClient(logger, server.URL+"/", WithToken("secret")), configs...)
}

func TestAdapter_BGPNeighbors(t *testing.T) {
	a := _newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dcim/devices/42/napalm/", r.URL.Path)
		assert.Equal(t, MethodGetBGPNeighbors, r.URL.Query().Get("method"))
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(getBGPNeighborsResponse))
	})
	router := &peering.Router{Hostname: "rt1", UseNetBox: true, NetBoxDeviceID: 42}

	neighbors, err := a.BGPNeighbors(context.Background(), router)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.254", neighbors["global"].RouterID)

	flat := neighbors.Flatten(slog.New(slog.NewTextHandler(io.Discard, nil)), router.Hostname)
	require.Len(t, flat, 1)
	assert.Equal(t, netip.MustParseAddr("203.0.113.1"), flat[0].IPAddress)
	assert.Equal(t, uint32(65001), flat[0].RemoteASN)
}

func TestAdapter_BGPNeighborsDetail(t *testing.T) {
	a := _newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MethodGetBGPNeighborsDetail, r.URL.Query().Get("method"))
		_, _ = w.Write([]byte(getBGPNeighborsDetailResponse))
	})

	details, err := a.BGPNeighborsDetail(context.Background(), &peering.Router{NetBoxDeviceID: 42})
	require.NoError(t, err)

	detail, ok := details.Find(netip.MustParseAddr("203.0.113.1"))
	require.True(t, ok)
	assert.Equal(t, peering.BGPStateEstablished, detail.SessionState().State)
}

func TestAdapter_Errors(t *testing.T) {
	a := _newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "NAPALM is not installed"}`, http.StatusServiceUnavailable)
	})

	_, err := a.BGPNeighbors(context.Background(), &peering.Router{NetBoxDeviceID: 42})
	assert.ErrorContains(t, err, "503")

	_, err = a.BGPNeighbors(context.Background(), &peering.Router{})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestAdapter_MissingMethodResult(t *testing.T) {
	a := _newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"get_facts": {}}`))
	})

	_, err := a.BGPNeighborsDetail(context.Background(), &peering.Router{NetBoxDeviceID: 1})
	assert.Error(t, err)
}

func TestAdapter_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}

	a := _newTestAdapter(t, slow, WithTimeout(50*time.Millisecond))
	_, err := a.BGPNeighbors(context.Background(), &peering.Router{NetBoxDeviceID: 42})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the router timeout wins over the adapter default.
	a = _newTestAdapter(t, slow, WithTimeout(time.Hour))
	_, err = a.BGPNeighbors(context.Background(), &peering.Router{NetBoxDeviceID: 42, Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

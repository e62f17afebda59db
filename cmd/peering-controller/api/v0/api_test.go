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

package v0

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sakura-internet/peering-session-controller/pkg/controller"
	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	e       *echo.Echo
	ctrler  *controller.Controller
	store   *store.MemoryStore
	adapter *device.FakeAdapter
	cache   *peeringdb.MemoryCache
}

func _newTestServer() *testServer {
	s := &testServer{
		store:   store.NewMemoryStore(),
		adapter: device.NewFakeAdapter(),
		cache:   peeringdb.NewMemoryCache(),
	}
	s.ctrler = controller.NewController(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		controller.WithStore(s.store),
		controller.WithDeviceAdapter(s.adapter),
		controller.WithPeeringDBCache(s.cache),
	)

	s.e = echo.New()
	s.e.Use(UseController(s.ctrler))
	RegisterRoutes(s.e)

	return s
}

func (s *testServer) do(t *testing.T, method, path string, out any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func int64Ptr(v int64) *int64 { return &v }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func TestExtractController_WithoutMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/status", nil), httptest.NewRecorder())

	_, err := ExtractController(c)
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	s := _newTestServer()

	rec := s.do(t, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.ctrler.RunCycle(context.Background())

	rec = s.do(t, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodHead, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetControllerStatus(t *testing.T) {
	s := _newTestServer()
	s.ctrler.RunCycle(context.Background())

	status := controller.Status{}
	rec := s.do(t, http.MethodGet, "/status", &status)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, controller.StateIdle, status.State)
	assert.Equal(t, jobs.StatusCompleted, status.Result)
	assert.NotNil(t, status.LastCycleCompleted)
}

func TestPollBGPGroup(t *testing.T) {
	s := _newTestServer()

	router := &peering.Router{
		Name:        "r1",
		Hostname:    "r1.example.net",
		DeviceState: peering.DeviceStateEnabled,
		Platform:    &peering.Platform{Name: "frr", Driver: "frr"},
	}
	s.store.AddRouter(router)
	group := &peering.BGPGroup{Name: "transit", Slug: "transit", CheckBGPSessionStates: true}
	s.store.AddBGPGroup(group)
	as := peering.NewAutonomousSystem(65001, "test")
	s.store.AddAutonomousSystem(as)
	session := &peering.DirectPeeringSession{
		BGPSession: peering.BGPSession{
			AutonomousSystemID: as.ID,
			IPAddress:          netip.MustParseAddr("203.0.113.1"),
			BGPState:           peering.BGPStateIdle,
		},
		BGPGroupID: int64Ptr(group.ID),
		RouterID:   int64Ptr(router.ID),
	}
	s.store.AddDirectPeeringSession(session)
	s.adapter.SetNeighborDetail(router.ID, device.NeighborDetail{
		RemoteAS:        65001,
		RemoteAddress:   "203.0.113.1",
		ConnectionState: "Established",
	})

	resp := PollResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/bgp-groups/"+itoa(group.ID)+"/poll", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Polled)
	assert.Equal(t, "poll-bgp-group", resp.Job)
	assert.Equal(t, jobs.StatusCompleted, resp.Status)

	updated, err := s.store.GetDirectPeeringSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateEstablished, updated.BGPState)
}

func TestPollEndpoints_Errors(t *testing.T) {
	s := _newTestServer()

	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{name: "invalid group id", path: "/api/v0/bgp-groups/abc/poll", expected: http.StatusBadRequest},
		{name: "negative group id", path: "/api/v0/bgp-groups/-1/poll", expected: http.StatusBadRequest},
		{name: "missing group", path: "/api/v0/bgp-groups/42/poll", expected: http.StatusNotFound},
		{name: "missing ixp", path: "/api/v0/internet-exchanges/42/poll", expected: http.StatusNotFound},
		{name: "missing connection", path: "/api/v0/connections/42/import", expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ErrorResponse{}
			rec := s.do(t, http.MethodPost, tt.path, &resp)
			assert.Equal(t, tt.expected, rec.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPollInternetExchange_CheckDisabled(t *testing.T) {
	s := _newTestServer()
	ixp := &peering.InternetExchange{Name: "ix", Slug: "ix"}
	s.store.AddInternetExchange(ixp)

	resp := PollResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/internet-exchanges/"+itoa(ixp.ID)+"/poll", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Polled)
}

func TestImportSessions_NotLinked(t *testing.T) {
	s := _newTestServer()
	ixp := &peering.InternetExchange{Name: "ix", Slug: "ix"}
	s.store.AddInternetExchange(ixp)
	conn := &peering.Connection{InternetExchangeID: ixp.ID}
	s.store.AddConnection(conn)

	resp := ImportSessionsResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/connections/"+itoa(conn.ID)+"/import", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, resp.Sessions)
	assert.Zero(t, resp.AutonomousSystems)
	assert.Empty(t, resp.Ignored)
}

func TestGetAvailablePeers_NotLinked(t *testing.T) {
	s := _newTestServer()
	ixp := &peering.InternetExchange{Name: "ix", Slug: "ix"}
	s.store.AddInternetExchange(ixp)

	rec := s.do(t, http.MethodGet, "/api/v0/internet-exchanges/"+itoa(ixp.ID)+"/available-peers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetSessionAbandoned(t *testing.T) {
	s := _newTestServer()
	ixp := &peering.InternetExchange{Name: "ix", Slug: "ix", PeeringDBIXLanID: int64Ptr(100), CheckBGPSessionStates: true}
	s.store.AddInternetExchange(ixp)
	conn := &peering.Connection{InternetExchangeID: ixp.ID}
	s.store.AddConnection(conn)
	as := peering.NewAutonomousSystem(65001, "test")
	s.store.AddAutonomousSystem(as)
	session := &peering.InternetExchangePeeringSession{
		BGPSession: peering.BGPSession{
			AutonomousSystemID: as.ID,
			IPAddress:          netip.MustParseAddr("192.0.2.1"),
			BGPState:           peering.BGPStateIdle,
		},
		ConnectionID: conn.ID,
	}
	s.store.AddInternetExchangePeeringSession(session)
	require.NoError(t, s.cache.PutNetworks(context.Background(), []peeringdb.Network{{ID: 1, ASN: 65001, Name: "test"}}))

	resp := AbandonedResponse{}
	rec := s.do(t, http.MethodGet, "/api/v0/internet-exchange-sessions/"+itoa(session.ID)+"/abandoned", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Abandoned)

	rec = s.do(t, http.MethodGet, "/api/v0/internet-exchange-sessions/4242/abandoned", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSynchronizeAutonomousSystem(t *testing.T) {
	s := _newTestServer()
	as := peering.NewAutonomousSystem(65001, "test")
	s.store.AddAutonomousSystem(as)

	rec := s.do(t, http.MethodPost, "/api/v0/autonomous-systems/AS65001/sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v0/autonomous-systems/65009/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := SynchronizeResponse{}
	rec = s.do(t, http.MethodPost, "/api/v0/autonomous-systems/65001/sync", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Synchronized)

	require.NoError(t, s.cache.PutNetworks(context.Background(), []peeringdb.Network{{ID: 1, ASN: 65001, Name: "Example"}}))
	rec = s.do(t, http.MethodPost, "/api/v0/autonomous-systems/65001/sync", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Synchronized)
}

type ixpSetup struct {
	router  *peering.Router
	ixp     *peering.InternetExchange
	conn    *peering.Connection
	as      *peering.AutonomousSystem
	session *peering.InternetExchangePeeringSession
}

func (s *testServer) addIXP(ixlanID *int64) ixpSetup {
	x := ixpSetup{
		router: &peering.Router{
			Name:        "r1",
			Hostname:    "r1.example.net",
			DeviceState: peering.DeviceStateEnabled,
			Platform:    &peering.Platform{Name: "frr", Driver: "frr"},
		},
		ixp: &peering.InternetExchange{Name: "ix", Slug: "ix", LocalASN: 64496, PeeringDBIXLanID: ixlanID, CheckBGPSessionStates: true},
		as:  peering.NewAutonomousSystem(65001, "test"),
	}
	s.store.AddRouter(x.router)
	s.store.AddInternetExchange(x.ixp)
	s.store.AddAutonomousSystem(x.as)

	x.conn = &peering.Connection{InternetExchangeID: x.ixp.ID, RouterID: int64Ptr(x.router.ID)}
	s.store.AddConnection(x.conn)
	x.session = &peering.InternetExchangePeeringSession{
		BGPSession: peering.BGPSession{
			AutonomousSystemID: x.as.ID,
			IPAddress:          netip.MustParseAddr("192.0.2.1"),
			BGPState:           peering.BGPStateIdle,
		},
		ConnectionID: x.conn.ID,
	}
	s.store.AddInternetExchangePeeringSession(x.session)

	return x
}

func TestPollDirectPeeringSession(t *testing.T) {
	s := _newTestServer()

	router := &peering.Router{
		Name:        "r1",
		Hostname:    "r1.example.net",
		DeviceState: peering.DeviceStateEnabled,
		Platform:    &peering.Platform{Name: "frr", Driver: "frr"},
	}
	s.store.AddRouter(router)
	as := peering.NewAutonomousSystem(65001, "test")
	s.store.AddAutonomousSystem(as)
	session := &peering.DirectPeeringSession{
		BGPSession: peering.BGPSession{AutonomousSystemID: as.ID, IPAddress: netip.MustParseAddr("203.0.113.1")},
		RouterID:   int64Ptr(router.ID),
	}
	s.store.AddDirectPeeringSession(session)
	s.adapter.SetNeighborDetail(router.ID, device.NeighborDetail{
		RemoteAS:        65001,
		RemoteAddress:   "203.0.113.1",
		ConnectionState: "Established",
	})

	resp := PollResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/direct-sessions/"+itoa(session.ID)+"/poll", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Polled)
	assert.Equal(t, "poll-direct-peering-session", resp.Job)

	updated, err := s.store.GetDirectPeeringSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateEstablished, updated.BGPState)

	rec = s.do(t, http.MethodPost, "/api/v0/direct-sessions/4242/poll", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPollInternetExchangePeeringSession(t *testing.T) {
	s := _newTestServer()
	x := s.addIXP(nil)
	s.adapter.SetNeighborDetail(x.router.ID, device.NeighborDetail{
		RemoteAS:        65001,
		RemoteAddress:   "192.0.2.1",
		ConnectionState: "Active",
	})

	resp := PollResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/internet-exchange-sessions/"+itoa(x.session.ID)+"/poll", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Polled)

	updated, err := s.store.GetInternetExchangePeeringSession(context.Background(), x.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateActive, updated.BGPState)

	rec = s.do(t, http.MethodPost, "/api/v0/internet-exchange-sessions/abc/poll", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkInternetExchange(t *testing.T) {
	s := _newTestServer()
	x := s.addIXP(nil)

	resp := LinkResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/internet-exchanges/"+itoa(x.ixp.ID)+"/link", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Linked)
	assert.Nil(t, resp.IXLanID)

	require.NoError(t, s.cache.PutIXLan(context.Background(), 100, nil, []peeringdb.NetworkIXLan{
		{ID: 10, IXLanID: 100, ASN: 64496, IPAddr4: netip.MustParseAddr("192.0.2.254")},
	}))
	x.conn.PeeringDBNetIXLanID = int64Ptr(10)
	s.store.AddConnection(x.conn)

	resp = LinkResponse{}
	rec = s.do(t, http.MethodPost, "/api/v0/internet-exchanges/"+itoa(x.ixp.ID)+"/link", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Linked)
	require.NotNil(t, resp.IXLanID)
	assert.Equal(t, int64(100), *resp.IXLanID)

	rec = s.do(t, http.MethodPost, "/api/v0/internet-exchanges/4242/link", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionProposals(t *testing.T) {
	s := _newTestServer()
	x := s.addIXP(int64Ptr(100))
	require.NoError(t, s.cache.PutIXLan(context.Background(), 100, nil, []peeringdb.NetworkIXLan{
		{ID: 20, IXLanID: 100, ASN: 65001, IPAddr4: netip.MustParseAddr("192.0.2.1"), IPAddr6: netip.MustParseAddr("2001:db8::1")},
	}))

	proposals := []peering.InternetExchangePeeringSession{}
	rec := s.do(t, http.MethodGet, "/api/v0/netixlans/20/proposals", &proposals)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proposals, 1)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), proposals[0].IPAddress)
	assert.Equal(t, x.conn.ID, proposals[0].ConnectionID)

	rec = s.do(t, http.MethodGet, "/api/v0/netixlans/999/proposals", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestResolveAutonomousSystem(t *testing.T) {
	s := _newTestServer()

	resp := ResolveResponse{}
	rec := s.do(t, http.MethodPost, "/api/v0/autonomous-systems/65001/resolve", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, controller.ResolutionUnresolved, resp.Resolution)
	assert.Nil(t, resp.AutonomousSystem)

	require.NoError(t, s.cache.PutNetworks(context.Background(), []peeringdb.Network{{ID: 1, ASN: 65001, Name: "Example"}}))

	resp = ResolveResponse{}
	rec = s.do(t, http.MethodPost, "/api/v0/autonomous-systems/65001/resolve", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, controller.ResolutionCreated, resp.Resolution)
	require.NotNil(t, resp.AutonomousSystem)
	assert.Equal(t, "Example", resp.AutonomousSystem.Name)

	resp = ResolveResponse{}
	s.do(t, http.MethodPost, "/api/v0/autonomous-systems/65001/resolve", &resp)
	assert.Equal(t, controller.ResolutionExisting, resp.Resolution)

	rec = s.do(t, http.MethodPost, "/api/v0/autonomous-systems/0/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissingPeeringSessions(t *testing.T) {
	s := _newTestServer()
	x := s.addIXP(int64Ptr(100))
	require.NoError(t, s.cache.PutIXLan(context.Background(), 100, nil, []peeringdb.NetworkIXLan{
		{ID: 20, IXLanID: 100, ASN: 65001, IPAddr4: netip.MustParseAddr("192.0.2.1"), IPAddr6: netip.MustParseAddr("2001:db8::1")},
	}))

	missing := []peeringdb.NetworkIXLan{}
	rec := s.do(t, http.MethodGet, "/api/v0/autonomous-systems/65001/missing-sessions", &missing)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, missing, 1)
	assert.Equal(t, int64(20), missing[0].ID)

	missing = []peeringdb.NetworkIXLan{}
	rec = s.do(t, http.MethodGet, "/api/v0/autonomous-systems/65001/missing-sessions?internet_exchange="+itoa(x.ixp.ID), &missing)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, missing, 1)

	rec = s.do(t, http.MethodGet, "/api/v0/autonomous-systems/65001/missing-sessions?internet_exchange=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v0/autonomous-systems/65001/missing-sessions?internet_exchange=4242", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterRoutes(t *testing.T) {
	s := _newTestServer()

	routes := make(map[string]bool)
	for _, r := range s.e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, expected := range []string{
		"POST /api/v0/direct-sessions/:id/poll",
		"POST /api/v0/internet-exchange-sessions/:id/poll",
		"POST /api/v0/internet-exchanges/:id/link",
		"GET /api/v0/netixlans/:id/proposals",
		"POST /api/v0/autonomous-systems/:asn/resolve",
		"GET /api/v0/autonomous-systems/:asn/missing-sessions",
	} {
		assert.True(t, routes[expected], expected)
	}
}

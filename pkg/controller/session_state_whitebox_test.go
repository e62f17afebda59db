package controller

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type groupFixture struct {
	group   *peering.BGPGroup
	router  *peering.Router
	session *peering.DirectPeeringSession
}

func _newGroupFixture(d *fakeDeps, state peering.BGPState) groupFixture {
	f := groupFixture{
		group:  &peering.BGPGroup{Name: "transit", Slug: "transit", LocalASN: 64496, CheckBGPSessionStates: true},
		router: d.addRouter("r1"),
	}
	d.store.AddBGPGroup(f.group)
	as := d.addAutonomousSystem(65001)

	f.session = &peering.DirectPeeringSession{
		BGPSession: peering.BGPSession{
			AutonomousSystemID: as.ID,
			IPAddress:          netip.MustParseAddr("203.0.113.1"),
			BGPState:           state,
		},
		BGPGroupID:   int64Ptr(f.group.ID),
		RouterID:     int64Ptr(f.router.ID),
		Relationship: peering.RelationshipTransitProvider,
	}
	d.store.AddDirectPeeringSession(f.session)

	return f
}

func TestPollBGPGroup_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)

	// the router reports one valid and one malformed neighbor.
	d.adapter.Neighbors[f.router.ID] = device.NeighborsByVRF{
		"default": {
			Peers: map[string]device.PeerInfo{
				"203.0.113.1": {RemoteAS: func() *uint32 { v := uint32(65001); return &v }(), IsUp: true},
				"203.0.113.2": {},
			},
		},
	}
	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{
		RemoteAS:              65001,
		RemoteAddress:         "203.0.113.1",
		ConnectionState:       "Established",
		ReceivedPrefixCount:   count(10),
		AdvertisedPrefixCount: count(5),
	})

	neighbors, err := d.adapter.BGPNeighbors(ctx, f.router)
	require.NoError(t, err)
	assert.Equal(t, []device.Neighbor{
		{IPAddress: netip.MustParseAddr("203.0.113.1"), RemoteASN: 65001},
	}, neighbors.Flatten(c.logger, f.router.Hostname))

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	require.NoError(t, err)
	assert.True(t, polled)

	s, err := d.store.GetDirectPeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateEstablished, s.BGPState)
	assert.Equal(t, uint64(10), s.ReceivedPrefixCount)
	assert.Equal(t, uint64(5), s.AdvertisedPrefixCount)
	require.NotNil(t, s.LastEstablishedState)
	assert.Equal(t, d.now, *s.LastEstablishedState)

	g, err := d.store.GetBGPGroup(ctx, f.group.ID)
	require.NoError(t, err)
	require.NotNil(t, g.BGPSessionStatesUpdate)
	assert.Equal(t, d.now, *g.BGPSessionStatesUpdate)
}

func TestPollBGPGroup_DoesNotRestampEstablished(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)
	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{
		RemoteAS: 65001, RemoteAddress: "203.0.113.1", ConnectionState: "established",
	})

	first := d.now
	_, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	require.NoError(t, err)

	d.now = first.Add(time.Hour)
	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	require.NoError(t, err)
	assert.True(t, polled)

	s, err := d.store.GetDirectPeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *s.LastEstablishedState)

	g, err := d.store.GetBGPGroup(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, d.now, *g.BGPSessionStatesUpdate)
}

func TestPollBGPGroup_ClampsPrefixCounts(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateEstablished)

	stored := *f.session
	stored.ReceivedPrefixCount = 42
	stored.AdvertisedPrefixCount = 42
	require.NoError(t, d.store.UpdateDirectPeeringSessionState(ctx, &stored))

	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{
		RemoteAS: 65001, RemoteAddress: "203.0.113.1", ConnectionState: "Active",
		ReceivedPrefixCount: count(-1),
	})

	_, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	require.NoError(t, err)

	s, err := d.store.GetDirectPeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateActive, s.BGPState)
	assert.Zero(t, s.ReceivedPrefixCount)
	assert.Zero(t, s.AdvertisedPrefixCount)
}

func TestPollBGPGroup_SkipsWhenCheckDisabled(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)
	f.group.CheckBGPSessionStates = false
	d.store.AddBGPGroup(f.group)

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	assert.NoError(t, err)
	assert.False(t, polled)
	assert.Zero(t, d.adapter.DetailsCalls[f.router.ID])
}

func TestPollBGPGroup_SkipsWithoutSessions(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	group := &peering.BGPGroup{Name: "empty", Slug: "empty", CheckBGPSessionStates: true}
	d.store.AddBGPGroup(group)

	polled, err := c.PollBGPGroup(ctx, nil, group.ID)
	assert.NoError(t, err)
	assert.False(t, polled)
	assert.Nil(t, group.BGPSessionStatesUpdate)
}

func TestPollBGPGroup_QueriesEachRouterOnce(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)

	for _, ip := range []string{"203.0.113.2", "203.0.113.3"} {
		d.store.AddDirectPeeringSession(&peering.DirectPeeringSession{
			BGPSession: peering.BGPSession{AutonomousSystemID: f.session.AutonomousSystemID, IPAddress: netip.MustParseAddr(ip)},
			BGPGroupID: int64Ptr(f.group.ID),
			RouterID:   int64Ptr(f.router.ID),
		})
		d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{RemoteAS: 65001, RemoteAddress: ip, ConnectionState: "Established"})
	}

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	require.NoError(t, err)
	assert.True(t, polled)
	assert.Equal(t, 1, d.adapter.DetailsCalls[f.router.ID])

	sessions, err := d.store.ListDirectPeeringSessions(ctx, f.group.ID, nil)
	require.NoError(t, err)
	states := make(map[string]peering.BGPState)
	for _, s := range sessions {
		states[s.IPAddress.String()] = s.BGPState
	}
	assert.Equal(t, map[string]peering.BGPState{
		// no live neighbor, the previous state is kept.
		"203.0.113.1": peering.BGPStateIdle,
		"203.0.113.2": peering.BGPStateEstablished,
		"203.0.113.3": peering.BGPStateEstablished,
	}, states)
}

func TestPollBGPGroup_FailedRouterDoesNotAbortPoll(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)

	broken := d.addRouter("r2")
	d.store.AddDirectPeeringSession(&peering.DirectPeeringSession{
		BGPSession: peering.BGPSession{AutonomousSystemID: f.session.AutonomousSystemID, IPAddress: netip.MustParseAddr("198.51.100.1")},
		BGPGroupID: int64Ptr(f.group.ID),
		RouterID:   int64Ptr(broken.ID),
	})
	d.adapter.Errors[broken.ID] = errors.New("connection refused")
	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{RemoteAS: 65001, RemoteAddress: "203.0.113.1", ConnectionState: "Established"})

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	require.NoError(t, err)
	assert.True(t, polled)
	assert.Equal(t, 1, d.adapter.DetailsCalls[broken.ID])

	s, err := d.store.GetDirectPeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateEstablished, s.BGPState)
}

func TestPollBGPGroup_NoDataLeavesTimestamp(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)
	d.adapter.Errors[f.router.ID] = errors.New("timeout")

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	assert.NoError(t, err)
	assert.False(t, polled)

	g, err := d.store.GetBGPGroup(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Nil(t, g.BGPSessionStatesUpdate)
}

func TestPollBGPGroup_RollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)
	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{RemoteAS: 65001, RemoteAddress: "203.0.113.1", ConnectionState: "Established"})

	d.store.SetWriteHook(func(op string) error {
		if op == "SetBGPGroupPolled" {
			return errors.New("connection lost")
		}
		return nil
	})

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID)
	assert.Error(t, err)
	assert.False(t, polled)

	s, err := d.store.GetDirectPeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateIdle, s.BGPState)
	assert.Nil(t, s.LastEstablishedState)
}

func TestPollBGPGroup_UnusableRouterIsReported(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)
	f.router.Platform = nil
	d.store.AddRouter(f.router)

	result := jobs.NewResult("test")
	polled, err := c.PollBGPGroup(ctx, result, f.group.ID)
	assert.NoError(t, err)
	assert.False(t, polled)
	assert.Equal(t, jobs.StatusErrored, result.Status())
	assert.Zero(t, d.adapter.DetailsCalls[f.router.ID])
}

func TestPollBGPGroup_ScopedToRouters(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)
	other := d.addRouter("r2")

	polled, err := c.PollBGPGroup(ctx, nil, f.group.ID, other.ID)
	assert.NoError(t, err)
	assert.False(t, polled)
	assert.Zero(t, d.adapter.DetailsCalls[f.router.ID])
}

type ixpFixture struct {
	ixp     *peering.InternetExchange
	router  *peering.Router
	conn    *peering.Connection
	as      *peering.AutonomousSystem
	session *peering.InternetExchangePeeringSession
}

func _newIXPFixture(d *fakeDeps) ixpFixture {
	f := ixpFixture{
		ixp:    &peering.InternetExchange{Name: "IX", Slug: "ix", LocalASN: 64496, CheckBGPSessionStates: true},
		router: d.addRouter("r1"),
		as:     d.addAutonomousSystem(65001),
	}
	d.store.AddInternetExchange(f.ixp)

	f.conn = &peering.Connection{
		InternetExchangeID: f.ixp.ID,
		RouterID:           int64Ptr(f.router.ID),
		IPv4Address:        netip.MustParseAddr("192.0.2.254"),
	}
	d.store.AddConnection(f.conn)

	f.session = &peering.InternetExchangePeeringSession{
		BGPSession:   peering.BGPSession{AutonomousSystemID: f.as.ID, IPAddress: netip.MustParseAddr("192.0.2.1"), BGPState: peering.BGPStateActive},
		ConnectionID: f.conn.ID,
	}
	d.store.AddInternetExchangePeeringSession(f.session)

	return f
}

func TestPollInternetExchange(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newIXPFixture(d)

	// a second router on the IXP sees the same address on its own connection, without session.
	r2 := d.addRouter("r2")
	d.store.AddConnection(&peering.Connection{InternetExchangeID: f.ixp.ID, RouterID: int64Ptr(r2.ID)})

	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{
		RemoteAS: 65001, RemoteAddress: "192.0.2.1", ConnectionState: "Established", ReceivedPrefixCount: count(3),
	})
	d.adapter.SetNeighborDetail(r2.ID, device.NeighborDetail{
		RemoteAS: 65001, RemoteAddress: "192.0.2.1", ConnectionState: "Idle",
	})

	polled, err := c.PollInternetExchange(ctx, nil, f.ixp.ID)
	require.NoError(t, err)
	assert.True(t, polled)
	assert.Equal(t, 1, d.adapter.DetailsCalls[f.router.ID])
	assert.Equal(t, 1, d.adapter.DetailsCalls[r2.ID])

	s, err := d.store.GetInternetExchangePeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateEstablished, s.BGPState)
	assert.Equal(t, uint64(3), s.ReceivedPrefixCount)
	assert.Equal(t, d.now, *s.LastEstablishedState)

	ixp, err := d.store.GetInternetExchange(ctx, f.ixp.ID)
	require.NoError(t, err)
	assert.Equal(t, d.now, *ixp.BGPSessionStatesUpdate)
}

func TestPollInternetExchange_Skips(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newIXPFixture(d)

	f.ixp.CheckBGPSessionStates = false
	d.store.AddInternetExchange(f.ixp)
	polled, err := c.PollInternetExchange(ctx, nil, f.ixp.ID)
	assert.NoError(t, err)
	assert.False(t, polled)

	f.ixp.CheckBGPSessionStates = true
	d.store.AddInternetExchange(f.ixp)
	f.conn.RouterID = nil
	d.store.AddConnection(f.conn)
	polled, err = c.PollInternetExchange(ctx, nil, f.ixp.ID)
	assert.NoError(t, err)
	assert.False(t, polled)

	assert.Zero(t, d.adapter.DetailsCalls[f.router.ID])
}

func TestPollInternetExchange_RollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newIXPFixture(d)
	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{RemoteAS: 65001, RemoteAddress: "192.0.2.1", ConnectionState: "Established"})

	d.store.SetWriteHook(func(op string) error {
		if op == "UpdateInternetExchangePeeringSessionState" {
			return errors.New("serialization failure")
		}
		return nil
	})

	_, err := c.PollInternetExchange(ctx, nil, f.ixp.ID)
	assert.Error(t, err)

	ixp, err := d.store.GetInternetExchange(ctx, f.ixp.ID)
	require.NoError(t, err)
	assert.Nil(t, ixp.BGPSessionStatesUpdate)
}

func TestPollDirectPeeringSession(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newGroupFixture(d, peering.BGPStateIdle)

	// unknown to the router.
	polled, err := c.PollDirectPeeringSession(ctx, nil, f.session.ID)
	assert.NoError(t, err)
	assert.False(t, polled)

	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{
		RemoteAS: 65001, RemoteAddress: "203.0.113.1", ConnectionState: "Established", AdvertisedPrefixCount: count(7),
	})
	polled, err = c.PollDirectPeeringSession(ctx, nil, f.session.ID)
	require.NoError(t, err)
	assert.True(t, polled)

	s, err := d.store.GetDirectPeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateEstablished, s.BGPState)
	assert.Equal(t, uint64(7), s.AdvertisedPrefixCount)
	assert.Equal(t, d.now, *s.LastEstablishedState)

	f.group.CheckBGPSessionStates = false
	d.store.AddBGPGroup(f.group)
	polled, err = c.PollDirectPeeringSession(ctx, nil, f.session.ID)
	assert.NoError(t, err)
	assert.False(t, polled)
}

func TestPollInternetExchangePeeringSession(t *testing.T) {
	ctx := context.Background()
	c, d := _newFakeController()
	f := _newIXPFixture(d)
	d.adapter.SetNeighborDetail(f.router.ID, device.NeighborDetail{RemoteAS: 65001, RemoteAddress: "192.0.2.1", ConnectionState: "OpenSent"})

	polled, err := c.PollInternetExchangePeeringSession(ctx, nil, f.session.ID)
	require.NoError(t, err)
	assert.True(t, polled)

	s, err := d.store.GetInternetExchangePeeringSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, peering.BGPStateOpenSent, s.BGPState)
	assert.Nil(t, s.LastEstablishedState)

	f.conn.RouterID = nil
	d.store.AddConnection(f.conn)
	polled, err = c.PollInternetExchangePeeringSession(ctx, nil, f.session.ID)
	assert.NoError(t, err)
	assert.False(t, polled)
}

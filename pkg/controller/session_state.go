package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// PollBGPGroup updates the state of the direct sessions of the group from the live BGP state of their routers.
// the poll is limited to the given routers if any.
// it returns false when the poll was skipped or no router could be queried.
// every update of the poll and the last-poll timestamp of the group are committed in one transaction.
func (c *Controller) PollBGPGroup(ctx context.Context, sink jobs.Sink, groupID int64, routerIDs ...int64) (bool, error) {
	group, err := c.store.GetBGPGroup(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to get bgp group %d: %w", groupID, err)
	}
	logger := c.logger.With("bgp_group", group.Slug)

	if !group.CheckBGPSessionStates {
		logger.Debug("ignoring session states", "reason", "check disabled")
		pollCounterVec.WithLabelValues(scopeBGPGroup, pollResultSkipped).Inc()
		return false, nil
	}

	sessions, err := c.store.ListDirectPeeringSessions(ctx, group.ID, routerIDs)
	if err != nil {
		return false, fmt.Errorf("failed to list sessions of bgp group %s: %w", group.Slug, err)
	}
	if len(sessions) == 0 {
		logger.Debug("ignoring session states", "reason", "no sessions to check")
		pollCounterVec.WithLabelValues(scopeBGPGroup, pollResultSkipped).Inc()
		return false, nil
	}

	routers := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, s := range sessions {
		if s.RouterID == nil || seen[*s.RouterID] {
			continue
		}
		seen[*s.RouterID] = true
		routers = append(routers, *s.RouterID)
	}

	polled, err := c.fetchNeighborsDetail(ctx, sink, routers, logger)
	if err != nil {
		pollCounterVec.WithLabelValues(scopeBGPGroup, pollResultFailed).Inc()
		return false, err
	}
	if len(polled) == 0 {
		logger.Warn("no bgp neighbor data retrieved from the routers of the group")
		pollCounterVec.WithLabelValues(scopeBGPGroup, pollResultFailed).Inc()
		return false, nil
	}

	now := c.now()
	updated := 0
	err = c.store.InTx(ctx, func(q store.Queries) error {
		for _, r := range polled {
			for _, detail := range r.details.Flatten() {
				ip, ok := neighborAddress(detail, r.router, logger)
				if !ok {
					continue
				}

				s, err := q.FindDirectPeeringSession(ctx, group.ID, r.router.ID, ip)
				if errors.Is(err, store.ErrNotFound) {
					logger.Debug("no session for the bgp neighbor", "router", r.router.Hostname, "ip", ip)
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to find session %s on %s: %w", ip, r.router.Hostname, err)
				}

				applyNeighborDetail(&s.BGPSession, detail, now, logger)
				if err := q.UpdateDirectPeeringSessionState(ctx, s); err != nil {
					return fmt.Errorf("failed to update session %s: %w", s, err)
				}
				updated++
			}
		}

		return q.SetBGPGroupPolled(ctx, group.ID, now)
	})
	if err != nil {
		logger.Error("failed to update session states", "error", err)
		pollCounterVec.WithLabelValues(scopeBGPGroup, pollResultFailed).Inc()
		return false, fmt.Errorf("failed to update session states of bgp group %s: %w", group.Slug, err)
	}

	logger.Info("polled session states", "routers", len(polled), "updated", updated)
	pollCounterVec.WithLabelValues(scopeBGPGroup, pollResultUpdated).Inc()
	sessionStateUpdateCounterVec.WithLabelValues(sessionKindDirect).Add(float64(updated))
	lastPollGaugeVec.WithLabelValues(scopeBGPGroup).Set(float64(now.Unix()))
	return true, nil
}

// PollInternetExchange updates the state of the sessions of the IXP from the live BGP state of
// the routers attached to its connections.
// it returns false when the poll was skipped or no router could be queried.
// every update of the poll and the last-poll timestamp of the IXP are committed in one transaction.
func (c *Controller) PollInternetExchange(ctx context.Context, sink jobs.Sink, ixpID int64) (bool, error) {
	ixp, err := c.store.GetInternetExchange(ctx, ixpID)
	if err != nil {
		return false, fmt.Errorf("failed to get internet exchange %d: %w", ixpID, err)
	}
	logger := c.logger.With("internet_exchange", ixp.Slug)

	if !ixp.CheckBGPSessionStates {
		logger.Debug("ignoring session states", "reason", "check disabled")
		pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultSkipped).Inc()
		return false, nil
	}

	sessions, err := c.store.ListInternetExchangePeeringSessions(ctx, ixp.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list sessions of internet exchange %s: %w", ixp.Slug, err)
	}
	if len(sessions) == 0 {
		logger.Debug("ignoring session states", "reason", "no sessions to check")
		pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultSkipped).Inc()
		return false, nil
	}

	connections, err := c.store.ListConnections(ctx, ixp.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list connections of internet exchange %s: %w", ixp.Slug, err)
	}

	routers := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, conn := range connections {
		if conn.RouterID == nil || seen[*conn.RouterID] {
			continue
		}
		seen[*conn.RouterID] = true
		routers = append(routers, *conn.RouterID)
	}
	if len(routers) == 0 {
		logger.Debug("ignoring session states", "reason", "no routers connected")
		pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultSkipped).Inc()
		return false, nil
	}

	polled, err := c.fetchNeighborsDetail(ctx, sink, routers, logger)
	if err != nil {
		pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultFailed).Inc()
		return false, err
	}
	if len(polled) == 0 {
		logger.Warn("no bgp neighbor data retrieved from the routers of the internet exchange")
		pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultFailed).Inc()
		return false, nil
	}

	now := c.now()
	updated := 0
	err = c.store.InTx(ctx, func(q store.Queries) error {
		for _, r := range polled {
			for _, detail := range r.details.Flatten() {
				ip, ok := neighborAddress(detail, r.router, logger)
				if !ok {
					continue
				}

				s, err := q.FindInternetExchangePeeringSession(ctx, ixp.ID, r.router.ID, ip)
				if errors.Is(err, store.ErrNotFound) {
					logger.Debug("no session for the bgp neighbor", "router", r.router.Hostname, "ip", ip)
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to find session %s on %s: %w", ip, r.router.Hostname, err)
				}

				applyNeighborDetail(&s.BGPSession, detail, now, logger)
				if err := q.UpdateInternetExchangePeeringSessionState(ctx, s); err != nil {
					return fmt.Errorf("failed to update session %s: %w", s, err)
				}
				updated++
			}
		}

		return q.SetInternetExchangePolled(ctx, ixp.ID, now)
	})
	if err != nil {
		logger.Error("failed to update session states", "error", err)
		pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultFailed).Inc()
		return false, fmt.Errorf("failed to update session states of internet exchange %s: %w", ixp.Slug, err)
	}

	logger.Info("polled session states", "routers", len(polled), "updated", updated)
	pollCounterVec.WithLabelValues(scopeInternetExchange, pollResultUpdated).Inc()
	sessionStateUpdateCounterVec.WithLabelValues(sessionKindInternetExchange).Add(float64(updated))
	lastPollGaugeVec.WithLabelValues(scopeInternetExchange).Set(float64(now.Unix()))
	return true, nil
}

// PollDirectPeeringSession updates the state of one direct session from its router.
func (c *Controller) PollDirectPeeringSession(ctx context.Context, sink jobs.Sink, sessionID int64) (bool, error) {
	s, err := c.store.GetDirectPeeringSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to get session %d: %w", sessionID, err)
	}
	logger := c.logger.With("session", s.String())

	if s.BGPGroupID != nil {
		group, err := c.store.GetBGPGroup(ctx, *s.BGPGroupID)
		if err != nil {
			return false, fmt.Errorf("failed to get bgp group %d: %w", *s.BGPGroupID, err)
		}
		if !group.CheckBGPSessionStates {
			logger.Debug("ignoring session state", "reason", "check disabled")
			pollCounterVec.WithLabelValues(scopeSession, pollResultSkipped).Inc()
			return false, nil
		}
	}

	detail, ok, err := c.fetchSessionDetail(ctx, sink, s.RouterID, s.IPAddress, logger)
	if err != nil || !ok {
		return false, err
	}

	err = c.store.InTx(ctx, func(q store.Queries) error {
		s, err := q.GetDirectPeeringSession(ctx, sessionID)
		if err != nil {
			return err
		}

		applyNeighborDetail(&s.BGPSession, detail, c.now(), logger)
		return q.UpdateDirectPeeringSessionState(ctx, s)
	})
	if err != nil {
		pollCounterVec.WithLabelValues(scopeSession, pollResultFailed).Inc()
		return false, fmt.Errorf("failed to update session %d: %w", sessionID, err)
	}

	pollCounterVec.WithLabelValues(scopeSession, pollResultUpdated).Inc()
	sessionStateUpdateCounterVec.WithLabelValues(sessionKindDirect).Inc()
	return true, nil
}

// PollInternetExchangePeeringSession updates the state of one IXP session from the router of its connection.
func (c *Controller) PollInternetExchangePeeringSession(ctx context.Context, sink jobs.Sink, sessionID int64) (bool, error) {
	s, err := c.store.GetInternetExchangePeeringSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to get session %d: %w", sessionID, err)
	}
	logger := c.logger.With("session", s.String())

	conn, err := c.store.GetConnection(ctx, s.ConnectionID)
	if err != nil {
		return false, fmt.Errorf("failed to get connection %d: %w", s.ConnectionID, err)
	}

	detail, ok, err := c.fetchSessionDetail(ctx, sink, conn.RouterID, s.IPAddress, logger)
	if err != nil || !ok {
		return false, err
	}

	err = c.store.InTx(ctx, func(q store.Queries) error {
		s, err := q.GetInternetExchangePeeringSession(ctx, sessionID)
		if err != nil {
			return err
		}

		applyNeighborDetail(&s.BGPSession, detail, c.now(), logger)
		return q.UpdateInternetExchangePeeringSessionState(ctx, s)
	})
	if err != nil {
		pollCounterVec.WithLabelValues(scopeSession, pollResultFailed).Inc()
		return false, fmt.Errorf("failed to update session %d: %w", sessionID, err)
	}

	pollCounterVec.WithLabelValues(scopeSession, pollResultUpdated).Inc()
	sessionStateUpdateCounterVec.WithLabelValues(sessionKindInternetExchange).Inc()
	return true, nil
}

// polledRouter is the live BGP state retrieved from a router.
type polledRouter struct {
	router  *peering.Router
	details device.NeighborsDetailByVRF
}

// fetchNeighborsDetail queries each router once, in order.
// routers that are not usable or can't be queried are left out of the result.
func (c *Controller) fetchNeighborsDetail(
	ctx context.Context,
	sink jobs.Sink,
	routerIDs []int64,
	logger *slog.Logger,
) ([]polledRouter, error) {
	polled := make([]polledRouter, 0, len(routerIDs))
	for _, id := range routerIDs {
		router, err := c.store.GetRouter(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get router %d: %w", id, err)
		}

		if !router.IsUsableForTask(sink, logger) {
			continue
		}

		details, err := c.adapter.BGPNeighborsDetail(ctx, router)
		if err != nil {
			logger.Error("failed to get bgp neighbors detail", "router", router.Hostname, "error", err)
			deviceErrorCounterVec.WithLabelValues(router.Name).Inc()
			continue
		}

		polled = append(polled, polledRouter{router: router, details: details})
	}

	return polled, nil
}

// fetchSessionDetail returns the live detail of the neighbor ip on the router.
// ok is false when the router is not usable, can't be queried or doesn't know the neighbor.
func (c *Controller) fetchSessionDetail(
	ctx context.Context,
	sink jobs.Sink,
	routerID *int64,
	ip netip.Addr,
	logger *slog.Logger,
) (device.NeighborDetail, bool, error) {
	if routerID == nil {
		logger.Debug("ignoring session state", "reason", "no usable router attached")
		pollCounterVec.WithLabelValues(scopeSession, pollResultSkipped).Inc()
		return device.NeighborDetail{}, false, nil
	}

	polled, err := c.fetchNeighborsDetail(ctx, sink, []int64{*routerID}, logger)
	if err != nil {
		return device.NeighborDetail{}, false, err
	}
	if len(polled) == 0 {
		pollCounterVec.WithLabelValues(scopeSession, pollResultFailed).Inc()
		return device.NeighborDetail{}, false, nil
	}

	detail, ok := polled[0].details.Find(ip)
	if !ok {
		logger.Debug("bgp neighbor not found on the router", "router", polled[0].router.Hostname)
		pollCounterVec.WithLabelValues(scopeSession, pollResultSkipped).Inc()
		return device.NeighborDetail{}, false, nil
	}

	return detail, true, nil
}

// neighborAddress parses the remote address of the live neighbor. unparsable addresses are logged and skipped.
func neighborAddress(detail device.NeighborDetail, router *peering.Router, logger *slog.Logger) (netip.Addr, bool) {
	ip, err := detail.Address()
	if err != nil {
		logger.Error("ignored bgp neighbor", "router", router.Hostname, "ip", detail.RemoteAddress, "error", err)
		return netip.Addr{}, false
	}
	return ip, true
}

// applyNeighborDetail applies the live state to the session.
func applyNeighborDetail(s *peering.BGPSession, detail device.NeighborDetail, now time.Time, logger *slog.Logger) {
	previous := s.BGPState
	s.ApplyState(detail.SessionState(), now)

	if previous != s.BGPState {
		logger.Info("bgp session state changed", "ip", s.IPAddress, "from", previous, "to", s.BGPState)
	}
}

package controller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// ImportResult is the outcome of ImportSessions.
type ImportResult struct {
	// Sessions is the number of created sessions.
	Sessions int `json:"sessions"`
	// AutonomousSystems is the number of AS records created from PeeringDB.
	AutonomousSystems int `json:"autonomous_systems"`
	// Ignored are the ASNs of the neighbors without PeeringDB network, in discovery order.
	Ignored []uint32 `json:"ignored_asns"`
}

// ImportSessions creates the sessions of the live BGP neighbors of the connection's router
// which are on the peering LAN of the IXP and have no session yet.
// every creation of the import is committed in one transaction.
func (c *Controller) ImportSessions(ctx context.Context, sink jobs.Sink, connectionID int64) (ImportResult, error) {
	empty := ImportResult{Ignored: make([]uint32, 0)}

	conn, err := c.store.GetConnection(ctx, connectionID)
	if err != nil {
		return empty, fmt.Errorf("failed to get connection %d: %w", connectionID, err)
	}
	ixp, err := c.store.GetInternetExchange(ctx, conn.InternetExchangeID)
	if err != nil {
		return empty, fmt.Errorf("failed to get internet exchange %d: %w", conn.InternetExchangeID, err)
	}
	logger := c.logger.With("internet_exchange", ixp.Slug, "connection", conn.ID)

	if !ixp.LinkedToPeeringDB() {
		logger.Debug("ignoring session import", "reason", "not linked to peeringdb")
		return empty, nil
	}

	prefixes, err := c.peeringDB.ListIXLanPrefixes(ctx, *ixp.PeeringDBIXLanID)
	if err != nil {
		return empty, fmt.Errorf("failed to list the prefixes of ixlan %d: %w", *ixp.PeeringDBIXLanID, err)
	}
	if len(prefixes) == 0 {
		logger.Debug("ignoring session import", "reason", "no prefixes on the peering lan")
		return empty, nil
	}

	if conn.RouterID == nil {
		logger.Debug("ignoring session import", "reason", "no router attached")
		return empty, nil
	}
	router, err := c.store.GetRouter(ctx, *conn.RouterID)
	if err != nil {
		return empty, fmt.Errorf("failed to get router %d: %w", *conn.RouterID, err)
	}
	if !router.IsUsableForTask(sink, logger) {
		return empty, nil
	}

	raw, err := c.adapter.BGPNeighbors(ctx, router)
	if err != nil {
		logger.Error("failed to get bgp neighbors", "router", router.Hostname, "error", err)
		deviceErrorCounterVec.WithLabelValues(router.Name).Inc()
		return empty, nil
	}
	neighbors := raw.Flatten(logger, router.Hostname)

	var result ImportResult
	err = c.store.InTx(ctx, func(q store.Queries) error {
		result = ImportResult{Ignored: make([]uint32, 0)}
		ignored := make(map[uint32]bool)

		for _, n := range neighbors {
			if !onPeeringLAN(prefixes, n.IPAddress) {
				logger.Debug("ignored bgp neighbor outside of the peering lan", "ip", n.IPAddress, "asn", n.RemoteASN)
				continue
			}

			_, err := q.FindInternetExchangePeeringSessionByConnection(ctx, conn.ID, n.IPAddress)
			if err == nil {
				logger.Debug("ignored bgp neighbor with existing session", "ip", n.IPAddress, "asn", n.RemoteASN)
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to find session %s: %w", n.IPAddress, err)
			}

			resolved, err := c.resolveOrCreateAutonomousSystem(ctx, q, n.RemoteASN)
			if err != nil {
				return err
			}
			switch resolved.Resolution {
			case ResolutionUnresolved:
				logger.Debug("ignored bgp neighbor without peeringdb network", "ip", n.IPAddress, "asn", n.RemoteASN)
				if !ignored[n.RemoteASN] {
					ignored[n.RemoteASN] = true
					result.Ignored = append(result.Ignored, n.RemoteASN)
				}
				continue
			case ResolutionCreated:
				result.AutonomousSystems++
			}

			s := &peering.InternetExchangePeeringSession{
				BGPSession: peering.BGPSession{
					AutonomousSystemID: resolved.AutonomousSystem.ID,
					IPAddress:          n.IPAddress,
				},
				ConnectionID: conn.ID,
			}
			if err := q.CreateInternetExchangePeeringSession(ctx, s); err != nil {
				return fmt.Errorf("failed to create session %s: %w", n.IPAddress, err)
			}
			result.Sessions++
		}

		return nil
	})
	if err != nil {
		logger.Error("failed to import sessions", "error", err)
		return empty, fmt.Errorf("failed to import sessions of connection %d: %w", conn.ID, err)
	}

	logger.Info("imported sessions",
		"sessions", result.Sessions,
		"autonomous_systems", result.AutonomousSystems,
		"ignored_asns", result.Ignored,
	)
	importedSessionCounter.Add(float64(result.Sessions))
	createdAutonomousSystemCounter.Add(float64(result.AutonomousSystems))
	return result, nil
}

// onPeeringLAN tells if ip is in one of the prefixes of its address family.
func onPeeringLAN(prefixes []peeringdb.IXLanPrefix, ip netip.Addr) bool {
	for _, p := range prefixes {
		if !p.Prefix.IsValid() || p.Prefix.Addr().Is4() != ip.Is4() {
			continue
		}
		if p.Prefix.Contains(ip) {
			return true
		}
	}
	return false
}

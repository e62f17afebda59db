package controller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// AvailablePeers returns the members of the exchange which are not localASN and have at least
// one address not used by the sessions, ordered by ASN.
// a member whose only address is used is not available, even when it lacks the other family.
func AvailablePeers(
	localASN uint32,
	members []peeringdb.NetworkIXLan,
	sessions []peering.InternetExchangePeeringSession,
) []peeringdb.NetworkIXLan {
	used := usedAddresses(sessions)

	available := make([]peeringdb.NetworkIXLan, 0)
	for _, m := range members {
		if m.ASN == localASN {
			continue
		}
		if hasUnusedAddress(m, used) {
			available = append(available, m)
		}
	}

	sort.SliceStable(available, func(i, j int) bool { return available[i].ASN < available[j].ASN })
	return available
}

// MissingPeeringSessions returns the member records of asn having at least one address
// not used by the sessions.
func MissingPeeringSessions(
	asn uint32,
	members []peeringdb.NetworkIXLan,
	sessions []peering.InternetExchangePeeringSession,
) []peeringdb.NetworkIXLan {
	used := usedAddresses(sessions)

	missing := make([]peeringdb.NetworkIXLan, 0)
	for _, m := range members {
		if m.ASN == asn && hasUnusedAddress(m, used) {
			missing = append(missing, m)
		}
	}
	return missing
}

func usedAddresses(sessions []peering.InternetExchangePeeringSession) map[netip.Addr]bool {
	used := make(map[netip.Addr]bool, len(sessions))
	for _, s := range sessions {
		if s.IPAddress.IsValid() {
			used[s.IPAddress.Unmap()] = true
		}
	}
	return used
}

func hasUnusedAddress(m peeringdb.NetworkIXLan, used map[netip.Addr]bool) bool {
	for _, addr := range m.Addresses() {
		if !used[addr.Unmap()] {
			return true
		}
	}
	return false
}

// AvailablePeers returns the members of the IXP's PeeringDB exchange we don't peer with yet.
// an IXP not linked to PeeringDB has none.
func (c *Controller) AvailablePeers(ctx context.Context, ixpID int64) ([]peeringdb.NetworkIXLan, error) {
	ixp, err := c.store.GetInternetExchange(ctx, ixpID)
	if err != nil {
		return nil, fmt.Errorf("failed to get internet exchange %d: %w", ixpID, err)
	}
	if !ixp.LinkedToPeeringDB() {
		return make([]peeringdb.NetworkIXLan, 0), nil
	}

	members, err := c.peeringDB.ListNetworkIXLans(ctx, *ixp.PeeringDBIXLanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list the members of ixlan %d: %w", *ixp.PeeringDBIXLanID, err)
	}
	sessions, err := c.store.ListInternetExchangePeeringSessions(ctx, ixp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of internet exchange %s: %w", ixp.Slug, err)
	}

	return AvailablePeers(ixp.LocalASN, members, sessions), nil
}

// MissingPeeringSessions returns the PeeringDB member records of asn we have no session with yet.
// with ixpID, only that IXP is looked at, otherwise every IXP shared with the AS.
// IXPs not linked to PeeringDB and IXPs where asn is our own AS are skipped.
func (c *Controller) MissingPeeringSessions(ctx context.Context, asn uint32, ixpID *int64) ([]peeringdb.NetworkIXLan, error) {
	var ixps []peering.InternetExchange
	if ixpID != nil {
		ixp, err := c.store.GetInternetExchange(ctx, *ixpID)
		if err != nil {
			return nil, fmt.Errorf("failed to get internet exchange %d: %w", *ixpID, err)
		}
		ixps = []peering.InternetExchange{*ixp}
	} else {
		var err error
		if ixps, err = c.store.ListInternetExchanges(ctx); err != nil {
			return nil, fmt.Errorf("failed to list internet exchanges: %w", err)
		}
	}

	// without AS record there is no session to leave out.
	var asID int64
	as, err := c.store.GetAutonomousSystemByASN(ctx, asn)
	switch {
	case err == nil:
		asID = as.ID
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to get AS%d: %w", asn, err)
	}

	missing := make([]peeringdb.NetworkIXLan, 0)
	for _, ixp := range ixps {
		if !ixp.LinkedToPeeringDB() || ixp.LocalASN == asn {
			continue
		}

		members, err := c.peeringDB.ListNetworkIXLans(ctx, *ixp.PeeringDBIXLanID)
		if err != nil {
			return nil, fmt.Errorf("failed to list the members of ixlan %d: %w", *ixp.PeeringDBIXLanID, err)
		}

		sessions := make([]peering.InternetExchangePeeringSession, 0)
		if asID != 0 {
			all, err := c.store.ListInternetExchangePeeringSessions(ctx, ixp.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list sessions of internet exchange %s: %w", ixp.Slug, err)
			}
			for _, s := range all {
				if s.AutonomousSystemID == asID {
					sessions = append(sessions, s)
				}
			}
		}

		missing = append(missing, MissingPeeringSessions(asn, members, sessions)...)
	}

	return missing, nil
}

// AbandonmentCheck holds what Abandoned decides on.
type AbandonmentCheck struct {
	// InternetExchangeLinked tells if the IXP of the session is linked to PeeringDB.
	InternetExchangeLinked bool
	// CheckBGPSessionStates is the toggle of the IXP.
	CheckBGPSessionStates bool
	// NetworkCached tells if a PeeringDB network is cached for the AS of the session.
	NetworkCached bool
	// InPeeringDB tells if a PeeringDB member record has the IP of the session.
	InPeeringDB bool
	BGPState    peering.BGPState
}

// Abandoned tells if the session is abandoned: the peer left the exchange
// while we still try to establish the session.
func Abandoned(check AbandonmentCheck) bool {
	if !check.InternetExchangeLinked || !check.CheckBGPSessionStates || !check.NetworkCached || check.InPeeringDB {
		return false
	}

	return check.BGPState == peering.BGPStateIdle || check.BGPState == peering.BGPStateActive
}

// IsAbandoned loads what Abandoned needs for the IXP session and applies it.
func (c *Controller) IsAbandoned(ctx context.Context, sessionID int64) (bool, error) {
	check, err := c.abandonmentCheck(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return Abandoned(check), nil
}

func (c *Controller) abandonmentCheck(ctx context.Context, sessionID int64) (AbandonmentCheck, error) {
	s, err := c.store.GetInternetExchangePeeringSession(ctx, sessionID)
	if err != nil {
		return AbandonmentCheck{}, fmt.Errorf("failed to get session %d: %w", sessionID, err)
	}
	conn, err := c.store.GetConnection(ctx, s.ConnectionID)
	if err != nil {
		return AbandonmentCheck{}, fmt.Errorf("failed to get connection %d: %w", s.ConnectionID, err)
	}
	ixp, err := c.store.GetInternetExchange(ctx, conn.InternetExchangeID)
	if err != nil {
		return AbandonmentCheck{}, fmt.Errorf("failed to get internet exchange %d: %w", conn.InternetExchangeID, err)
	}
	as, err := c.store.GetAutonomousSystem(ctx, s.AutonomousSystemID)
	if err != nil {
		return AbandonmentCheck{}, fmt.Errorf("failed to get autonomous system %d: %w", s.AutonomousSystemID, err)
	}

	check := AbandonmentCheck{
		InternetExchangeLinked: ixp.LinkedToPeeringDB(),
		CheckBGPSessionStates:  ixp.CheckBGPSessionStates,
		BGPState:               s.BGPState,
	}

	if check.NetworkCached, err = cached(c.peeringDB.GetNetwork(ctx, as.ASN)); err != nil {
		return AbandonmentCheck{}, fmt.Errorf("failed to get the peeringdb network of AS%d: %w", as.ASN, err)
	}
	if check.InPeeringDB, err = cached(c.peeringDB.FindNetworkIXLanByIP(ctx, s.IPAddress)); err != nil {
		return AbandonmentCheck{}, fmt.Errorf("failed to find the peeringdb record of %s: %w", s.IPAddress, err)
	}

	return check, nil
}

// cached turns the result of a cache lookup into a found flag.
func cached(_ any, err error) (bool, error) {
	if errors.Is(err, peeringdb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LinkInternetExchange links the IXP to the PeeringDB ixlan of its connections' member records.
// it returns nil when no connection is linked or the connections are on different ixlans.
func (c *Controller) LinkInternetExchange(ctx context.Context, ixpID int64) (*int64, error) {
	ixp, err := c.store.GetInternetExchange(ctx, ixpID)
	if err != nil {
		return nil, fmt.Errorf("failed to get internet exchange %d: %w", ixpID, err)
	}
	logger := c.logger.With("internet_exchange", ixp.Slug)

	connections, err := c.store.ListConnections(ctx, ixp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections of internet exchange %s: %w", ixp.Slug, err)
	}

	var ixlanID *int64
	for _, conn := range connections {
		if !conn.LinkedToPeeringDB() {
			continue
		}

		netixlan, err := c.peeringDB.GetNetworkIXLan(ctx, *conn.PeeringDBNetIXLanID)
		if errors.Is(err, peeringdb.ErrNotFound) {
			logger.Warn("peeringdb record of the connection is not cached", "connection", conn.ID, "netixlan", *conn.PeeringDBNetIXLanID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get netixlan %d: %w", *conn.PeeringDBNetIXLanID, err)
		}

		if ixlanID == nil {
			id := netixlan.IXLanID
			ixlanID = &id
			continue
		}
		if *ixlanID != netixlan.IXLanID {
			logger.Warn("connections are not on the same peeringdb ixlan", "ixlans", []int64{*ixlanID, netixlan.IXLanID})
			return nil, nil
		}
	}

	if ixlanID == nil {
		return nil, nil
	}

	if err := c.store.SetInternetExchangeIXLan(ctx, ixp.ID, *ixlanID); err != nil {
		return nil, fmt.Errorf("failed to link internet exchange %s: %w", ixp.Slug, err)
	}
	logger.Info("linked internet exchange to peeringdb", "ixlan", *ixlanID)
	return ixlanID, nil
}

// ProposeSessionsFromPeeringDB returns the unsaved sessions to set up with the PeeringDB member record
// on every connection of the IXP of its ixlan, IPv6 first. addresses having a session are left out.
// the AS record of the member is created when missing.
func (c *Controller) ProposeSessionsFromPeeringDB(ctx context.Context, netixlanID int64) ([]peering.InternetExchangePeeringSession, error) {
	proposals := make([]peering.InternetExchangePeeringSession, 0)

	netixlan, err := c.peeringDB.GetNetworkIXLan(ctx, netixlanID)
	if errors.Is(err, peeringdb.ErrNotFound) {
		return proposals, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get netixlan %d: %w", netixlanID, err)
	}

	ixp, err := c.store.GetInternetExchangeByIXLan(ctx, netixlan.IXLanID)
	if errors.Is(err, store.ErrNotFound) {
		return proposals, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get the internet exchange of ixlan %d: %w", netixlan.IXLanID, err)
	}

	var resolved ResolvedAutonomousSystem
	err = c.store.InTx(ctx, func(q store.Queries) error {
		var err error
		if resolved, err = c.resolveOrCreateAutonomousSystem(ctx, q, netixlan.ASN); err != nil {
			return err
		}
		if resolved.Resolution == ResolutionUnresolved {
			return nil
		}

		connections, err := q.ListConnections(ctx, ixp.ID)
		if err != nil {
			return err
		}

		for _, conn := range connections {
			for _, addr := range netixlan.Addresses() {
				_, err := q.FindInternetExchangePeeringSessionByConnection(ctx, conn.ID, addr)
				if err == nil {
					continue
				}
				if !errors.Is(err, store.ErrNotFound) {
					return err
				}

				proposals = append(proposals, peering.InternetExchangePeeringSession{
					BGPSession: peering.BGPSession{
						AutonomousSystemID: resolved.AutonomousSystem.ID,
						IPAddress:          addr,
					},
					ConnectionID: conn.ID,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to propose sessions for netixlan %d: %w", netixlanID, err)
	}

	if resolved.Resolution == ResolutionCreated {
		createdAutonomousSystemCounter.Inc()
	}
	return proposals, nil
}

// PeeringDBSyncTargets returns the ixlans linked to the IXPs and the ASNs of the AS records,
// which are the PeeringDB records the cache must hold.
func (c *Controller) PeeringDBSyncTargets(ctx context.Context) ([]int64, []uint32, error) {
	ixps, err := c.store.ListInternetExchanges(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list internet exchanges: %w", err)
	}
	systems, err := c.store.ListAutonomousSystems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list autonomous systems: %w", err)
	}

	ixlanIDs := make([]int64, 0, len(ixps))
	for _, ixp := range ixps {
		if ixp.LinkedToPeeringDB() {
			ixlanIDs = append(ixlanIDs, *ixp.PeeringDBIXLanID)
		}
	}
	asns := make([]uint32, 0, len(systems))
	for _, as := range systems {
		asns = append(asns, as.ASN)
	}

	return ixlanIDs, asns, nil
}

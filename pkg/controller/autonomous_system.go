package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// Resolution tells how an AS number was resolved into an AS record.
type Resolution string

const (
	// ResolutionExisting is an AS record which already existed.
	ResolutionExisting Resolution = "existing"
	// ResolutionCreated is an AS record created from the PeeringDB network.
	ResolutionCreated Resolution = "created"
	// ResolutionUnresolved means there is neither an AS record nor a cached PeeringDB network.
	ResolutionUnresolved Resolution = "unresolved"
)

// ResolvedAutonomousSystem is the result of ResolveOrCreateAutonomousSystem.
// AutonomousSystem is nil when unresolved.
type ResolvedAutonomousSystem struct {
	Resolution       Resolution
	AutonomousSystem *peering.AutonomousSystem
}

// ResolveOrCreateAutonomousSystem returns the AS record of the ASN,
// creating it from the cached PeeringDB network when there is none.
func (c *Controller) ResolveOrCreateAutonomousSystem(ctx context.Context, asn uint32) (ResolvedAutonomousSystem, error) {
	var resolved ResolvedAutonomousSystem
	err := c.store.InTx(ctx, func(q store.Queries) error {
		var err error
		resolved, err = c.resolveOrCreateAutonomousSystem(ctx, q, asn)
		return err
	})
	if err != nil {
		return ResolvedAutonomousSystem{Resolution: ResolutionUnresolved}, err
	}

	if resolved.Resolution == ResolutionCreated {
		createdAutonomousSystemCounter.Inc()
	}
	return resolved, nil
}

func (c *Controller) resolveOrCreateAutonomousSystem(
	ctx context.Context,
	q store.Queries,
	asn uint32,
) (ResolvedAutonomousSystem, error) {
	as, err := q.GetAutonomousSystemByASN(ctx, asn)
	if err == nil {
		return ResolvedAutonomousSystem{Resolution: ResolutionExisting, AutonomousSystem: as}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return ResolvedAutonomousSystem{}, fmt.Errorf("failed to get AS%d: %w", asn, err)
	}

	network, err := c.peeringDB.GetNetwork(ctx, asn)
	if errors.Is(err, peeringdb.ErrNotFound) {
		return ResolvedAutonomousSystem{Resolution: ResolutionUnresolved}, nil
	}
	if err != nil {
		return ResolvedAutonomousSystem{}, fmt.Errorf("failed to get the peeringdb network of AS%d: %w", asn, err)
	}

	as = autonomousSystemFromNetwork(network)
	created, err := q.CreateAutonomousSystem(ctx, as)
	if err != nil {
		return ResolvedAutonomousSystem{}, err
	}
	if !created {
		// inserted concurrently.
		existing, err := q.GetAutonomousSystem(ctx, as.ID)
		if err != nil {
			return ResolvedAutonomousSystem{}, fmt.Errorf("failed to get AS%d: %w", asn, err)
		}
		return ResolvedAutonomousSystem{Resolution: ResolutionExisting, AutonomousSystem: existing}, nil
	}

	c.logger.Info("created autonomous system from peeringdb", "as", as.String())
	return ResolvedAutonomousSystem{Resolution: ResolutionCreated, AutonomousSystem: as}, nil
}

func autonomousSystemFromNetwork(network *peeringdb.Network) *peering.AutonomousSystem {
	as := peering.NewAutonomousSystem(network.ASN, network.Name)
	as.IRRASSet = network.IRRASSet
	as.IPv6MaxPrefixes = network.InfoPrefixes6
	as.IPv4MaxPrefixes = network.InfoPrefixes4
	return as
}

// SynchronizeAutonomousSystem copies the PeeringDB values into the AS record, each only when
// its sync flag is set. it returns false when no PeeringDB network is cached for the ASN.
func (c *Controller) SynchronizeAutonomousSystem(ctx context.Context, asn uint32) (bool, error) {
	synchronized := false
	err := c.store.InTx(ctx, func(q store.Queries) error {
		as, err := q.GetAutonomousSystemByASN(ctx, asn)
		if err != nil {
			return fmt.Errorf("failed to get AS%d: %w", asn, err)
		}

		network, err := c.peeringDB.GetNetwork(ctx, asn)
		if errors.Is(err, peeringdb.ErrNotFound) {
			c.logger.Debug("no peeringdb network to synchronize with", "asn", asn)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get the peeringdb network of AS%d: %w", asn, err)
		}

		if as.NamePeeringDBSync {
			as.Name = network.Name
		}
		if as.IRRASSetPeeringDBSync {
			as.IRRASSet = network.IRRASSet
		}
		if as.IPv6MaxPrefixesPeeringDBSync {
			as.IPv6MaxPrefixes = network.InfoPrefixes6
		}
		if as.IPv4MaxPrefixesPeeringDBSync {
			as.IPv4MaxPrefixes = network.InfoPrefixes4
		}

		if err := q.UpdateAutonomousSystem(ctx, as); err != nil {
			return fmt.Errorf("failed to update AS%d: %w", asn, err)
		}
		synchronized = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if synchronized {
		c.logger.Info("synchronized autonomous system with peeringdb", "asn", asn)
	}
	return synchronized, nil
}

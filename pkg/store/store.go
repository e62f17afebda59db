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

// Package store persists the peering records.
package store

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

// ErrNotFound is returned when the record doesn't exist.
var ErrNotFound = errors.New("record not found")

// Queries reads and writes the peering records.
type Queries interface {
	GetRouter(ctx context.Context, id int64) (*peering.Router, error)

	GetBGPGroup(ctx context.Context, id int64) (*peering.BGPGroup, error)
	ListBGPGroups(ctx context.Context) ([]peering.BGPGroup, error)
	// SetBGPGroupPolled stamps the last poll of the group.
	SetBGPGroupPolled(ctx context.Context, id int64, at time.Time) error

	GetInternetExchange(ctx context.Context, id int64) (*peering.InternetExchange, error)
	ListInternetExchanges(ctx context.Context) ([]peering.InternetExchange, error)
	GetInternetExchangeByIXLan(ctx context.Context, ixlanID int64) (*peering.InternetExchange, error)
	// SetInternetExchangePolled stamps the last poll of the IXP.
	SetInternetExchangePolled(ctx context.Context, id int64, at time.Time) error
	SetInternetExchangeIXLan(ctx context.Context, id int64, ixlanID int64) error

	GetConnection(ctx context.Context, id int64) (*peering.Connection, error)
	// ListConnections returns the connections of the IXP.
	ListConnections(ctx context.Context, ixpID int64) ([]peering.Connection, error)

	GetAutonomousSystem(ctx context.Context, id int64) (*peering.AutonomousSystem, error)
	GetAutonomousSystemByASN(ctx context.Context, asn uint32) (*peering.AutonomousSystem, error)
	ListAutonomousSystems(ctx context.Context) ([]peering.AutonomousSystem, error)
	// CreateAutonomousSystem inserts the AS unless its ASN already exists.
	// the ID of as is set in both cases, created tells if the row was inserted.
	CreateAutonomousSystem(ctx context.Context, as *peering.AutonomousSystem) (created bool, err error)
	UpdateAutonomousSystem(ctx context.Context, as *peering.AutonomousSystem) error

	GetDirectPeeringSession(ctx context.Context, id int64) (*peering.DirectPeeringSession, error)
	// ListDirectPeeringSessions returns the sessions of the group, only on the given routers if any.
	ListDirectPeeringSessions(ctx context.Context, groupID int64, routerIDs []int64) ([]peering.DirectPeeringSession, error)
	FindDirectPeeringSession(ctx context.Context, groupID int64, routerID int64, ip netip.Addr) (*peering.DirectPeeringSession, error)
	// UpdateDirectPeeringSessionState saves the BGP state fields of the session.
	UpdateDirectPeeringSessionState(ctx context.Context, s *peering.DirectPeeringSession) error

	GetInternetExchangePeeringSession(ctx context.Context, id int64) (*peering.InternetExchangePeeringSession, error)
	// ListInternetExchangePeeringSessions returns the sessions on every connection of the IXP.
	ListInternetExchangePeeringSessions(ctx context.Context, ixpID int64) ([]peering.InternetExchangePeeringSession, error)
	// FindInternetExchangePeeringSession finds the session with the IP on a connection of the IXP attached to the router.
	FindInternetExchangePeeringSession(ctx context.Context, ixpID int64, routerID int64, ip netip.Addr) (*peering.InternetExchangePeeringSession, error)
	FindInternetExchangePeeringSessionByConnection(ctx context.Context, connectionID int64, ip netip.Addr) (*peering.InternetExchangePeeringSession, error)
	CreateInternetExchangePeeringSession(ctx context.Context, s *peering.InternetExchangePeeringSession) error
	// UpdateInternetExchangePeeringSessionState saves the BGP state fields of the session.
	UpdateInternetExchangePeeringSessionState(ctx context.Context, s *peering.InternetExchangePeeringSession) error
}

// Store is Queries with atomic transactions.
type Store interface {
	Queries

	// InTx runs fn in a transaction. the transaction is rolled back when fn returns an error.
	InTx(ctx context.Context, fn func(q Queries) error) error
}

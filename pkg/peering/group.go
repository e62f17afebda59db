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

package peering

import (
	"net/netip"
	"time"
)

// BGPGroup is a named collection of direct peering sessions scoped to one local AS.
type BGPGroup struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	LocalASN uint32 `json:"local_asn"`

	// CheckBGPSessionStates enables the polling of the sessions of the group.
	CheckBGPSessionStates bool `json:"check_bgp_session_states"`
	// BGPSessionStatesUpdate is the time of the last successful poll.
	BGPSessionStatesUpdate *time.Time `json:"bgp_session_states_update"`
}

func (g *BGPGroup) String() string {
	return g.Name
}

// InternetExchange is an IXP we are connected to with one or more routers.
type InternetExchange struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	LocalASN uint32 `json:"local_asn"`

	// PeeringDBIXLanID links the IXP to a PeeringDB ixlan record, nil when not linked.
	PeeringDBIXLanID *int64 `json:"peeringdb_ixlan_id"`

	CheckBGPSessionStates  bool       `json:"check_bgp_session_states"`
	BGPSessionStatesUpdate *time.Time `json:"bgp_session_states_update"`
}

func (ix *InternetExchange) String() string {
	return ix.Name
}

// LinkedToPeeringDB tells if the IXP has a PeeringDB ixlan record.
func (ix *InternetExchange) LinkedToPeeringDB() bool {
	return ix.PeeringDBIXLanID != nil
}

// Connection is the attachment of a router to an IXP.
type Connection struct {
	ID                 int64 `json:"id"`
	InternetExchangeID int64 `json:"internet_exchange_id"`
	// RouterID is nil when no router is attached to the connection yet.
	RouterID *int64 `json:"router_id"`
	// PeeringDBNetIXLanID links the connection to our PeeringDB netixlan record.
	PeeringDBNetIXLanID *int64 `json:"peeringdb_netixlan_id"`

	IPv6Address netip.Addr `json:"ipv6_address"`
	IPv4Address netip.Addr `json:"ipv4_address"`
}

// LinkedToPeeringDB tells if the connection has a PeeringDB netixlan record.
func (c *Connection) LinkedToPeeringDB() bool {
	return c.PeeringDBNetIXLanID != nil
}

// AttachedTo returns true if the connection is attached to the given router.
func (c *Connection) AttachedTo(routerID int64) bool {
	return c.RouterID != nil && *c.RouterID == routerID
}

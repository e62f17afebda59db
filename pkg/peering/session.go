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
	"fmt"
	"net/netip"
	"time"
)

// BGPSession holds the attributes shared by every kind of peering session.
type BGPSession struct {
	ID                 int64      `json:"id"`
	AutonomousSystemID int64      `json:"autonomous_system_id"`
	IPAddress          netip.Addr `json:"ip_address"`

	BGPState              BGPState   `json:"bgp_state"`
	ReceivedPrefixCount   uint64     `json:"received_prefix_count"`
	AdvertisedPrefixCount uint64     `json:"advertised_prefix_count"`
	LastEstablishedState  *time.Time `json:"last_established_state"`
}

// SessionState is the live state of a session reported by a router.
type SessionState struct {
	State BGPState
	// counts are nil when the router did not report them.
	ReceivedPrefixCount   *int64
	AdvertisedPrefixCount *int64
}

// ApplyState updates the BGP state fields of the session with the state reported by a router.
// counts are clamped to zero when negative or absent.
// LastEstablishedState is only stamped when the session transitions into the established state.
func (s *BGPSession) ApplyState(state SessionState, now time.Time) {
	previous := s.BGPState

	s.BGPState = state.State
	s.ReceivedPrefixCount = clampPrefixCount(state.ReceivedPrefixCount)
	s.AdvertisedPrefixCount = clampPrefixCount(state.AdvertisedPrefixCount)

	if s.BGPState == BGPStateEstablished && previous != BGPStateEstablished {
		t := now
		s.LastEstablishedState = &t
	}
}

func clampPrefixCount(count *int64) uint64 {
	if count == nil || *count < 0 {
		return 0
	}
	return uint64(*count)
}

// DirectPeeringSession is a session set up over a private link (transit, customer, PNI).
type DirectPeeringSession struct {
	BGPSession

	LocalASN       uint32       `json:"local_asn"`
	LocalIPAddress netip.Addr   `json:"local_ip_address"`
	BGPGroupID     *int64       `json:"bgp_group_id"`
	Relationship   Relationship `json:"relationship"`
	RouterID       *int64       `json:"router_id"`
}

func (s *DirectPeeringSession) String() string {
	return fmt.Sprintf("%s - IP %s", s.Relationship, s.IPAddress)
}

// InternetExchangePeeringSession is a session set up over an IXP connection.
type InternetExchangePeeringSession struct {
	BGPSession

	ConnectionID  int64 `json:"connection_id"`
	IsRouteServer bool  `json:"is_route_server"`
}

func (s *InternetExchangePeeringSession) String() string {
	return fmt.Sprintf("connection %d - IP %s", s.ConnectionID, s.IPAddress)
}

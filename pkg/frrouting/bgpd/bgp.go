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

package bgpd

import (
	"encoding/json"
	"fmt"
)

// VRFNeighbors is the output of "show bgp vrf all neighbors json".
// this key is notated with the VRF name.
type VRFNeighbors map[string]VRF

// VRF is the set of BGP neighbors configured in a VRF.
type VRF struct {
	ID   int64
	Name string
	// Neighbors is keyed by the neighbor address.
	Neighbors map[string]Neighbor
}

// UnmarshalJSON implements json.Unmarshaler.
// bgpd notates the neighbors inline, next to the "vrfId" and "vrfName" keys.
func (v *VRF) UnmarshalJSON(b []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	v.Neighbors = make(map[string]Neighbor, len(raw))
	for key, value := range raw {
		switch key {
		case "vrfId":
			if err := json.Unmarshal(value, &v.ID); err != nil {
				return fmt.Errorf("failed to unmarshal vrfId: %w", err)
			}
		case "vrfName":
			if err := json.Unmarshal(value, &v.Name); err != nil {
				return fmt.Errorf("failed to unmarshal vrfName: %w", err)
			}
		default:
			n := Neighbor{}
			if err := json.Unmarshal(value, &n); err != nil {
				return fmt.Errorf("failed to unmarshal neighbor %s: %w", key, err)
			}
			v.Neighbors[key] = n
		}
	}

	return nil
}

// Neighbor is a BGP neighbor of bgpd.
// NOTE: the struct is incomplete. this struct only contains the used fields.
type Neighbor struct {
	// RemoteAS is nil when bgpd doesn't know the AS of the neighbor yet.
	RemoteAS       *uint32 `json:"remoteAs"`
	LocalAS        uint32  `json:"localAs"`
	RemoteRouterID string  `json:"remoteRouterId"`
	Hostname       string  `json:"hostname"`
	BGPState       string  `json:"bgpState"`
	UpTimeMsec     int64   `json:"bgpTimerUpMsec"`
	// AddressFamilyInfo is keyed by the address family (e.g. "ipv4Unicast").
	AddressFamilyInfo map[string]AddressFamily `json:"addressFamilyInfo"`
}

// AddressFamily holds the counters of an address family of a neighbor.
// NOTE: the struct is incomplete. this struct only contains the used fields.
type AddressFamily struct {
	AcceptedPrefixCounter int64 `json:"acceptedPrefixCounter"`
	SentPrefixCounter     int64 `json:"sentPrefixCounter"`
}

// Established returns true if the session with the neighbor is established.
func (n Neighbor) Established() bool {
	return n.BGPState == "Established"
}

// AcceptedPrefixCount sums the accepted prefixes of every address family.
func (n Neighbor) AcceptedPrefixCount() int64 {
	var sum int64
	for _, af := range n.AddressFamilyInfo {
		sum += af.AcceptedPrefixCounter
	}
	return sum
}

// SentPrefixCount sums the sent prefixes of every address family.
func (n Neighbor) SentPrefixCount() int64 {
	var sum int64
	for _, af := range n.AddressFamilyInfo {
		sum += af.SentPrefixCounter
	}
	return sum
}

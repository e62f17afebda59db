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

package device

import (
	"log/slog"
	"net/netip"
	"sort"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

// NeighborsByVRF holds the BGP neighbors of a router, keyed by VRF name.
type NeighborsByVRF map[string]VRFNeighbors

// VRFNeighbors holds the BGP neighbors of a VRF.
type VRFNeighbors struct {
	RouterID string `json:"router_id"`
	// Peers is keyed by the IP address (string notation) of the neighbor.
	Peers map[string]PeerInfo `json:"peers"`
}

// PeerInfo is the summary of a BGP neighbor.
// NOTE: the struct is incomplete. this struct only contains the used fields.
type PeerInfo struct {
	LocalAS *uint32 `json:"local_as,omitempty"`
	// RemoteAS is nil when the device didn't report it.
	RemoteAS    *uint32 `json:"remote_as,omitempty"`
	RemoteID    string  `json:"remote_id,omitempty"`
	IsUp        bool    `json:"is_up"`
	IsEnabled   bool    `json:"is_enabled"`
	Description string  `json:"description,omitempty"`
	Uptime      int64   `json:"uptime"`
}

// NeighborsDetailByVRF holds the BGP neighbor details of a router, keyed by VRF name then remote ASN.
type NeighborsDetailByVRF map[string]map[uint32][]NeighborDetail

// NeighborDetail is the detail of a BGP neighbor.
// NOTE: the struct is incomplete. this struct only contains the used fields.
type NeighborDetail struct {
	Up              bool   `json:"up"`
	LocalAS         uint32 `json:"local_as"`
	RemoteAS        uint32 `json:"remote_as"`
	LocalAddress    string `json:"local_address"`
	RemoteAddress   string `json:"remote_address"`
	ConnectionState string `json:"connection_state"`
	// counts are nil when the device didn't report them, some devices report -1 instead.
	ReceivedPrefixCount   *int64 `json:"received_prefix_count"`
	AcceptedPrefixCount   *int64 `json:"accepted_prefix_count"`
	AdvertisedPrefixCount *int64 `json:"advertised_prefix_count"`
}

// Neighbor is a BGP neighbor in the flat form.
type Neighbor struct {
	IPAddress netip.Addr
	RemoteASN uint32
}

// SessionState returns the state of the neighbor in the form applied to stored sessions.
func (d NeighborDetail) SessionState() peering.SessionState {
	return peering.SessionState{
		State:                 peering.ParseBGPState(d.ConnectionState),
		ReceivedPrefixCount:   d.ReceivedPrefixCount,
		AdvertisedPrefixCount: d.AdvertisedPrefixCount,
	}
}

// Address returns the parsed remote address of the neighbor.
// IPv4-mapped addresses are unmapped and the zone is dropped.
func (d NeighborDetail) Address() (netip.Addr, error) {
	addr, err := netip.ParseAddr(d.RemoteAddress)
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap().WithZone(""), nil
}

// Flatten turns the neighbors into a flat list.
// entries without remote AS, duplicated addresses (first occurrence wins) and
// unparsable addresses are dropped.
func (n NeighborsByVRF) Flatten(logger *slog.Logger, hostname string) []Neighbor {
	neighbors := make([]Neighbor, 0)
	if len(n) == 0 {
		return neighbors
	}

	seen := make(map[netip.Addr]bool)
	for _, vrf := range sortedKeys(n) {
		peers := n[vrf].Peers
		logger.Debug("found bgp neighbors in vrf", "count", len(peers), "vrf", vrf, "router", hostname)

		for _, ip := range sortedKeys(peers) {
			details := peers[ip]
			if details.RemoteAS == nil {
				logger.Debug("ignored bgp neighbor without remote-as", "ip", ip, "vrf", vrf, "router", hostname)
				continue
			}

			addr, err := netip.ParseAddr(ip)
			if err != nil {
				logger.Error("ignored bgp neighbor", "ip", ip, "vrf", vrf, "router", hostname, "error", err)
				continue
			}
			addr = addr.Unmap().WithZone("")

			if seen[addr] {
				logger.Debug("duplicate bgp neighbor", "ip", ip, "router", hostname)
				continue
			}
			seen[addr] = true

			neighbors = append(neighbors, Neighbor{
				IPAddress: addr,
				RemoteASN: *details.RemoteAS,
			})
		}
	}

	return neighbors
}

// Flatten concatenates the details of every VRF and ASN. no deduplication is done.
func (d NeighborsDetailByVRF) Flatten() []NeighborDetail {
	flattened := make([]NeighborDetail, 0)

	for _, vrf := range sortedKeys(d) {
		byASN := d[vrf]

		asns := make([]uint32, 0, len(byASN))
		for asn := range byASN {
			asns = append(asns, asn)
		}
		sort.Slice(asns, func(i, j int) bool { return asns[i] < asns[j] })

		for _, asn := range asns {
			flattened = append(flattened, byASN[asn]...)
		}
	}

	return flattened
}

// Find returns the detail of the neighbor with the given address.
func (d NeighborsDetailByVRF) Find(ip netip.Addr) (NeighborDetail, bool) {
	ip = ip.Unmap().WithZone("")
	for _, detail := range d.Flatten() {
		addr, err := detail.Address()
		if err != nil {
			continue
		}

		if addr == ip {
			return detail, true
		}
	}

	return NeighborDetail{}, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

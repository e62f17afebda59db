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

// Package peeringdb caches the PeeringDB records the controller needs.
package peeringdb

import (
	"fmt"
	"net/netip"
)

// Network is a "net" record of PeeringDB.
// NOTE: the struct is incomplete. this struct only contains the used fields.
type Network struct {
	ID            int64  `json:"id"`
	ASN           uint32 `json:"asn"`
	Name          string `json:"name"`
	IRRASSet      string `json:"irr_as_set"`
	InfoPrefixes4 uint32 `json:"info_prefixes4"`
	InfoPrefixes6 uint32 `json:"info_prefixes6"`
}

func (n *Network) String() string {
	return fmt.Sprintf("AS%d - %s", n.ASN, n.Name)
}

// IXLanPrefix is an "ixpfx" record of PeeringDB: a prefix of the peering LAN of an exchange.
type IXLanPrefix struct {
	ID       int64        `json:"id"`
	IXLanID  int64        `json:"ixlan_id"`
	Protocol string       `json:"protocol"`
	Prefix   netip.Prefix `json:"prefix"`
}

// NetworkIXLan is a "netixlan" record of PeeringDB: the presence of a network on an exchange.
// an address is the zero netip.Addr when the network has none in the family.
type NetworkIXLan struct {
	ID       int64      `json:"id"`
	NetID    int64      `json:"net_id"`
	IXID     int64      `json:"ix_id"`
	IXLanID  int64      `json:"ixlan_id"`
	ASN      uint32     `json:"asn"`
	IPAddr4  netip.Addr `json:"ipaddr4"`
	IPAddr6  netip.Addr `json:"ipaddr6"`
	IsRSPeer bool       `json:"is_rs_peer"`
	Speed    int64      `json:"speed"`
}

// Addresses returns the valid addresses of the record, IPv6 first.
func (n *NetworkIXLan) Addresses() []netip.Addr {
	addrs := make([]netip.Addr, 0, 2)
	if n.IPAddr6.IsValid() {
		addrs = append(addrs, n.IPAddr6)
	}
	if n.IPAddr4.IsValid() {
		addrs = append(addrs, n.IPAddr4)
	}
	return addrs
}

// HasAddress tells if ip is one of the addresses of the record.
func (n *NetworkIXLan) HasAddress(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, a := range n.Addresses() {
		if a.Unmap() == ip {
			return true
		}
	}
	return false
}

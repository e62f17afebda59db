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
)

const (
	// PrefixesKeyIPv6 is the key of the IPv6 prefix list in AutonomousSystem.Prefixes.
	PrefixesKeyIPv6 = "ipv6"
	// PrefixesKeyIPv4 is the key of the IPv4 prefix list in AutonomousSystem.Prefixes.
	PrefixesKeyIPv4 = "ipv4"
)

// Contact is the contact information of an autonomous system.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// AutonomousSystem is an AS we peer with (or operate, when Affiliated is true).
type AutonomousSystem struct {
	ID  int64  `json:"id"`
	ASN uint32 `json:"asn"`

	Name              string `json:"name"`
	NamePeeringDBSync bool   `json:"name_peeringdb_sync"`

	Contact  Contact `json:"contact"`
	Comments string  `json:"comments"`

	IRRASSet              string `json:"irr_as_set"`
	IRRASSetPeeringDBSync bool   `json:"irr_as_set_peeringdb_sync"`

	IPv6MaxPrefixes              uint32 `json:"ipv6_max_prefixes"`
	IPv6MaxPrefixesPeeringDBSync bool   `json:"ipv6_max_prefixes_peeringdb_sync"`
	IPv4MaxPrefixes              uint32 `json:"ipv4_max_prefixes"`
	IPv4MaxPrefixesPeeringDBSync bool   `json:"ipv4_max_prefixes_peeringdb_sync"`

	// Prefixes is the cached IRR prefix list, keyed "ipv6"/"ipv4".
	Prefixes map[string][]netip.Prefix `json:"prefixes,omitempty"`

	// Affiliated is true when the AS is operated by us.
	Affiliated bool `json:"affiliated"`
}

// NewAutonomousSystem returns an AS with every PeeringDB sync flag turned on.
func NewAutonomousSystem(asn uint32, name string) *AutonomousSystem {
	return &AutonomousSystem{
		ASN:                          asn,
		Name:                         name,
		NamePeeringDBSync:            true,
		IRRASSetPeeringDBSync:        true,
		IPv6MaxPrefixesPeeringDBSync: true,
		IPv4MaxPrefixesPeeringDBSync: true,
	}
}

func (a *AutonomousSystem) String() string {
	return fmt.Sprintf("AS%d - %s", a.ASN, a.Name)
}

// CachedPrefixes returns the cached IRR prefixes of the given family.
// IPFamilyAll returns both lists, IPv6 first.
func (a *AutonomousSystem) CachedPrefixes(family IPFamily) []netip.Prefix {
	switch family {
	case IPFamilyV6:
		return a.Prefixes[PrefixesKeyIPv6]
	case IPFamilyV4:
		return a.Prefixes[PrefixesKeyIPv4]
	}

	all := make([]netip.Prefix, 0, len(a.Prefixes[PrefixesKeyIPv6])+len(a.Prefixes[PrefixesKeyIPv4]))
	all = append(all, a.Prefixes[PrefixesKeyIPv6]...)
	return append(all, a.Prefixes[PrefixesKeyIPv4]...)
}

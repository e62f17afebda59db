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

package peeringdb

import (
	"context"
	"errors"
	"net/netip"
)

// ErrNotFound is returned when the record is not cached.
var ErrNotFound = errors.New("peeringdb record not found")

// Cache stores the PeeringDB records locally.
type Cache interface {
	// GetNetwork returns the network of the ASN.
	GetNetwork(ctx context.Context, asn uint32) (*Network, error)
	// ListIXLanPrefixes returns the prefixes of the ixlan. unknown ixlans have none.
	ListIXLanPrefixes(ctx context.Context, ixlanID int64) ([]IXLanPrefix, error)
	// ListNetworkIXLans returns the members of the ixlan. unknown ixlans have none.
	ListNetworkIXLans(ctx context.Context, ixlanID int64) ([]NetworkIXLan, error)
	GetNetworkIXLan(ctx context.Context, id int64) (*NetworkIXLan, error)
	// FindNetworkIXLanByIP returns the member record having the address, on any ixlan.
	FindNetworkIXLanByIP(ctx context.Context, ip netip.Addr) (*NetworkIXLan, error)

	PutNetworks(ctx context.Context, networks []Network) error
	// PutIXLan replaces every prefix and member record of the ixlan.
	PutIXLan(ctx context.Context, ixlanID int64, prefixes []IXLanPrefix, netixlans []NetworkIXLan) error
}

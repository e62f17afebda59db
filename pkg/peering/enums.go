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

import "strings"

// BGPState is the state of a BGP session as reported by a router.
// the values mirror the BGP finite state machine, lower-cased.
type BGPState string

const (
	BGPStateUnknown     BGPState = ""
	BGPStateIdle        BGPState = "idle"
	BGPStateConnect     BGPState = "connect"
	BGPStateActive      BGPState = "active"
	BGPStateOpenSent    BGPState = "opensent"
	BGPStateOpenConfirm BGPState = "openconfirm"
	BGPStateEstablished BGPState = "established"
)

// ParseBGPState converts a state string reported by a device into a BGPState.
// the device notation is kept as-is except for the case ("Established" -> "established").
func ParseBGPState(s string) BGPState {
	return BGPState(strings.ToLower(strings.TrimSpace(s)))
}

// DeviceState is the operational state of a router for background tasks and configuration pushes.
type DeviceState string

const (
	DeviceStateEnabled     DeviceState = "enabled"
	DeviceStateDisabled    DeviceState = "disabled"
	DeviceStateMaintenance DeviceState = "maintenance"
)

// Relationship is the relationship with the remote peer of a direct session.
type Relationship string

const (
	RelationshipCustomer        Relationship = "customer"
	RelationshipPrivatePeering  Relationship = "private-peering"
	RelationshipTransitProvider Relationship = "transit-provider"
)

// IPFamily is the address family of an IP address or prefix.
type IPFamily int

const (
	IPFamilyAll IPFamily = 0
	IPFamilyV4  IPFamily = 4
	IPFamilyV6  IPFamily = 6
)

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
	"context"
	"sync"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

// FakeAdapter is for testing the controller.
type FakeAdapter struct {
	mu sync.Mutex

	// Neighbors and Details are keyed by the router ID.
	Neighbors map[int64]NeighborsByVRF
	Details   map[int64]NeighborsDetailByVRF
	// Errors makes every call for the router fail.
	Errors map[int64]error

	// NeighborsCalls and DetailsCalls count the calls per router ID.
	NeighborsCalls map[int64]int
	DetailsCalls   map[int64]int
}

var _ Adapter = &FakeAdapter{}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Neighbors:      make(map[int64]NeighborsByVRF),
		Details:        make(map[int64]NeighborsDetailByVRF),
		Errors:         make(map[int64]error),
		NeighborsCalls: make(map[int64]int),
		DetailsCalls:   make(map[int64]int),
	}
}

// BGPNeighbors implements Adapter
func (a *FakeAdapter) BGPNeighbors(_ context.Context, router *peering.Router) (NeighborsByVRF, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.NeighborsCalls[router.ID]++
	if err := a.Errors[router.ID]; err != nil {
		return nil, err
	}
	return a.Neighbors[router.ID], nil
}

// BGPNeighborsDetail implements Adapter
func (a *FakeAdapter) BGPNeighborsDetail(_ context.Context, router *peering.Router) (NeighborsDetailByVRF, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.DetailsCalls[router.ID]++
	if err := a.Errors[router.ID]; err != nil {
		return nil, err
	}
	return a.Details[router.ID], nil
}

// SetNeighborDetail registers a neighbor in the "global" VRF of the router.
func (a *FakeAdapter) SetNeighborDetail(routerID int64, detail NeighborDetail) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byVRF, ok := a.Details[routerID]
	if !ok {
		byVRF = make(NeighborsDetailByVRF)
		a.Details[routerID] = byVRF
	}
	byASN, ok := byVRF["global"]
	if !ok {
		byASN = make(map[uint32][]NeighborDetail)
		byVRF["global"] = byASN
	}
	byASN[detail.RemoteAS] = append(byASN[detail.RemoteAS], detail)
}

// SetNeighbor registers a neighbor summary in the "global" VRF of the router.
func (a *FakeAdapter) SetNeighbor(routerID int64, ip string, remoteASN uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byVRF, ok := a.Neighbors[routerID]
	if !ok {
		byVRF = make(NeighborsByVRF)
		a.Neighbors[routerID] = byVRF
	}
	vrf, ok := byVRF["global"]
	if !ok {
		vrf = VRFNeighbors{Peers: make(map[string]PeerInfo)}
	}
	asn := remoteASN
	vrf.Peers[ip] = PeerInfo{RemoteAS: &asn, IsUp: true, IsEnabled: true}
	byVRF["global"] = vrf
}

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
	"errors"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

var (
	// ErrNoDriver is returned when the router has no platform or the platform has no driver.
	ErrNoDriver = errors.New("router has no device driver")
	// ErrUnsupportedDriver is returned when the driver of the platform is not registered.
	ErrUnsupportedDriver = errors.New("unsupported device driver")
	// ErrNoAdapter is returned when no adapter serves the management mode of the router.
	ErrNoAdapter = errors.New("no device adapter for the router")
)

// Adapter retrieves the live BGP state of a router.
type Adapter interface {
	// BGPNeighbors returns the BGP neighbors of the router.
	BGPNeighbors(
		ctx context.Context,
		router *peering.Router,
	) (NeighborsByVRF, error)

	// BGPNeighborsDetail returns the details of every BGP neighbor of the router.
	BGPNeighborsDetail(
		ctx context.Context,
		router *peering.Router,
	) (NeighborsDetailByVRF, error)
}

// Selector is an Adapter that delegates to the direct or the indirect adapter
// depending on the management mode of the router.
type Selector struct {
	direct   Adapter
	indirect Adapter
}

var _ Adapter = &Selector{}

// NewSelector returns a Selector. any of the adapters may be nil.
func NewSelector(direct Adapter, indirect Adapter) *Selector {
	return &Selector{direct: direct, indirect: indirect}
}

// For returns the adapter that serves the router.
func (s *Selector) For(router *peering.Router) (Adapter, error) {
	a := s.direct
	if router.UseNetBox {
		a = s.indirect
	}

	if a == nil {
		return nil, ErrNoAdapter
	}
	return a, nil
}

// BGPNeighbors implements Adapter
func (s *Selector) BGPNeighbors(ctx context.Context, router *peering.Router) (NeighborsByVRF, error) {
	a, err := s.For(router)
	if err != nil {
		return nil, err
	}

	return a.BGPNeighbors(ctx, router)
}

// BGPNeighborsDetail implements Adapter
func (s *Selector) BGPNeighborsDetail(ctx context.Context, router *peering.Router) (NeighborsDetailByVRF, error) {
	a, err := s.For(router)
	if err != nil {
		return nil, err
	}

	return a.BGPNeighborsDetail(ctx, router)
}

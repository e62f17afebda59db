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

package netbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

// Adapter is the indirect device.Adapter going through NetBox.
type Adapter struct {
	logger  *slog.Logger
	client  *Client
	timeout time.Duration
}

var _ device.Adapter = &Adapter{}

type AdapterConfig func(a *Adapter)

// WithTimeout sets the timeout of the routers without their own.
func WithTimeout(d time.Duration) AdapterConfig {
	return func(a *Adapter) {
		a.timeout = d
	}
}

func NewAdapter(logger *slog.Logger, client *Client, configs ...AdapterConfig) *Adapter {
	a := &Adapter{logger: logger, client: client}
	for _, f := range configs {
		f(a)
	}

	return a
}

func (a *Adapter) napalm(ctx context.Context, router *peering.Router, method string, out any) error {
	if router.NetBoxDeviceID == 0 {
		return fmt.Errorf("%w: %s", ErrNoDevice, router.Hostname)
	}

	timeout := a.timeout
	if router.Timeout > 0 {
		timeout = router.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := a.client.NAPALM(ctx, router.NetBoxDeviceID, method, out); err != nil {
		a.logger.Error("failed to retrieve data through netbox", "router", router.Hostname, "method", method, "error", err)
		return err
	}

	return nil
}

// BGPNeighbors implements device.Adapter
func (a *Adapter) BGPNeighbors(ctx context.Context, router *peering.Router) (device.NeighborsByVRF, error) {
	neighbors := device.NeighborsByVRF{}
	if err := a.napalm(ctx, router, MethodGetBGPNeighbors, &neighbors); err != nil {
		return nil, err
	}

	return neighbors, nil
}

// BGPNeighborsDetail implements device.Adapter
func (a *Adapter) BGPNeighborsDetail(ctx context.Context, router *peering.Router) (device.NeighborsDetailByVRF, error) {
	details := device.NeighborsDetailByVRF{}
	if err := a.napalm(ctx, router, MethodGetBGPNeighborsDetail, &details); err != nil {
		return nil, err
	}

	return details, nil
}

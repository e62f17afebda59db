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
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

// DefaultTimeout is used when neither the router nor the process configures a device timeout.
const DefaultTimeout = 30 * time.Second

// DriverConfig is the configuration a driver is opened with.
type DriverConfig struct {
	Hostname string
	Username string
	Password string
	Timeout  time.Duration
	// Args are the merged driver arguments (process < platform < router).
	Args map[string]string
}

// Driver talks to a router with a device-specific protocol.
type Driver interface {
	// Open establishes the session to the router.
	Open(ctx context.Context) error
	// Close closes the session. it is called once for every successful Open.
	Close() error

	BGPNeighbors(ctx context.Context) (NeighborsByVRF, error)
	BGPNeighborsDetail(ctx context.Context) (NeighborsDetailByVRF, error)
}

// DriverFactory builds a driver for one router.
type DriverFactory func(cfg DriverConfig, logger *slog.Logger) Driver

// Defaults are the process-wide device settings.
type Defaults struct {
	Username string
	Password string
	Timeout  time.Duration
	Args     map[string]string
}

// DirectAdapter connects to the routers with the driver named by their platform.
type DirectAdapter struct {
	logger   *slog.Logger
	drivers  map[string]DriverFactory
	defaults Defaults
}

var _ Adapter = &DirectAdapter{}

// DirectAdapterConfig is the functional option of DirectAdapter.
type DirectAdapterConfig func(a *DirectAdapter)

// WithDriver registers the driver factory under the given name.
func WithDriver(name string, factory DriverFactory) DirectAdapterConfig {
	return func(a *DirectAdapter) {
		a.drivers[name] = factory
	}
}

// WithDefaults sets the process-wide device settings.
func WithDefaults(d Defaults) DirectAdapterConfig {
	return func(a *DirectAdapter) {
		a.defaults = d
	}
}

func NewDirectAdapter(logger *slog.Logger, configs ...DirectAdapterConfig) *DirectAdapter {
	a := &DirectAdapter{
		logger:  logger,
		drivers: make(map[string]DriverFactory),
	}

	for _, c := range configs {
		c(a)
	}

	return a
}

// DriverConfigFor resolves the settings the router's driver is opened with.
// router-level values take precedence over platform-level ones, which take precedence over the defaults.
func (a *DirectAdapter) DriverConfigFor(router *peering.Router) DriverConfig {
	cfg := DriverConfig{
		Hostname: router.Hostname,
		Username: a.defaults.Username,
		Password: a.defaults.Password,
		Timeout:  a.defaults.Timeout,
		Args:     make(map[string]string),
	}

	if router.Username != "" {
		cfg.Username = router.Username
	}
	if router.Password != "" {
		cfg.Password = router.Password
	}
	if router.Timeout > 0 {
		cfg.Timeout = router.Timeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	maps.Copy(cfg.Args, a.defaults.Args)
	if router.Platform != nil {
		maps.Copy(cfg.Args, router.Platform.DriverArgs)
	}
	maps.Copy(cfg.Args, router.DriverArgs)

	return cfg
}

func (a *DirectAdapter) driverFor(router *peering.Router) (Driver, error) {
	if !router.HasDriver() {
		return nil, ErrNoDriver
	}

	factory, ok := a.drivers[router.Platform.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, router.Platform.Driver)
	}

	return factory(a.DriverConfigFor(router), a.logger), nil
}

// withDevice opens the driver of the router, calls fn and closes the driver.
func (a *DirectAdapter) withDevice(
	ctx context.Context,
	router *peering.Router,
	fn func(ctx context.Context, d Driver) error,
) error {
	d, err := a.driverFor(router)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.DriverConfigFor(router).Timeout)
	defer cancel()

	a.logger.Debug("opening connection", "router", router.Hostname)
	if err := d.Open(ctx); err != nil {
		a.logger.Error("error while opening connection with router", "router", router.Hostname, "error", err)
		return fmt.Errorf("failed to open connection with %s: %w", router.Hostname, err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			a.logger.Warn("failed to close connection", "router", router.Hostname, "error", err)
		}
		a.logger.Debug("closed connection", "router", router.Hostname)
	}()

	return fn(ctx, d)
}

// BGPNeighbors implements Adapter
func (a *DirectAdapter) BGPNeighbors(ctx context.Context, router *peering.Router) (NeighborsByVRF, error) {
	var neighbors NeighborsByVRF
	err := a.withDevice(ctx, router, func(ctx context.Context, d Driver) error {
		var err error
		neighbors, err = d.BGPNeighbors(ctx)
		return err
	})

	return neighbors, err
}

// BGPNeighborsDetail implements Adapter
func (a *DirectAdapter) BGPNeighborsDetail(ctx context.Context, router *peering.Router) (NeighborsDetailByVRF, error) {
	var details NeighborsDetailByVRF
	err := a.withDevice(ctx, router, func(ctx context.Context, d Driver) error {
		var err error
		details, err = d.BGPNeighborsDetail(ctx)
		return err
	})

	return details, err
}

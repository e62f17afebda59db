package controller

import (
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// ControllerConfig is the configuration that is applied into Controller.
type ControllerConfig func(c *Controller)

// WithStore generates a config that sets the store.Store into Controller.
func WithStore(s store.Store) ControllerConfig {
	return func(c *Controller) {
		c.store = s
	}
}

// WithDeviceAdapter generates a config that sets the device.Adapter into Controller.
func WithDeviceAdapter(a device.Adapter) ControllerConfig {
	return func(c *Controller) {
		c.adapter = a
	}
}

// WithPeeringDBCache generates a config that sets the peeringdb.Cache into Controller.
// an empty in-memory cache is used by default.
func WithPeeringDBCache(cache peeringdb.Cache) ControllerConfig {
	return func(c *Controller) {
		c.peeringDB = cache
	}
}

func WithClock(now func() time.Time) ControllerConfig {
	return func(c *Controller) {
		c.now = now
	}
}

// Package controller reconciles the stored peering sessions with the live BGP state of the routers
// and with the PeeringDB records.
package controller

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// Controller polls the routers and updates the stored sessions.
// the methods don't coordinate concurrent polls of the same scope,
// the isolation of the store transactions is the only protection.
type Controller struct {
	logger *slog.Logger

	// store persists the peering records.
	store store.Store
	// adapter retrieves the live BGP state of the routers.
	adapter device.Adapter
	// peeringDB holds the cached PeeringDB records.
	peeringDB peeringdb.Cache
	// now returns the current time. it is replaced in tests.
	now func() time.Time

	// m is a read-write-mutex that is used for sharing the status btw controller/http-api goroutines.
	m      sync.RWMutex
	status Status
}

func NewController(logger *slog.Logger, configs ...ControllerConfig) *Controller {
	c := &Controller{
		logger:    logger,
		peeringDB: peeringdb.NewMemoryCache(),
		now:       time.Now,
		status:    Status{State: StateInitial},
	}

	for _, cfg := range configs {
		cfg(c)
	}

	return c
}

// Store returns the store the controller works on.
func (c *Controller) Store() store.Store {
	return c.store
}

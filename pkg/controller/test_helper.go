package controller

import (
	"log/slog"
	"os"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// fakeDeps are the fakes a controller built by _newFakeController works on.
type fakeDeps struct {
	store   *store.MemoryStore
	adapter *device.FakeAdapter
	cache   *peeringdb.MemoryCache
	// now is returned by the clock of the controller.
	now time.Time
}

func _newFakeController() (*Controller, *fakeDeps) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{}))
	deps := &fakeDeps{
		store:   store.NewMemoryStore(),
		adapter: device.NewFakeAdapter(),
		cache:   peeringdb.NewMemoryCache(),
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	c := NewController(
		logger,
		WithStore(deps.store),
		WithDeviceAdapter(deps.adapter),
		WithPeeringDBCache(deps.cache),
		WithClock(func() time.Time { return deps.now }),
	)

	return c, deps
}

// addRouter seeds a router usable for the polls.
func (d *fakeDeps) addRouter(name string) *peering.Router {
	r := &peering.Router{
		Name:        name,
		Hostname:    name + ".example.net",
		LocalASN:    64496,
		DeviceState: peering.DeviceStateEnabled,
		Platform:    &peering.Platform{Name: "frr", Driver: "frr"},
	}
	d.store.AddRouter(r)
	return r
}

func (d *fakeDeps) addAutonomousSystem(asn uint32) *peering.AutonomousSystem {
	as := peering.NewAutonomousSystem(asn, "test")
	d.store.AddAutonomousSystem(as)
	return as
}

func int64Ptr(v int64) *int64 { return &v }

func count(v int64) *int64 { return &v }

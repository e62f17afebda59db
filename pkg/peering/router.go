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
	"log/slog"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
)

// Platform describes how to talk to a family of routers.
type Platform struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// Driver is the name of the device driver (e.g. "gobgp", "frr"). empty means no driver.
	Driver string `json:"driver"`
	// DriverArgs are driver arguments shared by every router of the platform.
	DriverArgs map[string]string `json:"driver_args,omitempty"`
}

// Router is a BGP speaker that we manage.
type Router struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	LocalASN uint32 `json:"local_asn"`

	// Platform is nil when the router has no assigned platform.
	Platform    *Platform   `json:"platform"`
	DeviceState DeviceState `json:"device_state"`

	// UseNetBox selects the indirect device access through NetBox instead of a direct connection.
	UseNetBox      bool  `json:"use_netbox"`
	NetBoxDeviceID int64 `json:"netbox_device_id"`

	// Username, Password and Timeout override the process-wide device defaults when set.
	Username   string            `json:"username,omitempty"`
	Password   string            `json:"-"`
	Timeout    time.Duration     `json:"timeout"`
	DriverArgs map[string]string `json:"driver_args,omitempty"`
}

func (r *Router) String() string {
	return r.Name
}

// HasDriver returns true if the router has a platform with a device driver.
func (r *Router) HasDriver() bool {
	return r.Platform != nil && r.Platform.Driver != ""
}

// IsUsableForTask performs the pre-flight checks of a background task on the router.
// failures are reported to the sink (if any) and never returned as errors.
func (r *Router) IsUsableForTask(sink jobs.Sink, logger *slog.Logger) bool {
	var reason string
	switch {
	case r.DeviceState == DeviceStateDisabled:
		reason = "Router is not enabled."
	case r.Platform == nil:
		reason = "Router has no assigned platform."
	case r.Platform.Driver == "":
		reason = "Router's platform has no device driver."
	default:
		return true
	}

	if sink != nil {
		sink.MarkErrored(reason, r, logger)
	} else if logger != nil {
		logger.Debug("router is not usable for task", "router", r.Name, "reason", reason)
	}

	return false
}

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

// Package frrouting implements the device driver of FRRouting routers.
package frrouting

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/frrouting/bgpd"
	"github.com/sakura-internet/peering-session-controller/pkg/frrouting/vtysh"
)

// DriverName is the platform driver name served by this package.
const DriverName = "frr"

// driver args.
const (
	ArgSSHPort        = "ssh_port"
	ArgIdentityFile   = "ssh_identity_file"
	ArgKnownHostsFile = "ssh_known_hosts_file"
	ArgVtyshPath      = "vtysh_path"
)

// Driver reads the BGP neighbors of a router from bgpd.
// the output of bgpd is read once per Open and shared by both queries.
type Driver struct {
	logger    *slog.Logger
	hostname  string
	connector bgpd.BGPdConnector

	neighbors bgpd.VRFNeighbors
}

var _ device.Driver = &Driver{}

// NewDriver implements device.DriverFactory.
func NewDriver(cfg device.DriverConfig, logger *slog.Logger) device.Driver {
	target := vtysh.Target{
		Hostname:       cfg.Hostname,
		Username:       cfg.Username,
		Password:       cfg.Password,
		SSHPort:        cfg.Args[ArgSSHPort],
		IdentityFile:   cfg.Args[ArgIdentityFile],
		KnownHostsFile: cfg.Args[ArgKnownHostsFile],
		VtyshPath:      cfg.Args[ArgVtyshPath],
	}

	return NewDriverWithConnector(cfg.Hostname, vtysh.NewDefaultBGPdConnector(logger, target), logger)
}

func NewDriverWithConnector(hostname string, connector bgpd.BGPdConnector, logger *slog.Logger) *Driver {
	return &Driver{
		logger:    logger.With("driver", DriverName),
		hostname:  hostname,
		connector: connector,
	}
}

// Open implements device.Driver
func (d *Driver) Open(ctx context.Context) error {
	neighbors, err := d.connector.ShowBGPNeighbors(ctx)
	if err != nil {
		return err
	}

	d.neighbors = neighbors
	return nil
}

// Close implements device.Driver
func (d *Driver) Close() error {
	d.neighbors = nil
	return nil
}

// BGPNeighbors implements device.Driver
func (d *Driver) BGPNeighbors(context.Context) (device.NeighborsByVRF, error) {
	result := make(device.NeighborsByVRF, len(d.neighbors))

	for vrfName, vrf := range d.neighbors {
		peers := make(map[string]device.PeerInfo, len(vrf.Neighbors))
		for ip, n := range vrf.Neighbors {
			localAS := n.LocalAS
			peers[ip] = device.PeerInfo{
				LocalAS:     &localAS,
				RemoteAS:    n.RemoteAS,
				RemoteID:    n.RemoteRouterID,
				IsUp:        n.Established(),
				IsEnabled:   true,
				Description: n.Hostname,
				Uptime:      n.UpTimeMsec / 1000,
			}
		}

		result[vrfName] = device.VRFNeighbors{Peers: peers}
	}

	return result, nil
}

// BGPNeighborsDetail implements device.Driver
func (d *Driver) BGPNeighborsDetail(context.Context) (device.NeighborsDetailByVRF, error) {
	result := make(device.NeighborsDetailByVRF, len(d.neighbors))

	for vrfName, vrf := range d.neighbors {
		byASN := make(map[uint32][]device.NeighborDetail)
		for ip, n := range vrf.Neighbors {
			if n.RemoteAS == nil {
				d.logger.Debug("ignored bgp neighbor without remote-as", "ip", ip, "vrf", vrfName, "router", d.hostname)
				continue
			}

			received := n.AcceptedPrefixCount()
			advertised := n.SentPrefixCount()
			detail := device.NeighborDetail{
				Up:                    n.Established(),
				LocalAS:               n.LocalAS,
				RemoteAS:              *n.RemoteAS,
				RemoteAddress:         normalizeAddress(ip),
				ConnectionState:       n.BGPState,
				ReceivedPrefixCount:   &received,
				AcceptedPrefixCount:   &received,
				AdvertisedPrefixCount: &advertised,
			}
			byASN[*n.RemoteAS] = append(byASN[*n.RemoteAS], detail)
		}

		result[vrfName] = byASN
	}

	return result, nil
}

// normalizeAddress drops the zone bgpd appends to link-local neighbors.
func normalizeAddress(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	return addr.WithZone("").String()
}

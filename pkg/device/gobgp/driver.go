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

// Package gobgp implements the device driver of routers running GoBGP.
// the driver talks to gobgpd with its gRPC API.
package gobgp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	gobgpapi "github.com/osrg/gobgp/v3/api"
	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DriverName is the platform driver name served by this package.
const DriverName = "gobgp"

// ArgGRPCPort is the driver arg overriding the gRPC port of gobgpd.
const ArgGRPCPort = "grpc_port"

// DefaultGRPCPort is the default gRPC port of gobgpd.
const DefaultGRPCPort = "50051"

// defaultVRF names the global RIB of gobgpd.
const defaultVRF = "global"

// PeerLister lists the peers of a gobgpd.
type PeerLister interface {
	ListPeer(ctx context.Context, in *gobgpapi.ListPeerRequest, opts ...grpc.CallOption) (gobgpapi.GobgpApi_ListPeerClient, error)
}

// Driver reads the BGP peers of gobgpd.
type Driver struct {
	logger  *slog.Logger
	address string

	conn   *grpc.ClientConn
	client PeerLister
}

var _ device.Driver = &Driver{}

// NewDriverFactory returns the device.DriverFactory of gobgpd.
// ArgGRPCPort falls back to defaultPort, then to DefaultGRPCPort.
func NewDriverFactory(defaultPort string) device.DriverFactory {
	return func(cfg device.DriverConfig, logger *slog.Logger) device.Driver {
		port := cfg.Args[ArgGRPCPort]
		if port == "" {
			port = defaultPort
		}
		if port == "" {
			port = DefaultGRPCPort
		}

		return &Driver{
			logger:  logger.With("driver", DriverName),
			address: net.JoinHostPort(cfg.Hostname, port),
		}
	}
}

// NewDriverWithClient returns a driver using the given client. Open and Close are no-ops.
func NewDriverWithClient(client PeerLister, logger *slog.Logger) *Driver {
	return &Driver{
		logger: logger.With("driver", DriverName),
		client: client,
	}
}

// Open implements device.Driver
func (d *Driver) Open(ctx context.Context) error {
	if d.client != nil {
		return nil
	}

	d.logger.Debug("dial gobgpd", "address", d.address)
	conn, err := grpc.DialContext(
		ctx,
		d.address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return fmt.Errorf("failed to dial gobgpd at %s: %w", d.address, err)
	}

	d.conn = conn
	d.client = gobgpapi.NewGobgpApiClient(conn)
	return nil
}

// Close implements device.Driver
func (d *Driver) Close() error {
	if d.conn == nil {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	d.client = nil
	return err
}

func (d *Driver) listPeers(ctx context.Context) ([]*gobgpapi.Peer, error) {
	if d.client == nil {
		return nil, errors.New("driver is not opened")
	}

	stream, err := d.client.ListPeer(ctx, &gobgpapi.ListPeerRequest{EnableAdvertised: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}

	peers := make([]*gobgpapi.Peer, 0)
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive peer: %w", err)
		}
		if res.GetPeer() != nil {
			peers = append(peers, res.GetPeer())
		}
	}

	return peers, nil
}

// BGPNeighbors implements device.Driver
func (d *Driver) BGPNeighbors(ctx context.Context) (device.NeighborsByVRF, error) {
	peers, err := d.listPeers(ctx)
	if err != nil {
		return nil, err
	}

	result := make(device.NeighborsByVRF)
	for _, p := range peers {
		address := peerAddress(p)
		if address == "" {
			continue
		}

		vrf := peerVRF(p)
		neighbors, ok := result[vrf]
		if !ok {
			neighbors = device.VRFNeighbors{Peers: make(map[string]device.PeerInfo)}
		}

		info := device.PeerInfo{
			RemoteAS:    peerASN(p),
			RemoteID:    p.GetState().GetRouterId(),
			IsUp:        p.GetState().GetSessionState() == gobgpapi.PeerState_ESTABLISHED,
			IsEnabled:   p.GetState().GetAdminState() == gobgpapi.PeerState_UP,
			Description: p.GetConf().GetDescription(),
		}
		if localASN := p.GetConf().GetLocalAsn(); localASN != 0 {
			info.LocalAS = &localASN
		}
		if uptime := p.GetTimers().GetState().GetUptime(); uptime != nil && info.IsUp {
			info.Uptime = int64(time.Since(uptime.AsTime()).Seconds())
		}

		neighbors.Peers[address] = info
		result[vrf] = neighbors
	}

	return result, nil
}

// BGPNeighborsDetail implements device.Driver
func (d *Driver) BGPNeighborsDetail(ctx context.Context) (device.NeighborsDetailByVRF, error) {
	peers, err := d.listPeers(ctx)
	if err != nil {
		return nil, err
	}

	result := make(device.NeighborsDetailByVRF)
	for _, p := range peers {
		address := peerAddress(p)
		asn := peerASN(p)
		if address == "" || asn == nil {
			d.logger.Debug("ignored gobgp peer", "address", address)
			continue
		}

		var received, accepted, advertised int64
		for _, afiSafi := range p.GetAfiSafis() {
			received += int64(afiSafi.GetState().GetReceived())
			accepted += int64(afiSafi.GetState().GetAccepted())
			advertised += int64(afiSafi.GetState().GetAdvertised())
		}

		state := p.GetState().GetSessionState()
		detail := device.NeighborDetail{
			Up:                    state == gobgpapi.PeerState_ESTABLISHED,
			LocalAS:               p.GetConf().GetLocalAsn(),
			RemoteAS:              *asn,
			LocalAddress:          p.GetTransport().GetLocalAddress(),
			RemoteAddress:         address,
			ConnectionState:       strings.ToLower(state.String()),
			ReceivedPrefixCount:   &received,
			AcceptedPrefixCount:   &accepted,
			AdvertisedPrefixCount: &advertised,
		}

		vrf := peerVRF(p)
		if _, ok := result[vrf]; !ok {
			result[vrf] = make(map[uint32][]device.NeighborDetail)
		}
		result[vrf][*asn] = append(result[vrf][*asn], detail)
	}

	return result, nil
}

func peerAddress(p *gobgpapi.Peer) string {
	if a := p.GetConf().GetNeighborAddress(); a != "" {
		return a
	}
	return p.GetState().GetNeighborAddress()
}

// peerASN returns nil when the AS of the peer is unknown (e.g. dynamic neighbors not connected yet).
func peerASN(p *gobgpapi.Peer) *uint32 {
	asn := p.GetState().GetPeerAsn()
	if asn == 0 {
		asn = p.GetConf().GetPeerAsn()
	}
	if asn == 0 {
		return nil
	}
	return &asn
}

func peerVRF(p *gobgpapi.Peer) string {
	if vrf := p.GetConf().GetVrf(); vrf != "" {
		return vrf
	}
	return defaultVRF
}

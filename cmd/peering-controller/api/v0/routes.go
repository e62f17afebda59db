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

package v0

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the operational endpoints on the echo server.
// the status endpoints are registered at the root, the operations under /api/v0.
func RegisterRoutes(e *echo.Echo) {
	e.HEAD("/healthcheck", HealthCheckEndpoint)
	e.GET("/healthcheck", HealthCheckEndpoint)
	e.GET("/status", GetControllerStatus)

	g := e.Group("/api/v0")
	g.POST("/bgp-groups/:id/poll", PollBGPGroup)
	g.POST("/internet-exchanges/:id/poll", PollInternetExchange)
	g.POST("/connections/:id/import", ImportSessions)
	g.GET("/internet-exchanges/:id/available-peers", GetAvailablePeers)
	g.GET("/internet-exchange-sessions/:id/abandoned", GetSessionAbandoned)
	g.POST("/direct-sessions/:id/poll", PollDirectPeeringSession)
	g.POST("/internet-exchange-sessions/:id/poll", PollInternetExchangePeeringSession)
	g.POST("/internet-exchanges/:id/link", LinkInternetExchange)
	g.GET("/netixlans/:id/proposals", GetSessionProposals)
	g.POST("/autonomous-systems/:asn/sync", SynchronizeAutonomousSystem)
	g.POST("/autonomous-systems/:asn/resolve", ResolveAutonomousSystem)
	g.GET("/autonomous-systems/:asn/missing-sessions", GetMissingPeeringSessions)
}

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
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sakura-internet/peering-session-controller/pkg/controller"
	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
)

type ImportSessionsResponse struct {
	JobResponse
	controller.ImportResult
}

type AbandonedResponse struct {
	Abandoned bool `json:"abandoned"`
}

type SynchronizeResponse struct {
	Synchronized bool `json:"synchronized"`
}

type LinkResponse struct {
	Linked  bool   `json:"linked"`
	IXLanID *int64 `json:"peeringdb_ixlan_id"`
}

type ResolveResponse struct {
	Resolution       controller.Resolution     `json:"resolution"`
	AutonomousSystem *peering.AutonomousSystem `json:"autonomous_system"`
}

// ImportSessions is an http handler that imports the sessions configured on the router of a connection.
func ImportSessions(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	result := jobs.NewResult("import-sessions")
	result.SetRunning()
	imported, err := ctrler.ImportSessions(c.Request().Context(), result, id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}
	result.MarkCompleted()

	return c.JSON(http.StatusOK, ImportSessionsResponse{JobResponse: newJobResponse(result), ImportResult: imported})
}

// GetAvailablePeers is an http handler that lists the IXP members we have no session with.
func GetAvailablePeers(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	peers, err := ctrler.AvailablePeers(c.Request().Context(), id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}
	if peers == nil {
		peers = make([]peeringdb.NetworkIXLan, 0)
	}

	return c.JSON(http.StatusOK, peers)
}

// GetSessionAbandoned is an http handler that tells if an IXP session looks abandoned by the peer.
func GetSessionAbandoned(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	abandoned, err := ctrler.IsAbandoned(c.Request().Context(), id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, AbandonedResponse{Abandoned: abandoned})
}

// SynchronizeAutonomousSystem is an http handler that copies the PeeringDB values into an AS.
func SynchronizeAutonomousSystem(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	asn, err := paramASN(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	synchronized, err := ctrler.SynchronizeAutonomousSystem(c.Request().Context(), asn)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, SynchronizeResponse{Synchronized: synchronized})
}

// ResolveAutonomousSystem is an http handler that returns the AS record of an ASN,
// creating it from PeeringDB when there is none.
func ResolveAutonomousSystem(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	asn, err := paramASN(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	resolved, err := ctrler.ResolveOrCreateAutonomousSystem(c.Request().Context(), asn)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, ResolveResponse{Resolution: resolved.Resolution, AutonomousSystem: resolved.AutonomousSystem})
}

// GetMissingPeeringSessions is an http handler that lists the PeeringDB records of an AS we have no session with.
// the optional `internet_exchange` query parameter restricts the lookup to one IXP.
func GetMissingPeeringSessions(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	asn, err := paramASN(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	var ixpID *int64
	if v := c.QueryParam("internet_exchange"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: fmt.Sprintf("invalid internet_exchange: %q", v)})
		}
		ixpID = &id
	}

	missing, err := ctrler.MissingPeeringSessions(c.Request().Context(), asn, ixpID)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, missing)
}

// LinkInternetExchange is an http handler that links an IXP to the PeeringDB ixlan of its connections.
func LinkInternetExchange(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	ixlanID, err := ctrler.LinkInternetExchange(c.Request().Context(), id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, LinkResponse{Linked: ixlanID != nil, IXLanID: ixlanID})
}

// GetSessionProposals is an http handler that lists the sessions to set up with a PeeringDB member record.
func GetSessionProposals(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	proposals, err := ctrler.ProposeSessionsFromPeeringDB(c.Request().Context(), id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, proposals)
}

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
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
)

// PollDirectPeeringSession is an http handler that polls the state of one direct session.
func PollDirectPeeringSession(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	result := jobs.NewResult("poll-direct-peering-session")
	result.SetRunning()
	polled, err := ctrler.PollDirectPeeringSession(c.Request().Context(), result, id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}
	result.MarkCompleted()

	return c.JSON(http.StatusOK, PollResponse{JobResponse: newJobResponse(result), Polled: polled})
}

// PollInternetExchangePeeringSession is an http handler that polls the state of one IXP session.
func PollInternetExchangePeeringSession(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	result := jobs.NewResult("poll-internet-exchange-peering-session")
	result.SetRunning()
	polled, err := ctrler.PollInternetExchangePeeringSession(c.Request().Context(), result, id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}
	result.MarkCompleted()

	return c.JSON(http.StatusOK, PollResponse{JobResponse: newJobResponse(result), Polled: polled})
}

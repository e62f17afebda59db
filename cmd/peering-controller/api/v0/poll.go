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
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

// JobResponse is the outcome of an operation triggered through the API.
type JobResponse struct {
	Job     string       `json:"job"`
	Status  jobs.Status  `json:"status"`
	Entries []jobs.Entry `json:"entries"`
}

// PollResponse tells if the scope was polled.
type PollResponse struct {
	JobResponse
	Polled bool `json:"polled"`
}

func newJobResponse(result *jobs.Result) JobResponse {
	return JobResponse{Job: result.Name(), Status: result.Status(), Entries: result.Entries()}
}

// paramInt64 parses the path parameter as a positive ID.
func paramInt64(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, c.Param(name))
	}
	return v, nil
}

// paramASN parses the `asn` path parameter.
func paramASN(c echo.Context) (uint32, error) {
	v, err := strconv.ParseUint(c.Param("asn"), 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid asn: %q", c.Param("asn"))
	}
	return uint32(v), nil
}

// errorStatus maps a controller error to the http status.
func errorStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, peeringdb.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// PollBGPGroup is an http handler that polls the session states of a BGP group.
func PollBGPGroup(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	result := jobs.NewResult("poll-bgp-group")
	result.SetRunning()
	polled, err := ctrler.PollBGPGroup(c.Request().Context(), result, id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}
	result.MarkCompleted()

	return c.JSON(http.StatusOK, PollResponse{JobResponse: newJobResponse(result), Polled: polled})
}

// PollInternetExchange is an http handler that polls the session states of an IXP.
func PollInternetExchange(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}
	id, err := paramInt64(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Message: err.Error()})
	}

	result := jobs.NewResult("poll-internet-exchange")
	result.SetRunning()
	polled, err := ctrler.PollInternetExchange(c.Request().Context(), result, id)
	if err != nil {
		return c.JSON(errorStatus(err), &ErrorResponse{Message: err.Error()})
	}
	result.MarkCompleted()

	return c.JSON(http.StatusOK, PollResponse{JobResponse: newJobResponse(result), Polled: polled})
}

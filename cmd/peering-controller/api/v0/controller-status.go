package v0

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sakura-internet/peering-session-controller/pkg/controller"
)

// GetControllerStatus is an http handler that returns the summary of the last poll cycle.
// that assumes the `UseController` middleware before triggered this.
func GetControllerStatus(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, ctrler.GetStatus())
}

// HealthCheckEndpoint answers 200 once the poll loop is running.
func HealthCheckEndpoint(c echo.Context) error {
	ctrler, err := ExtractController(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Message: err.Error()})
	}

	if ctrler.GetStatus().State == controller.StateInitial {
		return c.NoContent(http.StatusServiceUnavailable)
	}

	return c.NoContent(http.StatusOK)
}

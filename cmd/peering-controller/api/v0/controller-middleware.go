package v0

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/sakura-internet/peering-session-controller/pkg/controller"
)

const (
	controllerCtxKey = "controller"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// UseController is an echo middleware that injects the controller into the request context.
func UseController(ctrler *controller.Controller) func(echo.HandlerFunc) echo.HandlerFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(controllerCtxKey, ctrler)
			return next(c)
		}
	}
}

// ExtractController is an utility for retrieving the controller from request context.
func ExtractController(c echo.Context) (*controller.Controller, error) {
	v, ok := c.Get(controllerCtxKey).(*controller.Controller)
	if !ok || v == nil {
		return nil, fmt.Errorf("failed to get controller from context")
	}

	return v, nil
}

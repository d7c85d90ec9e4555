package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health reports liveness and database reachability for load balancers
// and deployment probes.
type Health struct {
	DB *sql.DB
}

// Check handles GET /healthz.  A failing database ping degrades the
// response to 503 so the instance is pulled from rotation.
func (h *Health) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "db": "unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/omarbridgetech/AlertHub/internal/database"
	"github.com/omarbridgetech/AlertHub/internal/domain"
)

type HealthHandler struct {
	db      database.Pinger
	version string
}

// NewHealthHandler builds the liveness and readiness endpoints. With a nil db
// readiness always succeeds.
func NewHealthHandler(db database.Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(c.UserContext(), h.db); err != nil {
			return domain.ErrServiceUnavailable.WithError(err)
		}
	}
	return c.JSON(HealthResponse{
		Status: "ready",
	})
}

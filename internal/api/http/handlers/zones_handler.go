package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MaysHroub/cst-management-info-system/internal/service"
)

// ZonesHandler serves the zone catalogue.
type ZonesHandler struct {
	zones *service.ZoneService
}

func NewZonesHandler(zones *service.ZoneService) *ZonesHandler {
	return &ZonesHandler{zones: zones}
}

// List GET /zones.
func (h *ZonesHandler) List(c *fiber.Ctx) error {
	zones, err := h.zones.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": zones})
}

package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// listDeliveriesHandler serves the ClickHouse-backed outcome archive.
// Returns 503 when the archive is not configured.
func listDeliveriesHandler(deliveryLog repository.DeliveryLogRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if deliveryLog == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "delivery log not configured"})
		}

		eventName := strings.TrimSpace(c.QueryParam("eventName"))
		outcome := strings.TrimSpace(c.QueryParam("outcome"))
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := deliveryLog.ListRecent(c.Request().Context(), eventName, outcome, limit, offset)
		if err != nil {
			log.Errorf("list deliveries failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(rows),
			"results": rows,
		})
	}
}

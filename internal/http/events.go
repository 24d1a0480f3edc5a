package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fibhq/outbox-bridge/internal/metrics"
	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/fibhq/outbox-bridge/internal/service/outbox"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type appendReq struct {
	EventName     string          `json:"eventName"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
	Meta          json.RawMessage `json:"meta"`
	DelaySeconds  int             `json:"delaySeconds"`
}

func appendEventHandler(svc *outbox.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req appendReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.EventName = strings.TrimSpace(req.EventName)
		req.AggregateType = strings.TrimSpace(req.AggregateType)
		req.AggregateID = strings.TrimSpace(req.AggregateID)

		if req.EventName == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "eventName is required"})
		}
		if req.DelaySeconds < 0 {
			req.DelaySeconds = 0
		}
		if len(req.Payload) == 0 {
			req.Payload = json.RawMessage(`{}`)
		}

		event := model.NewDomainEvent(req.EventName, req.AggregateType, req.AggregateID, req.Payload, req.Meta)

		row, err := svc.Append(c.Request().Context(), nil, event, time.Duration(req.DelaySeconds)*time.Second)
		if err != nil {
			log.Errorf("append event failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		metrics.EventsAppendedTotal.Inc()

		return c.JSON(http.StatusAccepted, map[string]any{
			"eventId":     row.ID,
			"eventName":   row.EventName,
			"status":      row.Status.String(),
			"availableAt": row.AvailableAt,
		})
	}
}

func getEventHandler(events repository.EventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		ev, err := events.GetByID(c.Request().Context(), c.Param("id"))
		if err != nil {
			log.Errorf("get event failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if ev == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "event not found"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"event":       ev.Domain(),
			"status":      ev.Status.String(),
			"attempts":    ev.Attempts,
			"availableAt": ev.AvailableAt,
			"publishedAt": ev.PublishedAt,
			"lastError":   ev.LastError,
		})
	}
}

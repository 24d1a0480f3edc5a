package http

import (
	"net/http"
	"strings"

	"github.com/fibhq/outbox-bridge/internal/dispatcher"
	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/fibhq/outbox-bridge/internal/secret"
	"github.com/fibhq/outbox-bridge/internal/service/outbox"
	"github.com/fibhq/outbox-bridge/internal/strategy"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

func statsHandler(svc *outbox.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := svc.Stats(c.Request().Context())
		if err != nil {
			log.Errorf("stats failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, stats)
	}
}

// listDestinationsHandler returns active destinations with credentials
// masked. Raw secrets and references never leave the server.
func listDestinationsHandler(destinations repository.DestinationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := destinations.ListActiveDestinations(c.Request().Context())
		if err != nil {
			log.Errorf("list destinations failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		out := make([]map[string]any, 0, len(rows))
		for _, d := range rows {
			out = append(out, map[string]any{
				"id":            d.ID,
				"name":          d.Name,
				"technicalName": d.TechnicalName,
				"type":          d.Type,
				"config":        secret.MaskConfig(d.ConfigMap()),
			})
		}

		return c.JSON(http.StatusOK, map[string]any{"destinations": out})
	}
}

func destinationTypesHandler(reg *strategy.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"types": reg.TypeDefinitions()})
	}
}

func dispatchHandler(d *dispatcher.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := d.DispatchBatch(c.Request().Context())
		if err != nil {
			log.Errorf("dispatch failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "dispatch error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"seeded":    res.Seeded,
			"claimed":   res.Claimed,
			"published": res.Published,
			"retried":   res.Retried,
			"dead":      res.Dead,
			"errors":    res.Errors,
		})
	}
}

type requeueReq struct {
	Limit     int    `json:"limit"`
	EventName string `json:"eventName"`
}

func requeueDeadHandler(svc *outbox.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req requeueReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		n, err := svc.RequeueDead(c.Request().Context(), req.Limit, strings.TrimSpace(req.EventName))
		if err != nil {
			log.Errorf("requeue dead failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"requeued": n})
	}
}

func resetLocksHandler(svc *outbox.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := svc.ResetExpiredLocks(c.Request().Context())
		if err != nil {
			log.Errorf("reset locks failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"reset": n})
	}
}

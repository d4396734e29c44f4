package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"streetlight-server/internal/modules/airquality/views"
	"streetlight-server/internal/utils"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// handleData serves the latest snapshot. It never fails: before the first
// sample, or with an idle producer, it serves the default state.
func (c *airQualityControllerImpl) handleData(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Snapshot().ToPayload())
}

func (c *airQualityControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := views.DashboardData{
		Payload:        c.service.Snapshot().ToPayload(),
		Source:         c.service.Source(),
		Running:        c.service.Running(),
		WindowCapacity: c.service.Capacity(),
	}
	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("dashboard: write response failed", "error", err)
	}
}

type statusResponse struct {
	Source              string `json:"source"`
	Running             bool   `json:"running"`
	IdleReason          string `json:"idle_reason,omitempty"`
	Samples             uint64 `json:"samples"`
	Accepted            uint64 `json:"accepted"`
	Rejected            uint64 `json:"rejected"`
	TransportErrors     uint64 `json:"transport_errors"`
	Reconnects          uint64 `json:"reconnects"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
	WindowCapacity      int    `json:"window_capacity"`
	WindowLength        int    `json:"window_length"`
	ModeratePolicy      string `json:"moderate_policy"`
}

func (c *airQualityControllerImpl) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := c.service.Snapshot()
	stats := c.service.Stats()
	resp := statusResponse{
		Source:              c.service.Source(),
		Running:             c.service.Running(),
		Samples:             snap.Samples,
		Accepted:            stats.Accepted,
		Rejected:            stats.Rejected,
		TransportErrors:     stats.TransportErrors,
		Reconnects:          stats.Reconnects,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		WindowCapacity:      c.service.Capacity(),
		WindowLength:        len(snap.Window),
		ModeratePolicy:      c.moderatePolicy,
	}
	if err := c.service.IdleReason(); err != nil {
		resp.IdleReason = err.Error()
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *airQualityControllerImpl) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.QueryInt(r, "limit", defaultEventsLimit, 1, maxEventsLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := c.journal.GetRecentEvents(limit)
	if err != nil {
		slog.Error("events: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	utils.WriteJSON(w, http.StatusOK, events)
}

package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"streetlight-server/internal/utils"
)

// ProducerStatus is the part of the sampling service health reports on.
type ProducerStatus interface {
	Running() bool
	Source() string
}

type healthchecker struct {
	db       *sql.DB
	producer ProducerStatus
}

// handleHealthz fails only when the journal database is unreachable. An
// idle producer still serves snapshots, so it is reported but not fatal.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	producer := "idle"
	source := "none"
	if h.producer != nil {
		source = h.producer.Source()
		if h.producer.Running() {
			producer = "running"
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"producer": producer,
		"source":   source,
	})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, producer ProducerStatus) {
	h := &healthchecker{db: db, producer: producer}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

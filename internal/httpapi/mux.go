package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux registers the infrastructure routes. Feature modules add theirs
// through RegisterFeature. metricsHandler may be nil.
func NewMux(db *sql.DB, producer ProducerStatus, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, producer)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

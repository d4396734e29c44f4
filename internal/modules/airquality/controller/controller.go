package controller

import (
	"net/http"

	"streetlight-server/internal/modules/airquality/ingest"
	"streetlight-server/internal/modules/airquality/repository"
	"streetlight-server/internal/modules/airquality/types"
)

// SnapshotService is the read side of the sampling service.
type SnapshotService interface {
	Snapshot() types.Snapshot
	Stats() ingest.Stats
	Running() bool
	Source() string
	Capacity() int
	IdleReason() error
}

type AirQualityController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type airQualityControllerImpl struct {
	service        SnapshotService
	journal        repository.JournalRepository
	moderatePolicy string
	live           http.Handler
}

// NewAirQualityController builds the query handlers. journal and live may
// be nil, which disables /api/v1/events and /ws respectively.
func NewAirQualityController(service SnapshotService, journal repository.JournalRepository, moderatePolicy string, live http.Handler) AirQualityController {
	return &airQualityControllerImpl{
		service:        service,
		journal:        journal,
		moderatePolicy: moderatePolicy,
		live:           live,
	}
}

func (c *airQualityControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.HandleFunc("GET /data", c.handleData)
	mux.HandleFunc("GET /api/v1/status", c.handleStatus)
	if c.journal != nil {
		mux.HandleFunc("GET /api/v1/events", c.handleEvents)
	}
	if c.live != nil {
		mux.Handle("GET /ws", c.live)
	}
}

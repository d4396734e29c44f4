package airquality

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"streetlight-server/internal/config"
	"streetlight-server/internal/modules/airquality/aqi"
	"streetlight-server/internal/modules/airquality/controller"
	"streetlight-server/internal/modules/airquality/gas"
	"streetlight-server/internal/modules/airquality/generator"
	"streetlight-server/internal/modules/airquality/ingest"
	"streetlight-server/internal/modules/airquality/repository"
	"streetlight-server/internal/modules/airquality/store"
)

// Pipeline is the core shared by every producer: classifier, gas model,
// state store, journal and ingestor.
type Pipeline struct {
	Classifier *aqi.Classifier
	Store      *store.Store
	Journal    repository.JournalRepository
	Ingestor   *ingest.Ingestor

	writer *repository.AsyncJournal
}

// NewPipeline wires the core from cfg. db may be nil, which disables the
// journal. observer may be nil.
func NewPipeline(cfg config.Config, db *sql.DB, observer ingest.Observer, logger *slog.Logger) (*Pipeline, error) {
	classifier := aqi.NewClassifier(ModeratePolicy(cfg))

	var gasRand *rand.Rand
	if cfg.GeneratorSeed != 0 {
		gasRand = rand.New(rand.NewPCG(cfg.GeneratorSeed, 0x676173))
	}
	st, err := store.New(cfg.WindowCapacity, classifier, gas.NewModel(cfg.DeviceMax, gasRand))
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	p := &Pipeline{Classifier: classifier, Store: st}
	opts := ingest.Options{
		DeviceMax:        cfg.DeviceMax,
		FailureThreshold: cfg.FailureThreshold,
		Observer:         observer,
		Logger:           logger,
	}
	if db != nil {
		p.Journal = repository.NewRepository(db, cfg.JournalRetention)
		p.writer = repository.NewAsyncJournal(p.Journal, logger)
		opts.Journal = p.writer
	}
	p.Ingestor = ingest.New(st, opts)
	return p, nil
}

// Close flushes pending journal writes. Call it after the producer stops
// and before the database closes.
func (p *Pipeline) Close() {
	if p.writer != nil {
		p.writer.Close()
	}
}

// ModeratePolicy maps the AQI_MODERATE_* settings onto a classifier policy.
func ModeratePolicy(cfg config.Config) aqi.ModeratePolicy {
	if cfg.ModeratePolicy == "fixed" {
		return aqi.FixedModerate(cfg.ModerateLo)
	}
	return aqi.LinearModerate(cfg.ModerateLo, cfg.ModerateSpan)
}

// NewGenerator builds the synthetic waveform selected by GENERATOR_MODEL.
func NewGenerator(cfg config.Config) (generator.Generator, error) {
	return generator.New(cfg.GeneratorModel, cfg.DeviceMax, cfg.GeneratorSeed)
}

// RegisterFeature mounts the query routes. live may be nil.
func RegisterFeature(mux *http.ServeMux, svc controller.SnapshotService, p *Pipeline, live http.Handler) {
	ctrl := controller.NewAirQualityController(svc, p.Journal, p.Classifier.Policy().String(), live)
	ctrl.RegisterRoutes(mux)
}

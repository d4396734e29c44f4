package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"streetlight-server/internal/config"
	db "streetlight-server/internal/db"
	"streetlight-server/internal/db/migrate"
	httpapi "streetlight-server/internal/httpapi"
	"streetlight-server/internal/kafka"
	"streetlight-server/internal/live"
	"streetlight-server/internal/metrics"
	airquality "streetlight-server/internal/modules/airquality"
	"streetlight-server/internal/modules/airquality/service"
	airqualityviews "streetlight-server/internal/modules/airquality/views"
	"streetlight-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"source", cfg.Source,
		"deviceMax", cfg.DeviceMax,
		"windowCapacity", cfg.WindowCapacity,
		"sampleInterval", cfg.SampleInterval,
		"moderatePolicy", cfg.ModeratePolicy,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"mqttPublishTopic", cfg.MQTTPublishTopic,
		"kafkaBrokers", cfg.KafkaBrokers,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(dbConn)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "versions", applied)
	}

	m := metrics.New()
	pipeline, err := airquality.NewPipeline(cfg, dbConn, m, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if err := airqualityviews.LoadTemplates(); err != nil {
		return err
	}

	hub := live.NewHub(pipeline.Store.Snapshot, logger)
	defer hub.Close()
	sinks := []service.Sink{hub}

	var mqttClient *mqtt.Client
	if cfg.Source == config.SourceMQTT || cfg.MQTTPublishTopic != "" {
		mqttClient = mqtt.NewClient(cfg, logger)
		defer func() {
			logger.Info("mqtt disconnecting")
			mqttClient.Disconnect()
		}()
	}
	if cfg.MQTTPublishTopic != "" {
		// A short timeout keeps startup moving when the broker is down;
		// paho keeps retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := mqttClient.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (snapshots not published until it recovers)", "error", err)
		}
		sinks = append(sinks, mqtt.NewPublisher(mqttClient, cfg.MQTTPublishTopic))
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Error("kafka close", "error", err)
			}
		}()
		sinks = append(sinks, sink)
	}

	opts := service.Options{
		SampleInterval:   cfg.SampleInterval,
		ReconnectBackoff: cfg.ReconnectBackoff,
		ReconnectRetry:   cfg.ReconnectRetry,
		Sinks:            sinks,
		Logger:           logger,
	}
	svc, err := newProducer(cfg, pipeline, mqttClient, opts, logger)
	if err != nil {
		return err
	}

	mux := httpapi.NewMux(dbConn, svc, m.Handler())
	airquality.RegisterFeature(mux, svc, pipeline, http.HandlerFunc(hub.ServeWS))
	srv := httpapi.NewServer(cfg, httpapi.Wrap(mux, cfg.CORSAllowedOrigins, logger, m))

	prodCtx, stopProducer := context.WithCancel(ctx)
	defer stopProducer()
	prodDone := make(chan error, 1)
	go func() {
		prodDone <- svc.Run(prodCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-prodDone:
		// Only cancellation ends the producer.
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("producer stopped", "error", err)
		}
		prodDone <- nil
		<-ctx.Done()
	case err := <-errCh:
		stopProducer()
		<-prodDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("producer stopping")
	stopProducer()
	<-prodDone

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

package app

import (
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"

	"streetlight-server/internal/config"
	airquality "streetlight-server/internal/modules/airquality"
	"streetlight-server/internal/modules/airquality/ingest"
	"streetlight-server/internal/modules/airquality/service"
	"streetlight-server/internal/mqtt"
	"streetlight-server/internal/transport/adc"
	"streetlight-server/internal/transport/serialport"
)

// newProducer builds the producer selected by SOURCE. A source that cannot
// be set up yields an idle producer serving the default snapshot.
func newProducer(cfg config.Config, p *airquality.Pipeline, mqttClient *mqtt.Client, opts service.Options, logger *slog.Logger) (*service.Service, error) {
	switch cfg.Source {
	case config.SourceSynthetic:
		gen, err := airquality.NewGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return service.NewSynthetic(p.Store, p.Ingestor, gen, opts), nil

	case config.SourceSerial:
		src := serialport.New(serialport.Options{
			Port:         cfg.SerialPort,
			Baud:         cfg.SerialBaud,
			PollInterval: cfg.PollInterval,
			Logger:       logger,
		})
		if _, err := src.Resolve(); err != nil {
			return idle(p, err, opts, logger)
		}
		return service.NewLineReader(p.Store, p.Ingestor, src, opts), nil

	case config.SourceMQTT:
		src := mqtt.NewSource(mqttClient, cfg.MQTTTopic, cfg.PollInterval, logger)
		return service.NewLineReader(p.Store, p.Ingestor, src, opts), nil

	case config.SourceADC:
		src := adc.New(adc.Options{
			Bus:       cfg.ADCBus,
			Address:   cfg.ADCAddress,
			Channel:   cfg.ADCChannel,
			Vref:      physic.ElectricPotential(cfg.ADCVref * float64(physic.Volt)),
			DeviceMax: cfg.DeviceMax,
			Interval:  cfg.SampleInterval,
			Logger:    logger,
		})
		return service.NewSampleReader(p.Store, p.Ingestor, src, opts), nil

	case config.SourceNone:
		return service.NewIdle(p.Store, p.Ingestor, &ingest.ConfigurationError{Reason: "SOURCE=none"}, opts), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func idle(p *airquality.Pipeline, err error, opts service.Options, logger *slog.Logger) (*service.Service, error) {
	var cfgErr *ingest.ConfigurationError
	if !errors.As(err, &cfgErr) {
		return nil, err
	}
	logger.Warn("no usable sensor source, serving default snapshot", "reason", cfgErr)
	return service.NewIdle(p.Store, p.Ingestor, cfgErr, opts), nil
}

package service

import (
	"context"
	"errors"
	"strings"

	"streetlight-server/internal/modules/airquality/ingest"
)

// LineSource is a hardware link delivering "MQ:<integer>" records.
//
// ReadLine blocks for at most one poll interval. It returns ingest.ErrNoData
// when nothing complete arrived in that time; any other error is treated as
// a transport failure.
type LineSource interface {
	Name() string
	Open(ctx context.Context) error
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// SampleSource is a link that yields raw codes directly, such as an ADC.
type SampleSource interface {
	Name() string
	Open(ctx context.Context) error
	ReadSample(ctx context.Context) (int, error)
	Close() error
}

// link unifies both source kinds for the reconnect loop.
type link interface {
	Name() string
	Open(ctx context.Context) error
	Close() error
	pull(ctx context.Context, ing *ingest.Ingestor) (ingest.Result, error)
}

type lineLink struct{ LineSource }

func (l lineLink) pull(ctx context.Context, ing *ingest.Ingestor) (ingest.Result, error) {
	line, err := l.ReadLine(ctx)
	if err != nil {
		return ingest.Result{}, err
	}
	// Blank lines are keep-alive noise, not records.
	if strings.TrimSpace(line) == "" {
		return ingest.Result{}, ingest.ErrNoData
	}
	return ing.IngestLine(line), nil
}

type sampleLink struct{ SampleSource }

func (l sampleLink) pull(ctx context.Context, ing *ingest.Ingestor) (ingest.Result, error) {
	code, err := l.ReadSample(ctx)
	if err != nil {
		return ingest.Result{}, err
	}
	return ing.Ingest(code), nil
}

func isNoData(err error) bool {
	return errors.Is(err, ingest.ErrNoData)
}

// Package adc samples the MQ-135 analog output through an ADS1115 on I²C
// and scales it onto the sensor's raw code range.
package adc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"streetlight-server/internal/modules/airquality/ingest"
)

// Pin is one ADC input.
type Pin interface {
	Read() (analog.Sample, error)
	Halt() error
}

// OpenFunc opens the configured channel. The returned closer releases the bus.
type OpenFunc func(opts Options) (Pin, func() error, error)

type Options struct {
	Bus       string
	Address   uint16
	Channel   int
	Vref      physic.ElectricPotential
	DeviceMax int
	// Interval paces ReadSample; the producer has no other clock for this
	// source.
	Interval time.Duration
	Open     OpenFunc
	Logger   *slog.Logger
}

type Source struct {
	opts Options

	mu      sync.Mutex
	pin     Pin
	release func() error
	last    time.Time
}

func New(opts Options) *Source {
	if opts.Address == 0 {
		opts.Address = ads1x15.DefaultOpts.I2cAddress
	}
	if opts.Vref <= 0 {
		opts.Vref = 5 * physic.Volt
	}
	if opts.DeviceMax <= 0 {
		opts.DeviceMax = 1023
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Open == nil {
		opts.Open = openADS1115
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{opts: opts}
}

var channels = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

func openADS1115(opts Options) (Pin, func() error, error) {
	if opts.Channel < 0 || opts.Channel >= len(channels) {
		return nil, nil, fmt.Errorf("channel %d out of range", opts.Channel)
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(opts.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", opts.Bus, err)
	}
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: opts.Address})
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("ads1115 at %#x: %w", opts.Address, err)
	}
	pin, err := dev.PinForChannel(channels[opts.Channel], opts.Vref, 128*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("ads1115 channel %d: %w", opts.Channel, err)
	}
	return pin, bus.Close, nil
}

func (s *Source) Name() string { return fmt.Sprintf("adc:ch%d", s.opts.Channel) }

func (s *Source) Open(context.Context) error {
	pin, release, err := s.opts.Open(s.opts)
	if err != nil {
		return &ingest.TransportError{Op: "open adc", Err: err}
	}
	s.mu.Lock()
	s.pin = pin
	s.release = release
	s.last = time.Time{}
	s.mu.Unlock()
	s.opts.Logger.Info("adc opened", "bus", s.opts.Bus, "address", fmt.Sprintf("%#x", s.opts.Address), "channel", s.opts.Channel)
	return nil
}

// ReadSample waits for the next interval boundary, then performs one
// conversion.
func (s *Source) ReadSample(ctx context.Context) (int, error) {
	s.mu.Lock()
	pin := s.pin
	wait := time.Until(s.last.Add(s.opts.Interval))
	s.mu.Unlock()
	if pin == nil {
		return 0, &ingest.TransportError{Op: "read adc", Err: errors.New("not open")}
	}

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	sample, err := pin.Read()
	s.mu.Lock()
	s.last = time.Now()
	s.mu.Unlock()
	if err != nil {
		return 0, &ingest.TransportError{Op: "read adc", Err: err}
	}
	return ToCode(sample.V, s.opts.Vref, s.opts.DeviceMax), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	pin, release := s.pin, s.release
	s.pin, s.release = nil, nil
	s.mu.Unlock()

	var errs []error
	if pin != nil {
		errs = append(errs, pin.Halt())
	}
	if release != nil {
		errs = append(errs, release())
	}
	return errors.Join(errs...)
}

// ToCode scales a measured voltage to [0, deviceMax] of a ratiometric ADC
// referenced to vref. Out-of-range voltages map outside the range and are
// rejected by the ingestor.
func ToCode(v, vref physic.ElectricPotential, deviceMax int) int {
	return int(math.Round(float64(v) / float64(vref) * float64(deviceMax)))
}

// Package acquisition runs the tick: connect, pump, read and publish each
// sensor, refresh the display, sleep.
package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vitals-agent/internal/display"
	"vitals-agent/internal/mqtt"
	"vitals-agent/internal/sensor"
)

// Reader is the sensor surface the loop reads every tick.
type Reader interface {
	ReadECG() int
	ReadHeartPulse() int
	ReadTemperature() float64
}

// Sink delivers readings. *telemetry.Publisher implements it.
type Sink interface {
	EnsureConnected(ctx context.Context) error
	PublishReading(r sensor.Reading) error
}

// Pumper services a transport's queued inbound work.
type Pumper interface {
	Pump() int
}

// Snapshot is the outcome of the latest tick.
type Snapshot struct {
	Ticks    uint64    `json:"ticks"`
	LastTick time.Time `json:"last_tick"`
	Online   bool      `json:"online"`

	ECG          int     `json:"ecg"`
	Pulse        int     `json:"pulse"`
	TemperatureC float64 `json:"temperature_c"`

	Published      uint64 `json:"published"`
	PublishSkipped uint64 `json:"publish_skipped"`
	PublishFailed  uint64 `json:"publish_failed"`
	LastError      string `json:"last_error,omitempty"`
}

type Loop struct {
	reader   Reader
	display  display.Display
	sink     Sink
	pumps    []Pumper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

func New(reader Reader, disp display.Display, sink Sink, pumps []Pumper, interval time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		reader:   reader,
		display:  disp,
		sink:     sink,
		pumps:    pumps,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until ctx is done, sleeping the interval after every tick.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("acquisition loop started", "interval", l.interval)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("acquisition loop stopped")
				return nil
			}
			return err
		}

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			l.logger.Info("acquisition loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick performs one full cycle. A sensor fault or a failed publish never cuts
// it short; only ctx being done does.
func (l *Loop) Tick(ctx context.Context) error {
	online := true
	var lastErr error
	if err := l.sink.EnsureConnected(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, mqtt.ErrStopped) {
			return err
		}
		online = false
		lastErr = err
		l.logger.Error("telemetry offline, readings will not be sent this tick", "error", err)
	}

	for _, p := range l.pumps {
		p.Pump()
	}

	var published, skipped, failed uint64
	send := func(r sensor.Reading) {
		if !online {
			skipped++
			return
		}
		if err := l.sink.PublishReading(r); err != nil {
			failed++
			lastErr = err
			l.logger.Warn("publish failed", "sensor", r.Source, "value", r.String(), "error", err)
			return
		}
		published++
	}

	ecg := sensor.IntReading(sensor.SourceECG, l.reader.ReadECG())
	send(ecg)

	pulse := sensor.IntReading(sensor.SourcePulse, l.reader.ReadHeartPulse())
	send(pulse)

	temperature := sensor.TemperatureReading(l.reader.ReadTemperature())
	send(temperature)

	// Temperature is published but not shown.
	l.display.Clear()
	l.display.WriteAt(ecg.String(), 0, 0)
	l.display.WriteAt(pulse.String(), 0, 1)

	l.logger.Debug("tick",
		"ecg", ecg.String(),
		"pulse", pulse.String(),
		"temperature_c", temperature.String(),
		"online", online,
	)

	l.mu.Lock()
	l.snap.Ticks++
	l.snap.LastTick = l.now()
	l.snap.Online = online
	l.snap.ECG = int(ecg.Value)
	l.snap.Pulse = int(pulse.Value)
	l.snap.TemperatureC = temperature.Value
	l.snap.Published += published
	l.snap.PublishSkipped += skipped
	l.snap.PublishFailed += failed
	l.snap.LastError = ""
	if lastErr != nil {
		l.snap.LastError = lastErr.Error()
	}
	l.mu.Unlock()
	return nil
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

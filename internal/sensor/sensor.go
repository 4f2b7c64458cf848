// Package sensor reads the three biometric inputs: ECG, heart pulse and body
// temperature.
package sensor

import (
	"log/slog"
	"math"
	"strconv"
)

// Source tags which sensor produced a reading.
type Source string

const (
	SourceECG         Source = "ecg"
	SourcePulse       Source = "pulse"
	SourceTemperature Source = "temperature"
)

const (
	// DisconnectedC is what a DS18B20 read yields when the probe does not answer.
	DisconnectedC = -127.0
	// AnalogFault is the raw value reported when an analog acquisition fails.
	AnalogFault = -1
)

// Reading is one scalar sample. Precision is the number of decimals in its
// wire form: 0 for raw ADC counts, 2 for degrees Celsius.
type Reading struct {
	Source    Source
	Value     float64
	Precision int
}

func IntReading(src Source, v int) Reading {
	return Reading{Source: src, Value: float64(v), Precision: 0}
}

func TemperatureReading(celsius float64) Reading {
	return Reading{Source: SourceTemperature, Value: celsius, Precision: 2}
}

// String renders the plain decimal payload ("512", "36.50").
func (r Reading) String() string {
	return strconv.FormatFloat(r.Value, 'f', r.Precision, 64)
}

// TemperatureProbe is a blocking temperature acquisition.
type TemperatureProbe interface {
	Celsius() (float64, error)
}

// AnalogInput is a blocking single-sample analog acquisition.
type AnalogInput interface {
	Sample() (int, error)
}

// Adapter exposes the three reads the acquisition loop needs. Driver errors
// never reach the caller: they are logged and replaced by a sentinel value.
type Adapter struct {
	temperature TemperatureProbe
	ecg         AnalogInput
	pulse       AnalogInput
	logger      *slog.Logger
}

func NewAdapter(temperature TemperatureProbe, ecg, pulse AnalogInput, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		temperature: temperature,
		ecg:         ecg,
		pulse:       pulse,
		logger:      logger,
	}
}

func (a *Adapter) ReadTemperature() float64 {
	c, err := a.temperature.Celsius()
	if err != nil {
		a.logger.Warn("sensor read failed", "sensor", SourceTemperature, "error", err)
		return DisconnectedC
	}
	// Payloads must stay valid numbers on both destinations.
	if math.IsNaN(c) || math.IsInf(c, 0) {
		a.logger.Warn("sensor read failed", "sensor", SourceTemperature, "error", "non-finite value", "value", c)
		return DisconnectedC
	}
	return c
}

func (a *Adapter) ReadECG() int {
	return a.readAnalog(SourceECG, a.ecg)
}

func (a *Adapter) ReadHeartPulse() int {
	return a.readAnalog(SourcePulse, a.pulse)
}

func (a *Adapter) readAnalog(src Source, in AnalogInput) int {
	v, err := in.Sample()
	if err != nil {
		a.logger.Warn("sensor read failed", "sensor", src, "error", err)
		return AnalogFault
	}
	return v
}

// Unavailable stands in for hardware that could not be opened at startup.
// Every read fails, so the adapter reports the sentinel for it.
type Unavailable struct {
	Err error
}

func (u Unavailable) Celsius() (float64, error) { return 0, u.Err }

func (u Unavailable) Sample() (int, error) { return 0, u.Err }

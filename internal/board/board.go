// Package board owns the host peripherals shared by the sensor and display
// drivers: one I2C bus and, when a temperature probe is used, one 1-Wire bus.
package board

import (
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"
)

type Board struct {
	i2c         i2c.BusCloser
	onewire     onewire.BusCloser
	openOneWire func(name string) (onewire.BusCloser, error)
	logger      *slog.Logger
}

// Open initialises the host drivers and opens the named I2C bus ("" for the
// default bus, usually /dev/i2c-1).
func Open(i2cBus string, logger *slog.Logger) (*Board, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	for _, f := range state.Failed {
		logger.Debug("host driver failed to load", "driver", f.D.String(), "error", f.Err)
	}

	bus, err := i2creg.Open(i2cBus)
	if err != nil {
		return nil, fmt.Errorf("i2c open %q: %w", i2cBus, err)
	}
	logger.Info("i2c bus opened", "bus", bus.String())

	return newBoard(bus, onewirereg.Open, logger), nil
}

func newBoard(bus i2c.BusCloser, openOneWire func(string) (onewire.BusCloser, error), logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{i2c: bus, openOneWire: openOneWire, logger: logger}
}

func (b *Board) I2C() i2c.Bus {
	return b.i2c
}

// OneWire opens the named 1-Wire bus on first use.
func (b *Board) OneWire(name string) (onewire.Bus, error) {
	if b.onewire != nil {
		return b.onewire, nil
	}
	bus, err := b.openOneWire(name)
	if err != nil {
		return nil, fmt.Errorf("onewire open %q: %w", name, err)
	}
	b.logger.Info("onewire bus opened", "bus", bus.String())
	b.onewire = bus
	return bus, nil
}

func (b *Board) Close() error {
	var errs []error
	if b.onewire != nil {
		errs = append(errs, b.onewire.Close())
	}
	errs = append(errs, b.i2c.Close())
	return errors.Join(errs...)
}

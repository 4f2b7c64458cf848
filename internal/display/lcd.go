package display

import (
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers/hd44780i2c"
)

// LCD is an HD44780 character panel behind a PCF8574 I2C backpack.
type LCD struct {
	dev  hd44780i2c.Device
	cols int
	rows int
}

func NewLCD(bus i2c.Bus, addr uint16, cols, rows int, logger *slog.Logger) *LCD {
	dev := hd44780i2c.New(&busAdapter{bus: bus, logger: logger}, uint8(addr))
	if err := dev.Configure(hd44780i2c.Config{
		Width:  uint8(cols),
		Height: uint8(rows),
	}); err != nil {
		logger.Error("lcd configure failed", "addr", addr, "columns", cols, "rows", rows, "error", err)
	}
	return &LCD{dev: dev, cols: cols, rows: rows}
}

func (l *LCD) Clear() {
	l.dev.ClearDisplay()
}

func (l *LCD) WriteAt(text string, column, row int) {
	if row < 0 || row >= l.rows || column < 0 || column >= l.cols {
		return
	}
	if room := l.cols - column; len(text) > room {
		text = text[:room]
	}
	l.dev.SetCursor(uint8(column), uint8(row))
	l.dev.Print([]byte(text))
}

// busAdapter lets the tinygo driver talk over a periph bus. The panel driver
// has no error path, so transfer failures are logged here.
type busAdapter struct {
	bus    i2c.Bus
	logger *slog.Logger
}

func (a *busAdapter) Tx(addr uint16, w, r []byte) error {
	err := a.bus.Tx(addr, w, r)
	if err != nil {
		a.logger.Warn("lcd i2c transfer failed", "addr", addr, "error", err)
	}
	return err
}

func (a *busAdapter) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return a.Tx(uint16(addr), []byte{reg}, buf)
}

func (a *busAdapter) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return a.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

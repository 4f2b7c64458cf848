// Package display drives the two-row character display that shows the latest
// ECG and pulse readings.
package display

import (
	"log/slog"
	"strings"
	"sync"
)

// Display is a fixed-geometry text surface addressed by (column, row).
// Implementations swallow driver errors; callers never see a failure.
type Display interface {
	Clear()
	WriteAt(text string, column, row int)
}

// Buffer is an in-memory surface. Text past the last column is clipped and
// writes outside the geometry are ignored, as on the physical panel.
type Buffer struct {
	mu    sync.RWMutex
	cols  int
	cells [][]rune
}

func NewBuffer(cols, rows int) *Buffer {
	b := &Buffer{cols: cols, cells: make([][]rune, rows)}
	for i := range b.cells {
		b.cells[i] = []rune(strings.Repeat(" ", cols))
	}
	return b
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range b.cells {
		for i := range row {
			row[i] = ' '
		}
	}
}

func (b *Buffer) WriteAt(text string, column, row int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if row < 0 || row >= len(b.cells) || column < 0 || column >= b.cols {
		return
	}
	line := b.cells[row]
	for i, r := range []rune(text) {
		if column+i >= b.cols {
			break
		}
		line[column+i] = r
	}
}

// Lines returns the visible rows with trailing blanks removed.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.cells))
	for i, row := range b.cells {
		out[i] = strings.TrimRight(string(row), " ")
	}
	return out
}

// Log reports every write through the logger, for headless runs.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Clear() {
	l.logger.Debug("display cleared")
}

func (l *Log) WriteAt(text string, column, row int) {
	l.logger.Info("display", "row", row, "column", column, "text", text)
}

// Tee forwards every call to each display in order.
type Tee []Display

func (t Tee) Clear() {
	for _, d := range t {
		d.Clear()
	}
}

func (t Tee) WriteAt(text string, column, row int) {
	for _, d := range t {
		d.WriteAt(text, column, row)
	}
}

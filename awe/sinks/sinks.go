// Package sinks implements the CSV output sinks SPEC_FULL.md §6 requires
// per run: walker-history.csv, walker-weights.csv, cell-weights.csv, and
// color-transition-matrix.csv.
package sinks

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// csvFile appends lines to a file, writing a fixed header exactly once.
type csvFile struct {
	mu         sync.Mutex
	file       *os.File
	headerDone bool
}

func openCSV(path, header string) (*csvFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sinks: mkdir: %w", err)
		}
	}
	needsHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		needsHeader = false
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sinks: open %s: %w", path, err)
	}
	c := &csvFile{file: f, headerDone: !needsHeader}
	if needsHeader {
		if _, err := f.WriteString(header + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("sinks: write header: %w", err)
		}
		c.headerDone = true
	}
	return c, nil
}

func (c *csvFile) writeLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.file.WriteString(line + "\n")
	return err
}

func (c *csvFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

// WalkerHistorySink records one line per restart copy committed by the
// resampler: origID, parentID, currentID.
type WalkerHistorySink struct {
	f *csvFile
}

// NewWalkerHistorySink opens path, appending to it if it already exists.
func NewWalkerHistorySink(path string) (*WalkerHistorySink, error) {
	f, err := openCSV(path, "%origID, parentID, currentID")
	if err != nil {
		return nil, err
	}
	return &WalkerHistorySink{f: f}, nil
}

// Write appends one history row.
func (s *WalkerHistorySink) Write(origID, parentID, currentID int) error {
	return s.f.writeLine(fmt.Sprintf("%d,%d,%d", origID, parentID, currentID))
}

// Close closes the underlying file.
func (s *WalkerHistorySink) Close() error { return s.f.Close() }

// CellWeightSink records one line per cell and color per iteration:
// iteration, cellid, color, total_weight.
type CellWeightSink struct {
	f *csvFile
}

// NewCellWeightSink opens path, appending to it if it already exists.
func NewCellWeightSink(path string) (*CellWeightSink, error) {
	f, err := openCSV(path, "iteration,cellid,color,total_weight")
	if err != nil {
		return nil, err
	}
	return &CellWeightSink{f: f}, nil
}

// Write appends one cell-weight row.
func (s *CellWeightSink) Write(iteration, cellID, color int, totalWeight float64) error {
	return s.f.writeLine(fmt.Sprintf("%d,%d,%d,%g", iteration, cellID, color, totalWeight))
}

// Close closes the underlying file.
func (s *CellWeightSink) Close() error { return s.f.Close() }

// WalkerWeightSink implements awe.WeightSink, recording one line per
// walker per iteration: walkerid, iteration, cell, weight, color.
type WalkerWeightSink struct {
	f *csvFile
}

// NewWalkerWeightSink opens path, appending to it if it already exists.
func NewWalkerWeightSink(path string) (*WalkerWeightSink, error) {
	f, err := openCSV(path, "walkerid,iteration,cell,weight,color")
	if err != nil {
		return nil, err
	}
	return &WalkerWeightSink{f: f}, nil
}

// WriteWeightRow implements awe.WeightSink.
func (s *WalkerWeightSink) WriteWeightRow(iteration, walkerID, cellID int, weight float64, color int) error {
	return s.f.writeLine(fmt.Sprintf("%d,%d,%d,%g,%d", walkerID, iteration, cellID, weight, color))
}

// Close closes the underlying file.
func (s *WalkerWeightSink) Close() error { return s.f.Close() }

// ColorTransitionSink appends the color-transition matrix rows produced
// by a MultiColorResampler each iteration: a K-row, K-column block per
// iteration per SPEC_FULL.md §6.
type ColorTransitionSink struct {
	f       *os.File
	ncolors int
}

// NewColorTransitionSink opens path for a matrix with ncolors rows and
// columns per iteration block.
func NewColorTransitionSink(path string, ncolors int) (*ColorTransitionSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sinks: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sinks: open %s: %w", path, err)
	}
	return &ColorTransitionSink{f: f, ncolors: ncolors}, nil
}

// WriteIteration appends one iteration's transition block: transitions
// is a dense ncolors x ncolors matrix, old color to new color.
func (s *ColorTransitionSink) WriteIteration(transitions [][]float64) error {
	for _, row := range transitions {
		line := ""
		for i, v := range row {
			if i > 0 {
				line += ","
			}
			line += fmt.Sprintf("%g", v)
		}
		if _, err := s.f.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("sinks: write transition row: %w", err)
		}
	}
	return nil
}

// Close closes the underlying file.
func (s *ColorTransitionSink) Close() error { return s.f.Close() }

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ccl-awe/awe-go/awe"
)

// loadCells populates sys with the cell table read from path. The format is
// a count header followed by one "id core" line per cell, the same
// id-then-attributes convention the original cassign conversion scripts use
// for their own header+rows text dumps; core uses awe.NoCore for a
// non-sink cell.
func loadCells(sys *awe.System, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open cells file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	n, err := scanIntLine(sc, "cells file: ncells header")
	if err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		fields, err := scanFields(sc, "cells file: cell row")
		if err != nil {
			return 0, err
		}
		if len(fields) != 2 {
			return 0, fmt.Errorf("cells file: cell row %d: want 2 fields, got %d", i, len(fields))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("cells file: cell row %d: bad id %q: %w", i, fields[0], err)
		}
		core, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("cells file: cell row %d: bad core %q: %w", i, fields[1], err)
		}
		if err := sys.AddCell(awe.Cell{ID: id, Core: core}); err != nil {
			return 0, fmt.Errorf("cells file: row %d: %w", i, err)
		}
	}
	return n, sc.Err()
}

// loadWalkers populates sys with the initial walker population read from
// path. The layout mirrors cassign/convert-to-txt.py's ncells/natoms/ndims
// header followed by one coordinate triple per line, extended with a
// per-walker metadata row (id, assignment, weight, color) ahead of each
// walker's coordinate block, matching the id/assignment/weight/color
// attributes the original example driver assembles per walker
// (awe.Walker(start=..., assignment=i, color=color, weight=weights[i,j])).
func loadWalkers(sys *awe.System, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open walkers file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	nwalkers, err := scanIntLine(sc, "walkers file: nwalkers header")
	if err != nil {
		return 0, err
	}
	natoms, err := scanIntLine(sc, "walkers file: natoms header")
	if err != nil {
		return 0, err
	}
	ndims, err := scanIntLine(sc, "walkers file: ndims header")
	if err != nil {
		return 0, err
	}
	if ndims != 3 {
		return 0, fmt.Errorf("walkers file: ndims = %d, only 3 is supported", ndims)
	}

	for i := 0; i < nwalkers; i++ {
		meta, err := scanFields(sc, "walkers file: walker metadata row")
		if err != nil {
			return 0, err
		}
		if len(meta) != 4 {
			return 0, fmt.Errorf("walkers file: walker %d: metadata row wants 4 fields, got %d", i, len(meta))
		}
		id, err := strconv.Atoi(meta[0])
		if err != nil {
			return 0, fmt.Errorf("walkers file: walker %d: bad id %q: %w", i, meta[0], err)
		}
		assignment, err := strconv.Atoi(meta[1])
		if err != nil {
			return 0, fmt.Errorf("walkers file: walker %d: bad assignment %q: %w", i, meta[1], err)
		}
		weight, err := strconv.ParseFloat(meta[2], 64)
		if err != nil {
			return 0, fmt.Errorf("walkers file: walker %d: bad weight %q: %w", i, meta[2], err)
		}
		color, err := strconv.Atoi(meta[3])
		if err != nil {
			return 0, fmt.Errorf("walkers file: walker %d: bad color %q: %w", i, meta[3], err)
		}

		coords := make(awe.Coords, natoms)
		for a := 0; a < natoms; a++ {
			row, err := scanFields(sc, "walkers file: coordinate row")
			if err != nil {
				return 0, err
			}
			if len(row) != 3 {
				return 0, fmt.Errorf("walkers file: walker %d atom %d: want 3 coordinates, got %d", i, a, len(row))
			}
			var xyz [3]float64
			for d := 0; d < 3; d++ {
				v, err := strconv.ParseFloat(row[d], 64)
				if err != nil {
					return 0, fmt.Errorf("walkers file: walker %d atom %d: bad coordinate %q: %w", i, a, row[d], err)
				}
				xyz[d] = v
			}
			coords[a] = xyz
		}

		w := awe.Walker{
			ID:         id,
			InitID:     id,
			Start:      coords,
			Assignment: assignment,
			Color:      color,
			Weight:     weight,
			Valid:      true,
		}
		if err := sys.AddWalker(w); err != nil {
			return 0, fmt.Errorf("walkers file: walker %d: %w", i, err)
		}
	}
	return nwalkers, sc.Err()
}

// scanIntLine advances sc past blank lines and returns the next
// whitespace-trimmed line parsed as an int.
func scanIntLine(sc *bufio.Scanner, what string) (int, error) {
	fields, err := scanFields(sc, what)
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("%s: want a single integer, got %q", what, strings.Join(fields, " "))
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return n, nil
}

// scanFields returns the next non-blank line's whitespace-separated fields.
func scanFields(sc *bufio.Scanner, what string) ([]string, error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		return strings.Fields(line), nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return nil, fmt.Errorf("%s: unexpected end of file", what)
}

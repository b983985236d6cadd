// Package topology parses and serializes the PDB-format structure files
// exchanged with remote workers: a fixed topology (atom names, residue
// layout) combined with a walker's coordinates produces the text blob a
// task submits, and the worker's returned structure file is parsed back
// into coordinates. This is deliberately minimal — the original source's
// structure handling has no reusable library in the example corpus, so it
// is implemented directly against the stdlib text-processing packages
// (see DESIGN.md).
package topology

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Atom is one ATOM record's static identity: its serial number, name,
// residue name, chain, and residue sequence number. Coordinates are
// carried separately per walker.
type Atom struct {
	Serial     int
	Name       string
	ResName    string
	Chain      byte
	ResSeq     int
	Element    string
}

// Topology is the static atom layout shared by every walker in a run.
type Topology struct {
	Atoms []Atom
}

// Parse reads a PDB-format blob and extracts the static atom layout.
// Coordinate columns are ignored; use Rebind to produce per-walker blobs
// and ExtractCoords to read them back out.
func Parse(data []byte) (*Topology, error) {
	top := &Topology{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		atom, err := parseAtomLine(line)
		if err != nil {
			return nil, fmt.Errorf("topology: %w", err)
		}
		top.Atoms = append(top.Atoms, atom)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("topology: scan: %w", err)
	}
	return top, nil
}

func parseAtomLine(line string) (Atom, error) {
	if len(line) < 54 {
		return Atom{}, fmt.Errorf("ATOM record too short: %q", line)
	}
	serial, err := strconv.Atoi(strings.TrimSpace(line[6:11]))
	if err != nil {
		return Atom{}, fmt.Errorf("parse serial: %w", err)
	}
	resSeq, err := strconv.Atoi(strings.TrimSpace(line[22:26]))
	if err != nil {
		return Atom{}, fmt.Errorf("parse resSeq: %w", err)
	}
	chain := byte(' ')
	if len(strings.TrimSpace(line[21:22])) > 0 {
		chain = line[21]
	}
	element := ""
	if len(line) >= 78 {
		element = strings.TrimSpace(line[76:78])
	}
	return Atom{
		Serial:  serial,
		Name:    strings.TrimSpace(line[12:16]),
		ResName: strings.TrimSpace(line[17:20]),
		Chain:   chain,
		ResSeq:  resSeq,
		Element: element,
	}, nil
}

// NAtoms returns the number of atoms in the topology.
func (t *Topology) NAtoms() int {
	return len(t.Atoms)
}

// Rebind serializes coords against the topology's static atom layout,
// producing a PDB-format blob suitable as a task payload. coords must
// have exactly NAtoms() entries.
func (t *Topology) Rebind(coords [][3]float64) ([]byte, error) {
	if len(coords) != len(t.Atoms) {
		return nil, fmt.Errorf("topology: rebind: %d atoms but %d coordinate triples", len(t.Atoms), len(coords))
	}
	var buf bytes.Buffer
	for i, atom := range t.Atoms {
		c := coords[i]
		fmt.Fprintf(&buf, "ATOM  %5d %4s %3s %c%4d    %8.3f%8.3f%8.3f  1.00  0.00          %2s\n",
			atom.Serial, padName(atom.Name), atom.ResName, atom.Chain, atom.ResSeq,
			c[0], c[1], c[2], atom.Element)
	}
	buf.WriteString("END\n")
	return buf.Bytes(), nil
}

func padName(name string) string {
	if len(name) >= 4 {
		return name[:4]
	}
	return name + strings.Repeat(" ", 4-len(name))
}

// ExtractCoords parses coordinate columns from a PDB-format blob, in
// file order, ignoring every non-ATOM/HETATM line.
func ExtractCoords(data []byte) ([][3]float64, error) {
	var coords [][3]float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < 54 {
			return nil, fmt.Errorf("topology: ATOM record too short: %q", line)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(line[30:38]), 64)
		if err != nil {
			return nil, fmt.Errorf("topology: parse x: %w", err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(line[38:46]), 64)
		if err != nil {
			return nil, fmt.Errorf("topology: parse y: %w", err)
		}
		z, err := strconv.ParseFloat(strings.TrimSpace(line[46:54]), 64)
		if err != nil {
			return nil, fmt.Errorf("topology: parse z: %w", err)
		}
		coords = append(coords, [3]float64{x, y, z})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("topology: scan: %w", err)
	}
	return coords, nil
}

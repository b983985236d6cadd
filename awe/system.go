package awe

import (
	"encoding/json"
)

// System is the full simulation state at an iteration boundary: the static
// topology blob, the fixed set of cells, and the current walker population.
// The Filter* and Clone operations never mutate the receiver; each returns
// a new value (spec.md §3, DESIGN NOTES in spec.md §9). AddCell, SetCell,
// AddWalker, SetWalker and RemoveWalker modify the receiver in place.
type System struct {
	Topology []byte
	cells    map[int]Cell
	walkers  map[int]Walker
}

// NewSystem returns an empty system carrying the given topology blob.
func NewSystem(topology []byte) *System {
	return &System{
		Topology: topology,
		cells:    make(map[int]Cell),
		walkers:  make(map[int]Walker),
	}
}

// AddCell registers a new cell. It returns an error if the id is already in
// use, matching the DuplicateCellId case in spec.md §7.
func (s *System) AddCell(c Cell) error {
	if _, ok := s.cells[c.ID]; ok {
		return newEngineError(CodeDuplicateCellID, ErrDuplicateCellID, "cell %d", c.ID)
	}
	s.cells[c.ID] = c
	return nil
}

// SetCell overwrites (or creates) the cell record for c.ID.
func (s *System) SetCell(c Cell) {
	s.cells[c.ID] = c
}

// Cell returns the cell with the given id and whether it exists.
func (s *System) Cell(id int) (Cell, bool) {
	c, ok := s.cells[id]
	return c, ok
}

// HasCell reports whether a cell with the given id is registered.
func (s *System) HasCell(id int) bool {
	_, ok := s.cells[id]
	return ok
}

// NCells returns the number of registered cells.
func (s *System) NCells() int {
	return len(s.cells)
}

// CellIDs returns every registered cell id, in no particular order.
func (s *System) CellIDs() []int {
	out := make([]int, 0, len(s.cells))
	for id := range s.cells {
		out = append(out, id)
	}
	return out
}

// AddWalker registers a new walker. It returns an error if the id is
// already in use, matching the DuplicateWalkerId case in spec.md §7, or if
// w.Assignment is negative (spec.md §3: "add_walker requires assignment
// >= 0", matching original aweclasses.py's add_walker assertion).
func (s *System) AddWalker(w Walker) error {
	if w.Assignment < 0 {
		return newEngineError(CodeInvalidAssignment, ErrInvalidAssignment, "walker %d: assignment %d", w.ID, w.Assignment)
	}
	if _, ok := s.walkers[w.ID]; ok {
		return newEngineError(CodeDuplicateWalkerID, ErrDuplicateWalkerID, "walker %d", w.ID)
	}
	s.walkers[w.ID] = w
	return nil
}

// SetWalker overwrites (or creates) the walker record for w.ID.
func (s *System) SetWalker(w Walker) {
	s.walkers[w.ID] = w
}

// RemoveWalker deletes the walker with the given id, if present.
func (s *System) RemoveWalker(id int) {
	delete(s.walkers, id)
}

// Walker returns the walker with the given id and whether it exists.
func (s *System) Walker(id int) (Walker, bool) {
	w, ok := s.walkers[id]
	return w, ok
}

// NWalkers returns the number of walkers currently tracked.
func (s *System) NWalkers() int {
	return len(s.walkers)
}

// Walkers returns every tracked walker, in no particular order. The
// returned slice is a fresh copy; mutating it does not affect s.
func (s *System) Walkers() []Walker {
	out := make([]Walker, 0, len(s.walkers))
	for _, w := range s.walkers {
		out = append(out, w)
	}
	return out
}

// TotalWeight returns the sum of every tracked walker's weight.
func (s *System) TotalWeight() float64 {
	var total float64
	for _, w := range s.walkers {
		total += w.Weight
	}
	return total
}

// FilterByCell returns a new System containing only the walkers currently
// assigned to cellID. The cell set and topology are carried unchanged.
func (s *System) FilterByCell(cellID int) *System {
	out := s.shallowCopy()
	for id, w := range s.walkers {
		if w.Assignment == cellID {
			out.walkers[id] = w
		}
	}
	return out
}

// FilterByColor returns a new System containing only the walkers currently
// assigned to color.
func (s *System) FilterByColor(color int) *System {
	out := s.shallowCopy()
	for id, w := range s.walkers {
		if w.Color == color {
			out.walkers[id] = w
		}
	}
	return out
}

// FilterByCore returns a new System containing only the walkers occupying
// a sink cell whose Core equals core.
func (s *System) FilterByCore(core int) *System {
	out := s.shallowCopy()
	for id, w := range s.walkers {
		if w.Assignment < 0 {
			continue
		}
		c, ok := s.cells[w.Assignment]
		if !ok || c.Core != core {
			continue
		}
		out.walkers[id] = w
	}
	return out
}

// Clone returns a deep copy of s: every walker's coordinate slices are
// duplicated, so mutating the result never affects s.
func (s *System) Clone() *System {
	out := &System{
		Topology: append([]byte(nil), s.Topology...),
		cells:    make(map[int]Cell, len(s.cells)),
		walkers:  make(map[int]Walker, len(s.walkers)),
	}
	for id, c := range s.cells {
		out.cells[id] = c
	}
	for id, w := range s.walkers {
		out.walkers[id] = *w.Clone()
	}
	return out
}

// shallowCopy returns a new System sharing s's cell set and topology but
// with an empty walker map, ready for a filter operation to populate.
func (s *System) shallowCopy() *System {
	out := &System{
		Topology: s.Topology,
		cells:    make(map[int]Cell, len(s.cells)),
		walkers:  make(map[int]Walker),
	}
	for id, c := range s.cells {
		out.cells[id] = c
	}
	return out
}

// systemJSON is the on-wire shape for System: its unexported maps need
// explicit field names to survive a checkpoint round-trip.
type systemJSON struct {
	Topology []byte       `json:"topology"`
	Cells    map[int]Cell `json:"cells"`
	Walkers  map[int]Walker `json:"walkers"`
}

// MarshalJSON implements json.Marshaler.
func (s *System) MarshalJSON() ([]byte, error) {
	return json.Marshal(systemJSON{
		Topology: s.Topology,
		Cells:    s.cells,
		Walkers:  s.walkers,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *System) UnmarshalJSON(data []byte) error {
	var raw systemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Topology = raw.Topology
	s.cells = raw.Cells
	if s.cells == nil {
		s.cells = make(map[int]Cell)
	}
	s.walkers = raw.Walkers
	if s.walkers == nil {
		s.walkers = make(map[int]Walker)
	}
	return nil
}

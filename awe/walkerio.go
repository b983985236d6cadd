package awe

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ccl-awe/awe-go/awe/topology"
)

// walkerOutput is the archive format the worker returns for one task: a
// structure blob with the ending coordinates and the integer cell id,
// wrapped together with the domain-specific invalid-model indicator
// (SPEC_FULL.md §6).
type walkerOutput struct {
	Structure []byte `json:"structure"`
	CellID    int    `json:"cell_id"`
	Invalid   bool   `json:"invalid"`
}

// parsedWalkerResult is the engine-internal shape after unpacking a
// worker's archive.
type parsedWalkerResult struct {
	Coords  Coords
	CellID  int
	Invalid bool
}

// parseWalkerOutput decodes a worker's result archive. A decode failure
// here corresponds to MarshalFailure in SPEC_FULL.md §7.
func parseWalkerOutput(data []byte) (parsedWalkerResult, error) {
	var out walkerOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return parsedWalkerResult{}, fmt.Errorf("decode result archive: %w", err)
	}
	coords, err := topology.ExtractCoords(out.Structure)
	if err != nil {
		return parsedWalkerResult{}, fmt.Errorf("extract coordinates: %w", err)
	}
	return parsedWalkerResult{Coords: Coords(coords), CellID: out.CellID, Invalid: out.Invalid}, nil
}

// isInvalidModel reports whether a worker flagged its output as
// physically impossible (the domain-specific NaN indicator of
// SPEC_FULL.md §7's InvalidModel case).
func isInvalidModel(r parsedWalkerResult) bool {
	if r.Invalid {
		return true
	}
	for _, triple := range r.Coords {
		for _, v := range triple {
			if v != v { // NaN check without importing math for one comparison
				return true
			}
		}
	}
	return false
}

// marshalWalker serializes a Walker for the transactional log.
func marshalWalker(w Walker) ([]byte, error) {
	return json.Marshal(w)
}

// unmarshalWalker deserializes a Walker from the transactional log.
func unmarshalWalker(data []byte) (Walker, error) {
	var w Walker
	if err := json.Unmarshal(data, &w); err != nil {
		return Walker{}, err
	}
	return w, nil
}

// isNotExist reports whether err indicates a missing checkpoint file,
// the normal case on a run's first startup.
func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

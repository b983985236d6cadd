package awe

import (
	"fmt"
	"strconv"
	"strings"
)

// tagSeparator delimits the fields of a task tag. The original source
// (aweclasses.py's encode_task_tag/decode_from_task_tag) uses "|", not
// the "+" suggested elsewhere; SPEC_FULL.md §6 resolves the discrepancy
// in favor of the original source.
const tagSeparator = "|"

// encodeTaskTag builds the tag submitted with a walker's task:
// outfile|cellid|weight|walkerid.
func encodeTaskTag(outfile string, cellID int, weight float64, walkerID int) string {
	return strings.Join([]string{
		outfile,
		strconv.Itoa(cellID),
		strconv.FormatFloat(weight, 'g', -1, 64),
		strconv.Itoa(walkerID),
	}, tagSeparator)
}

// decodeTaskTag parses a tag produced by encodeTaskTag.
func decodeTaskTag(tag string) (outfile string, cellID int, weight float64, walkerID int, err error) {
	parts := strings.Split(tag, tagSeparator)
	if len(parts) != 4 {
		return "", 0, 0, 0, fmt.Errorf("malformed task tag %q: expected 4 fields, got %d", tag, len(parts))
	}
	outfile = parts[0]
	cellID, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("malformed task tag %q: cell id: %w", tag, err)
	}
	weight, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("malformed task tag %q: weight: %w", tag, err)
	}
	walkerID, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("malformed task tag %q: walker id: %w", tag, err)
	}
	return outfile, cellID, weight, walkerID, nil
}

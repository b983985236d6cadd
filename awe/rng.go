package awe

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// initRNG derives a deterministic random source from runID. The engine
// uses it for the TagSet's selection draw and the restart backoff jitter,
// so those reproduce identically across runs sharing the same run id. The
// resampler's merge draw uses the source its caller passes to the
// resampler's constructor, not this one.
func initRNG(runID string) *rand.Rand {
	hash := sha256.Sum256([]byte(runID))
	seed := int64(binary.BigEndian.Uint64(hash[:8]))
	return rand.New(rand.NewSource(seed))
}

package testutil

import (
	"time"

	"github.com/ajgabz/mpf/internal/engine"
)

// Epoch is the fixed starting time of every manual clock built here.
// Golden traces depend on it never changing.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewManualTime returns an engine.ManualTime starting at Epoch.
//
// Debounce windows only close when the test advances it.
func NewManualTime() *engine.ManualTime {
	return engine.NewManualTime(Epoch)
}

// Elapsed returns how far mt has moved past Epoch.
func Elapsed(mt *engine.ManualTime) time.Duration {
	return mt.Now().Sub(Epoch)
}

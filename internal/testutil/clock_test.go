package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewManualTime_StartsAtEpoch(t *testing.T) {
	mt := NewManualTime()
	assert.Equal(t, Epoch, mt.Now())
	assert.Equal(t, time.Duration(0), Elapsed(mt))
}

func TestElapsed(t *testing.T) {
	mt := NewManualTime()
	mt.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, Elapsed(mt))
}

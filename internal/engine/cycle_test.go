package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleDetector_NewCycleDetector(t *testing.T) {
	cd := NewCycleDetector()
	require.NotNil(t, cd)
	assert.Equal(t, 0, cd.HistorySize())
}

func TestCycleDetector_WouldCycle(t *testing.T) {
	trigger := triggerOf("counter_b", "b_done")

	tests := []struct {
		name    string
		flow    string
		block   string
		event   string
		trigger string
		want    bool
	}{
		{"same emission", "flow-1", "counter_a", "a_done", trigger, true},
		{"different flow", "flow-2", "counter_a", "a_done", trigger, false},
		{"different block", "flow-1", "counter_c", "a_done", trigger, false},
		{"different event", "flow-1", "counter_a", "a_hit", trigger, false},
		{"different trigger source", "flow-1", "counter_a", "a_done", triggerOf("counter_c", "b_done"), false},
		{"external trigger", "flow-1", "counter_a", "a_done", triggerOf("", "b_done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd := NewCycleDetector()
			assert.False(t, cd.WouldCycle("flow-1", "counter_a", "a_done", trigger), "first occurrence is never a cycle")
			cd.Record("flow-1", "counter_a", "a_done", trigger)
			assert.Equal(t, tt.want, cd.WouldCycle(tt.flow, tt.block, tt.event, tt.trigger))
		})
	}
}

func TestCycleDetector_Clear(t *testing.T) {
	cd := NewCycleDetector()

	cd.Record("flow-1", "a", "x", triggerOf("", "y"))
	cd.Record("flow-1", "a", "z", triggerOf("", "y"))
	cd.Record("flow-2", "a", "x", triggerOf("", "y"))
	assert.Equal(t, 2, cd.HistorySize())
	assert.Equal(t, 2, cd.FlowHistorySize("flow-1"))

	cd.Clear("flow-1")
	assert.Equal(t, 1, cd.HistorySize())
	assert.Equal(t, 0, cd.FlowHistorySize("flow-1"))
	assert.False(t, cd.WouldCycle("flow-1", "a", "x", triggerOf("", "y")))
	assert.True(t, cd.WouldCycle("flow-2", "a", "x", triggerOf("", "y")))

	cd.Clear("unknown") // no-op
	assert.Equal(t, 1, cd.HistorySize())
}

package engine

import "sync"

// CycleDetector tracks block emissions per flow to stop runaway chains.
//
// A flow is one input event plus every event emitted because of it. A
// chain loops when the same block emits the same event in response to the
// same (source, event) trigger twice within one flow:
//
//	counter_a counts b_done, emits a_done on completion
//	counter_b counts a_done, emits b_done on completion
//
//	b_done -> counter_a emits a_done -> counter_b emits b_done
//	-> counter_a would emit a_done for b_done from counter_b again  <- CYCLE
//
// Distinct triggers (fan-in from different blocks) are not cycles.
//
// The detector only catches repetition. Long linear chains that never
// repeat are bounded by the QuotaEnforcer instead.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[flow_token]map[cycle_key]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		history: make(map[string]map[string]bool),
	}
}

// cycleKey identifies one emission: block emits event when triggered by
// trigger (source block and event name of the event being processed).
func cycleKey(block, event, trigger string) string {
	return block + ":" + event + "<-" + trigger
}

// triggerOf names the event that caused an emission.
func triggerOf(source, name string) string {
	return source + "/" + name
}

// WouldCycle reports whether block already emitted event for trigger in
// this flow.
//
// Thread-safe: Can be called concurrently.
func (c *CycleDetector) WouldCycle(flowToken, block, event, trigger string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[flowToken] == nil {
		return false
	}
	return c.history[flowToken][cycleKey(block, event, trigger)]
}

// Record marks an emission as seen in this flow.
// Call it right after WouldCycle returns false.
//
// Thread-safe: Can be called concurrently.
func (c *CycleDetector) Record(flowToken, block, event, trigger string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[flowToken] == nil {
		c.history[flowToken] = make(map[string]bool)
	}
	c.history[flowToken][cycleKey(block, event, trigger)] = true
}

// Clear removes all history for a flow token.
//
// Thread-safe: Can be called concurrently.
func (c *CycleDetector) Clear(flowToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.history, flowToken)
}

// HistorySize returns the number of flows with tracked history.
func (c *CycleDetector) HistorySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history)
}

// FlowHistorySize returns the number of emissions tracked for a flow.
func (c *CycleDetector) FlowHistorySize(flowToken string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history[flowToken])
}

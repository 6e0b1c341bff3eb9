package ir

// Role is the part an event plays for a subscribed block.
type Role int

// Roles in the order they are applied when one event hits several roles
// of the same block.
const (
	RoleEnable Role = iota + 1
	RoleDisable
	RoleReset
	RoleRestart
	// RoleProgress covers accrual/sequence step events and counter count_events.
	RoleProgress
)

// String returns the config-facing name of the role.
func (r Role) String() string {
	switch r {
	case RoleEnable:
		return "enable"
	case RoleDisable:
		return "disable"
	case RoleReset:
		return "reset"
	case RoleRestart:
		return "restart"
	case RoleProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Event is a named event travelling through the engine.
//
// External events have an empty Source. Events posted by a block carry the
// block name in Source and the seq of the event that caused them in CauseSeq.
type Event struct {
	Name      string  `json:"name"`
	Payload   Payload `json:"payload,omitempty"`
	Source    string  `json:"source,omitempty"`
	Seq       int64   `json:"seq"`
	CauseSeq  int64   `json:"cause_seq,omitempty"`
	FlowToken string  `json:"flow_token"`
}

// External reports whether the event came from outside the engine.
func (e Event) External() bool {
	return e.Source == ""
}

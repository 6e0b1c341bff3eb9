package engine

import "github.com/ajgabz/mpf/internal/ir"

// subscription is one (block, role) pair listening to an event name.
type subscription struct {
	block *block
	role  ir.Role
}

// matcher indexes subscriptions by exact event name. It is built once at
// engine construction and never changes.
//
// For one event name, subscriptions are ordered by block declaration
// order, then by role (enable, disable, reset, restart, progress).
type matcher struct {
	subs map[string][]subscription
}

func newMatcher(blocks []*block) *matcher {
	m := &matcher{subs: make(map[string][]subscription)}
	for _, b := range blocks {
		roles := []struct {
			role   ir.Role
			events []string
		}{
			{ir.RoleEnable, b.def.EnableEvents},
			{ir.RoleDisable, b.def.DisableEvents},
			{ir.RoleReset, b.def.ResetEvents},
			{ir.RoleRestart, b.def.RestartEvents},
			{ir.RoleProgress, b.def.ProgressEvents()},
		}
		for _, r := range roles {
			seen := make(map[string]bool, len(r.events))
			for _, name := range r.events {
				if seen[name] {
					continue
				}
				seen[name] = true
				m.subs[name] = append(m.subs[name], subscription{block: b, role: r.role})
			}
		}
	}
	return m
}

// lookup returns the subscriptions for an event name. Unknown names have
// none.
func (m *matcher) lookup(name string) []subscription {
	return m.subs[name]
}

// events returns the number of distinct subscribed event names.
func (m *matcher) events() int {
	return len(m.subs)
}

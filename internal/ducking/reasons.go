// SPDX-License-Identifier: MIT
package ducking

import "sort"

// Reasons tracks which sources currently want the outputs ducked. New sources
// only need a reason id; the state machine only ever asks Requesting.
type Reasons struct {
	active map[string]struct{}
}

// NewReasons returns an empty reason set.
func NewReasons() *Reasons {
	return &Reasons{active: make(map[string]struct{})}
}

// Update adds id while triggering and removes it otherwise.
func (r *Reasons) Update(id string, triggering bool) {
	if triggering {
		r.active[id] = struct{}{}
		return
	}
	delete(r.active, id)
}

// Requesting reports whether any source is asking for a duck.
func (r *Reasons) Requesting() bool {
	return len(r.active) > 0
}

// Active returns the active reason ids in sorted order.
func (r *Reasons) Active() []string {
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear drops every reason.
func (r *Reasons) Clear() {
	clear(r.active)
}

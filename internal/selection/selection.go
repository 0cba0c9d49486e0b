// Package selection implements the multi-select of domains a question is
// scoped to. A Workflow edits a draft copy of the committed Set; Done hands
// the draft back for the chat to adopt and Cancel drops it.
package selection

import (
	"sort"

	"github.com/kingrea/adaapt/internal/api"
)

// ConnectedMessage is the notice shown for a committed selection.
const ConnectedMessage = "Dataset connected"

// Set is an unordered set of domain ids.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Toggle flips membership of id. Toggling twice restores the set.
func (s Set) Toggle(id string) {
	if id == "" {
		return
	}
	if s.Has(id) {
		delete(s, id)
		return
	}
	s[id] = struct{}{}
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the members sorted for stable output.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same ids.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Result is what Done hands to the chat.
type Result struct {
	Selection Set
	// Connected is true when the committed selection is non-empty and the
	// transient connected notice should be shown.
	Connected bool
}

// Workflow is one open selection dialog.
type Workflow struct {
	loading  bool
	domains  []api.Domain
	degraded bool
	draft    Set
}

// New opens a dialog seeded with the currently committed selection.
func New(committed Set) *Workflow {
	if committed == nil {
		committed = Set{}
	}
	return &Workflow{loading: true, draft: committed.Clone()}
}

// Loading reports whether the accessible domains are still being fetched.
func (w *Workflow) Loading() bool { return w.loading }

// DomainsLoaded supplies the accessible domains to choose from. Draft ids
// that are not among them are dropped.
func (w *Workflow) DomainsLoaded(domains []api.Domain, degraded bool) {
	w.loading = false
	w.domains = append([]api.Domain(nil), domains...)
	w.degraded = degraded
	for id := range w.draft {
		if !w.offered(id) {
			delete(w.draft, id)
		}
	}
}

// Domains lists the choices.
func (w *Workflow) Domains() []api.Domain {
	return append([]api.Domain(nil), w.domains...)
}

// Degraded reports whether the choices are the fallback catalog.
func (w *Workflow) Degraded() bool { return w.degraded }

// Toggle flips id in the draft. Ids that are not on offer are ignored.
func (w *Workflow) Toggle(id string) {
	if !w.offered(id) {
		return
	}
	w.draft.Toggle(id)
}

func (w *Workflow) offered(id string) bool {
	for _, d := range w.domains {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Selected reports whether id is in the draft.
func (w *Workflow) Selected(id string) bool {
	return w.draft.Has(id)
}

// Draft returns a copy of the in-progress selection.
func (w *Workflow) Draft() Set {
	return w.draft.Clone()
}

// Done commits the draft.
func (w *Workflow) Done() Result {
	sel := w.draft.Clone()
	return Result{Selection: sel, Connected: len(sel) > 0}
}

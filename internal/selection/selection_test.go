package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/adaapt/internal/api"
)

func TestToggleIsItsOwnInverse(t *testing.T) {
	for _, start := range []Set{NewSet(), NewSet("x"), NewSet("abc", "y")} {
		s := start.Clone()
		s.Toggle("abc")
		assert.NotEqual(t, start.Has("abc"), s.Has("abc"))
		s.Toggle("abc")
		assert.True(t, start.Equal(s), "start=%v got=%v", start.IDs(), s.IDs())
	}
}

func TestWorkflowEditsDraftOnly(t *testing.T) {
	committed := NewSet("d1")
	w := New(committed)
	assert.True(t, w.Loading())
	w.DomainsLoaded([]api.Domain{{ID: "d1"}, {ID: "d2"}}, false)
	assert.False(t, w.Loading())

	w.Toggle("d2")
	w.Toggle("d1")
	assert.True(t, w.Selected("d2"))
	assert.False(t, w.Selected("d1"))
	assert.Equal(t, []string{"d1"}, committed.IDs(), "committed set must not change before Done")

	res := w.Done()
	assert.Equal(t, []string{"d2"}, res.Selection.IDs())
	assert.True(t, res.Connected)
}

func TestDoneWithEmptySelectionIsNotConnected(t *testing.T) {
	w := New(nil)
	w.DomainsLoaded(nil, true)
	assert.True(t, w.Degraded())
	res := w.Done()
	require.NotNil(t, res.Selection)
	assert.Empty(t, res.Selection)
	assert.False(t, res.Connected)
}

func TestResultIsDetachedFromWorkflow(t *testing.T) {
	w := New(NewSet("a"))
	w.DomainsLoaded([]api.Domain{{ID: "a"}, {ID: "b"}}, false)
	res := w.Done()
	w.Toggle("b")
	assert.False(t, res.Selection.Has("b"))
}

func TestNewSetIgnoresEmptyIDs(t *testing.T) {
	s := NewSet("", "a", "a")
	assert.Equal(t, []string{"a"}, s.IDs())
	s.Toggle("")
	assert.Len(t, s, 1)
}

func TestDraftDropsDomainsNoLongerOffered(t *testing.T) {
	fallbackID := "3fa85f64-5717-4562-b3fc-2c963f66afa6"
	w := New(NewSet(fallbackID, "real-1"))
	w.DomainsLoaded([]api.Domain{{ID: "real-1", Name: "sales"}}, false)

	assert.Equal(t, []string{"real-1"}, w.Draft().IDs())
	assert.False(t, w.Selected(fallbackID))

	res := w.Done()
	assert.Equal(t, []string{"real-1"}, res.Selection.IDs())
	assert.True(t, res.Connected)
}

func TestStaleSelectionIsNotConnected(t *testing.T) {
	w := New(NewSet("gone"))
	w.DomainsLoaded([]api.Domain{{ID: "real-1"}}, false)
	res := w.Done()
	assert.Empty(t, res.Selection)
	assert.False(t, res.Connected)
}

func TestToggleIgnoresDomainsNotOffered(t *testing.T) {
	w := New(nil)
	w.Toggle("early")
	assert.Empty(t, w.Draft(), "toggles before the listing arrives are ignored")

	w.DomainsLoaded([]api.Domain{{ID: "real-1"}}, false)
	w.Toggle("not-offered")
	assert.Empty(t, w.Draft())

	w.Toggle("real-1")
	assert.Equal(t, []string{"real-1"}, w.Draft().IDs())
}

package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_OrderAndDuplicates(t *testing.T) {
	s := NewStore()
	assert.Equal(t, TaskID("schema"), s.Add("schema", "a"))
	assert.Equal(t, TaskID("login"), s.Add("login", "b"))
	assert.Equal(t, TaskID("schema (2)"), s.Add("schema", "c"))
	assert.Equal(t, TaskID("schema (3)"), s.Add("schema", "d"))

	assert.Equal(t, []TaskID{"schema", "login", "schema (2)", "schema (3)"}, s.IDs())
	assert.Equal(t, 4, s.Len())

	code, ok := s.Get("schema (2)")
	require.True(t, ok)
	assert.Equal(t, "c", code)
}

func TestStore_SetKeepsTasks(t *testing.T) {
	s := NewStore()
	s.Add("a", "one")
	s.Add("b", "two")

	require.NoError(t, s.Set("a", "patched"))
	assert.Error(t, s.Set("missing", "x"))

	snap := s.Snapshot()
	assert.Equal(t, Snapshot{{ID: "a", Code: "patched"}, {ID: "b", Code: "two"}}, snap)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Add("a", "one")
	snap := s.Snapshot()

	require.NoError(t, s.Set("a", "two"))
	code, _ := snap.Lookup("a")
	assert.Equal(t, "one", code)

	ids := s.IDs()
	ids[0] = "mutated"
	assert.Equal(t, []TaskID{"a"}, s.IDs())
}

func TestFromSnapshot(t *testing.T) {
	s := FromSnapshot(Snapshot{{ID: "x", Code: "1"}, {ID: "x", Code: "2"}})
	assert.Equal(t, []TaskID{"x", "x (2)"}, s.IDs())
	_, ok := s.Snapshot().Lookup("nope")
	assert.False(t, ok)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  def f():\n    return 1\n", "def f():\n    return 1"},
		{"python fence", "```python\ndef f():\n    return 1\n```", "def f():\n    return 1"},
		{"bare fence", "```\nx = 1\n```\n", "x = 1"},
		{"other tag", "```py3\nx = 1\n```", "x = 1"},
		{"inline stray", "x = 1```", "x = 1"},
		{"no code", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.False(t, ContainsFence(got))
		})
	}
}

func TestStripFences_NoFenceIsIdentity(t *testing.T) {
	in := "def add(a,b)\n    return a+b"
	assert.Equal(t, in, StripFences(in))
	assert.False(t, ContainsFence(in))
}

// Package artifact holds the batch of generated code artifacts, keyed by task.
package artifact

import (
	"fmt"
)

// TaskID identifies one task. It is stable across rounds.
type TaskID string

// Entry is one task and its current artifact text.
type Entry struct {
	ID   TaskID `yaml:"id" json:"id"`
	Code string `yaml:"code" json:"code"`
}

// Snapshot is an ordered, immutable copy of the store contents.
type Snapshot []Entry

// Lookup returns the artifact text for id.
func (s Snapshot) Lookup(id TaskID) (string, bool) {
	for _, e := range s {
		if e.ID == id {
			return e.Code, true
		}
	}
	return "", false
}

// IDs returns the task identifiers in order.
func (s Snapshot) IDs() []TaskID {
	ids := make([]TaskID, len(s))
	for i, e := range s {
		ids[i] = e.ID
	}
	return ids
}

// Store is an ordered mapping from task identifier to current artifact text.
// Tasks are added once and never removed; only their text changes.
//
// Store is not safe for concurrent mutation. The convergence loop writes it
// only between rounds and hands runners a Snapshot.
type Store struct {
	order []TaskID
	code  map[TaskID]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{code: make(map[TaskID]string)}
}

// FromSnapshot builds a store holding the given entries, in order.
// Duplicate IDs are disambiguated the same way Add does.
func FromSnapshot(snap Snapshot) *Store {
	s := NewStore()
	for _, e := range snap {
		s.Add(e.ID, e.Code)
	}
	return s
}

// Add appends a new task and returns the identifier it was stored under.
// A duplicate id is suffixed " (2)", " (3)", ... so no task is lost.
func (s *Store) Add(id TaskID, code string) TaskID {
	final := id
	for n := 2; s.has(final); n++ {
		final = TaskID(fmt.Sprintf("%s (%d)", id, n))
	}
	s.order = append(s.order, final)
	s.code[final] = code
	return final
}

// Set replaces the artifact text of an existing task.
func (s *Store) Set(id TaskID, code string) error {
	if !s.has(id) {
		return fmt.Errorf("unknown task %q", id)
	}
	s.code[id] = code
	return nil
}

// Get returns the current artifact text for id.
func (s *Store) Get(id TaskID) (string, bool) {
	code, ok := s.code[id]
	return code, ok
}

// IDs returns the task identifiers in insertion order.
func (s *Store) IDs() []TaskID {
	return append([]TaskID(nil), s.order...)
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	return len(s.order)
}

// Snapshot copies the current contents.
func (s *Store) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.order))
	for i, id := range s.order {
		snap[i] = Entry{ID: id, Code: s.code[id]}
	}
	return snap
}

func (s *Store) has(id TaskID) bool {
	_, ok := s.code[id]
	return ok
}

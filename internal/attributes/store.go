// Package attributes holds the numeric game state that attribute directives
// mutate during a playthrough.
package attributes

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownAttribute is returned when a change names an attribute that was
// not declared and the store does not allow dynamic attributes.
var ErrUnknownAttribute = errors.New("unknown attribute")

// Policy decides what happens to names that were not declared at seeding.
type Policy int

const (
	// Strict rejects changes to undeclared names.
	Strict Policy = iota
	// Dynamic creates undeclared names on first change with value = delta.
	Dynamic
)

// Store maps attribute names to values. Keys present at seeding are never
// removed. It is owned by a single playthrough and is not safe for concurrent
// writers; the playback loop is its only writer.
type Store struct {
	values map[string]float64
	policy Policy
}

// New seeds a store from declared defaults.
func New(defaults map[string]float64, policy Policy) *Store {
	values := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &Store{values: values, policy: policy}
}

// Apply adds delta to name and returns the new value.
func (s *Store) Apply(name string, delta int) (float64, error) {
	cur, ok := s.values[name]
	if !ok {
		if s.policy != Dynamic {
			return 0, fmt.Errorf("apply %q: %w", name, ErrUnknownAttribute)
		}
		s.values[name] = float64(delta)
		return float64(delta), nil
	}
	next := cur + float64(delta)
	s.values[name] = next
	return next, nil
}

// Set overwrites the value of name. The same policy as Apply governs
// undeclared names.
func (s *Store) Set(name string, value float64) error {
	if _, ok := s.values[name]; !ok && s.policy != Dynamic {
		return fmt.Errorf("set %q: %w", name, ErrUnknownAttribute)
	}
	s.values[name] = value
	return nil
}

// Get returns the value of name and whether it exists.
func (s *Store) Get(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns the attribute names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all values.
func (s *Store) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) Len() int {
	return len(s.values)
}

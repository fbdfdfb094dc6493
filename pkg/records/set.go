package records

import (
	"github.com/emirpasic/gods/sets/treeset"
)

// StringSet is an ordered set of strings. Ordering keeps rendered output stable.
type StringSet struct {
	tree *treeset.Set
}

func NewStringSet(items ...string) *StringSet {
	t := treeset.NewWithStringComparator()
	for _, v := range items {
		t.Add(v)
	}
	return &StringSet{tree: t}
}

func (s *StringSet) Add(items ...string) {
	for _, v := range items {
		s.tree.Add(v)
	}
}

func (s *StringSet) Contains(item string) bool {
	return s.tree.Contains(item)
}

// Union returns a new set holding the elements of both sets.
func (s *StringSet) Union(other *StringSet) *StringSet {
	if other == nil {
		return s.Clone()
	}
	return &StringSet{tree: s.tree.Union(other.tree)}
}

func (s *StringSet) Len() int {
	return s.tree.Size()
}

func (s *StringSet) Values() []string {
	result := make([]string, s.tree.Size())
	for k, v := range s.tree.Values() {
		result[k] = v.(string)
	}
	return result
}

func (s *StringSet) Clone() *StringSet {
	return NewStringSet(s.Values()...)
}

func (s *StringSet) String() string {
	return s.tree.String()
}

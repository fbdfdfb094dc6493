package records

import (
	"fmt"
	"maps"
	"slices"
)

type Kind uint8

const (
	KindScalar Kind = iota
	KindMapping
	KindSet
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSet:
		return "set"
	case KindSequence:
		return "sequence"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a host record field. The tag decides how later contributions to
// the same field are merged, see Value.Merge.
type Value struct {
	kind    Kind
	scalar  any
	mapping map[string]any
	set     *StringSet
	seq     []any
}

func Scalar(v any) Value {
	return Value{kind: KindScalar, scalar: v}
}

func Mapping(m map[string]any) Value {
	if m == nil {
		m = make(map[string]any)
	}
	return Value{kind: KindMapping, mapping: m}
}

func Set(items ...string) Value {
	return Value{kind: KindSet, set: NewStringSet(items...)}
}

func Sequence(items ...any) Value {
	if items == nil {
		items = []any{}
	}
	return Value{kind: KindSequence, seq: items}
}

// ValueOf tags a plain Go value. Go has no native set type, so sets only come
// from Set, a *StringSet or an existing Value.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case *Value:
		if t == nil {
			return Scalar(nil)
		}
		return *t
	case *StringSet:
		if t == nil {
			return Set()
		}
		return Value{kind: KindSet, set: t}
	case map[string]any:
		return Mapping(t)
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return Mapping(m)
	case []any:
		return Sequence(t...)
	case []string:
		seq := make([]any, len(t))
		for i, s := range t {
			seq[i] = s
		}
		return Sequence(seq...)
	default:
		return Scalar(v)
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Len reports the number of elements of a collection. Scalars have no length.
func (v Value) Len() int {
	switch v.kind {
	case KindMapping:
		return len(v.mapping)
	case KindSet:
		if v.set == nil {
			return 0
		}
		return v.set.Len()
	case KindSequence:
		return len(v.seq)
	default:
		return -1
	}
}

// Interface returns the plain Go form used by templates and encoders. Sets are
// returned as sorted string slices.
func (v Value) Interface() any {
	switch v.kind {
	case KindMapping:
		return v.mapping
	case KindSet:
		if v.set == nil {
			return []string{}
		}
		return v.set.Values()
	case KindSequence:
		return v.seq
	default:
		return v.scalar
	}
}

func (v Value) clone() Value {
	switch v.kind {
	case KindMapping:
		return Mapping(maps.Clone(v.mapping))
	case KindSet:
		if v.set == nil {
			return Set()
		}
		return Value{kind: KindSet, set: v.set.Clone()}
	case KindSequence:
		return Sequence(slices.Clone(v.seq)...)
	default:
		return v
	}
}

// Merge folds in into v in place. The rule is picked by the tag of v:
// mappings take a shallow update, sets take the union, sequences are
// extended, and scalars are replaced. An incoming value the existing tag can't
// absorb replaces v. Empty collections never change v.
func (v *Value) Merge(in Value) {
	if in.kind != KindScalar && in.Len() == 0 {
		return
	}
	switch v.kind {
	case KindMapping:
		if in.kind == KindMapping {
			maps.Copy(v.mapping, in.mapping)
			return
		}
	case KindSet:
		switch in.kind {
		case KindSet:
			v.set = v.set.Union(in.set)
			return
		case KindSequence:
			v.set = v.set.Union(NewStringSet(stringify(in.seq)...))
			return
		}
	case KindSequence:
		switch in.kind {
		case KindSequence:
			v.seq = append(v.seq, in.seq...)
			return
		case KindSet:
			for _, s := range in.set.Values() {
				v.seq = append(v.seq, s)
			}
			return
		}
	}
	*v = in.clone()
}

func stringify(items []any) []string {
	result := make([]string, 0, len(items))
	for _, i := range items {
		if s, ok := i.(string); ok {
			result = append(result, s)
			continue
		}
		result = append(result, fmt.Sprint(i))
	}
	return result
}

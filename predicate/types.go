package predicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the value types a field or predicate operand can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// Value is a small tagged union for field and operand values.
type Value struct {
	Kind Kind
	S    string
	I64  int64
	F64  float64
	B    bool
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, S: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, I64: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{Kind: KindFloat, F64: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsNumber reports whether the value is numeric.
func (v Value) IsNumber() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// AsFloat64 converts a numeric value to float64. Non-numeric values yield 0.
func (v Value) AsFloat64() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}

// Repr returns a stable textual representation used for digests and logging.
func (v Value) Repr() string {
	switch v.Kind {
	case KindString:
		return "s:" + v.S
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(v.B)
	default:
		return "null"
	}
}

// Equal compares two values. Int and float compare numerically.
func (v Value) Equal(o Value) bool {
	if v.Kind == KindNull || o.Kind == KindNull {
		return v.Kind == o.Kind
	}
	if v.IsNumber() && o.IsNumber() {
		if v.Kind == KindInt && o.Kind == KindInt {
			return v.I64 == o.I64
		}
		return v.AsFloat64() == o.AsFloat64()
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.S == o.S
	case KindBool:
		return v.B == o.B
	default:
		return false
	}
}

// Less reports v < o for numeric pairs and lexical order for string pairs.
// Mixed or non-comparable kinds are never less.
func (v Value) Less(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		return v.AsFloat64() < o.AsFloat64()
	}
	if v.Kind == KindString && o.Kind == KindString {
		return v.S < o.S
	}
	return false
}

// Document is the attribute map of a single row.
type Document map[string]Value

// Op enumerates the supported predicate operators.
type Op uint8

const (
	// OpEQ matches rows whose attribute equals the operand.
	OpEQ Op = iota + 1
	// OpRange matches rows whose numeric attribute lies in [Min, Max].
	// Either bound may be null (unbounded).
	OpRange
	// OpPrefix matches rows whose string attribute starts with the operand,
	// case-insensitively.
	OpPrefix
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case OpEQ:
		return "eq"
	case OpRange:
		return "range"
	case OpPrefix:
		return "prefix"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Predicate is a single (attribute, operator, operand) condition.
// EQ and PREFIX use Value; RANGE uses Min/Max.
type Predicate struct {
	Attr  string
	Op    Op
	Value Value
	Min   Value
	Max   Value
}

// Eq builds an equality predicate.
func Eq(attr string, v Value) Predicate {
	return Predicate{Attr: attr, Op: OpEQ, Value: v}
}

// Prefix builds a case-insensitive prefix predicate.
func Prefix(attr, p string) Predicate {
	return Predicate{Attr: attr, Op: OpPrefix, Value: String(p)}
}

// Range builds a closed numeric range predicate. Pass Null() for an open bound.
func Range(attr string, min, max Value) Predicate {
	return Predicate{Attr: attr, Op: OpRange, Min: min, Max: max}
}

// Repr returns a stable textual representation used for digests.
func (p Predicate) Repr() string {
	var sb strings.Builder
	sb.WriteString(p.Attr)
	sb.WriteByte('|')
	sb.WriteString(p.Op.String())
	sb.WriteByte('|')
	switch p.Op {
	case OpRange:
		sb.WriteString(p.Min.Repr())
		sb.WriteByte('|')
		sb.WriteString(p.Max.Repr())
	default:
		sb.WriteString(p.Value.Repr())
	}
	return sb.String()
}

// Validate rejects malformed predicates before any I/O happens.
func (p Predicate) Validate() error {
	if p.Attr == "" {
		return fmt.Errorf("predicate: empty attribute")
	}
	switch p.Op {
	case OpEQ:
		if p.Value.IsNull() {
			return fmt.Errorf("predicate: eq on %q requires a non-null operand", p.Attr)
		}
	case OpPrefix:
		if p.Value.Kind != KindString || p.Value.S == "" {
			return fmt.Errorf("predicate: prefix on %q requires a non-empty string operand", p.Attr)
		}
	case OpRange:
		if p.Min.IsNull() && p.Max.IsNull() {
			return fmt.Errorf("predicate: range on %q requires at least one bound", p.Attr)
		}
		if !p.Min.IsNull() && !p.Min.IsNumber() {
			return fmt.Errorf("predicate: range min on %q must be numeric", p.Attr)
		}
		if !p.Max.IsNull() && !p.Max.IsNumber() {
			return fmt.Errorf("predicate: range max on %q must be numeric", p.Attr)
		}
	default:
		return fmt.Errorf("predicate: unsupported operator %d on %q", uint8(p.Op), p.Attr)
	}
	return nil
}

// Set is an ordered collection of predicates combined with AND semantics.
type Set []Predicate

// Validate validates every predicate in the set.
func (s Set) Validate() error {
	for _, p := range s {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Canonical returns a sorted copy of the set. The order is stable across
// processes, which makes digests and planning deterministic.
func (s Set) Canonical() Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Repr() < out[j].Repr()
	})
	return out
}

// Without returns the set minus the given predicate (compared by Repr).
func (s Set) Without(p Predicate) Set {
	repr := p.Repr()
	out := make(Set, 0, len(s))
	for _, q := range s {
		if q.Repr() != repr {
			out = append(out, q)
		}
	}
	return out
}

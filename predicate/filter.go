package predicate

import (
	"strings"
	"time"
)

// Well-known attributes with derivation rules.
const (
	// AttrAge is derived from AttrBirthDate when absent from a row.
	AttrAge = "age"
	// AttrBirthDate holds an ISO date string (2006-01-02).
	AttrBirthDate = "birth_date"
)

// Evaluator evaluates predicates against row documents. The zero value uses
// time.Now for derived-age computation; tests inject a fixed clock.
type Evaluator struct {
	Now func() time.Time
}

func (e Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Matches reports whether the document satisfies the predicate.
// Rows missing the attribute (and any derivation input) never match.
func (e Evaluator) Matches(doc Document, p Predicate) bool {
	value, ok := e.resolve(doc, p.Attr)
	if !ok {
		return false
	}

	switch p.Op {
	case OpEQ:
		return value.Equal(p.Value)
	case OpPrefix:
		if value.Kind != KindString {
			return false
		}
		return strings.HasPrefix(strings.ToLower(value.S), strings.ToLower(p.Value.S))
	case OpRange:
		if !value.IsNumber() {
			return false
		}
		f := value.AsFloat64()
		if !p.Min.IsNull() && f < p.Min.AsFloat64() {
			return false
		}
		if !p.Max.IsNull() && f > p.Max.AsFloat64() {
			return false
		}
		return true
	default:
		return false
	}
}

// MatchesAll reports whether the document satisfies every predicate in the set.
func (e Evaluator) MatchesAll(doc Document, set Set) bool {
	for _, p := range set {
		if !e.Matches(doc, p) {
			return false
		}
	}
	return true
}

// resolve looks up the attribute, deriving age from birth_date when needed.
func (e Evaluator) resolve(doc Document, attr string) (Value, bool) {
	if v, ok := doc[attr]; ok && !v.IsNull() {
		return v, true
	}
	if attr == AttrAge {
		return e.deriveAge(doc)
	}
	return Value{}, false
}

func (e Evaluator) deriveAge(doc Document) (Value, bool) {
	bd, ok := doc[AttrBirthDate]
	if !ok || bd.Kind != KindString {
		return Value{}, false
	}
	born, err := time.Parse("2006-01-02", bd.S)
	if err != nil {
		return Value{}, false
	}
	now := e.now()
	age := int64(now.Year() - born.Year())
	if now.YearDay() < born.YearDay() {
		age--
	}
	if age < 0 {
		return Value{}, false
	}
	return Int(age), true
}

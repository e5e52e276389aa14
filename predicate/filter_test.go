package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestEvaluatorMatches(t *testing.T) {
	ev := Evaluator{Now: fixedClock}

	tests := []struct {
		name string
		pred Predicate
		doc  Document
		want bool
	}{
		{
			name: "eq string match",
			pred: Eq("position", String("GK")),
			doc:  Document{"position": String("GK")},
			want: true,
		},
		{
			name: "eq string no match",
			pred: Eq("position", String("GK")),
			doc:  Document{"position": String("CB")},
			want: false,
		},
		{
			name: "eq missing attribute",
			pred: Eq("position", String("GK")),
			doc:  Document{"nationality": String("BR")},
			want: false,
		},
		{
			name: "eq numeric cross-kind",
			pred: Eq("height_cm", Int(188)),
			doc:  Document{"height_cm": Float(188)},
			want: true,
		},
		{
			name: "prefix case-insensitive",
			pred: Prefix("name", "Ron"),
			doc:  Document{"name": String("ronaldo")},
			want: true,
		},
		{
			name: "prefix no match",
			pred: Prefix("name", "Mes"),
			doc:  Document{"name": String("Ronaldo")},
			want: false,
		},
		{
			name: "prefix on non-string",
			pred: Prefix("height_cm", "18"),
			doc:  Document{"height_cm": Int(188)},
			want: false,
		},
		{
			name: "range inside",
			pred: Range("market_value_eur", Int(1_000_000), Int(50_000_000)),
			doc:  Document{"market_value_eur": Int(20_000_000)},
			want: true,
		},
		{
			name: "range below min",
			pred: Range("market_value_eur", Int(1_000_000), Null()),
			doc:  Document{"market_value_eur": Int(500_000)},
			want: false,
		},
		{
			name: "range open min",
			pred: Range("market_value_eur", Null(), Int(1_000_000)),
			doc:  Document{"market_value_eur": Int(500_000)},
			want: true,
		},
		{
			name: "range on non-numeric",
			pred: Range("position", Int(1), Int(2)),
			doc:  Document{"position": String("GK")},
			want: false,
		},
		{
			name: "age derived from birth date",
			pred: Range(AttrAge, Int(20), Int(30)),
			doc:  Document{AttrBirthDate: String("2000-01-10")},
			want: true, // 25 at the fixed clock
		},
		{
			name: "age derived, birthday not yet reached",
			pred: Eq(AttrAge, Int(24)),
			doc:  Document{AttrBirthDate: String("2000-12-01")},
			want: true,
		},
		{
			name: "age filter without birth date",
			pred: Range(AttrAge, Int(20), Int(30)),
			doc:  Document{"name": String("unknown")},
			want: false,
		},
		{
			name: "age filter with malformed birth date",
			pred: Range(AttrAge, Int(20), Int(30)),
			doc:  Document{AttrBirthDate: String("not-a-date")},
			want: false,
		},
		{
			name: "explicit age wins over derivation",
			pred: Eq(AttrAge, Int(31)),
			doc:  Document{AttrAge: Int(31), AttrBirthDate: String("2000-01-10")},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ev.Matches(tt.doc, tt.pred))
		})
	}
}

func TestEvaluatorMatchesAll(t *testing.T) {
	ev := Evaluator{Now: fixedClock}
	doc := Document{
		"position":    String("ST"),
		"nationality": String("FR"),
		AttrBirthDate: String("1998-12-20"),
	}

	set := Set{
		Eq("position", String("ST")),
		Eq("nationality", String("FR")),
		Range(AttrAge, Int(25), Int(28)),
	}
	assert.True(t, ev.MatchesAll(doc, set))

	set = append(set, Eq("team_id", String("t9")))
	assert.False(t, ev.MatchesAll(doc, set))
}

func TestPredicateValidate(t *testing.T) {
	tests := []struct {
		name    string
		pred    Predicate
		wantErr bool
	}{
		{"valid eq", Eq("position", String("GK")), false},
		{"valid prefix", Prefix("name", "ro"), false},
		{"valid range", Range("age", Int(18), Int(30)), false},
		{"valid half-open range", Range("age", Null(), Int(30)), false},
		{"empty attribute", Eq("", String("x")), true},
		{"eq with null operand", Eq("position", Null()), true},
		{"prefix with empty operand", Prefix("name", ""), true},
		{"prefix with non-string operand", Predicate{Attr: "name", Op: OpPrefix, Value: Int(3)}, true},
		{"range with no bounds", Range("age", Null(), Null()), true},
		{"range with string bound", Predicate{Attr: "age", Op: OpRange, Min: String("x")}, true},
		{"unknown operator", Predicate{Attr: "x", Op: Op(99), Value: Int(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pred.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetCanonicalDeterministic(t *testing.T) {
	a := Set{
		Eq("nationality", String("BR")),
		Range("age", Int(20), Int(30)),
		Eq("position", String("GK")),
	}
	b := Set{
		Eq("position", String("GK")),
		Eq("nationality", String("BR")),
		Range("age", Int(20), Int(30)),
	}

	ca, cb := a.Canonical(), b.Canonical()
	require.Equal(t, len(ca), len(cb))
	for i := range ca {
		assert.Equal(t, ca[i].Repr(), cb[i].Repr())
	}

	// Canonical must not mutate the receiver.
	assert.Equal(t, "nationality", a[0].Attr)
}

func TestSetWithout(t *testing.T) {
	base := Eq("position", String("GK"))
	set := Set{base, Eq("nationality", String("BR"))}

	rest := set.Without(base)
	require.Len(t, rest, 1)
	assert.Equal(t, "nationality", rest[0].Attr)

	// Original untouched.
	assert.Len(t, set, 2)
}

// Package expr implements the restricted rule-pack expression dialect
// "vectorbid/v1": pure, side-effect-free expressions over namespaced
// identifiers with a fixed function allowlist. Expressions are compiled
// once at rule-pack load and evaluated many times.
//
// Evaluation is total. Division by zero, unknown identifiers, bad function
// arguments, and numeric overflow all yield the undefined value and record
// a note on the environment; they never panic and never return a Go error.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates Value variants.
type Kind int

const (
	KindUndefined Kind = iota
	KindBool
	KindNum
	KindStr
	KindList
)

// Value is a dynamically typed expression result. Numbers are float64;
// rule packs never need integer semantics beyond exact small counts,
// which float64 represents exactly.
type Value struct {
	Kind Kind
	B    bool
	N    float64
	S    string
	L    []Value
}

// Undef returns the undefined value.
func Undef() Value { return Value{Kind: KindUndefined} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Num wraps a number.
func Num(n float64) Value { return Value{Kind: KindNum, N: n} }

// Str wraps a string.
func Str(s string) Value { return Value{Kind: KindStr, S: s} }

// List wraps a list of values.
func List(vs ...Value) Value { return Value{Kind: KindList, L: vs} }

// Strings wraps a string slice as a list value.
func Strings(ss []string) Value {
	l := make([]Value, len(ss))
	for i, s := range ss {
		l[i] = Str(s)
	}
	return Value{Kind: KindList, L: l}
}

// Defined reports whether the value is not undefined.
func (v Value) Defined() bool { return v.Kind != KindUndefined }

// Truthy converts a value to a boolean for logical contexts. Undefined is
// false; numbers are true when non-zero; strings when non-empty; lists
// when non-empty.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.B
	case KindNum:
		return v.N != 0
	case KindStr:
		return v.S != ""
	case KindList:
		return len(v.L) > 0
	default:
		return false
	}
}

// Equal reports deep equality. Values of different kinds are never equal;
// undefined equals nothing, including itself.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Kind == KindUndefined {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.B == o.B
	case KindNum:
		return v.N == o.N
	case KindStr:
		return v.S == o.S
	case KindList:
		if len(v.L) != len(o.L) {
			return false
		}
		for i := range v.L {
			if !v.L[i].Equal(o.L[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value for notes and debug output.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindNum:
		return strconv.FormatFloat(v.N, 'g', -1, 64)
	case KindStr:
		return strconv.Quote(v.S)
	case KindList:
		parts := make([]string, len(v.L))
		for i, e := range v.L {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "undefined"
	}
}

// Env carries the identifier bindings for one evaluation plus the notes
// recorded along the way. Namespaces absent from NS are out of the
// sandbox; looking them up records a note and yields undefined.
type Env struct {
	NS    map[string]map[string]Value
	notes []string
}

// NewEnv returns an environment over the given namespace bindings.
func NewEnv(ns map[string]map[string]Value) *Env {
	return &Env{NS: ns}
}

// Note records an evaluation problem (undefined access, division by zero,
// bad arguments). Notes surface as expression_error warnings on the rule
// that evaluated.
func (e *Env) Note(format string, args ...interface{}) {
	e.notes = append(e.notes, fmt.Sprintf(format, args...))
}

// Notes returns the notes recorded so far.
func (e *Env) Notes() []string { return e.notes }

// ResetNotes clears recorded notes between rule evaluations.
func (e *Env) ResetNotes() { e.notes = nil }

// get resolves a namespaced identifier, recording a note on any miss.
func (e *Env) get(ns, field string) Value {
	m, ok := e.NS[ns]
	if !ok {
		e.Note("unknown namespace %q", ns)
		return Undef()
	}
	v, ok := m[field]
	if !ok {
		e.Note("undefined identifier %s.%s", ns, field)
		return Undef()
	}
	return v
}

package expr

import (
	"math"
	"strings"
	"time"
)

// node is an AST vertex. eval never panics; anything outside the defined
// semantics yields undefined plus a note on the environment.
type node interface {
	eval(env *Env) Value
}

type litNode struct{ v Value }

func (n *litNode) eval(*Env) Value { return n.v }

type identNode struct{ ns, field string }

func (n *identNode) eval(env *Env) Value { return env.get(n.ns, n.field) }

type listNode struct{ elems []node }

func (n *listNode) eval(env *Env) Value {
	out := make([]Value, len(n.elems))
	for i, e := range n.elems {
		out[i] = e.eval(env)
	}
	return Value{Kind: KindList, L: out}
}

type unaryNode struct {
	op string
	x  node
}

func (n *unaryNode) eval(env *Env) Value {
	v := n.x.eval(env)
	switch n.op {
	case "not":
		return Bool(!v.Truthy())
	case "-":
		if v.Kind != KindNum {
			if v.Defined() {
				env.Note("cannot negate %s", v.String())
			}
			return Undef()
		}
		return Num(-v.N)
	}
	return Undef()
}

type binaryNode struct {
	op   string
	x, y node
}

func (n *binaryNode) eval(env *Env) Value {
	// Logical operators short-circuit; everything else is strict.
	switch n.op {
	case "and":
		if !n.x.eval(env).Truthy() {
			return Bool(false)
		}
		return Bool(n.y.eval(env).Truthy())
	case "or":
		if n.x.eval(env).Truthy() {
			return Bool(true)
		}
		return Bool(n.y.eval(env).Truthy())
	}

	x := n.x.eval(env)
	y := n.y.eval(env)

	switch n.op {
	case "+", "-", "*", "/", "%":
		return arith(env, n.op, x, y)
	case "==":
		return Bool(x.Equal(y))
	case "!=":
		if !x.Defined() || !y.Defined() {
			// Comparisons with undefined are false, for != too.
			return Bool(false)
		}
		return Bool(!x.Equal(y))
	case "<", "<=", ">", ">=":
		return compare(env, n.op, x, y)
	case "in":
		return membership(env, x, y)
	}
	return Undef()
}

// arith applies a numeric operator. Non-numeric operands, division by
// zero, and overflow yield undefined with a note.
func arith(env *Env, op string, x, y Value) Value {
	if x.Kind != KindNum || y.Kind != KindNum {
		if x.Defined() && y.Defined() {
			env.Note("%s needs numbers, got %s and %s", op, x.String(), y.String())
		}
		return Undef()
	}
	var r float64
	switch op {
	case "+":
		r = x.N + y.N
	case "-":
		r = x.N - y.N
	case "*":
		r = x.N * y.N
	case "/":
		if y.N == 0 {
			env.Note("division by zero")
			return Undef()
		}
		r = x.N / y.N
	case "%":
		if y.N == 0 {
			env.Note("modulo by zero")
			return Undef()
		}
		r = math.Mod(x.N, y.N)
	}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		env.Note("numeric overflow in %s", op)
		return Undef()
	}
	return Num(r)
}

// compare orders numbers numerically and strings lexicographically.
// Comparisons involving undefined are false; mixed kinds are false with a
// note.
func compare(env *Env, op string, x, y Value) Value {
	if !x.Defined() || !y.Defined() {
		return Bool(false)
	}
	var c int
	switch {
	case x.Kind == KindNum && y.Kind == KindNum:
		switch {
		case x.N < y.N:
			c = -1
		case x.N > y.N:
			c = 1
		}
	case x.Kind == KindStr && y.Kind == KindStr:
		c = strings.Compare(x.S, y.S)
	default:
		env.Note("cannot order %s against %s", x.String(), y.String())
		return Bool(false)
	}
	switch op {
	case "<":
		return Bool(c < 0)
	case "<=":
		return Bool(c <= 0)
	case ">":
		return Bool(c > 0)
	case ">=":
		return Bool(c >= 0)
	}
	return Undef()
}

// membership implements `x in y` for lists and string containment.
func membership(env *Env, x, y Value) Value {
	if !x.Defined() || !y.Defined() {
		return Bool(false)
	}
	switch y.Kind {
	case KindList:
		for _, e := range y.L {
			if x.Equal(e) {
				return Bool(true)
			}
		}
		return Bool(false)
	case KindStr:
		if x.Kind != KindStr {
			env.Note("in needs a string on the left of a string, got %s", x.String())
			return Bool(false)
		}
		return Bool(strings.Contains(y.S, x.S))
	}
	env.Note("in needs a list or string on the right, got %s", y.String())
	return Bool(false)
}

type callNode struct {
	fn   string
	args []node
}

func (n *callNode) eval(env *Env) Value {
	args := make([]Value, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(env)
	}

	switch n.fn {
	case "sum":
		return fnSum(env, args)
	case "count":
		if args[0].Kind != KindList {
			env.Note("count needs a list, got %s", args[0].String())
			return Undef()
		}
		return Num(float64(len(args[0].L)))
	case "any":
		if args[0].Kind != KindList {
			env.Note("any needs a list, got %s", args[0].String())
			return Undef()
		}
		for _, e := range args[0].L {
			if e.Truthy() {
				return Bool(true)
			}
		}
		return Bool(false)
	case "all":
		if args[0].Kind != KindList {
			env.Note("all needs a list, got %s", args[0].String())
			return Undef()
		}
		for _, e := range args[0].L {
			if !e.Truthy() {
				return Bool(false)
			}
		}
		return Bool(true)
	case "min":
		return fnMinMax(env, args, true)
	case "max":
		return fnMinMax(env, args, false)
	case "dow":
		return fnDow(env, args[0])
	case "between":
		lo := compare(env, ">=", args[0], args[1])
		hi := compare(env, "<=", args[0], args[2])
		return Bool(lo.Truthy() && hi.Truthy())
	case "hours_between":
		return fnHoursBetween(env, args[0], args[1])
	}
	return Undef()
}

// fnSum sums the numbers in a single list argument, or the arguments
// themselves when more than one is given. Non-numeric elements record a
// note and are skipped, keeping evaluation total.
func fnSum(env *Env, args []Value) Value {
	vals := args
	if len(args) == 1 && args[0].Kind == KindList {
		vals = args[0].L
	}
	total := 0.0
	for _, v := range vals {
		if v.Kind != KindNum {
			if v.Defined() {
				env.Note("sum skipping non-number %s", v.String())
			}
			continue
		}
		total += v.N
	}
	if math.IsInf(total, 0) || math.IsNaN(total) {
		env.Note("numeric overflow in sum")
		return Undef()
	}
	return Num(total)
}

func fnMinMax(env *Env, args []Value, wantMin bool) Value {
	vals := args
	if len(args) == 1 && args[0].Kind == KindList {
		vals = args[0].L
	}
	best := Undef()
	for _, v := range vals {
		if v.Kind != KindNum {
			if v.Defined() {
				env.Note("min/max skipping non-number %s", v.String())
			}
			continue
		}
		if !best.Defined() || (wantMin && v.N < best.N) || (!wantMin && v.N > best.N) {
			best = v
		}
	}
	if !best.Defined() {
		env.Note("min/max over no numbers")
	}
	return best
}

// fnDow returns the ISO weekday (1=Monday .. 7=Sunday) of an ISO date.
func fnDow(env *Env, v Value) Value {
	if v.Kind != KindStr {
		env.Note("dow needs an ISO date string, got %s", v.String())
		return Undef()
	}
	t, err := time.Parse("2006-01-02", v.S)
	if err != nil {
		env.Note("dow: bad date %q", v.S)
		return Undef()
	}
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // time.Sunday is 0; ISO wants 7
	}
	return Num(float64(wd))
}

// fnHoursBetween returns the signed fractional hours from a to b, both
// RFC3339 timestamps.
func fnHoursBetween(env *Env, a, b Value) Value {
	if a.Kind != KindStr || b.Kind != KindStr {
		env.Note("hours_between needs two RFC3339 strings")
		return Undef()
	}
	ta, err := time.Parse(time.RFC3339, a.S)
	if err != nil {
		env.Note("hours_between: bad timestamp %q", a.S)
		return Undef()
	}
	tb, err := time.Parse(time.RFC3339, b.S)
	if err != nil {
		env.Note("hours_between: bad timestamp %q", b.S)
		return Undef()
	}
	return Num(tb.Sub(ta).Hours())
}

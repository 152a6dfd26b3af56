package expr

import (
	"fmt"
)

// Namespaces the dialect knows about. Identifiers must be rooted at one of
// these; anything else still parses but resolves to undefined with a note
// (the namespace list is a property of the evaluation environment, not the
// grammar).
const (
	NSContext   = "context"
	NSCandidate = "candidate"
	NSPairing   = "pairing"
	NSFar117    = "far117"
	NSContract  = "contract"
	NSStats     = "stats"
)

// functions maps allowlisted function names to their accepted arity.
// -1 means one-or-more arguments.
var functions = map[string]int{
	"sum":           -1,
	"any":           1,
	"all":           1,
	"count":         1,
	"min":           -1,
	"max":           -1,
	"dow":           1,
	"between":       3,
	"hours_between": 2,
}

// Compiled is a parsed, reusable expression. Compile once at rule-pack
// load; Eval is safe for concurrent use with distinct environments.
type Compiled struct {
	Source     string
	root       node
	namespaces map[string]bool
}

// Compile parses src into an AST. Unknown functions, bare identifiers, and
// malformed syntax are load-time errors; unknown namespaces are not (they
// evaluate to undefined).
func Compile(src string) (*Compiled, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, namespaces: make(map[string]bool)}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	return &Compiled{Source: src, root: root, namespaces: p.namespaces}, nil
}

// MustCompile is Compile for expressions known good at build time.
func MustCompile(src string) *Compiled {
	c, err := Compile(src)
	if err != nil {
		panic(fmt.Sprintf("expr: MustCompile(%q): %v", src, err))
	}
	return c
}

// Eval evaluates the expression against env. It never panics; problems
// yield undefined and a note on env.
func (c *Compiled) Eval(env *Env) Value {
	return c.root.eval(env)
}

// Uses reports whether the expression references the given namespace.
// The rule evaluator uses this to pick candidate or per-pairing scope.
func (c *Compiled) Uses(ns string) bool {
	return c.namespaces[ns]
}

// parser is a recursive-descent parser over the token stream.
type parser struct {
	toks       []token
	i          int
	namespaces map[string]bool
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// acceptOp consumes the next token when it is the given operator.
func (p *parser) acceptOp(text string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == text {
		p.i++
		return true
	}
	return false
}

func (p *parser) expectOp(text string) error {
	if !p.acceptOp(text) {
		t := p.peek()
		return fmt.Errorf("expected %q, got %q at offset %d", text, t.text, t.pos)
	}
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("or") || p.acceptOp("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("and") || p.acceptOp("&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.acceptOp("not") || p.acceptOp("!") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", x: x}, nil
	}
	return p.parseCmp()
}

// comparison operators; single comparison only, chains are a load error.
var cmpOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "in": true,
}

func (p *parser) parseCmp() (node, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokOp && cmpOps[t.text] {
		p.next()
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: t.text, x: left, y: right}
		// Chained comparisons are ambiguous; reject at load time.
		if u := p.peek(); u.kind == tokOp && cmpOps[u.text] {
			return nil, fmt.Errorf("chained comparison at offset %d", u.pos)
		}
	}
	return left, nil
}

func (p *parser) parseAdd() (node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("+"):
			right, err := p.parseMul()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "+", x: left, y: right}
		case p.acceptOp("-"):
			right, err := p.parseMul()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "-", x: left, y: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMul() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: t.text, x: left, y: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.acceptOp("-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()

	switch t.kind {
	case tokNum:
		p.next()
		return &litNode{v: Num(t.num)}, nil

	case tokStr:
		p.next()
		return &litNode{v: Str(t.text)}, nil

	case tokIdent:
		return p.parseIdent()

	case tokOp:
		switch t.text {
		case "(":
			p.next()
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "[":
			return p.parseList()
		}
	}

	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func (p *parser) parseList() (node, error) {
	open := p.next() // consume '['
	var elems []node
	if p.acceptOp("]") {
		return &listNode{elems: elems}, nil
	}
	for {
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.acceptOp("]") {
			return &listNode{elems: elems}, nil
		}
		if !p.acceptOp(",") {
			return nil, fmt.Errorf("unterminated list starting at offset %d", open.pos)
		}
	}
}

// parseIdent handles true/false literals, namespaced paths, and function
// calls. Bare identifiers outside call position are load errors: the
// dialect has no unqualified variables.
func (p *parser) parseIdent() (node, error) {
	t := p.next()

	switch t.text {
	case "true":
		return &litNode{v: Bool(true)}, nil
	case "false":
		return &litNode{v: Bool(false)}, nil
	}

	// Function call.
	if p.peek().kind == tokOp && p.peek().text == "(" {
		arity, ok := functions[t.text]
		if !ok {
			return nil, fmt.Errorf("unknown function %q at offset %d", t.text, t.pos)
		}
		p.next() // consume '('
		var args []node
		if !p.acceptOp(")") {
			for {
				a, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.acceptOp(")") {
					break
				}
				if err := p.expectOp(","); err != nil {
					return nil, err
				}
			}
		}
		if arity >= 0 && len(args) != arity {
			return nil, fmt.Errorf("%s takes %d argument(s), got %d at offset %d", t.text, arity, len(args), t.pos)
		}
		if arity == -1 && len(args) == 0 {
			return nil, fmt.Errorf("%s takes at least one argument at offset %d", t.text, t.pos)
		}
		return &callNode{fn: t.text, args: args}, nil
	}

	// Namespaced path: ns.field
	if p.acceptOp(".") {
		f := p.next()
		if f.kind != tokIdent {
			return nil, fmt.Errorf("expected field after %q at offset %d", t.text+".", f.pos)
		}
		p.namespaces[t.text] = true
		return &identNode{ns: t.text, field: f.text}, nil
	}

	return nil, fmt.Errorf("bare identifier %q at offset %d (identifiers must be namespaced)", t.text, t.pos)
}

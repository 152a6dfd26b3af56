package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// tokKind enumerates lexer token kinds.
type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokStr
	tokIdent // bare identifier or dotted path segment
	tokOp    // operators and punctuation
)

// token is one lexed unit with its source offset for error reporting.
type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

// keywords that lex as operators rather than identifiers.
var keywordOps = map[string]bool{
	"and": true,
	"or":  true,
	"not": true,
	"in":  true,
}

// lex splits src into tokens. It returns an error with a byte offset for
// anything outside the dialect.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)

	for i < n {
		c := src[i]

		// Skip whitespace.
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		start := i

		// Numbers: integer or decimal.
		if c >= '0' && c <= '9' || (c == '.' && i+1 < n && src[i+1] >= '0' && src[i+1] <= '9') {
			j := i
			seenDot := false
			for j < n && (src[j] >= '0' && src[j] <= '9' || src[j] == '.' && !seenDot) {
				if src[j] == '.' {
					// A dot followed by a non-digit belongs to a dotted path, not this number.
					if j+1 >= n || src[j+1] < '0' || src[j+1] > '9' {
						break
					}
					seenDot = true
				}
				j++
			}
			text := src[i:j]
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at offset %d", text, start)
			}
			toks = append(toks, token{kind: tokNum, text: text, num: f, pos: start})
			i = j
			continue
		}

		// Strings: single or double quoted, no escapes needed by the dialect
		// beyond doubled quotes.
		if c == '\'' || c == '"' {
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < n {
				if src[j] == quote {
					// Doubled quote is a literal quote character.
					if j+1 < n && src[j+1] == quote {
						sb.WriteByte(quote)
						j += 2
						continue
					}
					break
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			toks = append(toks, token{kind: tokStr, text: sb.String(), pos: start})
			i = j + 1
			continue
		}

		// Identifiers and keyword operators.
		if isIdentStart(rune(c)) {
			j := i
			for j < n && isIdentPart(rune(src[j])) {
				j++
			}
			word := src[i:j]
			switch {
			case word == "true":
				toks = append(toks, token{kind: tokIdent, text: "true", pos: start})
			case word == "false":
				toks = append(toks, token{kind: tokIdent, text: "false", pos: start})
			case keywordOps[word]:
				toks = append(toks, token{kind: tokOp, text: word, pos: start})
			default:
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
			i = j
			continue
		}

		// Multi-character operators.
		if i+1 < n {
			two := src[i : i+2]
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				toks = append(toks, token{kind: tokOp, text: two, pos: start})
				i += 2
				continue
			}
		}

		// Single-character operators and punctuation.
		switch c {
		case '+', '-', '*', '/', '%', '<', '>', '(', ')', '[', ']', ',', '.', '!':
			toks = append(toks, token{kind: tokOp, text: string(c), pos: start})
			i++
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at offset %d", c, start)
	}

	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

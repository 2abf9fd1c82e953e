package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes a query in object notation. A JSON string is parsed with
// Parse; an object must have exactly one "and" or "or" key holding a non-empty
// array of nested queries. The result has passed Validate.
//
//	{"and": ["documents.read", {"or": ["documents.write", "admin"]}]}
func ParseJSON(raw []byte) (Query, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Query{}, schemaErr("$", "empty query")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Query{}, schemaErr("$", "malformed JSON: %v", err)
	}
	q, err := fromValue(v, "$", 0)
	if err != nil {
		return Query{}, err
	}
	return q, Validate(q)
}

func fromValue(v interface{}, path string, depth int) (Query, error) {
	if depth > maxDepth {
		return Query{}, schemaErr(path, "nesting deeper than %d", maxDepth)
	}
	switch val := v.(type) {
	case string:
		q, err := Parse(val)
		if err != nil {
			return Query{}, schemaErr(path, "%v", err)
		}
		return q, nil
	case map[string]interface{}:
		if len(val) != 1 {
			return Query{}, schemaErr(path, "expected exactly one of \"and\" or \"or\", got %d keys", len(val))
		}
		for key, operands := range val {
			op := Operator(key)
			if op != OperatorAnd && op != OperatorOr {
				return Query{}, schemaErr(path, "unknown operator %q", key)
			}
			list, ok := operands.([]interface{})
			if !ok {
				return Query{}, schemaErr(path, "%s must be an array", key)
			}
			if len(list) == 0 {
				return Query{}, schemaErr(path, "%s requires at least one operand", key)
			}
			q := Query{Operator: op, Operands: make([]Query, 0, len(list))}
			for i, item := range list {
				child, err := fromValue(item, fmt.Sprintf("%s.%s[%d]", path, key, i), depth+1)
				if err != nil {
					return Query{}, err
				}
				q.Operands = append(q.Operands, child)
			}
			return q, nil
		}
	}
	return Query{}, schemaErr(path, "expected a permission string or an and/or object, got %T", v)
}

// Parse reads the infix form of a query. AND binds tighter than OR and
// parentheses group; keywords are case-insensitive.
//
//	documents.read AND (documents.write OR admin)
func Parse(expr string) (Query, error) {
	p := &parser{tokens: tokenize(expr)}
	if len(p.tokens) == 0 {
		return Query{}, &SchemaError{Reason: "empty query"}
	}
	q, err := p.parseOr(0)
	if err != nil {
		return Query{}, err
	}
	if tok, ok := p.peek(); ok {
		return Query{}, &SchemaError{Reason: fmt.Sprintf("unexpected %q at token %d", tok, p.pos)}
	}
	return q, Validate(q)
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (string, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func (p *parser) acceptKeyword(kw string) bool {
	if tok, ok := p.peek(); ok && strings.EqualFold(tok, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr(depth int) (Query, error) {
	first, err := p.parseAnd(depth)
	if err != nil {
		return Query{}, err
	}
	operands := []Query{first}
	for p.acceptKeyword("or") {
		next, err := p.parseAnd(depth)
		if err != nil {
			return Query{}, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return Or(operands...), nil
}

func (p *parser) parseAnd(depth int) (Query, error) {
	first, err := p.parseFactor(depth)
	if err != nil {
		return Query{}, err
	}
	operands := []Query{first}
	for p.acceptKeyword("and") {
		next, err := p.parseFactor(depth)
		if err != nil {
			return Query{}, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return And(operands...), nil
}

func (p *parser) parseFactor(depth int) (Query, error) {
	if depth > maxDepth {
		return Query{}, &SchemaError{Reason: fmt.Sprintf("nesting deeper than %d", maxDepth)}
	}
	tok, ok := p.next()
	if !ok {
		return Query{}, &SchemaError{Reason: "unexpected end of query"}
	}
	switch {
	case tok == "(":
		q, err := p.parseOr(depth + 1)
		if err != nil {
			return Query{}, err
		}
		if closing, ok := p.next(); !ok || closing != ")" {
			return Query{}, &SchemaError{Reason: "missing closing parenthesis"}
		}
		return q, nil
	case tok == ")", strings.EqualFold(tok, "and"), strings.EqualFold(tok, "or"):
		return Query{}, &SchemaError{Reason: fmt.Sprintf("unexpected %q at token %d", tok, p.pos-1)}
	case !isSlug(tok):
		return Query{}, &SchemaError{Reason: fmt.Sprintf("invalid permission %q", tok)}
	}
	return P(tok), nil
}

// tokenize splits on whitespace and parentheses.
func tokenize(expr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Package rbac validates and evaluates permission queries against a key's
// effective permission set.
package rbac

import (
	"fmt"
	"strings"
)

// Operator combines the operands of a query node.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// maxDepth bounds nesting so hostile queries cannot exhaust the stack.
const maxDepth = 32

// Query is a boolean expression over permission slugs. A node is either a leaf
// (Permission set, no Operator) or an operator node with at least one operand.
type Query struct {
	Permission string
	Operator   Operator
	Operands   []Query
}

// P builds a leaf.
func P(permission string) Query {
	return Query{Permission: permission}
}

// And builds a conjunction.
func And(operands ...Query) Query {
	return Query{Operator: OperatorAnd, Operands: operands}
}

// Or builds a disjunction.
func Or(operands ...Query) Query {
	return Query{Operator: OperatorOr, Operands: operands}
}

// IsLeaf reports whether q is a single permission.
func (q Query) IsLeaf() bool {
	return q.Operator == ""
}

// String renders q in the infix form accepted by Parse.
func (q Query) String() string {
	if q.IsLeaf() {
		return q.Permission
	}
	parts := make([]string, len(q.Operands))
	for i, op := range q.Operands {
		s := op.String()
		if !op.IsLeaf() && op.Operator != q.Operator {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+strings.ToUpper(string(q.Operator))+" ")
}

// SchemaError reports a query whose shape is invalid.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return "invalid permission query: " + e.Reason
	}
	return fmt.Sprintf("invalid permission query at %s: %s", e.Path, e.Reason)
}

func schemaErr(path, format string, args ...interface{}) error {
	return &SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the shape of q: known operators, non-empty operand lists and
// well-formed slugs. It never looks at a permission set.
func Validate(q Query) error {
	return validate(q, "$", 0)
}

func validate(q Query, path string, depth int) error {
	if depth > maxDepth {
		return schemaErr(path, "nesting deeper than %d", maxDepth)
	}
	if q.IsLeaf() {
		if len(q.Operands) > 0 {
			return schemaErr(path, "a permission cannot have operands")
		}
		if !isSlug(q.Permission) {
			return schemaErr(path, "invalid permission %q", q.Permission)
		}
		return nil
	}
	if q.Operator != OperatorAnd && q.Operator != OperatorOr {
		return schemaErr(path, "unknown operator %q", q.Operator)
	}
	if q.Permission != "" {
		return schemaErr(path, "an operator node cannot name a permission")
	}
	if len(q.Operands) == 0 {
		return schemaErr(path, "%s requires at least one operand", q.Operator)
	}
	for i, op := range q.Operands {
		if err := validate(op, fmt.Sprintf("%s.%s[%d]", path, q.Operator, i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func isSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isSlugRune(r) {
			return false
		}
	}
	return true
}

func isSlugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '*', r == ':', r == '-':
		return true
	}
	return false
}

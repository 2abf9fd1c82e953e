package rbac

import (
	"fmt"
	"strings"
)

// Decision is the result of evaluating a query.
type Decision struct {
	Valid bool
	// Message explains the first missing permission when Valid is false.
	Message string
}

// PermissionSet is a lookup set of permission slugs.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from slugs.
func NewPermissionSet(permissions ...string) PermissionSet {
	set := make(PermissionSet, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains permission.
func (s PermissionSet) Has(permission string) bool {
	_, ok := s[permission]
	return ok
}

// Evaluate decides q against perms. q must have passed Validate.
func Evaluate(q Query, perms PermissionSet) Decision {
	if q.IsLeaf() {
		if perms.Has(q.Permission) {
			return Decision{Valid: true}
		}
		return Decision{Message: fmt.Sprintf("Missing permission: '%s'", q.Permission)}
	}

	switch q.Operator {
	case OperatorAnd:
		for _, op := range q.Operands {
			if d := Evaluate(op, perms); !d.Valid {
				return d
			}
		}
		return Decision{Valid: true}
	case OperatorOr:
		for _, op := range q.Operands {
			if Evaluate(op, perms).Valid {
				return Decision{Valid: true}
			}
		}
		return Decision{Message: fmt.Sprintf("Missing one of these permissions: [%s]", quoteAll(leaves(q, nil)))}
	}
	return Decision{Message: fmt.Sprintf("Unknown operator: '%s'", q.Operator)}
}

func leaves(q Query, acc []string) []string {
	if q.IsLeaf() {
		return append(acc, q.Permission)
	}
	for _, op := range q.Operands {
		acc = leaves(op, acc)
	}
	return acc
}

func quoteAll(slugs []string) string {
	quoted := make([]string, len(slugs))
	for i, s := range slugs {
		quoted[i] = "'" + s + "'"
	}
	return strings.Join(quoted, ", ")
}

package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Run("string leaf", func(t *testing.T) {
		q, err := ParseJSON([]byte(`"documents.read"`))
		require.NoError(t, err)
		assert.Equal(t, P("documents.read"), q)
	})

	t.Run("nested object", func(t *testing.T) {
		q, err := ParseJSON([]byte(`{"and":["a",{"or":["b","c"]}]}`))
		require.NoError(t, err)
		assert.Equal(t, And(P("a"), Or(P("b"), P("c"))), q)
	})

	t.Run("string expression inside an object", func(t *testing.T) {
		q, err := ParseJSON([]byte(`{"or":["a AND b","c"]}`))
		require.NoError(t, err)
		assert.Equal(t, Or(And(P("a"), P("b")), P("c")), q)
	})

	invalid := map[string]string{
		"unknown operator":  `{"xor":["a","b"]}`,
		"empty operands":    `{"and":[]}`,
		"two operators":     `{"and":["a"],"or":["b"]}`,
		"operands not list": `{"and":"a"}`,
		"number":            `42`,
		"null":              `null`,
		"malformed":         `{"and":[`,
		"bad slug":          `"docs read!"`,
		"empty":             ``,
	}
	for name, raw := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := ParseJSON([]byte(raw))
			var schemaErr *SchemaError
			require.Error(t, err)
			assert.True(t, errors.As(err, &schemaErr))
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("and binds tighter than or", func(t *testing.T) {
		q, err := Parse("a OR b AND c")
		require.NoError(t, err)
		assert.Equal(t, Or(P("a"), And(P("b"), P("c"))), q)
	})

	t.Run("parentheses group", func(t *testing.T) {
		q, err := Parse("(a or b) and c")
		require.NoError(t, err)
		assert.Equal(t, And(Or(P("a"), P("b")), P("c")), q)
	})

	t.Run("chains flatten", func(t *testing.T) {
		q, err := Parse("a AND b AND c")
		require.NoError(t, err)
		assert.Equal(t, And(P("a"), P("b"), P("c")), q)
	})

	t.Run("round trips through String", func(t *testing.T) {
		in := And(P("api.*.read"), Or(P("admin"), P("key:write")))
		q, err := Parse(in.String())
		require.NoError(t, err)
		assert.Equal(t, in, q)
	})

	for _, expr := range []string{"", "a AND", "(a OR b", "a b", "AND a", "a OR )", "a AND (b OR c))"} {
		t.Run("rejects "+expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(And(P("a"), Or(P("b")))))
	assert.Error(t, Validate(Query{Operator: "not", Operands: []Query{P("a")}}))
	assert.Error(t, Validate(And()))
	assert.Error(t, Validate(P("")))
	assert.Error(t, Validate(Query{Permission: "a", Operands: []Query{P("b")}}))

	deep := P("a")
	for i := 0; i <= maxDepth+1; i++ {
		deep = And(deep)
	}
	assert.Error(t, Validate(deep))
}

func TestEvaluate(t *testing.T) {
	perms := NewPermissionSet("documents.read", "documents.write")

	t.Run("leaf present", func(t *testing.T) {
		assert.True(t, Evaluate(P("documents.read"), perms).Valid)
	})

	t.Run("leaf missing", func(t *testing.T) {
		d := Evaluate(P("admin"), perms)
		assert.False(t, d.Valid)
		assert.Equal(t, "Missing permission: 'admin'", d.Message)
	})

	t.Run("and reports the first missing child", func(t *testing.T) {
		d := Evaluate(And(P("documents.read"), P("billing.read"), P("admin")), perms)
		assert.False(t, d.Valid)
		assert.Equal(t, "Missing permission: 'billing.read'", d.Message)
	})

	t.Run("or passes on any child", func(t *testing.T) {
		assert.True(t, Evaluate(Or(P("admin"), P("documents.write")), perms).Valid)
	})

	t.Run("or lists every alternative", func(t *testing.T) {
		d := Evaluate(Or(P("admin"), P("owner")), perms)
		assert.False(t, d.Valid)
		assert.Equal(t, "Missing one of these permissions: ['admin', 'owner']", d.Message)
	})

	t.Run("empty set", func(t *testing.T) {
		assert.False(t, Evaluate(P("a"), NewPermissionSet()).Valid)
	})
}

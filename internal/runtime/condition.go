package runtime

import (
	"fmt"
	"strings"

	"github.com/clickweave-dev/clickweave/internal/workflow"
)

// resolveRef resolves a ValueRef against the context: a Variable ref looks
// up the named key (missing variables resolve to Null); a Literal ref
// carries its own value.
func resolveRef(ctx *Context, ref workflow.ValueRef) Value {
	switch ref.Kind {
	case workflow.RefVariable:
		v, ok := ctx.Get(ref.Name)
		if !ok {
			return Null
		}
		return v
	case workflow.RefLiteral:
		switch {
		case ref.LiteralString != nil:
			return String(*ref.LiteralString)
		case ref.LiteralNumber != nil:
			return Number(*ref.LiteralNumber)
		case ref.LiteralBool != nil:
			return Bool(*ref.LiteralBool)
		default:
			return Null
		}
	default:
		return Null
	}
}

// Evaluate evaluates a Condition against a RuntimeContext using the
// documented coercion rules.
func Evaluate(ctx *Context, cond workflow.Condition) (bool, error) {
	left := resolveRef(ctx, cond.Left)

	switch cond.Operator {
	case workflow.OpIsEmpty:
		return IsEmpty(left), nil
	case workflow.OpIsNotEmpty:
		return !IsEmpty(left), nil
	}

	right := resolveRef(ctx, cond.Right)

	switch cond.Operator {
	case workflow.OpEquals:
		return Equal(left, right), nil
	case workflow.OpNotEquals:
		return !Equal(left, right), nil
	case workflow.OpGreaterThan, workflow.OpLessThan, workflow.OpGTE, workflow.OpLTE:
		ln, lok := asNumber(left)
		rn, rok := asNumber(right)
		if !lok || !rok {
			return false, fmt.Errorf("condition: operator %s requires numeric operands", cond.Operator)
		}
		switch cond.Operator {
		case workflow.OpGreaterThan:
			return ln > rn, nil
		case workflow.OpLessThan:
			return ln < rn, nil
		case workflow.OpGTE:
			return ln >= rn, nil
		default:
			return ln <= rn, nil
		}
	case workflow.OpContains, workflow.OpNotContains:
		ls, lok := asString(left)
		rs, rok := asString(right)
		if !lok || !rok {
			return false, fmt.Errorf("condition: operator %s requires string-coercible operands", cond.Operator)
		}
		contains := strings.Contains(ls, rs)
		if cond.Operator == workflow.OpNotContains {
			return !contains, nil
		}
		return contains, nil
	default:
		return false, fmt.Errorf("condition: unknown operator %q", cond.Operator)
	}
}

package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/resolution"
	"github.com/mlld-lang/mlld/internal/value"
)

func jsonCompact(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (ev *Evaluator) evalObjectLiteral(n *ast.ObjectLiteral, e *env.Environment, ctx Context) (interface{}, error) {
	out := make(map[string]interface{}, len(n.Order))
	for _, k := range n.Order {
		v, err := ev.Evaluate(n.Fields[k], e, Context{IsExpression: true})
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (ev *Evaluator) evalBinaryOp(n *ast.BinaryOp, e *env.Environment) (interface{}, error) {
	left, err := ev.Evaluate(n.Left, e, Context{IsExpression: true, Resolution: resolution.Equality})
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "&&":
		if !resolution.Truthy(left) {
			return left, nil
		}
		return ev.Evaluate(n.Right, e, Context{IsExpression: true})
	case "||":
		if resolution.Truthy(left) {
			return left, nil
		}
		return ev.Evaluate(n.Right, e, Context{IsExpression: true})
	}

	right, err := ev.Evaluate(n.Right, e, Context{IsExpression: true, Resolution: resolution.Equality})
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	default:
		return evalArith(n.Op, left, right)
	}
}

func (ev *Evaluator) evalUnaryOp(n *ast.UnaryOp, e *env.Environment) (interface{}, error) {
	operand, err := ev.Evaluate(n.Operand, e, Context{IsExpression: true, Resolution: resolution.Condition})
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "!":
		return !resolution.Truthy(operand), nil
	case "-":
		switch t := operand.(type) {
		case int:
			return -t, nil
		case float64:
			return -t, nil
		default:
			return nil, fmt.Errorf("type-mismatch: unary - on non-numeric value")
		}
	default:
		return nil, fmt.Errorf("type-mismatch: unknown unary operator %q", n.Op)
	}
}

// equalValues compares two resolved (non-auto-unwrapped) values per
// §4.1's Equality context: a *value.Structured compares by its canonical
// Text, scalars compare directly, collections compare by JSON form as a
// deep-equality fallback.
func equalValues(a, b interface{}) bool {
	as, aIsStruct := unwrapStructuredText(a)
	bs, bIsStruct := unwrapStructuredText(b)
	if aIsStruct || bIsStruct {
		return as == bs
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return jsonCompact(a) == jsonCompact(b)
	}
}

func unwrapStructuredText(v interface{}) (string, bool) {
	s, ok := v.(*value.Structured)
	if !ok || s == nil {
		return "", false
	}
	return s.Text, true
}

func evalArith(op string, left, right interface{}) (interface{}, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("type-mismatch: operator %q requires numeric operands", op)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	default:
		return nil, fmt.Errorf("type-mismatch: unknown binary operator %q", op)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

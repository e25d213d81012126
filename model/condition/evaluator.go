// Package condition evaluates checkpoint activation expressions against run
// variables. Expressions use Go syntax (parsed with go/parser) and support
// identifiers, literals, comparisons, boolean operators and basic arithmetic,
// e.g. `amount > 1000 && env == "prod"`.
package condition

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/viant/toolbox"
)

// Evaluator evaluates boolean condition expressions with variables.
type Evaluator struct{}

// New creates a new condition evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate parses and evaluates the supplied expression. An empty expression
// evaluates to true so that checkpoints without a condition are always active.
// The result of a non-boolean expression is coerced with toolbox.AsBoolean.
func (e *Evaluator) Evaluate(expr string, variables map[string]interface{}) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return false, fmt.Errorf("invalid condition %q: %w", expr, err)
	}
	value, err := eval(node, variables)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", expr, err)
	}
	return toolbox.AsBoolean(value), nil
}

func eval(node ast.Expr, variables map[string]interface{}) (interface{}, error) {
	switch actual := node.(type) {
	case *ast.ParenExpr:
		return eval(actual.X, variables)
	case *ast.Ident:
		switch actual.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		value, ok := variables[actual.Name]
		if !ok {
			return nil, nil
		}
		return value, nil
	case *ast.SelectorExpr:
		holder, err := eval(actual.X, variables)
		if err != nil {
			return nil, err
		}
		if aMap, ok := holder.(map[string]interface{}); ok {
			return aMap[actual.Sel.Name], nil
		}
		return nil, nil
	case *ast.BasicLit:
		switch actual.Kind {
		case token.INT:
			return strconv.Atoi(actual.Value)
		case token.FLOAT:
			return strconv.ParseFloat(actual.Value, 64)
		case token.STRING:
			return strconv.Unquote(actual.Value)
		}
		return nil, fmt.Errorf("unsupported literal %s", actual.Value)
	case *ast.UnaryExpr:
		value, err := eval(actual.X, variables)
		if err != nil {
			return nil, err
		}
		switch actual.Op {
		case token.NOT:
			return !toolbox.AsBoolean(value), nil
		case token.SUB:
			return -toolbox.AsFloat(value), nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", actual.Op)
	case *ast.BinaryExpr:
		return evalBinary(actual, variables)
	}
	return nil, fmt.Errorf("unsupported expression node %T", node)
}

func evalBinary(node *ast.BinaryExpr, variables map[string]interface{}) (interface{}, error) {
	// Short-circuit boolean operators before evaluating the right side.
	if node.Op == token.LAND || node.Op == token.LOR {
		left, err := eval(node.X, variables)
		if err != nil {
			return nil, err
		}
		if node.Op == token.LAND && !toolbox.AsBoolean(left) {
			return false, nil
		}
		if node.Op == token.LOR && toolbox.AsBoolean(left) {
			return true, nil
		}
		right, err := eval(node.Y, variables)
		if err != nil {
			return nil, err
		}
		return toolbox.AsBoolean(right), nil
	}

	left, err := eval(node.X, variables)
	if err != nil {
		return nil, err
	}
	right, err := eval(node.Y, variables)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case token.EQL:
		return compare(left, right) == 0, nil
	case token.NEQ:
		return compare(left, right) != 0, nil
	case token.GTR:
		return compare(left, right) > 0, nil
	case token.GEQ:
		return compare(left, right) >= 0, nil
	case token.LSS:
		return compare(left, right) < 0, nil
	case token.LEQ:
		return compare(left, right) <= 0, nil
	case token.ADD:
		if _, ok := left.(string); ok {
			return toolbox.AsString(left) + toolbox.AsString(right), nil
		}
		return toolbox.AsFloat(left) + toolbox.AsFloat(right), nil
	case token.SUB:
		return toolbox.AsFloat(left) - toolbox.AsFloat(right), nil
	case token.MUL:
		return toolbox.AsFloat(left) * toolbox.AsFloat(right), nil
	case token.QUO:
		divisor := toolbox.AsFloat(right)
		if divisor == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return toolbox.AsFloat(left) / divisor, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", node.Op)
}

// compare returns -1, 0 or 1; nil compares equal only to nil.
func compare(left, right interface{}) int {
	if left == nil || right == nil {
		if left == nil && right == nil {
			return 0
		}
		return 1
	}
	if _, ok := left.(string); ok {
		return strings.Compare(toolbox.AsString(left), toolbox.AsString(right))
	}
	if _, ok := right.(string); ok {
		return strings.Compare(toolbox.AsString(left), toolbox.AsString(right))
	}
	lf, rf := toolbox.AsFloat(left), toolbox.AsFloat(right)
	switch {
	case lf < rf:
		return -1
	case lf > rf:
		return 1
	}
	return 0
}

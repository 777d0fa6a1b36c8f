package metadata

import (
	"fmt"

	"github.com/gometr/gometr/internal/driver/ast"
)

// foldConstant evaluates a literal AST node without executing driver code.
// Supported shapes: constants, bare names (folded to their identifier
// string), lists of supported shapes, and unary +/- on numeric literals.
// Any other node is an error, which callers turn into a dropped property.
func foldConstant(e ast.Expr) (any, error) {
	switch v := e.(type) {
	case *ast.Constant:
		switch v.Kind {
		case ast.ConstString:
			return v.Str, nil
		case ast.ConstInt:
			return v.Int, nil
		case ast.ConstFloat:
			return v.Float, nil
		case ast.ConstBool:
			return v.Bool, nil
		case ast.ConstNone:
			return nil, nil
		}
		return nil, fmt.Errorf("unhandled constant kind %d", v.Kind)
	case *ast.Name:
		return v.ID, nil
	case *ast.List:
		out := make([]any, 0, len(v.Elts))
		for _, el := range v.Elts {
			folded, err := foldConstant(el)
			if err != nil {
				return nil, err
			}
			out = append(out, folded)
		}
		return out, nil
	case *ast.UnaryOp:
		operand, err := foldConstant(v.Operand)
		if err != nil {
			return nil, err
		}
		switch n := operand.(type) {
		case int64:
			if v.Op == '-' {
				return -n, nil
			}
			return n, nil
		case float64:
			if v.Op == '-' {
				return -n, nil
			}
			return n, nil
		}
		return nil, fmt.Errorf("unary %c on non-numeric operand", v.Op)
	case *ast.Opaque:
		return nil, fmt.Errorf("unsupported expression: %s", v.Text)
	}
	return nil, fmt.Errorf("unhandled node type %T", e)
}

// foldString folds e and requires a string result
func foldString(e ast.Expr) (string, error) {
	v, err := foldConstant(e)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// foldInt folds e and requires an integer result
func foldInt(e ast.Expr) (int, error) {
	v, err := foldConstant(e)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	return int(n), nil
}

// foldFloat folds e and requires a numeric result
func foldFloat(e ast.Expr) (float64, error) {
	v, err := foldConstant(e)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// foldStringList folds e and requires a list whose elements are all strings
func foldStringList(e ast.Expr) ([]string, error) {
	v, err := foldConstant(e)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string list element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

package expr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Expression is a compiled value expression. It is immutable and safe for
// concurrent use.
type Expression struct {
	src string

	// Exactly one of the following forms is set.
	literal *int64
	hcl     hclsyntax.Expression
	cond    *conditional
}

type conditional struct {
	then *Expression
	test hclsyntax.Expression
	els  *Expression
}

// Compile parses src into an Expression.
func Compile(src string) (*Expression, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, &SyntaxError{Expr: src, Message: "empty expression"}
	}

	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return &Expression{src: trimmed, literal: &n}, nil
	}

	if ifAt := findKeyword(trimmed, "if", 0); ifAt >= 0 {
		elseAt := findKeyword(trimmed, "else", ifAt+2)
		if elseAt < 0 {
			return nil, &SyntaxError{Expr: src, Message: `"if" without "else"`}
		}
		thenSrc := trimmed[:ifAt]
		testSrc := trimmed[ifAt+2 : elseAt]
		elseSrc := trimmed[elseAt+4:]

		then, err := Compile(thenSrc)
		if err != nil {
			return nil, err
		}
		test, err := parseHCL(testSrc, src)
		if err != nil {
			return nil, err
		}
		els, err := Compile(elseSrc)
		if err != nil {
			return nil, err
		}
		return &Expression{src: trimmed, cond: &conditional{then: then, test: test, els: els}}, nil
	}

	parsed, err := parseHCL(trimmed, src)
	if err != nil {
		return nil, err
	}
	return &Expression{src: trimmed, hcl: parsed}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func parseHCL(src, whole string) (hclsyntax.Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Expr: whole, Message: "missing operand"}
	}
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, &SyntaxError{Expr: whole, Message: diags.Error()}
	}
	return parsed, nil
}

// String returns the normalized source text.
func (e *Expression) String() string {
	return e.src
}

// References returns every context path the expression may read, as dotted
// strings, sorted and deduplicated.
func (e *Expression) References() []string {
	seen := map[string]bool{}
	e.collectReferences(seen)
	refs := make([]string, 0, len(seen))
	for r := range seen {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return refs
}

func (e *Expression) collectReferences(seen map[string]bool) {
	switch {
	case e.hcl != nil:
		addTraversals(e.hcl, seen)
	case e.cond != nil:
		e.cond.then.collectReferences(seen)
		addTraversals(e.cond.test, seen)
		e.cond.els.collectReferences(seen)
	}
}

func addTraversals(x hclsyntax.Expression, seen map[string]bool) {
	for _, t := range x.Variables() {
		path, err := traversalPath(t)
		if err != nil {
			continue
		}
		seen[strings.Join(path, ".")] = true
	}
}

// Eval resolves the expression against ctx and returns an integer.
func (e *Expression) Eval(ctx Context) (int64, error) {
	if ctx == nil {
		ctx = Empty
	}
	switch {
	case e.literal != nil:
		return *e.literal, nil
	case e.cond != nil:
		val, err := evalHCL(e.cond.test, e.src, ctx)
		if err != nil {
			return 0, err
		}
		if Truthy(val) {
			return e.cond.then.Eval(ctx)
		}
		return e.cond.els.Eval(ctx)
	default:
		val, err := evalHCL(e.hcl, e.src, ctx)
		if err != nil {
			return 0, err
		}
		return toInt(val, e.src)
	}
}

func evalHCL(x hclsyntax.Expression, src string, ctx Context) (cty.Value, error) {
	vars := map[string]cty.Value{}
	for _, t := range x.Variables() {
		path, err := traversalPath(t)
		if err != nil {
			return cty.NilVal, &EvalError{Expr: src, Message: err.Error()}
		}
		if _, ok := ctx.Lookup(path); !ok {
			return cty.NilVal, &UnresolvedReferenceError{Path: path, Expr: src}
		}
		root := path[0]
		if _, done := vars[root]; done {
			continue
		}
		raw, _ := ctx.Lookup(path[:1])
		val, err := ToCty(raw)
		if err != nil {
			return cty.NilVal, &EvalError{Expr: src, Message: fmt.Sprintf("context value %q: %v", root, err)}
		}
		vars[root] = val
	}

	val, diags := x.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		return cty.NilVal, &EvalError{Expr: src, Message: diags.Error()}
	}
	return val, nil
}

// traversalPath flattens an absolute traversal into context path keys.
// Numeric index steps become their decimal string.
func traversalPath(t hcl.Traversal) ([]string, error) {
	path := []string{t.RootName()}
	for _, step := range t[1:] {
		switch s := step.(type) {
		case hcl.TraverseAttr:
			path = append(path, s.Name)
		case hcl.TraverseIndex:
			switch {
			case s.Key.Type() == cty.String:
				path = append(path, s.Key.AsString())
			case s.Key.Type() == cty.Number:
				var idx int64
				if err := gocty.FromCtyValue(s.Key, &idx); err != nil {
					return nil, fmt.Errorf("index must be a whole number: %w", err)
				}
				path = append(path, strconv.FormatInt(idx, 10))
			default:
				return nil, fmt.Errorf("unsupported index type %s", s.Key.Type().FriendlyName())
			}
		default:
			return nil, fmt.Errorf("unsupported traversal step %T", step)
		}
	}
	return path, nil
}

func toInt(val cty.Value, src string) (int64, error) {
	if val.IsNull() {
		return 0, &EvalError{Expr: src, Message: "result is null"}
	}
	if !val.IsKnown() {
		return 0, &EvalError{Expr: src, Message: "result is unknown"}
	}
	num, err := convert.Convert(val, cty.Number)
	if err != nil {
		return 0, &EvalError{Expr: src, Message: fmt.Sprintf("result is not a number: %v", err)}
	}
	var n int64
	if err := gocty.FromCtyValue(num, &n); err != nil {
		return 0, &EvalError{Expr: src, Message: fmt.Sprintf("result is not an integer: %v", err)}
	}
	return n, nil
}

// Truthy reports the truthiness of a test value: bools as is, numbers when
// non-zero, strings when non-empty, null as false and anything else as true.
func Truthy(val cty.Value) bool {
	if val.IsNull() || !val.IsKnown() {
		return false
	}
	switch val.Type() {
	case cty.Bool:
		return val.True()
	case cty.Number:
		return val.AsBigFloat().Sign() != 0
	case cty.String:
		return val.AsString() != ""
	default:
		return true
	}
}

// findKeyword returns the byte offset of the first whole-word occurrence of
// kw at or after from, outside quoted strings and brackets. It returns -1
// when there is none.
func findKeyword(s, kw string, from int) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if i < from || depth != 0 || !strings.HasPrefix(s[i:], kw) {
			continue
		}
		if i > 0 && isIdentByte(s[i-1]) {
			continue
		}
		if end := i + len(kw); end < len(s) && isIdentByte(s[end]) {
			continue
		}
		return i
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a parsed routing predicate. Eval is total: it never panics
// and returns false for missing keys or values it cannot compare.
type Condition interface {
	Eval(ctx map[string]any) bool
	String() string
}

// Operator is a comparison operator.
type Operator string

const (
	OpLE Operator = "<="
	OpGE Operator = ">="
	OpEQ Operator = "=="
	OpGT Operator = ">"
	OpLT Operator = "<"
)

// operators in search order; two-character operators first so "<=" is not
// read as "<".
var operators = []Operator{OpLE, OpGE, OpEQ, OpGT, OpLT}

// Membership is `key in [a, b, ...]`.
type Membership struct {
	Key    string
	Values []string
}

func (m Membership) Eval(ctx map[string]any) bool {
	v, ok := ctx[m.Key]
	if !ok || v == nil {
		return false
	}
	s, ok := scalarString(v)
	if !ok {
		return false
	}
	for _, item := range m.Values {
		if item == s {
			return true
		}
	}
	return false
}

func (m Membership) String() string {
	quoted := make([]string, len(m.Values))
	for i, v := range m.Values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s in [%s]", m.Key, strings.Join(quoted, ", "))
}

// Comparison is `key OP literal`. Numeric comparison is tried first; when
// either side is not numeric only == falls back to string equality.
type Comparison struct {
	Key     string
	Op      Operator
	Literal string

	num   float64
	isNum bool
}

func (c Comparison) Eval(ctx map[string]any) bool {
	v, ok := ctx[c.Key]
	if !ok || v == nil {
		return false
	}
	if c.isNum {
		if lv, ok := toFloat(v); ok {
			switch c.Op {
			case OpLE:
				return lv <= c.num
			case OpGE:
				return lv >= c.num
			case OpEQ:
				return lv == c.num
			case OpGT:
				return lv > c.num
			case OpLT:
				return lv < c.num
			}
			return false
		}
	}
	if c.Op != OpEQ {
		return false
	}
	s, ok := scalarString(v)
	return ok && s == c.Literal
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Key, c.Op, c.Literal)
}

// Invalid stands in for an expression that could not be parsed. It always
// evaluates to false.
type Invalid struct {
	Expr   string
	Reason string
}

func (Invalid) Eval(map[string]any) bool { return false }

func (i Invalid) String() string { return i.Expr }

// ParseCondition parses one condition expression. Malformed input yields an
// Invalid node, never an error.
func ParseCondition(expr string) Condition {
	e := strings.TrimSpace(expr)
	if e == "" {
		return Invalid{Expr: expr, Reason: "empty expression"}
	}

	if key, list, ok := strings.Cut(e, " in "); ok {
		key = strings.TrimSpace(key)
		list = strings.TrimSpace(list)
		if key == "" {
			return Invalid{Expr: expr, Reason: "missing key before in"}
		}
		if !strings.HasPrefix(list, "[") || !strings.HasSuffix(list, "]") {
			return Invalid{Expr: expr, Reason: "membership list must be bracketed"}
		}
		var values []string
		for _, raw := range strings.Split(list[1:len(list)-1], ",") {
			item := strings.TrimSpace(raw)
			if item == "" {
				continue
			}
			values = append(values, unquote(item))
		}
		return Membership{Key: key, Values: values}
	}

	for _, op := range operators {
		key, lit, ok := strings.Cut(e, string(op))
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		lit = unquote(strings.TrimSpace(lit))
		if key == "" {
			return Invalid{Expr: expr, Reason: fmt.Sprintf("missing key before %s", op)}
		}
		if lit == "" {
			return Invalid{Expr: expr, Reason: fmt.Sprintf("missing literal after %s", op)}
		}
		c := Comparison{Key: key, Op: op, Literal: lit}
		if n, err := strconv.ParseFloat(lit, 64); err == nil {
			c.num, c.isNum = n, true
		}
		return c
	}

	return Invalid{Expr: expr, Reason: "no operator"}
}

func unquote(s string) string {
	return strings.Trim(s, `'"`)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(strings.TrimSpace(n.String()), 64)
		return f, err == nil
	}
	return 0, false
}

// scalarString renders v for string comparison. Lists and maps are not
// scalars and never compare equal to a literal.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []any, []string, map[string]any:
		return "", false
	}
	return fmt.Sprint(v), true
}

package store

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/types"
)

// FilterEvaluator matches documents against the subset of the MongoDB query
// language used by candidate filters: $or/$and/$nor, $exists, $type, $in,
// $nin, $eq, $ne, $gt/$gte/$lt/$lte, $regex with $options and $not.
// Dotted paths traverse arrays the way the server does.
type FilterEvaluator struct {
	filter bson.M
}

// NewFilterEvaluator creates an evaluator for filter. A nil filter matches everything.
func NewFilterEvaluator(filter bson.M) *FilterEvaluator {
	return &FilterEvaluator{filter: filter}
}

// EvaluateDocument checks if a document matches the filter
func (fe *FilterEvaluator) EvaluateDocument(doc types.Document) (bool, error) {
	if len(fe.filter) == 0 {
		return true, nil
	}
	return evaluateFilter(doc, fe.filter)
}

func evaluateFilter(doc types.Document, filter map[string]interface{}) (bool, error) {
	for key, cond := range filter {
		var ok bool
		var err error
		switch key {
		case "$or", "$and", "$nor":
			ok, err = evaluateLogical(doc, key, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %s", key)
			}
			ok, err = evaluateField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evaluateLogical(doc types.Document, op string, cond interface{}) (bool, error) {
	clauses, ok := types.AsArray(cond)
	if !ok || len(clauses) == 0 {
		return false, fmt.Errorf("%s needs a non-empty array", op)
	}

	for _, c := range clauses {
		sub, ok := types.AsMap(c)
		if !ok {
			return false, fmt.Errorf("%s clause must be a document", op)
		}
		match, err := evaluateFilter(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$or" && match:
			return true, nil
		case op == "$and" && !match:
			return false, nil
		case op == "$nor" && match:
			return false, nil
		}
	}
	return op != "$or", nil
}

func evaluateField(doc types.Document, path string, cond interface{}) (bool, error) {
	raw := lookupAll(doc, strings.Split(path, "."))

	ops, isOps := operatorDocument(cond)
	if !isOps {
		return equalsAny(raw, cond), nil
	}

	for op, arg := range ops {
		ok, err := evaluateOperator(raw, op, arg, ops)
		if err != nil {
			return false, fmt.Errorf("%s: %w", path, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// operatorDocument reports whether cond is {$op: ...} rather than a literal
func operatorDocument(cond interface{}) (map[string]interface{}, bool) {
	m, ok := types.AsMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func evaluateOperator(raw []interface{}, op string, arg interface{}, all map[string]interface{}) (bool, error) {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return (len(raw) > 0) == want, nil
	case "$eq":
		return equalsAny(raw, arg), nil
	case "$ne":
		return !equalsAny(raw, arg), nil
	case "$in", "$nin":
		list, ok := types.AsArray(arg)
		if !ok {
			return false, fmt.Errorf("%s needs an array", op)
		}
		found := false
		for _, want := range list {
			if equalsAny(raw, want) {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range candidates(raw) {
			if c, ok := compare(v, arg); ok && compareHolds(op, c) {
				return true, nil
			}
		}
		return false, nil
	case "$type":
		name, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("$type needs a type alias")
		}
		for _, v := range raw {
			if typeMatches(v, name) {
				return true, nil
			}
			if a, isArr := types.AsArray(v); isArr {
				for _, el := range a {
					if typeMatches(el, name) {
						return true, nil
					}
				}
			}
		}
		return false, nil
	case "$regex":
		options, _ := all["$options"].(string)
		re, err := compileRegex(arg, options)
		if err != nil {
			return false, err
		}
		return regexMatchesAny(raw, re), nil
	case "$options":
		return true, nil
	case "$not":
		if re, isRegex := arg.(primitive.Regex); isRegex {
			compiled, err := compileRegex(re, "")
			if err != nil {
				return false, err
			}
			return !regexMatchesAny(raw, compiled), nil
		}
		sub, ok := operatorDocument(arg)
		if !ok {
			return false, fmt.Errorf("$not needs an operator document")
		}
		for subOp, subArg := range sub {
			match, err := evaluateOperator(raw, subOp, subArg, sub)
			if err != nil {
				return false, err
			}
			if !match {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %s", op)
	}
}

// lookupAll returns every value reachable at path, descending into array
// elements when a segment is not an index
func lookupAll(cur interface{}, segs []string) []interface{} {
	if len(segs) == 0 {
		return []interface{}{cur}
	}

	if m, ok := types.AsMap(cur); ok {
		v, exists := m[segs[0]]
		if !exists {
			return nil
		}
		return lookupAll(v, segs[1:])
	}

	if a, ok := types.AsArray(cur); ok {
		var out []interface{}
		if idx, err := strconv.Atoi(segs[0]); err == nil {
			if idx >= 0 && idx < len(a) {
				out = append(out, lookupAll(a[idx], segs[1:])...)
			}
		}
		for _, el := range a {
			if _, isMap := types.AsMap(el); isMap {
				out = append(out, lookupAll(el, segs)...)
			}
		}
		return out
	}
	return nil
}

// candidates expands terminal arrays one level, as the server does for comparisons
func candidates(raw []interface{}) []interface{} {
	var out []interface{}
	for _, v := range raw {
		if a, ok := types.AsArray(v); ok {
			out = append(out, a...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func equalsAny(raw []interface{}, want interface{}) bool {
	if want == nil && len(raw) == 0 {
		return true
	}
	if re, ok := want.(primitive.Regex); ok {
		compiled, err := compileRegex(re, "")
		return err == nil && regexMatchesAny(raw, compiled)
	}
	for _, v := range raw {
		if valuesEqual(v, want) {
			return true
		}
	}
	for _, v := range candidates(raw) {
		if valuesEqual(v, want) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if ids.IsNumber(a) && ids.IsNumber(b) {
		c, _ := compare(a, b)
		return c == 0
	}
	if am, ok := types.AsMap(a); ok {
		bm, ok := types.AsMap(b)
		return ok && reflect.DeepEqual(types.CloneDocument(am), types.CloneDocument(bm))
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers or two strings; ok is false for other combinations
func compare(a, b interface{}) (int, bool) {
	if ids.IsNumber(a) && ids.IsNumber(b) {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func compareHolds(op string, c int) bool {
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

func typeMatches(v interface{}, alias string) bool {
	switch alias {
	case "number":
		return ids.IsNumber(v)
	case "int":
		_, ok := v.(int32)
		return ok
	case "long":
		_, ok := v.(int64)
		return ok
	case "double":
		_, ok := v.(float64)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "object":
		_, ok := types.AsMap(v)
		return ok
	case "array":
		_, ok := types.AsArray(v)
		return ok
	case "null":
		return v == nil
	case "bool":
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

func compileRegex(arg interface{}, options string) (*regexp.Regexp, error) {
	var pattern string
	switch r := arg.(type) {
	case string:
		pattern = r
	case primitive.Regex:
		pattern = r.Pattern
		if options == "" {
			options = r.Options
		}
	default:
		return nil, fmt.Errorf("$regex needs a string pattern")
	}

	var flags string
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid $regex %q: %w", pattern, err)
	}
	return re, nil
}

func regexMatchesAny(raw []interface{}, re *regexp.Regexp) bool {
	for _, v := range candidates(raw) {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

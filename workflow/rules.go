package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// EvaluateRules checks field-presence constraints against a data map
// and returns one message per violated rule. Fields are dotted paths
// resolved through nested maps.
func EvaluateRules(rules []ValidationRule, data map[string]any) []string {
	var violations []string
	for _, rule := range rules {
		if msg, ok := evaluateRule(rule, data); !ok {
			violations = append(violations, msg)
		}
	}
	return violations
}

// CheckRules is EvaluateRules folded into a single error, nil when all
// rules hold.
func CheckRules(rules []ValidationRule, data map[string]any) error {
	violations := EvaluateRules(rules, data)
	if len(violations) == 0 {
		return nil
	}
	errs := make([]error, 0, len(violations))
	for _, v := range violations {
		errs = append(errs, errors.New(v))
	}
	return errors.Join(errs...)
}

func evaluateRule(rule ValidationRule, data map[string]any) (string, bool) {
	value, present := LookupPath(data, rule.Field)

	ok := false
	switch rule.Type {
	case RuleRequired:
		ok = present
	case RuleNonEmpty:
		ok = present && !isEmpty(value)
	case RuleEquals:
		ok = present && looseEqual(value, rule.Value)
	case RuleMinCount:
		min, isNum := toInt(rule.Value)
		ok = present && isNum && countOf(value) >= min
	}
	if ok {
		return "", true
	}
	if rule.Message != "" {
		return rule.Message, false
	}
	return defaultRuleMessage(rule), false
}

func defaultRuleMessage(rule ValidationRule) string {
	switch rule.Type {
	case RuleRequired:
		return fmt.Sprintf("field %q is required", rule.Field)
	case RuleNonEmpty:
		return fmt.Sprintf("field %q must not be empty", rule.Field)
	case RuleEquals:
		return fmt.Sprintf("field %q must equal %v", rule.Field, rule.Value)
	case RuleMinCount:
		return fmt.Sprintf("field %q must contain at least %v items", rule.Field, rule.Value)
	default:
		return fmt.Sprintf("field %q violates rule %q", rule.Field, rule.Type)
	}
}

// LookupPath resolves a dotted path through nested map[string]any
// values. The second return reports whether the full path existed.
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func countOf(value any) int {
	if value == nil {
		return 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len()
	}
	return 0
}

// looseEqual compares numerics by value and everything else by printed
// form, so JSON-decoded float64 values match config-literal ints.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func toInt(value any) (int, bool) {
	f, ok := toFloat(value)
	if !ok {
		return 0, false
	}
	return int(f), true
}

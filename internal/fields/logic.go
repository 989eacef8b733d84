package fields

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/helixmapr/helixmapr/internal/model"
)

// Condition operators understood by Evaluate.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpContains  = "contains"
	OpGt        = "gt"
	OpLt        = "lt"
)

var conditionOperators = map[string]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpGt: true, OpLt: true,
}

// ValidateLogic checks a conditional-logic tree at definition-save time so a
// malformed tree is rejected when written rather than silently ignored later.
// A nil or empty tree is valid (the field is unconditional).
func ValidateLogic(logic *model.Logic) error {
	if logic.Empty() {
		return nil
	}
	op := strings.ToUpper(strings.TrimSpace(logic.Operator))
	if op != "" && op != "AND" && op != "OR" {
		return fmt.Errorf("unknown logic operator %q", logic.Operator)
	}
	for i, cond := range logic.Conditions {
		if strings.TrimSpace(cond.Field) == "" {
			return fmt.Errorf("condition %d has no field", i)
		}
		if !conditionOperators[strings.ToLower(strings.TrimSpace(cond.Operator))] {
			return fmt.Errorf("condition %d has unknown operator %q", i, cond.Operator)
		}
	}
	return nil
}

// Evaluate decides field applicability from the submitted value set.
// A nil or malformed tree evaluates true: a field with broken logic is always
// shown and saved so data is never dropped on a config bug. Values are looked
// up under both the bare field key and a "custom_<key>" prefix; entity
// references compare by their id.
func Evaluate(logic *model.Logic, values map[string]interface{}) bool {
	if logic.Empty() {
		return true
	}
	operator := strings.ToUpper(strings.TrimSpace(logic.Operator))
	if operator != "OR" {
		operator = "AND"
	}

	results := make([]bool, 0, len(logic.Conditions))
	for _, cond := range logic.Conditions {
		actual, ok := values[cond.Field]
		if !ok {
			actual = values["custom_"+cond.Field]
		}
		actual = dereference(actual)
		results = append(results, evaluateCondition(cond, actual))
	}

	if operator == "OR" {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func evaluateCondition(cond model.LogicCondition, actual interface{}) bool {
	switch strings.ToLower(strings.TrimSpace(cond.Operator)) {
	case OpEquals:
		return looseEqual(actual, cond.Value)
	case OpNotEquals:
		return !looseEqual(actual, cond.Value)
	case OpContains:
		switch list := actual.(type) {
		case []interface{}:
			for _, item := range list {
				if looseEqual(item, cond.Value) {
					return true
				}
			}
			return false
		case []string:
			for _, item := range list {
				if looseEqual(item, cond.Value) {
					return true
				}
			}
			return false
		}
		return strings.Contains(stringForm(actual), stringForm(cond.Value))
	case OpGt:
		return orderedCompare(actual, cond.Value) > 0
	case OpLt:
		return orderedCompare(actual, cond.Value) < 0
	}
	// Unknown operator: the condition is false, never an error.
	return false
}

// dereference substitutes an entity reference's id for comparison.
func dereference(actual interface{}) interface{} {
	if ref, ok := actual.(EntityRef); ok {
		return ref.ID
	}
	if v, ok := actual.(Value); ok {
		return v.Compare()
	}
	return actual
}

// looseEqual compares across the numeric types JSON decoding produces.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	if aNum != bNum {
		return false
	}
	return stringForm(a) == stringForm(b)
}

// orderedCompare returns -1/0/1, or 0 when the operands are incomparable.
// A nil actual never satisfies gt/lt.
func orderedCompare(actual, expected interface{}) int {
	if actual == nil {
		return 0
	}
	af, aNum := toFloat(actual)
	bf, bNum := toFloat(expected)
	if aNum && bNum {
		switch {
		case af > bf:
			return 1
		case af < bf:
			return -1
		}
		return 0
	}
	return strings.Compare(stringForm(actual), stringForm(expected))
}

func toFloat(v interface{}) (float64, bool) {
	switch actual := v.(type) {
	case float64:
		return actual, true
	case float32:
		return float64(actual), true
	case int:
		return float64(actual), true
	case int64:
		return float64(actual), true
	case uint:
		return float64(actual), true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		return f, err == nil
	}
	return 0, false
}

func stringForm(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

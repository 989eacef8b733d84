package fields_test

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cond(field, op string, value interface{}) model.LogicCondition {
	return model.LogicCondition{Field: field, Operator: op, Value: value}
}

func TestValidateLogic(t *testing.T) {
	assert.NoError(t, fields.ValidateLogic(nil))
	assert.NoError(t, fields.ValidateLogic(&model.Logic{}))
	assert.NoError(t, fields.ValidateLogic(&model.Logic{
		Operator:   "or",
		Conditions: []model.LogicCondition{cond("a", "equals", 1), cond("b", "gt", 2)},
	}))

	err := fields.ValidateLogic(&model.Logic{
		Operator:   "xor",
		Conditions: []model.LogicCondition{cond("a", "equals", 1)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xor")

	err = fields.ValidateLogic(&model.Logic{
		Conditions: []model.LogicCondition{cond("", "equals", 1)},
	})
	require.Error(t, err)

	err = fields.ValidateLogic(&model.Logic{
		Conditions: []model.LogicCondition{cond("a", "matches", 1)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches")
}

func TestEvaluateEmptyTreeIsTrue(t *testing.T) {
	assert.True(t, fields.Evaluate(nil, nil))
	assert.True(t, fields.Evaluate(&model.Logic{}, map[string]interface{}{}))
}

func TestEvaluateAndOr(t *testing.T) {
	values := map[string]interface{}{"status": "active", "copies": 5}

	and := &model.Logic{Operator: "and", Conditions: []model.LogicCondition{
		cond("status", "equals", "active"),
		cond("copies", "gt", 3),
	}}
	assert.True(t, fields.Evaluate(and, values))

	and.Conditions[1] = cond("copies", "gt", 10)
	assert.False(t, fields.Evaluate(and, values))

	or := &model.Logic{Operator: "or", Conditions: []model.LogicCondition{
		cond("status", "equals", "retired"),
		cond("copies", "lt", 10),
	}}
	assert.True(t, fields.Evaluate(or, values))

	or.Conditions[1] = cond("copies", "lt", 2)
	assert.False(t, fields.Evaluate(or, values))

	// A missing operator means AND.
	bare := &model.Logic{Conditions: []model.LogicCondition{
		cond("status", "equals", "active"),
		cond("copies", "equals", 5),
	}}
	assert.True(t, fields.Evaluate(bare, values))
}

func TestEvaluateNumericCoercion(t *testing.T) {
	// JSON decoding hands numbers over as float64; stored values are int64.
	values := map[string]interface{}{"copies": int64(5)}
	assert.True(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("copies", "equals", float64(5))},
	}, values))
	assert.True(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("copies", "equals", "5")},
	}, values))
}

func TestEvaluateContains(t *testing.T) {
	values := map[string]interface{}{
		"tags":  []string{"amp", "kan"},
		"notes": "contains GFP insert",
	}
	assert.True(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("tags", "contains", "amp")},
	}, values))
	assert.False(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("tags", "contains", "tet")},
	}, values))
	assert.True(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("notes", "contains", "GFP")},
	}, values))
}

func TestEvaluatePrefixedLookupAndRefs(t *testing.T) {
	// Values may arrive keyed with a custom_ prefix; entity references
	// compare by id.
	values := map[string]interface{}{
		"custom_parent": fields.EntityRef{Kind: model.RelatedOrganism, ID: 12},
	}
	assert.True(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("parent", "equals", 12)},
	}, values))
}

func TestEvaluateMissingValueNeverSatisfiesOrdering(t *testing.T) {
	assert.False(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("absent", "gt", 1)},
	}, map[string]interface{}{}))
	assert.False(t, fields.Evaluate(&model.Logic{
		Conditions: []model.LogicCondition{cond("absent", "equals", "x")},
	}, map[string]interface{}{}))
}

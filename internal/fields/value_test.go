package fields_test

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(ft model.FieldType) model.FieldDefinition {
	return model.FieldDefinition{Name: "f", Key: "f", FieldType: ft}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, fields.IsEmpty(def(model.FieldText), nil))
	assert.True(t, fields.IsEmpty(def(model.FieldText), "   "))
	assert.True(t, fields.IsEmpty(def(model.FieldMultiSelect), []string{}))
	assert.True(t, fields.IsEmpty(def(model.FieldMultiSelect), []interface{}{}))

	assert.False(t, fields.IsEmpty(def(model.FieldText), "x"))
	assert.False(t, fields.IsEmpty(def(model.FieldBoolean), false))
	assert.False(t, fields.IsEmpty(def(model.FieldInteger), 0))
}

func TestCoerceScalars(t *testing.T) {
	v, err := fields.Coerce(def(model.FieldText), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", v.Text)

	v, err = fields.Coerce(def(model.FieldInteger), float64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Integer)
	_, err = fields.Coerce(def(model.FieldInteger), "not a number")
	assert.Error(t, err)
	_, err = fields.Coerce(def(model.FieldInteger), 1.5)
	assert.Error(t, err)

	v, err = fields.Coerce(def(model.FieldDate), "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-31", v.Date)
	_, err = fields.Coerce(def(model.FieldDate), "31/08/2026")
	assert.Error(t, err)

	v, err = fields.Coerce(def(model.FieldBoolean), "true")
	require.NoError(t, err)
	assert.True(t, v.Bool)

	_, err = fields.Coerce(def(model.FieldURL), "not a url")
	assert.Error(t, err)
	_, err = fields.Coerce(def(model.FieldEmail), "not an email")
	assert.Error(t, err)
	v, err = fields.Coerce(def(model.FieldEmail), "lab@example.com")
	require.NoError(t, err)
	assert.Equal(t, "lab@example.com", v.Email)
}

func TestCoerceSelects(t *testing.T) {
	single := def(model.FieldSingleSelect)
	single.Choices = "amp, kan"

	v, err := fields.Coerce(single, "kan")
	require.NoError(t, err)
	assert.Equal(t, "kan", v.Select)
	_, err = fields.Coerce(single, "tet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choices")

	multi := def(model.FieldMultiSelect)
	multi.Choices = "a, b, c"
	v, err = fields.Coerce(multi, []interface{}{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, v.MultiSelect)
	_, err = fields.Coerce(multi, []interface{}{"a", "z"})
	assert.Error(t, err)
}

func TestCoerceForeignKey(t *testing.T) {
	fk := def(model.FieldForeignKey)
	_, err := fields.Coerce(fk, 12)
	require.Error(t, err) // no related kind configured

	fk.RelatedKind = model.RelatedPlasmid
	v, err := fields.Coerce(fk, float64(12))
	require.NoError(t, err)
	assert.Equal(t, fields.EntityRef{Kind: model.RelatedPlasmid, ID: 12}, v.Ref)
}

func TestApplyFromRowRoundTrip(t *testing.T) {
	d := def(model.FieldDecimal)
	v, err := fields.Coerce(d, "3.14")
	require.NoError(t, err)

	var row model.FieldValue
	v.Apply(&row)
	require.NotNil(t, row.ValueDecimal)
	assert.Equal(t, "3.14", *row.ValueDecimal)
	assert.Nil(t, row.ValueText)

	got, ok := fields.FromRow(d, row)
	require.True(t, ok)
	assert.Equal(t, "3.14", got.Display())

	// Applying a new kind clears the previously populated column.
	b, err := fields.Coerce(def(model.FieldBoolean), false)
	require.NoError(t, err)
	b.Apply(&row)
	assert.Nil(t, row.ValueDecimal)
	require.NotNil(t, row.ValueBoolean)
	assert.False(t, *row.ValueBoolean)
}

func TestFromRowStaleColumnReadsAsAbsent(t *testing.T) {
	text := "orphan"
	row := model.FieldValue{ValueText: &text}

	// The definition changed kinds; the old text column no longer counts.
	_, ok := fields.FromRow(def(model.FieldInteger), row)
	assert.False(t, ok)
}

func TestCompareCollapsesRefs(t *testing.T) {
	v := fields.Value{Kind: model.FieldForeignKey, Ref: fields.EntityRef{Kind: model.RelatedOrganism, ID: 7}}
	assert.Equal(t, uint(7), v.Compare())
}

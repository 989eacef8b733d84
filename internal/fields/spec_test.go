package fields_test

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "strain-color", fields.Slugify("Strain Color"))
	assert.Equal(t, "selection-marker-2nd", fields.Slugify("  Selection Marker (2nd)!  "))
	assert.Equal(t, "", fields.Slugify("!!!"))
}

func TestBuildSpecsRoleFiltering(t *testing.T) {
	definitions := []model.FieldDefinition{
		{ID: 1, Name: "Public Note", Key: "public_note", FieldType: model.FieldText},
		{
			ID: 2, Name: "Vendor Price", Key: "vendor_price", FieldType: model.FieldText,
			VisibleToRoles: model.RoleList{model.RoleAdmin, model.RoleOwner},
		},
		{
			ID: 3, Name: "Batch Code", Key: "batch_code", FieldType: model.FieldText,
			EditableToRoles: model.RoleList{model.RoleEditor, model.RoleAdmin, model.RoleOwner},
		},
	}

	asOwner := fields.BuildSpecs(definitions, nil, model.RoleOwner, nil, nil, true)
	require.Len(t, asOwner, 3)

	asViewer := fields.BuildSpecs(definitions, nil, model.RoleViewer, nil, nil, true)
	require.Len(t, asViewer, 2)
	assert.Equal(t, "public_note", asViewer[0].Key)
	assert.False(t, asViewer[0].ReadOnly)
	// Visible but not editable comes back read-only, not hidden.
	assert.Equal(t, "batch_code", asViewer[1].Key)
	assert.True(t, asViewer[1].ReadOnly)
}

func TestBuildSpecsInitialValues(t *testing.T) {
	fallback := "amp"
	definitions := []model.FieldDefinition{{
		ID: 1, Name: "Antibiotic", Key: "antibiotic", FieldType: model.FieldText,
		DefaultValue: &fallback,
	}}

	// New record: the default applies.
	specs := fields.BuildSpecs(definitions, nil, model.RoleEditor, nil, nil, true)
	require.Len(t, specs, 1)
	assert.Equal(t, "amp", specs[0].Initial)

	// Existing record without a stored value: no default injection.
	specs = fields.BuildSpecs(definitions, nil, model.RoleEditor, map[uint]model.FieldValue{}, nil, false)
	assert.Nil(t, specs[0].Initial)

	// Stored value wins over the default.
	stored := "kan"
	existing := map[uint]model.FieldValue{1: {DefinitionID: 1, ValueText: &stored}}
	specs = fields.BuildSpecs(definitions, nil, model.RoleEditor, existing, nil, true)
	assert.Equal(t, "kan", specs[0].Initial)
}

func TestBuildSpecsGroupsAndOptions(t *testing.T) {
	groupID := uint(9)
	definitions := []model.FieldDefinition{
		{
			ID: 1, Name: "Parent Organism", Key: "parent_organism",
			FieldType: model.FieldForeignKey, RelatedKind: model.RelatedOrganism,
			GroupID: &groupID,
		},
	}
	groups := map[uint]model.FieldGroup{groupID: {ID: groupID, Name: "Lineage"}}
	source := func(kind model.RelatedKind) []fields.Option {
		require.Equal(t, model.RelatedOrganism, kind)
		return []fields.Option{{ID: 4, Label: "E. coli"}}
	}

	specs := fields.BuildSpecs(definitions, groups, model.RoleEditor, nil, source, true)
	require.Len(t, specs, 1)
	assert.Equal(t, "Lineage", specs[0].Group)
	assert.Equal(t, "Parent Organism", specs[0].Label)
	require.Len(t, specs[0].Options, 1)
	assert.Equal(t, "E. coli", specs[0].Options[0].Label)
}

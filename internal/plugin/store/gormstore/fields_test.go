package gormstore

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFieldDefinitionDerivesKey(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	def := createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Selection Marker (2nd)", FieldType: model.FieldText,
	})
	assert.Equal(t, "selection_marker_2nd", def.Key)
	assert.Equal(t, db.ID, def.DatabaseID)

	// A supplied key is kept as-is.
	explicit := createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Something Else", Key: "custom_key", FieldType: model.FieldText,
	})
	assert.Equal(t, "custom_key", explicit.Key)
}

func TestCreateFieldDefinitionValidation(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	var validation *ValidationError

	_, err := s.CreateFieldDefinition(ctx, "alice", db.ID, model.FieldDefinition{
		Name: "Pick One", FieldType: model.FieldSingleSelect,
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "choices", validation.Field)

	_, err = s.CreateFieldDefinition(ctx, "alice", db.ID, model.FieldDefinition{
		Name: "Linked", FieldType: model.FieldForeignKey, RelatedKind: "freezer",
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "relatedKind", validation.Field)

	_, err = s.CreateFieldDefinition(ctx, "alice", db.ID, model.FieldDefinition{
		Name: "Odd", FieldType: "hologram",
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "fieldType", validation.Field)

	_, err = s.CreateFieldDefinition(ctx, "alice", db.ID, model.FieldDefinition{
		Name: "Broken Logic", FieldType: model.FieldText,
		ConditionalLogic: &model.Logic{Conditions: []model.LogicCondition{{Field: "x", Operator: "matches"}}},
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "conditionalLogic", validation.Field)
}

func TestCreateFieldDefinitionRequiresAdmin(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleEditor)

	_, err := s.CreateFieldDefinition(ctx, "bob", db.ID, model.FieldDefinition{
		Name: "Batch", FieldType: model.FieldText,
	})
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestDuplicateFieldNameConflicts(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Batch", FieldType: model.FieldText})

	_, err := s.CreateFieldDefinition(ctx, "alice", db.ID, model.FieldDefinition{
		Name: "Batch", FieldType: model.FieldText,
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestUpdateFieldDefinitionTypeChange(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	def := createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Batch", FieldType: model.FieldText})

	// No values yet: the type may change.
	newType := model.FieldInteger
	updated, err := s.UpdateFieldDefinition(ctx, "alice", def.ID, registrystore.FieldDefinitionUpdate{FieldType: &newType})
	require.NoError(t, err)
	assert.Equal(t, model.FieldInteger, updated.FieldType)
	assert.Equal(t, "batch", updated.Key)

	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")
	_, err = s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"batch": 7},
	})
	require.NoError(t, err)

	backType := model.FieldText
	_, err = s.UpdateFieldDefinition(ctx, "alice", def.ID, registrystore.FieldDefinitionUpdate{FieldType: &backType})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "fieldType", validation.Field)
	assert.Equal(t, "cannot change the type of a field that already has values", validation.Message)
}

func TestUpdateFieldDefinitionKeyIsStable(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	def := createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Old Name", FieldType: model.FieldText})
	require.Equal(t, "old_name", def.Key)

	name := "Completely New Name"
	updated, err := s.UpdateFieldDefinition(ctx, "alice", def.ID, registrystore.FieldDefinitionUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Completely New Name", updated.Name)
	assert.Equal(t, "old_name", updated.Key)
}

func TestDeleteFieldDefinitionRemovesValues(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	def := createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Batch", FieldType: model.FieldText})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"batch": "B-1"},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteFieldDefinition(ctx, "alice", def.ID))

	got, err := s.GetStrain(ctx, "alice", strain.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.CustomValues, "batch")

	var count int64
	require.NoError(t, s.db.Model(&model.FieldValue{}).Where("definition_id = ?", def.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFieldGroupLifecycle(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	group, err := s.CreateFieldGroup(ctx, "alice", db.ID, "Storage", 1)
	require.NoError(t, err)

	_, err = s.CreateFieldGroup(ctx, "alice", db.ID, "Storage", 2)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	name := "Storage Details"
	order := 5
	updated, err := s.UpdateFieldGroup(ctx, "alice", group.ID, &name, &order)
	require.NoError(t, err)
	assert.Equal(t, "Storage Details", updated.Name)
	assert.Equal(t, 5, updated.Order)

	def := createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Shelf", FieldType: model.FieldText, GroupID: &group.ID,
	})

	require.NoError(t, s.DeleteFieldGroup(ctx, "alice", group.ID))

	// The definition survives the group deletion, ungrouped.
	defs, err := s.ListFieldDefinitions(ctx, "alice", db.ID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, def.ID, defs[0].ID)
	assert.Nil(t, defs[0].GroupID)
}

func TestSchemaOrderFollowsGroupOrder(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	late, err := s.CreateFieldGroup(ctx, "alice", db.ID, "Late", 2)
	require.NoError(t, err)
	early, err := s.CreateFieldGroup(ctx, "alice", db.ID, "Early", 1)
	require.NoError(t, err)

	// "In Late" has the lower field order but sits in the later group, so
	// group order must win.
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "In Late", FieldType: model.FieldText, GroupID: &late.ID, Order: 1,
	})
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "In Early", FieldType: model.FieldText, GroupID: &early.ID, Order: 2,
	})

	defs, err := s.ListFieldDefinitions(ctx, "alice", db.ID)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "in_early", defs[0].Key)
	assert.Equal(t, "in_late", defs[1].Key)
}

func TestBuildStrainFormHidesInvisibleFields(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Public Note", FieldType: model.FieldText})
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Vendor Price", FieldType: model.FieldText,
		VisibleToRoles: model.RoleList{model.RoleAdmin, model.RoleOwner},
	})

	ownerForm, err := s.BuildStrainForm(ctx, "alice", db.ID, nil)
	require.NoError(t, err)
	assert.Len(t, ownerForm, 2)

	viewerForm, err := s.BuildStrainForm(ctx, "bob", db.ID, nil)
	require.NoError(t, err)
	require.Len(t, viewerForm, 1)
	assert.Equal(t, "public_note", viewerForm[0].Key)
}

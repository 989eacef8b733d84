package gormstore

import (
	"context"
	"testing"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStrain(t *testing.T, ctx context.Context, s *GormStore, databaseID uint, strainID string) *registrystore.StrainDetail {
	t.Helper()

	organism, err := s.CreateOrganism(ctx, "alice", databaseID, "Organism "+strainID)
	require.NoError(t, err)
	detail, err := s.CreateStrain(ctx, "alice", databaseID, registrystore.CreateStrainRequest{
		StrainID:   strainID,
		Name:       strainID,
		OrganismID: organism.ID,
		Genotype:   "wild type",
	})
	require.NoError(t, err)
	return detail
}

func createDef(t *testing.T, ctx context.Context, s *GormStore, databaseID uint, def model.FieldDefinition) *model.FieldDefinition {
	t.Helper()

	created, err := s.CreateFieldDefinition(ctx, "alice", databaseID, def)
	require.NoError(t, err)
	return created
}

func TestCreateStrainRequiresEditor(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)
	organism, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)

	_, err = s.CreateStrain(ctx, "bob", db.ID, registrystore.CreateStrainRequest{
		StrainID: "YCG-001", Name: "YCG-001", OrganismID: organism.ID,
	})
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	// An editor can.
	addMember(t, ctx, s, org, db, "carol", model.RoleEditor)
	detail, err := s.CreateStrain(ctx, "carol", db.ID, registrystore.CreateStrainRequest{
		StrainID: "YCG-001", Name: "YCG-001", OrganismID: organism.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StrainActive, detail.Status)
}

func TestCreateStrainValidatesReferences(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	_, err := s.CreateStrain(ctx, "alice", db.ID, registrystore.CreateStrainRequest{
		StrainID: "YCG-001", Name: "YCG-001", OrganismID: 9999,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "organismId", validation.Field)
}

func TestCreateStrainDuplicateIDConflicts(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	first := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.CreateStrain(ctx, "alice", db.ID, registrystore.CreateStrainRequest{
		StrainID: "YCG-001", Name: "again", OrganismID: first.OrganismID,
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCreateStrainReturnsLookupNames(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	organism, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)
	location, err := s.CreateLocation(ctx, "alice", db.ID, model.Location{Box: "1", Position: "A1"})
	require.NoError(t, err)
	plasmid, err := s.CreatePlasmid(ctx, "alice", db.ID, model.Plasmid{Name: "pUC19"})
	require.NoError(t, err)

	// The returned detail is assembled inside the write transaction, on the
	// single pooled sqlite connection.
	detail, err := s.CreateStrain(ctx, "alice", db.ID, registrystore.CreateStrainRequest{
		StrainID:   "YCG-001",
		Name:       "YCG-001",
		OrganismID: organism.ID,
		LocationID: &location.ID,
		PlasmidIDs: []uint{plasmid.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "E. coli", detail.OrganismName)
	assert.Equal(t, location.Label(), detail.LocationLabel)
	assert.Equal(t, []uint{plasmid.ID}, detail.PlasmidIDs)
}

func TestStrainCustomValuesRoundTrip(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Antibiotic", FieldType: model.FieldSingleSelect, Choices: "amp, kan",
	})
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Copy Number", FieldType: model.FieldInteger,
	})
	organism, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)

	detail, err := s.CreateStrain(ctx, "alice", db.ID, registrystore.CreateStrainRequest{
		StrainID:   "YCG-001",
		Name:       "YCG-001",
		OrganismID: organism.ID,
		CustomValues: map[string]interface{}{
			"antibiotic":  "amp",
			"copy_number": 5,
			"unknown_key": "ignored",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "amp", detail.CustomValues["antibiotic"])
	assert.EqualValues(t, 5, detail.CustomValues["copy_number"])
	assert.NotContains(t, detail.CustomValues, "unknown_key")

	got, err := s.GetStrain(ctx, "alice", detail.ID)
	require.NoError(t, err)
	assert.Equal(t, "amp", got.CustomValues["antibiotic"])
}

func TestStrainCustomValueCoercionFails(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Antibiotic", FieldType: model.FieldSingleSelect, Choices: "amp, kan",
	})
	organism, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)

	_, err = s.CreateStrain(ctx, "alice", db.ID, registrystore.CreateStrainRequest{
		StrainID: "YCG-001", Name: "YCG-001", OrganismID: organism.ID,
		CustomValues: map[string]interface{}{"antibiotic": "tet"},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "antibiotic", validation.Field)
}

func TestClearingCustomValueDeletesRow(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Notes Field", FieldType: model.FieldText})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	updated, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"notes_field": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.CustomValues["notes_field"])

	updated, err = s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"notes_field": ""},
	})
	require.NoError(t, err)
	assert.NotContains(t, updated.CustomValues, "notes_field")
}

func TestOmittedCustomValueIsCleared(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Notes Field", FieldType: model.FieldText})
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Shelf", FieldType: model.FieldText})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"notes_field": "hello", "shelf": "A3"},
	})
	require.NoError(t, err)

	// A submitted map is a full reconcile: keys left out clear their rows,
	// same as submitting an empty value.
	updated, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"shelf": "A4"},
	})
	require.NoError(t, err)
	assert.NotContains(t, updated.CustomValues, "notes_field")
	assert.Equal(t, "A4", updated.CustomValues["shelf"])

	// A nil map leaves stored values alone.
	updated, err = s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, "A4", updated.CustomValues["shelf"])
}

func TestBooleanFalseIsKept(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Verified", FieldType: model.FieldBoolean})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	updated, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"verified": false},
	})
	require.NoError(t, err)
	require.Contains(t, updated.CustomValues, "verified")
	assert.Equal(t, false, updated.CustomValues["verified"])
}

func TestRequiredCustomValueCannotBeCleared(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Batch Code", FieldType: model.FieldText, Required: true,
	})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"batch_code": ""},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "batch_code", validation.Field)
}

func TestUniqueCustomValueRejectsDuplicate(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Barcode", FieldType: model.FieldText, IsUnique: true,
	})
	first := seedStrain(t, ctx, s, db.ID, "YCG-001")
	second := seedStrain(t, ctx, s, db.ID, "YCG-002")

	_, err := s.UpdateStrain(ctx, "alice", first.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"barcode": "BC-1"},
	})
	require.NoError(t, err)

	_, err = s.UpdateStrain(ctx, "alice", second.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"barcode": "BC-1"},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "barcode", validation.Field)

	// Re-saving the same value on the owning strain is not a conflict.
	_, err = s.UpdateStrain(ctx, "alice", first.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"barcode": "BC-1"},
	})
	require.NoError(t, err)
}

func TestRoleVisibilityFiltersCustomValues(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Vendor Price", FieldType: model.FieldText,
		VisibleToRoles: model.RoleList{model.RoleAdmin, model.RoleOwner},
	})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"vendor_price": "42 USD"},
	})
	require.NoError(t, err)

	asOwner, err := s.GetStrain(ctx, "alice", strain.ID)
	require.NoError(t, err)
	assert.Equal(t, "42 USD", asOwner.CustomValues["vendor_price"])

	asViewer, err := s.GetStrain(ctx, "bob", strain.ID)
	require.NoError(t, err)
	assert.NotContains(t, asViewer.CustomValues, "vendor_price")
}

func TestHiddenByLogicRetainsStoredValue(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Contains Insert", FieldType: model.FieldSingleSelect, Choices: "yes, no",
	})
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Insert Name", FieldType: model.FieldText,
		ConditionalLogic: &model.Logic{
			Operator:   "and",
			Conditions: []model.LogicCondition{{Field: "contains_insert", Operator: "equals", Value: "yes"}},
		},
	})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	updated, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"contains_insert": "yes", "insert_name": "GFP"},
	})
	require.NoError(t, err)
	assert.Equal(t, "GFP", updated.CustomValues["insert_name"])

	// Flipping the trigger hides insert_name; the submitted overwrite is
	// ignored and the stored value survives.
	updated, err = s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"contains_insert": "no", "insert_name": "RFP"},
	})
	require.NoError(t, err)
	assert.Equal(t, "no", updated.CustomValues["contains_insert"])
	assert.Equal(t, "GFP", updated.CustomValues["insert_name"])
}

func TestArchivedStrainIsReadOnly(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	archived, err := s.ArchiveStrain(ctx, "alice", strain.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.NotNil(t, archived.ArchivedAt)

	genotype := "mutant"
	_, err = s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{Genotype: &genotype})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	restored, err := s.UnarchiveStrain(ctx, "alice", strain.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsArchived)

	_, err = s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{Genotype: &genotype})
	require.NoError(t, err)
}

func TestListStrainsExcludesArchivedByDefault(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	active := seedStrain(t, ctx, s, db.ID, "YCG-001")
	gone := seedStrain(t, ctx, s, db.ID, "YCG-002")
	_, err := s.ArchiveStrain(ctx, "alice", gone.ID)
	require.NoError(t, err)

	page, err := s.ListStrains(ctx, "alice", db.ID, registrystore.StrainQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, active.ID, page.Data[0].ID)

	page, err = s.ListStrains(ctx, "alice", db.ID, registrystore.StrainQuery{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
}

func TestStrainVersionsAndDiff(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Antibiotic", FieldType: model.FieldText})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	genotype := "leu2 ura3"
	_, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		Genotype:     &genotype,
		CustomValues: map[string]interface{}{"antibiotic": "amp"},
	})
	require.NoError(t, err)

	versions, err := s.ListStrainVersions(ctx, "alice", strain.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Number)
	assert.Equal(t, 2, versions[1].Number)

	changes, err := s.DiffStrainVersions(ctx, "alice", strain.ID, 1, 2)
	require.NoError(t, err)
	changed := map[string]registrystore.FieldChange{}
	for _, c := range changes {
		changed[c.Field] = c
	}
	require.Contains(t, changed, "genotype")
	assert.Equal(t, "wild type", changed["genotype"].Old)
	assert.Equal(t, "leu2 ura3", changed["genotype"].New)
	require.Contains(t, changed, "custom.antibiotic")
	assert.NotContains(t, changed, "strainId")
}

func TestGetStrainVersionNotFound(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.GetStrainVersion(ctx, "alice", strain.ID, 7)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestDeleteStrainRequiresAdmin(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleEditor)
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	err := s.DeleteStrain(ctx, "bob", strain.ID)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	require.NoError(t, s.DeleteStrain(ctx, "alice", strain.ID))
	_, err = s.GetStrain(ctx, "alice", strain.ID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStrainPlasmidLinks(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	organism, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)
	p1, err := s.CreatePlasmid(ctx, "alice", db.ID, model.Plasmid{Name: "pUC19"})
	require.NoError(t, err)
	p2, err := s.CreatePlasmid(ctx, "alice", db.ID, model.Plasmid{Name: "pBR322"})
	require.NoError(t, err)

	detail, err := s.CreateStrain(ctx, "alice", db.ID, registrystore.CreateStrainRequest{
		StrainID: "YCG-001", Name: "YCG-001", OrganismID: organism.ID,
		PlasmidIDs: []uint{p1.ID, p2.ID},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{p1.ID, p2.ID}, detail.PlasmidIDs)

	links := []uint{p2.ID}
	updated, err := s.UpdateStrain(ctx, "alice", detail.ID, registrystore.UpdateStrainRequest{PlasmidIDs: &links})
	require.NoError(t, err)
	assert.Equal(t, []uint{p2.ID}, updated.PlasmidIDs)
}

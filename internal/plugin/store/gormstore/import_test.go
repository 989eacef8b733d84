package gormstore

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importRow(strainID, organism, location string) map[string]string {
	return map[string]string{
		"strain_id": strainID,
		"organism":  organism,
		"genotype":  "wild type",
		"location":  location,
	}
}

func TestImportCreatesStrainsAndAutoCreatesEntities(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	rows := []map[string]string{
		importRow("YCG-001", "E. coli", "Box 1 A1"),
		importRow("YCG-002", "E. coli", "Box 1 A2"),
	}
	rows[1]["plasmids"] = "pUC19, pBR322"

	result, err := s.ImportStrains(ctx, "alice", db.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"E. coli"}, result.AutoCreated["organism"])
	assert.Equal(t, []string{"Box 1 A1", "Box 1 A2"}, result.AutoCreated["location"])
	assert.ElementsMatch(t, []string{"pUC19", "pBR322"}, result.AutoCreated["plasmid"])

	var strains []model.Strain
	require.NoError(t, s.db.Where("database_id = ?", db.ID).Order("strain_id").Find(&strains).Error)
	require.Len(t, strains, 2)
	assert.Equal(t, model.StrainActive, strains[0].Status)
	assert.NotNil(t, strains[0].LocationID)

	// Every imported strain starts its version history at 1.
	versions, err := s.ListStrainVersions(ctx, "alice", strains[0].ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Number)

	// One auto-create audit row per entity actually created, plus the run
	// summary.
	entries, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{Action: model.AuditAutoCreateEntity})
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	entries, _, err = s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{Action: model.AuditStrainImport})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestImportSkipsExistingStrainsCaseInsensitive(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	seedStrain(t, ctx, s, db.ID, "ycg-001")

	rows := []map[string]string{
		importRow("YCG-001", "E. coli", "Box 1 A1"),
		importRow("YCG-002", "E. coli", "Box 1 A2"),
		importRow("Ycg-002", "E. coli", "Box 1 A3"),
	}
	result, err := s.ImportStrains(ctx, "alice", db.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, result.Errors)
}

func TestImportReportsRowErrorsAndContinues(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	rows := []map[string]string{
		importRow("YCG-001", "E. coli", "Box 1 A1"),
		{"strain_id": "YCG-002", "organism": "E. coli", "location": "Box 1 A2"}, // no genotype
		importRow("YCG-003", "E. coli", "Shelf 3"),                              // bad location
		importRow("YCG-004", "E. coli", "Box 1 A4"),
	}
	result, err := s.ImportStrains(ctx, "alice", db.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Errors, 2)
	// Row numbers are 1-based and account for the header row.
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Messages[0], "genotype")
	assert.Equal(t, 4, result.Errors[1].Row)
}

func TestImportCustomValues(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	createDef(t, ctx, s, db.ID, model.FieldDefinition{
		Name: "Antibiotic", FieldType: model.FieldSingleSelect, Choices: "amp, kan",
	})

	good := importRow("YCG-001", "E. coli", "Box 1 A1")
	good["custom:Antibiotic"] = "amp"
	bad := importRow("YCG-002", "E. coli", "Box 1 A2")
	bad["custom:Antibiotic"] = "tet"

	result, err := s.ImportStrains(ctx, "alice", db.ID, []map[string]string{good, bad})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)

	var strain model.Strain
	require.NoError(t, s.db.Where("database_id = ? AND strain_id = ?", db.ID, "YCG-001").Take(&strain).Error)
	detail, err := s.GetStrain(ctx, "alice", strain.ID)
	require.NoError(t, err)
	assert.Equal(t, "amp", detail.CustomValues["antibiotic"])
}

func TestImportReusesExistingEntities(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	organism, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)

	result, err := s.ImportStrains(ctx, "alice", db.ID, []map[string]string{
		importRow("YCG-001", "e. COLI", "Box 1 A1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.AutoCreated["organism"])

	var strain model.Strain
	require.NoError(t, s.db.Where("database_id = ? AND strain_id = ?", db.ID, "YCG-001").Take(&strain).Error)
	assert.Equal(t, organism.ID, strain.OrganismID)
}

func TestImportRowLimit(t *testing.T) {
	s, ctx := newTestStore(t)
	s.cfg.ImportMaxRows = 2
	_, db := seedDatabase(t, ctx, s, "Acme")

	rows := []map[string]string{
		importRow("YCG-001", "E. coli", "Box 1 A1"),
		importRow("YCG-002", "E. coli", "Box 1 A2"),
		importRow("YCG-003", "E. coli", "Box 1 A3"),
	}
	_, err := s.ImportStrains(ctx, "alice", db.ID, rows)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "rows", validation.Field)
}

func TestImportRequiresEditor(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)

	_, err := s.ImportStrains(ctx, "bob", db.ID, []map[string]string{
		importRow("YCG-001", "E. coli", "Box 1 A1"),
	})
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

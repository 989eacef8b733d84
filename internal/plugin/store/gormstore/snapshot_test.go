package gormstore

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportRestoreRoundTrip(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleEditor)
	createDef(t, ctx, s, db.ID, model.FieldDefinition{Name: "Antibiotic", FieldType: model.FieldText})
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")
	_, err := s.UpdateStrain(ctx, "alice", strain.ID, registrystore.UpdateStrainRequest{
		CustomValues: map[string]interface{}{"antibiotic": "amp"},
	})
	require.NoError(t, err)

	doc, err := s.ExportOrganization(ctx, "alice", org.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version, doc.Version)
	assert.Equal(t, org.UUID, doc.Organization.UUID)
	require.Len(t, doc.Databases, 1)
	require.Len(t, doc.Strains, 1)
	require.Len(t, doc.FieldDefinitions, 1)
	require.Len(t, doc.FieldValues, 1)
	assert.Len(t, doc.Members, 2)

	result, err := s.RestoreOrganization(ctx, "alice", org.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Databases)
	assert.Equal(t, 2, result.Members)
	assert.Equal(t, 1, result.Strains)
	assert.Equal(t, 1, result.FieldDefinitions)
	assert.Equal(t, 1, result.FieldValues)

	// The restored database and strain carry fresh ids but the same content.
	dbs, err := s.ListDatabases(ctx, "alice", org.ID)
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "Lab Records", dbs[0].Name)
	assert.NotEqual(t, db.ID, dbs[0].ID)

	page, err := s.ListStrains(ctx, "alice", dbs[0].ID, registrystore.StrainQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "YCG-001", page.Data[0].StrainID)

	detail, err := s.GetStrain(ctx, "alice", page.Data[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "amp", detail.CustomValues["antibiotic"])

	// Bob's editor membership came back with the database.
	role, err := s.ResolveDatabaseRole(ctx, "bob", dbs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEditor, role)
}

func TestRestoreRejectsUnsupportedVersion(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	seedStrain(t, ctx, s, db.ID, "YCG-001")

	doc, err := s.ExportOrganization(ctx, "alice", org.ID)
	require.NoError(t, err)
	doc.Version = "99"

	_, err = s.RestoreOrganization(ctx, "alice", org.ID, doc)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "unsupported_version", conflict.Code)

	// Live data is untouched.
	page, err := s.ListStrains(ctx, "alice", db.ID, registrystore.StrainQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestRestoreRejectsOrganizationMismatch(t *testing.T) {
	s, ctx := newTestStore(t)
	orgA, dbA := seedDatabase(t, ctx, s, "Acme")
	seedStrain(t, ctx, s, dbA.ID, "YCG-001")
	orgB, err := s.CreateOrganization(ctx, "alice", "Beta Labs")
	require.NoError(t, err)

	doc, err := s.ExportOrganization(ctx, "alice", orgA.ID)
	require.NoError(t, err)

	_, err = s.RestoreOrganization(ctx, "alice", orgB.ID, doc)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "organization_mismatch", conflict.Code)

	// The source organization still has its database.
	dbs, err := s.ListDatabases(ctx, "alice", orgA.ID)
	require.NoError(t, err)
	assert.Len(t, dbs, 1)
}

func TestRestoreRequiresOrgAdmin(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleOwner)

	doc, err := s.ExportOrganization(ctx, "alice", org.ID)
	require.NoError(t, err)

	_, err = s.RestoreOrganization(ctx, "bob", org.ID, doc)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = s.ExportOrganization(ctx, "bob", org.ID)
	require.ErrorAs(t, err, &forbidden)
}

func TestRestoreActingAdminAlwaysSurvives(t *testing.T) {
	s, ctx := newTestStore(t)
	org, _ := seedDatabase(t, ctx, s, "Acme")

	doc, err := s.ExportOrganization(ctx, "alice", org.ID)
	require.NoError(t, err)
	// A snapshot whose member list does not include the acting admin.
	doc.Members = []snapshot.Member{{UserRef: snapshot.UserRef{Username: "ghost"}, Role: model.OrgRoleMember}}

	result, err := s.RestoreOrganization(ctx, "alice", org.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Members)

	members, err := s.ListOrganizationMembers(ctx, "alice", org.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, model.OrgRoleAdmin, members[0].Role)
}

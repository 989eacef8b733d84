package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/helixmapr/helixmapr/internal/config"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*GormStore, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive for the whole test.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(migratedModels...))

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	return &GormStore{db: db, cfg: &cfg}, context.Background()
}

// seedDatabase creates the user "alice", an organization, and one database in
// it. Alice ends up organization admin and database owner.
func seedDatabase(t *testing.T, ctx context.Context, s *GormStore, orgName string) (*model.Organization, *model.ResearchDatabase) {
	t.Helper()

	_, err := s.EnsureUser(ctx, "alice", "alice@example.com", "Alice")
	require.NoError(t, err)
	org, err := s.CreateOrganization(ctx, "alice", orgName)
	require.NoError(t, err)
	db, err := s.CreateDatabase(ctx, "alice", org.ID, "Lab Records", "")
	require.NoError(t, err)
	return org, db
}

// addMember registers a user, joins them to the organization as a member, and
// optionally grants a database role.
func addMember(t *testing.T, ctx context.Context, s *GormStore, org *model.Organization, db *model.ResearchDatabase, username string, role model.DatabaseRole) {
	t.Helper()

	_, err := s.EnsureUser(ctx, username, username+"@example.com", "")
	require.NoError(t, err)
	_, err = s.AddOrganizationMember(ctx, "alice", org.ID, username, model.OrgRoleMember)
	require.NoError(t, err)
	if role != model.RoleNone {
		_, err = s.UpsertDatabaseMember(ctx, "alice", db.ID, username, role)
		require.NoError(t, err)
	}
}

func TestEnsureUserUpsertsProfile(t *testing.T) {
	s, ctx := newTestStore(t)

	first, err := s.EnsureUser(ctx, "Carol", "carol@example.com", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", first.Username)

	second, err := s.EnsureUser(ctx, "carol", "carol@lab.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "carol@lab.example.com", second.Email)
	assert.Equal(t, "Carol", second.DisplayName)
}

func TestCreateOrganizationGrantsCreatorAdmin(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.EnsureUser(ctx, "alice", "alice@example.com", "Alice")
	require.NoError(t, err)

	org, err := s.CreateOrganization(ctx, "alice", "Acme Biosciences")
	require.NoError(t, err)
	assert.Equal(t, "acme-biosciences", org.Slug)
	assert.NotEmpty(t, org.UUID)

	members, err := s.ListOrganizationMembers(ctx, "alice", org.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, model.OrgRoleAdmin, members[0].Role)
}

func TestCreateOrganizationDuplicateSlugConflicts(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.EnsureUser(ctx, "alice", "", "")
	require.NoError(t, err)
	_, err = s.CreateOrganization(ctx, "alice", "Acme Biosciences")
	require.NoError(t, err)

	_, err = s.CreateOrganization(ctx, "alice", "Acme Biosciences")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestUnknownPrincipalIsForbidden(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.CreateOrganization(ctx, "nobody", "Acme")
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = s.CreateOrganization(ctx, "", "Acme")
	assert.ErrorAs(t, err, &forbidden)
}

func TestCreateDatabaseRequiresOrgAdmin(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleNone)

	_, err := s.CreateDatabase(ctx, "bob", org.ID, "Bob's DB", "")
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	// The creator holds owner on the database it created.
	role, err := s.ResolveDatabaseRole(ctx, "alice", db.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, role)
}

func TestNonMemberCannotSeeDatabase(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleNone)

	_, err := s.GetDatabase(ctx, "bob", db.ID)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	role, err := s.ResolveDatabaseRole(ctx, "bob", db.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleNone, role)
}

func TestSuperuserBypassesMembership(t *testing.T) {
	s, ctx := newTestStore(t)
	s.cfg.Superusers = "root"
	_, db := seedDatabase(t, ctx, s, "Acme")

	_, err := s.EnsureUser(ctx, "root", "", "")
	require.NoError(t, err)

	got, err := s.GetDatabase(ctx, "root", db.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ID, got.ID)

	role, err := s.ResolveDatabaseRole(ctx, "root", db.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, role)
}

func TestUpsertDatabaseMemberRoles(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)

	role, err := s.ResolveDatabaseRole(ctx, "bob", db.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, role)

	// Upsert updates in place.
	m, err := s.UpsertDatabaseMember(ctx, "alice", db.ID, "bob", model.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEditor, m.Role)

	members, err := s.ListDatabaseMembers(ctx, "bob", db.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Only an owner can mint another owner.
	addMember(t, ctx, s, org, db, "carol", model.RoleAdmin)
	_, err = s.UpsertDatabaseMember(ctx, "carol", db.ID, "bob", model.RoleOwner)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestLastOwnerCannotBeRemoved(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	err := s.RemoveDatabaseMember(ctx, "alice", db.ID, "alice")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = s.UpsertDatabaseMember(ctx, "alice", db.ID, "alice", model.RoleViewer)
	require.ErrorAs(t, err, &validation)
}

func TestLastOrgAdminCannotBeDemoted(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleNone)

	_, err := s.UpdateOrganizationMember(ctx, "alice", org.ID, "alice", model.OrgRoleMember)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	// With a second admin in place the demotion goes through.
	_, err = s.UpdateOrganizationMember(ctx, "alice", org.ID, "bob", model.OrgRoleAdmin)
	require.NoError(t, err)
	_, err = s.UpdateOrganizationMember(ctx, "alice", org.ID, "alice", model.OrgRoleMember)
	require.NoError(t, err)
}

func TestListDatabasesScopedToMembership(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	second, err := s.CreateDatabase(ctx, "alice", org.ID, "Archive", "")
	require.NoError(t, err)
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)

	mine, err := s.ListDatabases(ctx, "bob", org.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, db.ID, mine[0].ID)

	all, err := s.ListDatabases(ctx, "alice", org.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_ = second
}

func TestDeleteDatabaseRemovesDependents(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	require.NoError(t, s.DeleteDatabase(ctx, "alice", db.ID))

	_, err := s.GetDatabase(ctx, "alice", db.ID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	var count int64
	require.NoError(t, s.db.Model(&model.Strain{}).Where("id = ?", strain.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, s.db.Model(&model.StrainVersion{}).Where("strain_id = ?", strain.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteDatabaseRequiresOwner(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleAdmin)

	err := s.DeleteDatabase(ctx, "bob", db.ID)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.False(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestCatalogUniquePerDatabase(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")

	_, err := s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	require.NoError(t, err)
	_, err = s.CreateOrganism(ctx, "alice", db.ID, "E. coli")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	// Same name in a sibling database is fine.
	other, err := s.CreateDatabase(ctx, "alice", org.ID, "Archive", "")
	require.NoError(t, err)
	_, err = s.CreateOrganism(ctx, "alice", other.ID, "E. coli")
	require.NoError(t, err)

	_, err = s.CreateLocation(ctx, "alice", db.ID, model.Location{Box: "1", Position: "A1"})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, "alice", db.ID, model.Location{Box: "1", Position: "A1"})
	require.ErrorAs(t, err, &conflict)

	_, err = s.CreatePlasmid(ctx, "alice", db.ID, model.Plasmid{Name: "pUC19"})
	require.NoError(t, err)
	_, err = s.CreatePlasmid(ctx, "alice", db.ID, model.Plasmid{Name: "pUC19"})
	require.ErrorAs(t, err, &conflict)
}

func TestCatalogWritesRequireEditor(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleViewer)

	var forbidden *ForbiddenError
	_, err := s.CreateOrganism(ctx, "bob", db.ID, "E. coli")
	require.ErrorAs(t, err, &forbidden)

	// Reading is open to viewers.
	_, err = s.ListOrganisms(ctx, "bob", db.ID)
	require.NoError(t, err)
}

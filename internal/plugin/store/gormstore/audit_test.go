package gormstore

import (
	"testing"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAuditLogsRequiresAdmin(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleEditor)
	seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, _, err := s.ListAuditLogs(ctx, "bob", db.ID, registrystore.AuditQuery{})
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	entries, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestListAuditLogsFilters(t *testing.T) {
	s, ctx := newTestStore(t)
	org, db := seedDatabase(t, ctx, s, "Acme")
	addMember(t, ctx, s, org, db, "bob", model.RoleEditor)
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	genotype := "mutant"
	_, err := s.UpdateStrain(ctx, "bob", strain.ID, registrystore.UpdateStrainRequest{Genotype: &genotype})
	require.NoError(t, err)

	creates, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{Action: model.AuditStrainCreate})
	require.NoError(t, err)
	require.Len(t, creates, 1)
	assert.Equal(t, "strain", creates[0].ObjectType)

	bob, err := s.GetUser(ctx, "bob")
	require.NoError(t, err)
	byBob, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{UserID: &bob.ID})
	require.NoError(t, err)
	require.Len(t, byBob, 1)
	assert.Equal(t, model.AuditStrainUpdate, byBob[0].Action)

	typed, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{ObjectType: "strain"})
	require.NoError(t, err)
	assert.Len(t, typed, 2)
}

func TestListAuditLogsPaging(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	for _, id := range []string{"YCG-001", "YCG-002", "YCG-003"} {
		seedStrain(t, ctx, s, db.ID, id)
	}

	first, cursor, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{
		Action: model.AuditStrainCreate, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.Equal(t, "2", *cursor)

	rest, cursor, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{
		Action: model.AuditStrainCreate, Limit: 2, AfterCursor: cursor,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, cursor)

	// No overlap between pages.
	seen := map[uint]bool{}
	for _, e := range append(first, rest...) {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

func TestListAuditLogsRejectsBadCursor(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")

	garbage := "not-a-number"
	_, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{AfterCursor: &garbage})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "afterCursor", validation.Field)
}

func TestArchiveWritesAuditEntry(t *testing.T) {
	s, ctx := newTestStore(t)
	_, db := seedDatabase(t, ctx, s, "Acme")
	strain := seedStrain(t, ctx, s, db.ID, "YCG-001")

	_, err := s.ArchiveStrain(ctx, "alice", strain.ID)
	require.NoError(t, err)

	entries, _, err := s.ListAuditLogs(ctx, "alice", db.ID, registrystore.AuditQuery{Action: model.AuditStrainArchive})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Metadata["archived"])
}

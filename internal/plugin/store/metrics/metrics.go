package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
	"github.com/helixmapr/helixmapr/internal/snapshot"
)

// Wrap returns an InventoryStore that records StoreLatency for every operation.
func Wrap(inner store.InventoryStore) store.InventoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.InventoryStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) EnsureUser(ctx context.Context, username string, email string, displayName string) (*model.User, error) {
	defer observe("ensure_user", time.Now())
	return m.inner.EnsureUser(ctx, username, email, displayName)
}

func (m *metricsStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, username)
}

func (m *metricsStore) CreateOrganization(ctx context.Context, userID string, name string) (*model.Organization, error) {
	defer observe("create_organization", time.Now())
	return m.inner.CreateOrganization(ctx, userID, name)
}

func (m *metricsStore) ListOrganizations(ctx context.Context, userID string) ([]model.Organization, error) {
	defer observe("list_organizations", time.Now())
	return m.inner.ListOrganizations(ctx, userID)
}

func (m *metricsStore) GetOrganization(ctx context.Context, userID string, orgID uint) (*model.Organization, error) {
	defer observe("get_organization", time.Now())
	return m.inner.GetOrganization(ctx, userID, orgID)
}

func (m *metricsStore) ListOrganizationMembers(ctx context.Context, userID string, orgID uint) ([]model.OrganizationMembership, error) {
	defer observe("list_organization_members", time.Now())
	return m.inner.ListOrganizationMembers(ctx, userID, orgID)
}

func (m *metricsStore) AddOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string, role model.OrganizationRole) (*model.OrganizationMembership, error) {
	defer observe("add_organization_member", time.Now())
	return m.inner.AddOrganizationMember(ctx, userID, orgID, memberUsername, role)
}

func (m *metricsStore) UpdateOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string, role model.OrganizationRole) (*model.OrganizationMembership, error) {
	defer observe("update_organization_member", time.Now())
	return m.inner.UpdateOrganizationMember(ctx, userID, orgID, memberUsername, role)
}

func (m *metricsStore) RemoveOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string) error {
	defer observe("remove_organization_member", time.Now())
	return m.inner.RemoveOrganizationMember(ctx, userID, orgID, memberUsername)
}

func (m *metricsStore) CreateDatabase(ctx context.Context, userID string, orgID uint, name string, description string) (*model.ResearchDatabase, error) {
	defer observe("create_database", time.Now())
	return m.inner.CreateDatabase(ctx, userID, orgID, name, description)
}

func (m *metricsStore) ListDatabases(ctx context.Context, userID string, orgID uint) ([]model.ResearchDatabase, error) {
	defer observe("list_databases", time.Now())
	return m.inner.ListDatabases(ctx, userID, orgID)
}

func (m *metricsStore) GetDatabase(ctx context.Context, userID string, databaseID uint) (*model.ResearchDatabase, error) {
	defer observe("get_database", time.Now())
	return m.inner.GetDatabase(ctx, userID, databaseID)
}

func (m *metricsStore) UpdateDatabase(ctx context.Context, userID string, databaseID uint, name *string, description *string) (*model.ResearchDatabase, error) {
	defer observe("update_database", time.Now())
	return m.inner.UpdateDatabase(ctx, userID, databaseID, name, description)
}

func (m *metricsStore) DeleteDatabase(ctx context.Context, userID string, databaseID uint) error {
	defer observe("delete_database", time.Now())
	return m.inner.DeleteDatabase(ctx, userID, databaseID)
}

func (m *metricsStore) ResolveDatabaseRole(ctx context.Context, userID string, databaseID uint) (model.DatabaseRole, error) {
	defer observe("resolve_database_role", time.Now())
	return m.inner.ResolveDatabaseRole(ctx, userID, databaseID)
}

func (m *metricsStore) ListDatabaseMembers(ctx context.Context, userID string, databaseID uint) ([]model.DatabaseMembership, error) {
	defer observe("list_database_members", time.Now())
	return m.inner.ListDatabaseMembers(ctx, userID, databaseID)
}

func (m *metricsStore) UpsertDatabaseMember(ctx context.Context, userID string, databaseID uint, memberUsername string, role model.DatabaseRole) (*model.DatabaseMembership, error) {
	defer observe("upsert_database_member", time.Now())
	return m.inner.UpsertDatabaseMember(ctx, userID, databaseID, memberUsername, role)
}

func (m *metricsStore) RemoveDatabaseMember(ctx context.Context, userID string, databaseID uint, memberUsername string) error {
	defer observe("remove_database_member", time.Now())
	return m.inner.RemoveDatabaseMember(ctx, userID, databaseID, memberUsername)
}

func (m *metricsStore) ListOrganisms(ctx context.Context, userID string, databaseID uint) ([]model.Organism, error) {
	defer observe("list_organisms", time.Now())
	return m.inner.ListOrganisms(ctx, userID, databaseID)
}

func (m *metricsStore) CreateOrganism(ctx context.Context, userID string, databaseID uint, name string) (*model.Organism, error) {
	defer observe("create_organism", time.Now())
	return m.inner.CreateOrganism(ctx, userID, databaseID, name)
}

func (m *metricsStore) ListLocations(ctx context.Context, userID string, databaseID uint) ([]model.Location, error) {
	defer observe("list_locations", time.Now())
	return m.inner.ListLocations(ctx, userID, databaseID)
}

func (m *metricsStore) CreateLocation(ctx context.Context, userID string, databaseID uint, location model.Location) (*model.Location, error) {
	defer observe("create_location", time.Now())
	return m.inner.CreateLocation(ctx, userID, databaseID, location)
}

func (m *metricsStore) ListPlasmids(ctx context.Context, userID string, databaseID uint) ([]model.Plasmid, error) {
	defer observe("list_plasmids", time.Now())
	return m.inner.ListPlasmids(ctx, userID, databaseID)
}

func (m *metricsStore) CreatePlasmid(ctx context.Context, userID string, databaseID uint, plasmid model.Plasmid) (*model.Plasmid, error) {
	defer observe("create_plasmid", time.Now())
	return m.inner.CreatePlasmid(ctx, userID, databaseID, plasmid)
}

func (m *metricsStore) ListFieldGroups(ctx context.Context, userID string, databaseID uint) ([]model.FieldGroup, error) {
	defer observe("list_field_groups", time.Now())
	return m.inner.ListFieldGroups(ctx, userID, databaseID)
}

func (m *metricsStore) CreateFieldGroup(ctx context.Context, userID string, databaseID uint, name string, order int) (*model.FieldGroup, error) {
	defer observe("create_field_group", time.Now())
	return m.inner.CreateFieldGroup(ctx, userID, databaseID, name, order)
}

func (m *metricsStore) UpdateFieldGroup(ctx context.Context, userID string, groupID uint, name *string, order *int) (*model.FieldGroup, error) {
	defer observe("update_field_group", time.Now())
	return m.inner.UpdateFieldGroup(ctx, userID, groupID, name, order)
}

func (m *metricsStore) DeleteFieldGroup(ctx context.Context, userID string, groupID uint) error {
	defer observe("delete_field_group", time.Now())
	return m.inner.DeleteFieldGroup(ctx, userID, groupID)
}

func (m *metricsStore) ListFieldDefinitions(ctx context.Context, userID string, databaseID uint) ([]model.FieldDefinition, error) {
	defer observe("list_field_definitions", time.Now())
	return m.inner.ListFieldDefinitions(ctx, userID, databaseID)
}

func (m *metricsStore) CreateFieldDefinition(ctx context.Context, userID string, databaseID uint, def model.FieldDefinition) (*model.FieldDefinition, error) {
	defer observe("create_field_definition", time.Now())
	return m.inner.CreateFieldDefinition(ctx, userID, databaseID, def)
}

func (m *metricsStore) UpdateFieldDefinition(ctx context.Context, userID string, definitionID uint, update store.FieldDefinitionUpdate) (*model.FieldDefinition, error) {
	defer observe("update_field_definition", time.Now())
	return m.inner.UpdateFieldDefinition(ctx, userID, definitionID, update)
}

func (m *metricsStore) DeleteFieldDefinition(ctx context.Context, userID string, definitionID uint) error {
	defer observe("delete_field_definition", time.Now())
	return m.inner.DeleteFieldDefinition(ctx, userID, definitionID)
}

func (m *metricsStore) ListStrains(ctx context.Context, userID string, databaseID uint, query store.StrainQuery) (*store.PagedStrains, error) {
	defer observe("list_strains", time.Now())
	return m.inner.ListStrains(ctx, userID, databaseID, query)
}

func (m *metricsStore) GetStrain(ctx context.Context, userID string, strainID uint) (*store.StrainDetail, error) {
	defer observe("get_strain", time.Now())
	return m.inner.GetStrain(ctx, userID, strainID)
}

func (m *metricsStore) CreateStrain(ctx context.Context, userID string, databaseID uint, req store.CreateStrainRequest) (*store.StrainDetail, error) {
	defer observe("create_strain", time.Now())
	return m.inner.CreateStrain(ctx, userID, databaseID, req)
}

func (m *metricsStore) UpdateStrain(ctx context.Context, userID string, strainID uint, req store.UpdateStrainRequest) (*store.StrainDetail, error) {
	defer observe("update_strain", time.Now())
	return m.inner.UpdateStrain(ctx, userID, strainID, req)
}

func (m *metricsStore) DeleteStrain(ctx context.Context, userID string, strainID uint) error {
	defer observe("delete_strain", time.Now())
	return m.inner.DeleteStrain(ctx, userID, strainID)
}

func (m *metricsStore) ArchiveStrain(ctx context.Context, userID string, strainID uint) (*store.StrainDetail, error) {
	defer observe("archive_strain", time.Now())
	return m.inner.ArchiveStrain(ctx, userID, strainID)
}

func (m *metricsStore) UnarchiveStrain(ctx context.Context, userID string, strainID uint) (*store.StrainDetail, error) {
	defer observe("unarchive_strain", time.Now())
	return m.inner.UnarchiveStrain(ctx, userID, strainID)
}

func (m *metricsStore) BuildStrainForm(ctx context.Context, userID string, databaseID uint, strainID *uint) ([]fields.Spec, error) {
	defer observe("build_strain_form", time.Now())
	return m.inner.BuildStrainForm(ctx, userID, databaseID, strainID)
}

func (m *metricsStore) ListStrainVersions(ctx context.Context, userID string, strainID uint) ([]model.StrainVersion, error) {
	defer observe("list_strain_versions", time.Now())
	return m.inner.ListStrainVersions(ctx, userID, strainID)
}

func (m *metricsStore) GetStrainVersion(ctx context.Context, userID string, strainID uint, number int) (*model.StrainVersion, error) {
	defer observe("get_strain_version", time.Now())
	return m.inner.GetStrainVersion(ctx, userID, strainID, number)
}

func (m *metricsStore) DiffStrainVersions(ctx context.Context, userID string, strainID uint, from int, to int) ([]store.FieldChange, error) {
	defer observe("diff_strain_versions", time.Now())
	return m.inner.DiffStrainVersions(ctx, userID, strainID, from, to)
}

func (m *metricsStore) CreateAttachment(ctx context.Context, userID string, strainID uint, attachment model.Attachment) (*model.Attachment, error) {
	defer observe("create_attachment", time.Now())
	return m.inner.CreateAttachment(ctx, userID, strainID, attachment)
}

func (m *metricsStore) ListAttachments(ctx context.Context, userID string, strainID uint) ([]model.Attachment, error) {
	defer observe("list_attachments", time.Now())
	return m.inner.ListAttachments(ctx, userID, strainID)
}

func (m *metricsStore) GetAttachment(ctx context.Context, userID string, attachmentID uuid.UUID) (*model.Attachment, error) {
	defer observe("get_attachment", time.Now())
	return m.inner.GetAttachment(ctx, userID, attachmentID)
}

func (m *metricsStore) DeleteAttachment(ctx context.Context, userID string, attachmentID uuid.UUID) error {
	defer observe("delete_attachment", time.Now())
	return m.inner.DeleteAttachment(ctx, userID, attachmentID)
}

func (m *metricsStore) ImportStrains(ctx context.Context, userID string, databaseID uint, rows []map[string]string) (*store.ImportResult, error) {
	defer observe("import_strains", time.Now())
	return m.inner.ImportStrains(ctx, userID, databaseID, rows)
}

func (m *metricsStore) ExportOrganization(ctx context.Context, userID string, orgID uint) (*snapshot.Document, error) {
	defer observe("export_organization", time.Now())
	return m.inner.ExportOrganization(ctx, userID, orgID)
}

func (m *metricsStore) RestoreOrganization(ctx context.Context, userID string, orgID uint, doc *snapshot.Document) (*store.RestoreResult, error) {
	defer observe("restore_organization", time.Now())
	return m.inner.RestoreOrganization(ctx, userID, orgID, doc)
}

func (m *metricsStore) ListAuditLogs(ctx context.Context, userID string, databaseID uint, query store.AuditQuery) ([]model.AuditLog, *string, error) {
	defer observe("list_audit_logs", time.Now())
	return m.inner.ListAuditLogs(ctx, userID, databaseID, query)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return m.inner.Ping(ctx)
}

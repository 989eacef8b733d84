package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/helixmapr/helixmapr/internal/snapshot"
)

// StrainSummary is the list representation of a strain.
type StrainSummary struct {
	model.Strain
	OrganismName  string `json:"organismName,omitempty"`
	LocationLabel string `json:"locationLabel,omitempty"`
	PlasmidIDs    []uint `json:"plasmidIds,omitempty"`
}

// StrainDetail is the full strain for get/create/update, including every
// stored custom value keyed by field key.
type StrainDetail struct {
	StrainSummary
	CustomValues map[string]interface{} `json:"customValues"`
}

// PagedStrains is a paginated strain list.
type PagedStrains struct {
	Data        []StrainSummary `json:"data"`
	AfterCursor *string         `json:"afterCursor,omitempty"`
}

// CustomFilter filters a strain list on one custom field.
// Operators mirror conditional logic: equals, not_equals, contains, gt, lt.
type CustomFilter struct {
	Key      string      `json:"key"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// StrainQuery holds parameters for strain listing.
type StrainQuery struct {
	Search          string
	Status          *model.StrainStatus
	IncludeArchived bool
	OrganismID      *uint
	LocationID      *uint
	PlasmidID       *uint
	CustomFilters   []CustomFilter
	SortBy          string
	SortDesc        bool
	AfterCursor     *string
	Limit           int
}

// CreateStrainRequest is the input for creating a strain. CustomValues is
// keyed by field key; unknown keys are ignored.
type CreateStrainRequest struct {
	StrainID        string                 `json:"strainId"`
	Name            string                 `json:"name"`
	OrganismID      uint                   `json:"organismId"`
	Genotype        string                 `json:"genotype,omitempty"`
	SelectiveMarker string                 `json:"selectiveMarker,omitempty"`
	Comments        string                 `json:"comments,omitempty"`
	LocationID      *uint                  `json:"locationId,omitempty"`
	PlasmidIDs      []uint                 `json:"plasmidIds,omitempty"`
	CustomValues    map[string]interface{} `json:"customValues,omitempty"`
}

// UpdateStrainRequest carries only the fields the client wants changed.
// ClearLocation removes the location link. A non-nil CustomValues map is a
// full reconcile: keys submitted empty or left out clear their stored rows;
// a nil map leaves custom values untouched.
type UpdateStrainRequest struct {
	StrainID        *string                `json:"strainId,omitempty"`
	Name            *string                `json:"name,omitempty"`
	OrganismID      *uint                  `json:"organismId,omitempty"`
	Genotype        *string                `json:"genotype,omitempty"`
	SelectiveMarker *string                `json:"selectiveMarker,omitempty"`
	Comments        *string                `json:"comments,omitempty"`
	LocationID      *uint                  `json:"locationId,omitempty"`
	ClearLocation   bool                   `json:"clearLocation,omitempty"`
	PlasmidIDs      *[]uint                `json:"plasmidIds,omitempty"`
	CustomValues    map[string]interface{} `json:"customValues,omitempty"`
}

// FieldDefinitionUpdate defines mutable field definition attributes.
// FieldType changes are rejected once values exist for the definition.
type FieldDefinitionUpdate struct {
	Name             *string            `json:"name,omitempty"`
	Label            *string            `json:"label,omitempty"`
	FieldType        *model.FieldType   `json:"fieldType,omitempty"`
	Choices          *string            `json:"choices,omitempty"`
	DefaultValue     *string            `json:"defaultValue,omitempty"`
	HelpText         *string            `json:"helpText,omitempty"`
	Required         *bool              `json:"required,omitempty"`
	IsUnique         *bool              `json:"isUnique,omitempty"`
	ConditionalLogic *model.Logic       `json:"conditionalLogic,omitempty"`
	ClearLogic       bool               `json:"clearLogic,omitempty"`
	Order            *int               `json:"order,omitempty"`
	GroupID          *uint              `json:"groupId,omitempty"`
	ClearGroup       bool               `json:"clearGroup,omitempty"`
	VisibleToRoles   *model.RoleList    `json:"visibleToRoles,omitempty"`
	EditableToRoles  *model.RoleList    `json:"editableToRoles,omitempty"`
	RelatedKind      *model.RelatedKind `json:"relatedKind,omitempty"`
}

// ImportRowError reports why one CSV row was rejected.
type ImportRowError struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// ImportResult summarizes a CSV import run. AutoCreated lists the names of
// entities the reconciler created on the fly, keyed by entity type.
type ImportResult struct {
	Created     int                 `json:"created"`
	Skipped     int                 `json:"skipped"`
	Errors      []ImportRowError    `json:"errors,omitempty"`
	AutoCreated map[string][]string `json:"autoCreated,omitempty"`
}

// RestoreResult counts the rows recreated by a snapshot restore.
type RestoreResult struct {
	Databases        int `json:"databases"`
	Members          int `json:"members"`
	Organisms        int `json:"organisms"`
	Locations        int `json:"locations"`
	Plasmids         int `json:"plasmids"`
	Strains          int `json:"strains"`
	FieldDefinitions int `json:"fieldDefinitions"`
	FieldValues      int `json:"fieldValues"`
	AuditLogs        int `json:"auditLogs"`
}

// FieldChange is one changed attribute between two strain versions.
type FieldChange struct {
	Field string      `json:"field"`
	Old   interface{} `json:"old"`
	New   interface{} `json:"new"`
}

// AuditQuery holds parameters for audit log listing.
type AuditQuery struct {
	Action      string
	ObjectType  string
	UserID      *uint
	AfterCursor *string
	Limit       int
}

// InventoryStore defines the primary data access interface for the inventory
// service. The userID parameter is the authenticated principal's username;
// role checks happen inside the store so every caller gets the same
// enforcement.
type InventoryStore interface {
	// Users
	EnsureUser(ctx context.Context, username string, email string, displayName string) (*model.User, error)
	GetUser(ctx context.Context, username string) (*model.User, error)

	// Organizations
	CreateOrganization(ctx context.Context, userID string, name string) (*model.Organization, error)
	ListOrganizations(ctx context.Context, userID string) ([]model.Organization, error)
	GetOrganization(ctx context.Context, userID string, orgID uint) (*model.Organization, error)
	ListOrganizationMembers(ctx context.Context, userID string, orgID uint) ([]model.OrganizationMembership, error)
	AddOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string, role model.OrganizationRole) (*model.OrganizationMembership, error)
	UpdateOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string, role model.OrganizationRole) (*model.OrganizationMembership, error)
	RemoveOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string) error

	// Research databases
	CreateDatabase(ctx context.Context, userID string, orgID uint, name string, description string) (*model.ResearchDatabase, error)
	ListDatabases(ctx context.Context, userID string, orgID uint) ([]model.ResearchDatabase, error)
	GetDatabase(ctx context.Context, userID string, databaseID uint) (*model.ResearchDatabase, error)
	UpdateDatabase(ctx context.Context, userID string, databaseID uint, name *string, description *string) (*model.ResearchDatabase, error)
	DeleteDatabase(ctx context.Context, userID string, databaseID uint) error
	ResolveDatabaseRole(ctx context.Context, userID string, databaseID uint) (model.DatabaseRole, error)

	// Database memberships
	ListDatabaseMembers(ctx context.Context, userID string, databaseID uint) ([]model.DatabaseMembership, error)
	UpsertDatabaseMember(ctx context.Context, userID string, databaseID uint, memberUsername string, role model.DatabaseRole) (*model.DatabaseMembership, error)
	RemoveDatabaseMember(ctx context.Context, userID string, databaseID uint, memberUsername string) error

	// Catalog
	ListOrganisms(ctx context.Context, userID string, databaseID uint) ([]model.Organism, error)
	CreateOrganism(ctx context.Context, userID string, databaseID uint, name string) (*model.Organism, error)
	ListLocations(ctx context.Context, userID string, databaseID uint) ([]model.Location, error)
	CreateLocation(ctx context.Context, userID string, databaseID uint, location model.Location) (*model.Location, error)
	ListPlasmids(ctx context.Context, userID string, databaseID uint) ([]model.Plasmid, error)
	CreatePlasmid(ctx context.Context, userID string, databaseID uint, plasmid model.Plasmid) (*model.Plasmid, error)

	// Field schema
	ListFieldGroups(ctx context.Context, userID string, databaseID uint) ([]model.FieldGroup, error)
	CreateFieldGroup(ctx context.Context, userID string, databaseID uint, name string, order int) (*model.FieldGroup, error)
	UpdateFieldGroup(ctx context.Context, userID string, groupID uint, name *string, order *int) (*model.FieldGroup, error)
	DeleteFieldGroup(ctx context.Context, userID string, groupID uint) error
	ListFieldDefinitions(ctx context.Context, userID string, databaseID uint) ([]model.FieldDefinition, error)
	CreateFieldDefinition(ctx context.Context, userID string, databaseID uint, def model.FieldDefinition) (*model.FieldDefinition, error)
	UpdateFieldDefinition(ctx context.Context, userID string, definitionID uint, update FieldDefinitionUpdate) (*model.FieldDefinition, error)
	DeleteFieldDefinition(ctx context.Context, userID string, definitionID uint) error

	// Strains
	ListStrains(ctx context.Context, userID string, databaseID uint, query StrainQuery) (*PagedStrains, error)
	GetStrain(ctx context.Context, userID string, strainID uint) (*StrainDetail, error)
	CreateStrain(ctx context.Context, userID string, databaseID uint, req CreateStrainRequest) (*StrainDetail, error)
	UpdateStrain(ctx context.Context, userID string, strainID uint, req UpdateStrainRequest) (*StrainDetail, error)
	DeleteStrain(ctx context.Context, userID string, strainID uint) error
	ArchiveStrain(ctx context.Context, userID string, strainID uint) (*StrainDetail, error)
	UnarchiveStrain(ctx context.Context, userID string, strainID uint) (*StrainDetail, error)

	// Dynamic forms
	BuildStrainForm(ctx context.Context, userID string, databaseID uint, strainID *uint) ([]fields.Spec, error)

	// Strain versions
	ListStrainVersions(ctx context.Context, userID string, strainID uint) ([]model.StrainVersion, error)
	GetStrainVersion(ctx context.Context, userID string, strainID uint, number int) (*model.StrainVersion, error)
	DiffStrainVersions(ctx context.Context, userID string, strainID uint, from int, to int) ([]FieldChange, error)

	// Attachments
	CreateAttachment(ctx context.Context, userID string, strainID uint, attachment model.Attachment) (*model.Attachment, error)
	ListAttachments(ctx context.Context, userID string, strainID uint) ([]model.Attachment, error)
	GetAttachment(ctx context.Context, userID string, attachmentID uuid.UUID) (*model.Attachment, error)
	DeleteAttachment(ctx context.Context, userID string, attachmentID uuid.UUID) error

	// CSV import
	ImportStrains(ctx context.Context, userID string, databaseID uint, rows []map[string]string) (*ImportResult, error)

	// Snapshots
	ExportOrganization(ctx context.Context, userID string, orgID uint) (*snapshot.Document, error)
	RestoreOrganization(ctx context.Context, userID string, orgID uint, doc *snapshot.Document) (*RestoreResult, error)

	// Audit
	ListAuditLogs(ctx context.Context, userID string, databaseID uint, query AuditQuery) ([]model.AuditLog, *string, error)

	// Health
	Ping(ctx context.Context) error
}

// Loader creates an InventoryStore from config.
type Loader func(ctx context.Context) (InventoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}

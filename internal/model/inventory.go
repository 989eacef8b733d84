package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StrainStatus is the lifecycle state of a strain record.
type StrainStatus string

const (
	StrainActive   StrainStatus = "active"
	StrainArchived StrainStatus = "archived"
	StrainDisposed StrainStatus = "disposed"
)

// Organism is a database-scoped lookup entity. Names are matched
// case-insensitively when resolved during import.
type Organism struct {
	ID         uint   `json:"id"   gorm:"primaryKey"`
	DatabaseID uint   `json:"-"    gorm:"not null;uniqueIndex:uniq_organisms_db_name"`
	Name       string `json:"name" gorm:"not null;uniqueIndex:uniq_organisms_db_name"`
}

func (Organism) TableName() string { return "organisms" }

// Location is a physical storage slot within a database.
type Location struct {
	ID         uint   `json:"id"       gorm:"primaryKey"`
	DatabaseID uint   `json:"-"        gorm:"not null;uniqueIndex:uniq_locations_slot"`
	Building   string `json:"building" gorm:"uniqueIndex:uniq_locations_slot"`
	Room       string `json:"room"     gorm:"uniqueIndex:uniq_locations_slot"`
	Freezer    string `json:"freezer"  gorm:"uniqueIndex:uniq_locations_slot"`
	Box        string `json:"box"      gorm:"not null;uniqueIndex:uniq_locations_slot"`
	Position   string `json:"position" gorm:"uniqueIndex:uniq_locations_slot"`
}

func (Location) TableName() string { return "locations" }

// Label renders the location in the "Box <n> <pos>" form used by CSV imports.
func (l Location) Label() string {
	if l.Position == "" {
		return fmt.Sprintf("Box %s", l.Box)
	}
	return fmt.Sprintf("Box %s %s", l.Box, l.Position)
}

// Plasmid is a database-scoped lookup entity linkable to many strains.
type Plasmid struct {
	ID               uint   `json:"id"               gorm:"primaryKey"`
	DatabaseID       uint   `json:"-"                gorm:"not null;uniqueIndex:uniq_plasmids_db_name"`
	Name             string `json:"name"             gorm:"not null;uniqueIndex:uniq_plasmids_db_name"`
	ResistanceMarker string `json:"resistanceMarker"`
	Notes            string `json:"notes"`
}

func (Plasmid) TableName() string { return "plasmids" }

// Strain is the record type that carries custom field values.
type Strain struct {
	ID              uint         `json:"id"             gorm:"primaryKey"`
	DatabaseID      uint         `json:"-"              gorm:"not null;uniqueIndex:uniq_strains_db_strain_id"`
	StrainID        string       `json:"strainId"       gorm:"not null;uniqueIndex:uniq_strains_db_strain_id"`
	Name            string       `json:"name"           gorm:"not null"`
	OrganismID      uint         `json:"organismId"     gorm:"not null"`
	Genotype        string       `json:"genotype"`
	SelectiveMarker string       `json:"selectiveMarker"`
	Comments        string       `json:"comments"`
	LocationID      *uint        `json:"locationId,omitempty"`
	Status          StrainStatus `json:"status"         gorm:"not null;default:active"`
	IsArchived      bool         `json:"isArchived"     gorm:"not null;default:false"`
	ArchivedAt      *time.Time   `json:"archivedAt,omitempty"`
	ArchivedByID    *uint        `json:"archivedById,omitempty"`
	CreatedByID     *uint        `json:"createdById,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"      gorm:"not null"`
	UpdatedAt       time.Time    `json:"updatedAt"      gorm:"not null"`
}

func (Strain) TableName() string { return "strains" }

// StrainPlasmid links strains to plasmids.
type StrainPlasmid struct {
	StrainID  uint `json:"strainId"  gorm:"primaryKey"`
	PlasmidID uint `json:"plasmidId" gorm:"primaryKey"`
}

func (StrainPlasmid) TableName() string { return "strain_plasmids" }

// Attachment holds file metadata for a strain. Blob storage itself lives
// outside this service; only the metadata row is kept here.
type Attachment struct {
	ID           uuid.UUID `json:"id"          gorm:"primaryKey;type:uuid"`
	StrainID     uint      `json:"strainId"    gorm:"not null;index"`
	StorageKey   string    `json:"storageKey"  gorm:"not null"`
	Filename     string    `json:"filename"    gorm:"not null"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	UploadedByID *uint     `json:"uploadedById,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"  gorm:"not null"`
}

func (Attachment) TableName() string { return "attachments" }

// StrainVersion is a point-in-time copy of a strain's built-in and custom
// values, written on every create and update. Numbers start at 1 and are
// contiguous per strain.
type StrainVersion struct {
	ID          uint                   `json:"id"        gorm:"primaryKey"`
	StrainID    uint                   `json:"strainId"  gorm:"not null;uniqueIndex:uniq_strain_versions"`
	Number      int                    `json:"number"    gorm:"not null;uniqueIndex:uniq_strain_versions"`
	Data        map[string]interface{} `json:"data"      gorm:"serializer:json"`
	CreatedByID *uint                  `json:"createdById,omitempty"`
	CreatedAt   time.Time              `json:"createdAt" gorm:"not null"`
}

func (StrainVersion) TableName() string { return "strain_versions" }

// AuditLog entries are append-only and immutable after creation. Mutation
// paths write them explicitly with the acting user passed down the call chain.
type AuditLog struct {
	ID         uint                   `json:"id"         gorm:"primaryKey"`
	DatabaseID *uint                  `json:"databaseId,omitempty" gorm:"index"`
	UserID     *uint                  `json:"userId,omitempty"`
	Action     string                 `json:"action"     gorm:"not null"`
	ObjectType string                 `json:"objectType"`
	ObjectID   string                 `json:"objectId"`
	Metadata   map[string]interface{} `json:"metadata"   gorm:"serializer:json"`
	Timestamp  time.Time              `json:"timestamp"  gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Audit actions written by the store. Import distinguishes pre-existing from
// auto-created lookup entities because data-quality review depends on it.
const (
	AuditStrainCreate      = "strain_create"
	AuditStrainUpdate      = "strain_update"
	AuditStrainDelete      = "strain_delete"
	AuditStrainArchive     = "strain_archive"
	AuditStrainImport      = "strain_import"
	AuditAutoCreateEntity  = "auto_create_entity"
	AuditFieldCreate       = "field_definition_create"
	AuditFieldUpdate       = "field_definition_update"
	AuditFieldDelete       = "field_definition_delete"
	AuditSnapshotRestore   = "organization_snapshot_restore"
)

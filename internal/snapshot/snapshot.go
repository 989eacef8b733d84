// Package snapshot defines the versioned organization export document and its
// zip packaging. Building a document from live data and restoring one are
// store operations; this package is the wire format.
package snapshot

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/helixmapr/helixmapr/internal/model"
)

// Version is the only document version this implementation reads or writes.
const Version = "1.0"

// ArchiveMember is the single JSON member inside a snapshot zip.
const ArchiveMember = "snapshot.json"

// Document is a self-contained export of one organization's relational
// subtree. Every foreign key refers to the source row's id; restore rebuilds
// an old-id to new-id mapping per entity type. Timestamps are ISO-8601.
type Document struct {
	Version    string `json:"version"`
	ExportedAt string `json:"exportedAt"`

	Organization        Organization         `json:"organization"`
	Members             []Member             `json:"members"`
	Databases           []Database           `json:"databases"`
	DatabaseMemberships []DatabaseMembership `json:"databaseMemberships"`
	Organisms           []Organism           `json:"organisms"`
	Locations           []Location           `json:"locations"`
	Plasmids            []Plasmid            `json:"plasmids"`
	Strains             []Strain             `json:"strains"`
	StrainPlasmids      []StrainPlasmid      `json:"strainPlasmids"`
	FieldGroups         []FieldGroup         `json:"fieldGroups"`
	FieldDefinitions    []FieldDefinition    `json:"fieldDefinitions"`
	FieldValues         []FieldValue         `json:"fieldValues"`
	AuditLogs           []AuditLog           `json:"auditLogs"`
}

// Organization carries the identity token (uuid) that prevents restoring a
// snapshot into a foreign organization.
type Organization struct {
	ID          uint   `json:"id"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	CreatedByID *uint  `json:"createdById,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// UserRef identifies a user by id, username and email so restore can resolve
// the reference against the live directory with fallbacks.
type UserRef struct {
	UserID   *uint  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

type Member struct {
	UserRef
	Role     model.OrganizationRole `json:"role"`
	JoinedAt string                 `json:"joinedAt,omitempty"`
}

type Database struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedByID *uint  `json:"createdById,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type DatabaseMembership struct {
	UserRef
	DatabaseID uint               `json:"databaseId"`
	Role       model.DatabaseRole `json:"role"`
	CreatedAt  string             `json:"createdAt,omitempty"`
}

type Organism struct {
	ID         uint   `json:"id"`
	DatabaseID uint   `json:"databaseId"`
	Name       string `json:"name"`
}

type Location struct {
	ID         uint   `json:"id"`
	DatabaseID uint   `json:"databaseId"`
	Building   string `json:"building,omitempty"`
	Room       string `json:"room,omitempty"`
	Freezer    string `json:"freezer,omitempty"`
	Box        string `json:"box"`
	Position   string `json:"position,omitempty"`
}

type Plasmid struct {
	ID               uint   `json:"id"`
	DatabaseID       uint   `json:"databaseId"`
	Name             string `json:"name"`
	ResistanceMarker string `json:"resistanceMarker,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

type Strain struct {
	ID              uint               `json:"id"`
	DatabaseID      uint               `json:"databaseId"`
	StrainID        string             `json:"strainId"`
	Name            string             `json:"name"`
	OrganismID      uint               `json:"organismId"`
	Genotype        string             `json:"genotype,omitempty"`
	SelectiveMarker string             `json:"selectiveMarker,omitempty"`
	Comments        string             `json:"comments,omitempty"`
	LocationID      *uint              `json:"locationId,omitempty"`
	Status          model.StrainStatus `json:"status"`
	IsArchived      bool               `json:"isArchived"`
	ArchivedAt      string             `json:"archivedAt,omitempty"`
	ArchivedByID    *uint              `json:"archivedById,omitempty"`
	CreatedByID     *uint              `json:"createdById,omitempty"`
	CreatedAt       string             `json:"createdAt,omitempty"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
}

type StrainPlasmid struct {
	StrainID  uint `json:"strainId"`
	PlasmidID uint `json:"plasmidId"`
}

type FieldGroup struct {
	ID         uint   `json:"id"`
	DatabaseID uint   `json:"databaseId"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
}

type FieldDefinition struct {
	ID              uint               `json:"id"`
	DatabaseID      uint               `json:"databaseId"`
	Name            string             `json:"name"`
	Label           string             `json:"label,omitempty"`
	Key             string             `json:"key"`
	FieldType       model.FieldType    `json:"fieldType"`
	Choices         string             `json:"choices,omitempty"`
	DefaultValue    *string            `json:"defaultValue,omitempty"`
	HelpText        string             `json:"helpText,omitempty"`
	Required        bool               `json:"required"`
	IsUnique        bool               `json:"isUnique"`
	ConditionalLogic *model.Logic      `json:"conditionalLogic,omitempty"`
	Order           int                `json:"order"`
	GroupID         *uint              `json:"groupId,omitempty"`
	VisibleToRoles  model.RoleList     `json:"visibleToRoles,omitempty"`
	EditableToRoles model.RoleList     `json:"editableToRoles,omitempty"`
	RelatedKind     model.RelatedKind  `json:"relatedKind,omitempty"`
	CreatedByID     *uint              `json:"createdById,omitempty"`
	CreatedAt       string             `json:"createdAt,omitempty"`
}

type FieldValue struct {
	StrainID     uint `json:"strainId"`
	DefinitionID uint `json:"definitionId"`

	ValueText         *string            `json:"valueText,omitempty"`
	ValueLongText     *string            `json:"valueLongText,omitempty"`
	ValueInteger      *int64             `json:"valueInteger,omitempty"`
	ValueDecimal      *string            `json:"valueDecimal,omitempty"`
	ValueDate         *string            `json:"valueDate,omitempty"`
	ValueBoolean      *bool              `json:"valueBoolean,omitempty"`
	ValueSingleSelect *string            `json:"valueSingleSelect,omitempty"`
	ValueMultiSelect  []string           `json:"valueMultiSelect,omitempty"`
	ValueFKKind       *model.RelatedKind `json:"valueFkKind,omitempty"`
	ValueFKID         *uint              `json:"valueFkId,omitempty"`
	ValueFile         *string            `json:"valueFile,omitempty"`
	ValueURL          *string            `json:"valueUrl,omitempty"`
	ValueEmail        *string            `json:"valueEmail,omitempty"`
}

type AuditLog struct {
	DatabaseID *uint                  `json:"databaseId,omitempty"`
	UserRef
	Action     string                 `json:"action"`
	ObjectType string                 `json:"objectType,omitempty"`
	ObjectID   string                 `json:"objectId,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  string                 `json:"timestamp,omitempty"`
}

// WriteArchive packages a document as a zip with a single snapshot.json
// member.
func WriteArchive(w io.Writer, doc *Document) error {
	zw := zip.NewWriter(w)
	member, err := zw.Create(ArchiveMember)
	if err != nil {
		return fmt.Errorf("failed to create archive member: %w", err)
	}
	enc := json.NewEncoder(member)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return zw.Close()
}

// ReadArchive unpacks a snapshot zip and decodes its snapshot.json member.
// It rejects archives missing the member but leaves version and organization
// identity checks to the restore path, which reports them as conflicts.
func ReadArchive(r io.ReaderAt, size int64) (*Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != ArchiveMember {
			continue
		}
		member, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", ArchiveMember, err)
		}
		defer member.Close()
		var doc Document
		if err := json.NewDecoder(member).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		return &doc, nil
	}
	return nil, fmt.Errorf("archive has no %s member", ArchiveMember)
}

// ReadArchiveBytes is ReadArchive over an in-memory upload.
func ReadArchiveBytes(data []byte) (*Document, error) {
	return ReadArchive(bytes.NewReader(data), int64(len(data)))
}

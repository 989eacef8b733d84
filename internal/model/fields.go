package model

import (
	"strings"
	"time"
)

// FieldType is the value kind of a custom field definition. Exactly one typed
// column of FieldValue corresponds to each kind.
type FieldType string

const (
	FieldText         FieldType = "text"
	FieldLongText     FieldType = "long_text"
	FieldInteger      FieldType = "integer"
	FieldDecimal      FieldType = "decimal"
	FieldDate         FieldType = "date"
	FieldBoolean      FieldType = "boolean"
	FieldSingleSelect FieldType = "single_select"
	FieldMultiSelect  FieldType = "multi_select"
	FieldForeignKey   FieldType = "foreign_key"
	FieldFile         FieldType = "file"
	FieldURL          FieldType = "url"
	FieldEmail        FieldType = "email"
)

// FieldTypes lists all supported kinds.
var FieldTypes = []FieldType{
	FieldText, FieldLongText, FieldInteger, FieldDecimal, FieldDate, FieldBoolean,
	FieldSingleSelect, FieldMultiSelect, FieldForeignKey, FieldFile, FieldURL, FieldEmail,
}

// Valid reports whether the kind is one of the twelve supported kinds.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsSelect reports whether the kind draws its values from a choices list.
func (t FieldType) IsSelect() bool {
	return t == FieldSingleSelect || t == FieldMultiSelect
}

// RelatedKind names the entity type a FOREIGN_KEY field references.
type RelatedKind string

const (
	RelatedOrganism RelatedKind = "organism"
	RelatedPlasmid  RelatedKind = "plasmid"
	RelatedLocation RelatedKind = "location"
)

// Valid reports whether the kind names a referenceable entity.
func (k RelatedKind) Valid() bool {
	switch k {
	case RelatedOrganism, RelatedPlasmid, RelatedLocation:
		return true
	}
	return false
}

// RoleList restricts field visibility or editability. Empty means all roles.
type RoleList []DatabaseRole

// Allows reports whether the role passes the restriction.
func (l RoleList) Allows(role DatabaseRole) bool {
	if len(l) == 0 {
		return true
	}
	for _, r := range l {
		if r == role {
			return true
		}
	}
	return false
}

// LogicCondition is one comparison leaf of a conditional-logic tree.
type LogicCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Logic is a conditional-display expression over submitted field values:
// a single AND/OR node over comparison leaves.
type Logic struct {
	Operator   string           `json:"operator,omitempty"`
	Conditions []LogicCondition `json:"conditions,omitempty"`
}

// Empty reports whether the tree has no conditions.
func (l *Logic) Empty() bool {
	return l == nil || len(l.Conditions) == 0
}

// FieldGroup orders related field definitions together on a form.
type FieldGroup struct {
	ID         uint   `json:"id"    gorm:"primaryKey"`
	DatabaseID uint   `json:"-"     gorm:"not null;uniqueIndex:uniq_field_groups_db_name"`
	Name       string `json:"name"  gorm:"not null;uniqueIndex:uniq_field_groups_db_name"`
	Order      int    `json:"order" gorm:"not null;default:0;column:sort_order"`
}

func (FieldGroup) TableName() string { return "field_groups" }

// FieldDefinition describes one custom attribute a strain may carry.
// The key is derived from the name at creation when not supplied and never
// regenerated afterwards.
type FieldDefinition struct {
	ID               uint        `json:"id"        gorm:"primaryKey"`
	OrganizationID   uint        `json:"-"         gorm:"not null;index"`
	DatabaseID       uint        `json:"-"         gorm:"not null;uniqueIndex:uniq_field_defs_db_key;uniqueIndex:uniq_field_defs_db_name"`
	Name             string      `json:"name"      gorm:"not null;uniqueIndex:uniq_field_defs_db_name"`
	Label            string      `json:"label"`
	Key              string      `json:"key"       gorm:"not null;uniqueIndex:uniq_field_defs_db_key"`
	FieldType        FieldType   `json:"fieldType" gorm:"not null"`
	Choices          string      `json:"choices"`
	DefaultValue     *string     `json:"defaultValue,omitempty"`
	HelpText         string      `json:"helpText"`
	Required         bool        `json:"required"  gorm:"not null;default:false"`
	IsUnique         bool        `json:"isUnique"  gorm:"not null;default:false"`
	ConditionalLogic *Logic      `json:"conditionalLogic,omitempty" gorm:"serializer:json"`
	Order            int         `json:"order"     gorm:"not null;default:0;column:sort_order"`
	GroupID          *uint       `json:"groupId,omitempty"`
	VisibleToRoles   RoleList    `json:"visibleToRoles,omitempty"  gorm:"serializer:json"`
	EditableToRoles  RoleList    `json:"editableToRoles,omitempty" gorm:"serializer:json"`
	RelatedKind      RelatedKind `json:"relatedKind,omitempty"`
	CreatedByID      *uint       `json:"createdById,omitempty"`
	CreatedAt        time.Time   `json:"createdAt" gorm:"not null"`
}

func (FieldDefinition) TableName() string { return "field_definitions" }

// ParsedChoices normalizes the comma-separated choices attribute: entries are
// trimmed, blanks dropped, order preserved, no dedup. Non-select kinds always
// return an empty list.
func (d FieldDefinition) ParsedChoices() []string {
	if !d.FieldType.IsSelect() {
		return []string{}
	}
	parts := strings.Split(d.Choices, ",")
	choices := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			choices = append(choices, trimmed)
		}
	}
	return choices
}

// FieldValue stores one definition's value for one strain. Exactly the column
// matching the owning definition's FieldType is populated; all others stay
// null. Clearing a value deletes the row, except boolean false which is a
// meaningful answer and is kept.
type FieldValue struct {
	ID           uint  `json:"-" gorm:"primaryKey"`
	StrainID     uint  `json:"strainId"     gorm:"not null;uniqueIndex:uniq_field_values_strain_def"`
	DefinitionID uint  `json:"definitionId" gorm:"not null;uniqueIndex:uniq_field_values_strain_def"`

	ValueText         *string      `json:"valueText,omitempty"`
	ValueLongText     *string      `json:"valueLongText,omitempty"`
	ValueInteger      *int64       `json:"valueInteger,omitempty"`
	ValueDecimal      *string      `json:"valueDecimal,omitempty"`
	ValueDate         *string      `json:"valueDate,omitempty"`
	ValueBoolean      *bool        `json:"valueBoolean,omitempty"`
	ValueSingleSelect *string      `json:"valueSingleSelect,omitempty"`
	ValueMultiSelect  []string     `json:"valueMultiSelect,omitempty" gorm:"serializer:json"`
	ValueFKKind       *RelatedKind `json:"valueFkKind,omitempty"`
	ValueFKID         *uint        `json:"valueFkId,omitempty"`
	ValueFile         *string      `json:"valueFile,omitempty"`
	ValueURL          *string      `json:"valueUrl,omitempty"`
	ValueEmail        *string      `json:"valueEmail,omitempty"`
}

func (FieldValue) TableName() string { return "field_values" }

// Clear nulls every typed column. Callers repopulate exactly one afterwards.
func (v *FieldValue) Clear() {
	v.ValueText = nil
	v.ValueLongText = nil
	v.ValueInteger = nil
	v.ValueDecimal = nil
	v.ValueDate = nil
	v.ValueBoolean = nil
	v.ValueSingleSelect = nil
	v.ValueMultiSelect = nil
	v.ValueFKKind = nil
	v.ValueFKID = nil
	v.ValueFile = nil
	v.ValueURL = nil
	v.ValueEmail = nil
}

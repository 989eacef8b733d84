package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	registrycache "github.com/helixmapr/helixmapr/internal/registry/cache"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
	"gorm.io/gorm"
)

// loadSchema returns the field schema of one database, reading through the
// schema cache when one is configured.
func (s *GormStore) loadSchema(ctx context.Context, tx *gorm.DB, databaseID uint) ([]model.FieldDefinition, []model.FieldGroup, error) {
	if s.schemaCache != nil && s.schemaCache.Available() {
		cached, err := s.schemaCache.Get(ctx, databaseID)
		if err == nil && cached != nil {
			if security.CacheHitsTotal != nil {
				security.CacheHitsTotal.Inc()
			}
			return cached.Definitions, cached.Groups, nil
		}
	}

	// Schema order is group order first, then field order, then id as a
	// stable tiebreak. Ungrouped definitions sort ahead of grouped ones.
	var definitions []model.FieldDefinition
	if err := tx.WithContext(ctx).Model(&model.FieldDefinition{}).
		Joins("LEFT JOIN field_groups ON field_groups.id = field_definitions.group_id").
		Where("field_definitions.database_id = ?", databaseID).
		Order("COALESCE(field_groups.sort_order, 0), field_definitions.sort_order, field_definitions.id").
		Find(&definitions).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load field definitions: %w", err)
	}
	var groups []model.FieldGroup
	if err := tx.WithContext(ctx).Where("database_id = ?", databaseID).
		Order("sort_order, id").Find(&groups).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load field groups: %w", err)
	}

	if s.schemaCache != nil && s.schemaCache.Available() {
		if security.CacheMissesTotal != nil {
			security.CacheMissesTotal.Inc()
		}
		ttl := time.Duration(0)
		if s.cfg != nil {
			ttl = s.cfg.SchemaCacheTTL
		}
		if err := s.schemaCache.Set(ctx, databaseID, registrycache.CachedSchema{Definitions: definitions, Groups: groups}, ttl); err != nil {
			log.Warn("schema cache set error", "err", err)
		}
	}
	return definitions, groups, nil
}

func (s *GormStore) invalidateSchema(ctx context.Context, databaseID uint) {
	if s.schemaCache == nil || !s.schemaCache.Available() {
		return
	}
	if err := s.schemaCache.Remove(ctx, databaseID); err != nil {
		log.Warn("schema cache invalidate error", "databaseID", databaseID, "err", err)
	}
}

// --- Field groups ---

func (s *GormStore) ListFieldGroups(ctx context.Context, userID string, databaseID uint) ([]model.FieldGroup, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}
	_, groups, err := s.loadSchema(ctx, s.db, databaseID)
	return groups, err
}

func (s *GormStore) CreateFieldGroup(ctx context.Context, userID string, databaseID uint, name string, order int) (*model.FieldGroup, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	var group model.FieldGroup
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleAdmin); err != nil {
			return err
		}
		group = model.FieldGroup{DatabaseID: databaseID, Name: name, Order: order}
		if err := tx.Create(&group).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("field group %q already exists", name)}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSchema(ctx, databaseID)
	return &group, nil
}

func (s *GormStore) UpdateFieldGroup(ctx context.Context, userID string, groupID uint, name *string, order *int) (*model.FieldGroup, error) {
	var group model.FieldGroup
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", groupID).Limit(1).Find(&group)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "field group", ID: fmt.Sprint(groupID)}
		}
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, group.DatabaseID, model.RoleAdmin); err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if name != nil {
			if *name == "" {
				return &ValidationError{Field: "name", Message: "must not be empty"}
			}
			updates["name"] = *name
			group.Name = *name
		}
		if order != nil {
			updates["sort_order"] = *order
			group.Order = *order
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&model.FieldGroup{}).Where("id = ?", groupID).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("field group %q already exists", group.Name)}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSchema(ctx, group.DatabaseID)
	return &group, nil
}

func (s *GormStore) DeleteFieldGroup(ctx context.Context, userID string, groupID uint) error {
	var databaseID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group model.FieldGroup
		result := tx.Where("id = ?", groupID).Limit(1).Find(&group)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "field group", ID: fmt.Sprint(groupID)}
		}
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, group.DatabaseID, model.RoleAdmin); err != nil {
			return err
		}
		databaseID = group.DatabaseID
		// Definitions survive their group; they just become ungrouped.
		if err := tx.Model(&model.FieldDefinition{}).Where("group_id = ?", groupID).
			Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", groupID).Delete(&model.FieldGroup{}).Error
	})
	if err != nil {
		return err
	}
	s.invalidateSchema(ctx, databaseID)
	return nil
}

// --- Field definitions ---

func (s *GormStore) ListFieldDefinitions(ctx context.Context, userID string, databaseID uint) ([]model.FieldDefinition, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}
	definitions, _, err := s.loadSchema(ctx, s.db, databaseID)
	return definitions, err
}

// fieldKey derives a storage key from a display name: lowercased, runs of
// non-alphanumerics collapsed to single underscores.
func fieldKey(name string) string {
	return strings.ReplaceAll(fields.Slugify(name), "-", "_")
}

func validateDefinition(def *model.FieldDefinition) error {
	if def.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !def.FieldType.Valid() {
		return &ValidationError{Field: "fieldType", Message: fmt.Sprintf("unknown field type %q", def.FieldType)}
	}
	if def.FieldType.IsSelect() && len(def.ParsedChoices()) == 0 {
		return &ValidationError{Field: "choices", Message: "select fields require at least one choice"}
	}
	if def.FieldType == model.FieldForeignKey && !def.RelatedKind.Valid() {
		return &ValidationError{Field: "relatedKind", Message: fmt.Sprintf("unknown related kind %q", def.RelatedKind)}
	}
	if def.ConditionalLogic != nil {
		if err := fields.ValidateLogic(def.ConditionalLogic); err != nil {
			return &ValidationError{Field: "conditionalLogic", Message: err.Error()}
		}
	}
	for _, role := range def.VisibleToRoles {
		if !role.IsAtLeast(model.RoleViewer) {
			return &ValidationError{Field: "visibleToRoles", Message: fmt.Sprintf("unknown role %q", role)}
		}
	}
	for _, role := range def.EditableToRoles {
		if !role.IsAtLeast(model.RoleViewer) {
			return &ValidationError{Field: "editableToRoles", Message: fmt.Sprintf("unknown role %q", role)}
		}
	}
	return nil
}

func (s *GormStore) CreateFieldDefinition(ctx context.Context, userID string, databaseID uint, def model.FieldDefinition) (*model.FieldDefinition, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, db, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleAdmin)
		if err != nil {
			return err
		}
		def.ID = 0
		def.DatabaseID = databaseID
		def.OrganizationID = db.OrganizationID
		def.CreatedByID = &user.ID
		def.CreatedAt = time.Now().UTC()
		if def.Key == "" {
			def.Key = fieldKey(def.Name)
		}
		if def.Key == "" {
			return &ValidationError{Field: "key", Message: "cannot derive a key from the name"}
		}
		if err := validateDefinition(&def); err != nil {
			return err
		}
		if err := tx.Create(&def).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("field %q already exists", def.Name)}
			}
			return err
		}
		return writeAudit(ctx, tx, &databaseID, def.CreatedByID, model.AuditFieldCreate, "field_definition",
			fmt.Sprint(def.ID), map[string]interface{}{"name": def.Name, "key": def.Key, "fieldType": string(def.FieldType)})
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSchema(ctx, databaseID)
	return &def, nil
}

func (s *GormStore) UpdateFieldDefinition(ctx context.Context, userID string, definitionID uint, update registrystore.FieldDefinitionUpdate) (*model.FieldDefinition, error) {
	var def model.FieldDefinition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", definitionID).Limit(1).Find(&def)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "field definition", ID: fmt.Sprint(definitionID)}
		}
		user, _, _, err := s.requireDatabaseRole(ctx, tx, userID, def.DatabaseID, model.RoleAdmin)
		if err != nil {
			return err
		}

		if update.FieldType != nil && *update.FieldType != def.FieldType {
			var count int64
			if err := tx.Model(&model.FieldValue{}).Where("definition_id = ?", def.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return &ValidationError{Field: "fieldType", Message: "cannot change the type of a field that already has values"}
			}
			def.FieldType = *update.FieldType
		}
		if update.Name != nil {
			def.Name = *update.Name
		}
		if update.Label != nil {
			def.Label = *update.Label
		}
		if update.Choices != nil {
			def.Choices = *update.Choices
		}
		if update.DefaultValue != nil {
			def.DefaultValue = update.DefaultValue
		}
		if update.HelpText != nil {
			def.HelpText = *update.HelpText
		}
		if update.Required != nil {
			def.Required = *update.Required
		}
		if update.IsUnique != nil {
			def.IsUnique = *update.IsUnique
		}
		if update.ClearLogic {
			def.ConditionalLogic = nil
		} else if update.ConditionalLogic != nil {
			def.ConditionalLogic = update.ConditionalLogic
		}
		if update.Order != nil {
			def.Order = *update.Order
		}
		if update.ClearGroup {
			def.GroupID = nil
		} else if update.GroupID != nil {
			def.GroupID = update.GroupID
		}
		if update.VisibleToRoles != nil {
			def.VisibleToRoles = *update.VisibleToRoles
		}
		if update.EditableToRoles != nil {
			def.EditableToRoles = *update.EditableToRoles
		}
		if update.RelatedKind != nil {
			def.RelatedKind = *update.RelatedKind
		}
		if err := validateDefinition(&def); err != nil {
			return err
		}

		if err := tx.Session(&gorm.Session{FullSaveAssociations: false}).Save(&def).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("field %q already exists", def.Name)}
			}
			return err
		}
		return writeAudit(ctx, tx, &def.DatabaseID, &user.ID, model.AuditFieldUpdate, "field_definition",
			fmt.Sprint(def.ID), map[string]interface{}{"name": def.Name, "key": def.Key})
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSchema(ctx, def.DatabaseID)
	return &def, nil
}

func (s *GormStore) DeleteFieldDefinition(ctx context.Context, userID string, definitionID uint) error {
	var databaseID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var def model.FieldDefinition
		result := tx.Where("id = ?", definitionID).Limit(1).Find(&def)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "field definition", ID: fmt.Sprint(definitionID)}
		}
		user, _, _, err := s.requireDatabaseRole(ctx, tx, userID, def.DatabaseID, model.RoleAdmin)
		if err != nil {
			return err
		}
		databaseID = def.DatabaseID
		if err := tx.Where("definition_id = ?", def.ID).Delete(&model.FieldValue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", def.ID).Delete(&model.FieldDefinition{}).Error; err != nil {
			return err
		}
		return writeAudit(ctx, tx, &def.DatabaseID, &user.ID, model.AuditFieldDelete, "field_definition",
			fmt.Sprint(def.ID), map[string]interface{}{"name": def.Name, "key": def.Key})
	})
	if err != nil {
		return err
	}
	s.invalidateSchema(ctx, databaseID)
	return nil
}

// --- Dynamic forms ---

func (s *GormStore) BuildStrainForm(ctx context.Context, userID string, databaseID uint, strainID *uint) ([]fields.Spec, error) {
	_, _, role, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	definitions, groups, err := s.loadSchema(ctx, s.db, databaseID)
	if err != nil {
		return nil, err
	}

	groupsByID := make(map[uint]model.FieldGroup, len(groups))
	for _, g := range groups {
		groupsByID[g.ID] = g
	}

	existing := map[uint]model.FieldValue{}
	if strainID != nil {
		var strain model.Strain
		result := s.db.WithContext(ctx).Where("id = ? AND database_id = ?", *strainID, databaseID).Limit(1).Find(&strain)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, &NotFoundError{Resource: "strain", ID: fmt.Sprint(*strainID)}
		}
		var rows []model.FieldValue
		if err := s.db.WithContext(ctx).Where("strain_id = ?", *strainID).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			existing[row.DefinitionID] = row
		}
	}

	return fields.BuildSpecs(definitions, groupsByID, role, existing, s.optionSource(ctx, databaseID), strainID == nil), nil
}

// optionSource supplies FK field options from the database's catalog tables.
func (s *GormStore) optionSource(ctx context.Context, databaseID uint) fields.OptionSource {
	return func(kind model.RelatedKind) []fields.Option {
		var options []fields.Option
		switch kind {
		case model.RelatedOrganism:
			var organisms []model.Organism
			if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).Order("name").Find(&organisms).Error; err != nil {
				log.Warn("failed to load organism options", "err", err)
				return nil
			}
			for _, o := range organisms {
				options = append(options, fields.Option{ID: o.ID, Label: o.Name})
			}
		case model.RelatedPlasmid:
			var plasmids []model.Plasmid
			if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).Order("name").Find(&plasmids).Error; err != nil {
				log.Warn("failed to load plasmid options", "err", err)
				return nil
			}
			for _, p := range plasmids {
				options = append(options, fields.Option{ID: p.ID, Label: p.Name})
			}
		case model.RelatedLocation:
			var locations []model.Location
			if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).
				Order("building, room, freezer, box, position").Find(&locations).Error; err != nil {
				log.Warn("failed to load location options", "err", err)
				return nil
			}
			for _, l := range locations {
				options = append(options, fields.Option{ID: l.ID, Label: l.Label()})
			}
		}
		return options
	}
}

// saveCustomValues reconciles submitted custom values against the stored rows
// of one strain, inside the caller's transaction.
//
// Per definition: unknown keys are ignored, fields the role cannot see or
// edit are left untouched, a field hidden by its conditional logic keeps its
// prior value, and an empty or absent submission deletes the stored row
// (boolean false is a kept answer, not an empty). Everything else is coerced,
// checked for uniqueness, and upserted. A nil submission map means the caller
// did not touch custom values at all and leaves every row as it is.
func (s *GormStore) saveCustomValues(ctx context.Context, tx *gorm.DB, role model.DatabaseRole, databaseID uint, strainID uint, submitted map[string]interface{}, definitions []model.FieldDefinition) error {
	if submitted == nil {
		return nil
	}

	var rows []model.FieldValue
	if err := tx.WithContext(ctx).Where("strain_id = ?", strainID).Find(&rows).Error; err != nil {
		return err
	}
	existing := make(map[uint]model.FieldValue, len(rows))
	for _, row := range rows {
		existing[row.DefinitionID] = row
	}

	// Evaluation context: stored values overlaid with the submission.
	evalValues := map[string]interface{}{}
	for _, def := range definitions {
		if row, ok := existing[def.ID]; ok {
			if value, ok := fields.FromRow(def, row); ok {
				evalValues[def.Key] = value.Compare()
			}
		}
	}
	for key, raw := range submitted {
		evalValues[key] = raw
	}

	for _, def := range definitions {
		// Absent keys fall through as nil, which counts as an empty
		// submission and clears the stored value.
		raw := submitted[def.Key]
		if !def.VisibleToRoles.Allows(role) || !def.EditableToRoles.Allows(role) {
			continue
		}
		if !fields.Evaluate(def.ConditionalLogic, evalValues) {
			// Hidden by logic: retain whatever is stored.
			continue
		}

		if fields.IsEmpty(def, raw) {
			if def.Required {
				return &ValidationError{Field: def.Key, Message: "this field is required"}
			}
			if _, ok := existing[def.ID]; ok {
				if err := tx.Where("strain_id = ? AND definition_id = ?", strainID, def.ID).
					Delete(&model.FieldValue{}).Error; err != nil {
					return err
				}
			}
			continue
		}

		value, err := fields.Coerce(def, raw)
		if err != nil {
			return &ValidationError{Field: def.Key, Message: err.Error()}
		}

		if def.IsUnique {
			taken, err := s.uniqueValueTaken(ctx, tx, def, strainID, value)
			if err != nil {
				return err
			}
			if taken {
				return &ValidationError{Field: def.Key, Message: "this value is already used by another strain"}
			}
		}

		row, ok := existing[def.ID]
		if !ok {
			row = model.FieldValue{StrainID: strainID, DefinitionID: def.ID}
		}
		value.Apply(&row)
		if err := tx.Save(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("value for %q conflicts with another strain", def.Key)}
			}
			return err
		}
	}
	return nil
}

// uniqueValueTaken reports whether another strain in the same database already
// stores this value for the definition. Multi-select fields are exempt.
func (s *GormStore) uniqueValueTaken(ctx context.Context, tx *gorm.DB, def model.FieldDefinition, strainID uint, value fields.Value) (bool, error) {
	column := ""
	var arg interface{}
	switch def.FieldType {
	case model.FieldText:
		column, arg = "value_text", value.Text
	case model.FieldLongText:
		column, arg = "value_long_text", value.Text
	case model.FieldInteger:
		column, arg = "value_integer", value.Integer
	case model.FieldDecimal:
		column, arg = "value_decimal", value.Decimal
	case model.FieldDate:
		column, arg = "value_date", value.Date
	case model.FieldBoolean:
		column, arg = "value_boolean", value.Bool
	case model.FieldSingleSelect:
		column, arg = "value_single_select", value.Select
	case model.FieldForeignKey:
		column, arg = "value_fk_id", value.Ref.ID
	case model.FieldFile:
		column, arg = "value_file", value.File
	case model.FieldURL:
		column, arg = "value_url", value.URL
	case model.FieldEmail:
		column, arg = "value_email", value.Email
	default:
		return false, nil
	}

	var count int64
	err := tx.WithContext(ctx).Model(&model.FieldValue{}).
		Where("definition_id = ? AND strain_id <> ? AND "+column+" = ?", def.ID, strainID, arg).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

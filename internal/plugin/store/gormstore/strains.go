package gormstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"gorm.io/gorm"
)

const defaultPageLimit = 50

// strainSortColumns whitelists user-supplied sort keys.
var strainSortColumns = map[string]string{
	"strain_id":  "strain_id",
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"status":     "status",
}

func (s *GormStore) ListStrains(ctx context.Context, userID string, databaseID uint, query registrystore.StrainQuery) (*registrystore.PagedStrains, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}

	var err error
	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultPageLimit
	}
	offset := 0
	if query.AfterCursor != nil {
		offset, err = strconv.Atoi(*query.AfterCursor)
		if err != nil || offset < 0 {
			return nil, &ValidationError{Field: "afterCursor", Message: "invalid cursor"}
		}
	}

	q := s.db.WithContext(ctx).Model(&model.Strain{}).Where("database_id = ?", databaseID)
	if !query.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.OrganismID != nil {
		q = q.Where("organism_id = ?", *query.OrganismID)
	}
	if query.LocationID != nil {
		q = q.Where("location_id = ?", *query.LocationID)
	}
	if query.PlasmidID != nil {
		q = q.Where("id IN (SELECT strain_id FROM strain_plasmids WHERE plasmid_id = ?)", *query.PlasmidID)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(strain_id) LIKE ? OR LOWER(name) LIKE ? OR LOWER(genotype) LIKE ? OR LOWER(comments) LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	definitions, _, err := s.loadSchema(ctx, s.db, databaseID)
	if err != nil {
		return nil, err
	}
	definitionsByKey := make(map[string]model.FieldDefinition, len(definitions))
	for _, def := range definitions {
		definitionsByKey[def.Key] = def
	}
	for _, filter := range query.CustomFilters {
		def, ok := definitionsByKey[strings.TrimPrefix(filter.Key, "custom_")]
		if !ok {
			return nil, &ValidationError{Field: "filters", Message: fmt.Sprintf("unknown field %q", filter.Key)}
		}
		q, err = applyCustomFilter(q, def, filter)
		if err != nil {
			return nil, err
		}
	}

	order := "strain_id"
	if query.SortBy != "" {
		column, ok := strainSortColumns[query.SortBy]
		if !ok {
			return nil, &ValidationError{Field: "sortBy", Message: fmt.Sprintf("unknown sort key %q", query.SortBy)}
		}
		order = column
	}
	if query.SortDesc {
		order += " DESC"
	}

	var strains []model.Strain
	if err := q.Order(order).Order("id").Offset(offset).Limit(limit + 1).Find(&strains).Error; err != nil {
		return nil, fmt.Errorf("failed to list strains: %w", err)
	}

	var afterCursor *string
	if len(strains) > limit {
		strains = strains[:limit]
		next := strconv.Itoa(offset + limit)
		afterCursor = &next
	}

	summaries, err := s.summarize(ctx, s.db, databaseID, strains)
	if err != nil {
		return nil, err
	}
	return &registrystore.PagedStrains{Data: summaries, AfterCursor: afterCursor}, nil
}

// applyCustomFilter narrows the strain query on one custom field value using
// the same operator vocabulary as conditional logic.
func applyCustomFilter(q *gorm.DB, def model.FieldDefinition, filter registrystore.CustomFilter) (*gorm.DB, error) {
	sub := "SELECT strain_id FROM field_values WHERE definition_id = ? AND %s"

	var cond string
	var args []interface{}
	switch filter.Operator {
	case "equals", "not_equals":
		value, err := fields.Coerce(def, filter.Value)
		if err != nil {
			return nil, &ValidationError{Field: "filters", Message: err.Error()}
		}
		column, arg, ok := typedColumn(def, value)
		if !ok {
			return nil, &ValidationError{Field: "filters", Message: fmt.Sprintf("field %q cannot be filtered with %s", def.Key, filter.Operator)}
		}
		cond, args = column+" = ?", []interface{}{arg}
	case "contains":
		text := fmt.Sprintf("%v", filter.Value)
		pattern := "%" + strings.ToLower(text) + "%"
		switch def.FieldType {
		case model.FieldText:
			cond, args = "LOWER(value_text) LIKE ?", []interface{}{pattern}
		case model.FieldLongText:
			cond, args = "LOWER(value_long_text) LIKE ?", []interface{}{pattern}
		case model.FieldMultiSelect:
			cond, args = "LOWER(value_multi_select) LIKE ?", []interface{}{pattern}
		case model.FieldURL:
			cond, args = "LOWER(value_url) LIKE ?", []interface{}{pattern}
		case model.FieldEmail:
			cond, args = "LOWER(value_email) LIKE ?", []interface{}{pattern}
		default:
			return nil, &ValidationError{Field: "filters", Message: fmt.Sprintf("field %q does not support contains", def.Key)}
		}
	case "gt", "lt":
		op := ">"
		if filter.Operator == "lt" {
			op = "<"
		}
		switch def.FieldType {
		case model.FieldInteger:
			cond, args = "value_integer "+op+" ?", []interface{}{filter.Value}
		case model.FieldDecimal:
			cond, args = "CAST(value_decimal AS DECIMAL) "+op+" ?", []interface{}{filter.Value}
		case model.FieldDate:
			cond, args = "value_date "+op+" ?", []interface{}{fmt.Sprintf("%v", filter.Value)}
		default:
			return nil, &ValidationError{Field: "filters", Message: fmt.Sprintf("field %q does not support %s", def.Key, filter.Operator)}
		}
	default:
		return nil, &ValidationError{Field: "filters", Message: fmt.Sprintf("unknown operator %q", filter.Operator)}
	}

	subquery := fmt.Sprintf(sub, cond)
	allArgs := append([]interface{}{def.ID}, args...)
	if filter.Operator == "not_equals" {
		return q.Where("id NOT IN ("+subquery+")", allArgs...), nil
	}
	return q.Where("id IN ("+subquery+")", allArgs...), nil
}

// typedColumn maps a coerced value to its storage column and SQL argument.
func typedColumn(def model.FieldDefinition, value fields.Value) (string, interface{}, bool) {
	switch def.FieldType {
	case model.FieldText:
		return "value_text", value.Text, true
	case model.FieldLongText:
		return "value_long_text", value.Text, true
	case model.FieldInteger:
		return "value_integer", value.Integer, true
	case model.FieldDecimal:
		return "value_decimal", value.Decimal, true
	case model.FieldDate:
		return "value_date", value.Date, true
	case model.FieldBoolean:
		return "value_boolean", value.Bool, true
	case model.FieldSingleSelect:
		return "value_single_select", value.Select, true
	case model.FieldForeignKey:
		return "value_fk_id", value.Ref.ID, true
	case model.FieldFile:
		return "value_file", value.File, true
	case model.FieldURL:
		return "value_url", value.URL, true
	case model.FieldEmail:
		return "value_email", value.Email, true
	}
	return "", nil, false
}

// summarize decorates strains with organism names, location labels and
// plasmid links using three batched lookups. Lookups run on tx so callers
// inside a transaction see their own writes and do not block on a second
// pool connection.
func (s *GormStore) summarize(ctx context.Context, tx *gorm.DB, databaseID uint, strains []model.Strain) ([]registrystore.StrainSummary, error) {
	summaries := make([]registrystore.StrainSummary, len(strains))
	if len(strains) == 0 {
		return summaries, nil
	}

	var organisms []model.Organism
	if err := tx.WithContext(ctx).Where("database_id = ?", databaseID).Find(&organisms).Error; err != nil {
		return nil, err
	}
	organismNames := make(map[uint]string, len(organisms))
	for _, o := range organisms {
		organismNames[o.ID] = o.Name
	}

	var locations []model.Location
	if err := tx.WithContext(ctx).Where("database_id = ?", databaseID).Find(&locations).Error; err != nil {
		return nil, err
	}
	locationLabels := make(map[uint]string, len(locations))
	for _, l := range locations {
		locationLabels[l.ID] = l.Label()
	}

	ids := make([]uint, len(strains))
	for i, strain := range strains {
		ids[i] = strain.ID
	}
	var links []model.StrainPlasmid
	if err := tx.WithContext(ctx).Where("strain_id IN ?", ids).Find(&links).Error; err != nil {
		return nil, err
	}
	plasmidsByStrain := map[uint][]uint{}
	for _, link := range links {
		plasmidsByStrain[link.StrainID] = append(plasmidsByStrain[link.StrainID], link.PlasmidID)
	}

	for i, strain := range strains {
		summary := registrystore.StrainSummary{
			Strain:     strain,
			PlasmidIDs: plasmidsByStrain[strain.ID],
		}
		summary.OrganismName = organismNames[strain.OrganismID]
		if strain.LocationID != nil {
			summary.LocationLabel = locationLabels[*strain.LocationID]
		}
		summaries[i] = summary
	}
	return summaries, nil
}

func (s *GormStore) GetStrain(ctx context.Context, userID string, strainID uint) (*registrystore.StrainDetail, error) {
	strain, role, err := s.strainWithRole(ctx, s.db, userID, strainID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, s.db, *strain, role)
}

// strainWithRole loads a strain and verifies the caller's role on its
// database in one step.
func (s *GormStore) strainWithRole(ctx context.Context, tx *gorm.DB, userID string, strainID uint, minRole model.DatabaseRole) (*model.Strain, model.DatabaseRole, error) {
	var strain model.Strain
	result := tx.WithContext(ctx).Where("id = ?", strainID).Limit(1).Find(&strain)
	if result.Error != nil {
		return nil, model.RoleNone, fmt.Errorf("failed to look up strain: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, model.RoleNone, &NotFoundError{Resource: "strain", ID: fmt.Sprint(strainID)}
	}
	_, _, role, err := s.requireDatabaseRole(ctx, tx, userID, strain.DatabaseID, minRole)
	if err != nil {
		return nil, model.RoleNone, err
	}
	return &strain, role, nil
}

// detail builds the full strain representation. Custom values are filtered to
// the fields the caller's role may see.
func (s *GormStore) detail(ctx context.Context, tx *gorm.DB, strain model.Strain, role model.DatabaseRole) (*registrystore.StrainDetail, error) {
	summaries, err := s.summarize(ctx, tx, strain.DatabaseID, []model.Strain{strain})
	if err != nil {
		return nil, err
	}

	definitions, _, err := s.loadSchema(ctx, tx, strain.DatabaseID)
	if err != nil {
		return nil, err
	}
	var rows []model.FieldValue
	if err := tx.WithContext(ctx).Where("strain_id = ?", strain.ID).Find(&rows).Error; err != nil {
		return nil, err
	}
	byDefinition := make(map[uint]model.FieldValue, len(rows))
	for _, row := range rows {
		byDefinition[row.DefinitionID] = row
	}

	values := map[string]interface{}{}
	for _, def := range definitions {
		if !def.VisibleToRoles.Allows(role) {
			continue
		}
		if row, ok := byDefinition[def.ID]; ok {
			if value, ok := fields.FromRow(def, row); ok {
				values[def.Key] = value.Display()
			}
		}
	}

	return &registrystore.StrainDetail{
		StrainSummary: summaries[0],
		CustomValues:  values,
	}, nil
}

func (s *GormStore) CreateStrain(ctx context.Context, userID string, databaseID uint, req registrystore.CreateStrainRequest) (*registrystore.StrainDetail, error) {
	if req.StrainID == "" {
		return nil, &ValidationError{Field: "strainId", Message: "must not be empty"}
	}
	if req.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}

	var detail *registrystore.StrainDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, _, role, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleEditor)
		if err != nil {
			return err
		}
		if err := s.checkStrainRefs(ctx, tx, databaseID, req.OrganismID, req.LocationID, req.PlasmidIDs); err != nil {
			return err
		}

		now := time.Now().UTC()
		strain := model.Strain{
			DatabaseID:      databaseID,
			StrainID:        req.StrainID,
			Name:            req.Name,
			OrganismID:      req.OrganismID,
			Genotype:        req.Genotype,
			SelectiveMarker: req.SelectiveMarker,
			Comments:        req.Comments,
			LocationID:      req.LocationID,
			Status:          model.StrainActive,
			CreatedByID:     &user.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&strain).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("strain %q already exists", req.StrainID)}
			}
			return err
		}
		if err := s.replacePlasmidLinks(ctx, tx, strain.ID, req.PlasmidIDs); err != nil {
			return err
		}

		definitions, _, err := s.loadSchema(ctx, tx, databaseID)
		if err != nil {
			return err
		}
		if err := s.saveCustomValues(ctx, tx, role, databaseID, strain.ID, req.CustomValues, definitions); err != nil {
			return err
		}
		if err := s.writeStrainVersion(ctx, tx, strain, &user.ID); err != nil {
			return err
		}
		if err := writeAudit(ctx, tx, &databaseID, &user.ID, model.AuditStrainCreate, "strain",
			fmt.Sprint(strain.ID), map[string]interface{}{"strainId": strain.StrainID, "name": strain.Name}); err != nil {
			return err
		}

		detail, err = s.detail(ctx, tx, strain, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *GormStore) UpdateStrain(ctx context.Context, userID string, strainID uint, req registrystore.UpdateStrainRequest) (*registrystore.StrainDetail, error) {
	var detail *registrystore.StrainDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		strain, role, err := s.strainWithRole(ctx, tx, userID, strainID, model.RoleEditor)
		if err != nil {
			return err
		}
		user, err := s.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if strain.IsArchived {
			return &ValidationError{Field: "strain", Message: "archived strains are read-only; unarchive first"}
		}

		if req.StrainID != nil {
			if *req.StrainID == "" {
				return &ValidationError{Field: "strainId", Message: "must not be empty"}
			}
			strain.StrainID = *req.StrainID
		}
		if req.Name != nil {
			if *req.Name == "" {
				return &ValidationError{Field: "name", Message: "must not be empty"}
			}
			strain.Name = *req.Name
		}
		if req.OrganismID != nil {
			strain.OrganismID = *req.OrganismID
		}
		if req.Genotype != nil {
			strain.Genotype = *req.Genotype
		}
		if req.SelectiveMarker != nil {
			strain.SelectiveMarker = *req.SelectiveMarker
		}
		if req.Comments != nil {
			strain.Comments = *req.Comments
		}
		if req.ClearLocation {
			strain.LocationID = nil
		} else if req.LocationID != nil {
			strain.LocationID = req.LocationID
		}

		var plasmidIDs []uint
		if req.PlasmidIDs != nil {
			plasmidIDs = *req.PlasmidIDs
		}
		if err := s.checkStrainRefs(ctx, tx, strain.DatabaseID, strain.OrganismID, strain.LocationID, plasmidIDs); err != nil {
			return err
		}

		strain.UpdatedAt = time.Now().UTC()
		if err := tx.Save(strain).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("strain %q already exists", strain.StrainID)}
			}
			return err
		}
		if req.PlasmidIDs != nil {
			if err := tx.Where("strain_id = ?", strain.ID).Delete(&model.StrainPlasmid{}).Error; err != nil {
				return err
			}
			if err := s.replacePlasmidLinks(ctx, tx, strain.ID, plasmidIDs); err != nil {
				return err
			}
		}

		definitions, _, err := s.loadSchema(ctx, tx, strain.DatabaseID)
		if err != nil {
			return err
		}
		if err := s.saveCustomValues(ctx, tx, role, strain.DatabaseID, strain.ID, req.CustomValues, definitions); err != nil {
			return err
		}
		if err := s.writeStrainVersion(ctx, tx, *strain, &user.ID); err != nil {
			return err
		}
		if err := writeAudit(ctx, tx, &strain.DatabaseID, &user.ID, model.AuditStrainUpdate, "strain",
			fmt.Sprint(strain.ID), map[string]interface{}{"strainId": strain.StrainID}); err != nil {
			return err
		}

		detail, err = s.detail(ctx, tx, *strain, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// checkStrainRefs verifies that organism, location and plasmid references
// belong to the strain's database.
func (s *GormStore) checkStrainRefs(ctx context.Context, tx *gorm.DB, databaseID uint, organismID uint, locationID *uint, plasmidIDs []uint) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&model.Organism{}).
		Where("id = ? AND database_id = ?", organismID, databaseID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &ValidationError{Field: "organismId", Message: "organism does not exist in this database"}
	}
	if locationID != nil {
		if err := tx.WithContext(ctx).Model(&model.Location{}).
			Where("id = ? AND database_id = ?", *locationID, databaseID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return &ValidationError{Field: "locationId", Message: "location does not exist in this database"}
		}
	}
	if len(plasmidIDs) > 0 {
		if err := tx.WithContext(ctx).Model(&model.Plasmid{}).
			Where("id IN ? AND database_id = ?", plasmidIDs, databaseID).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(plasmidIDs)) {
			return &ValidationError{Field: "plasmidIds", Message: "one or more plasmids do not exist in this database"}
		}
	}
	return nil
}

func (s *GormStore) replacePlasmidLinks(ctx context.Context, tx *gorm.DB, strainID uint, plasmidIDs []uint) error {
	for _, plasmidID := range plasmidIDs {
		link := model.StrainPlasmid{StrainID: strainID, PlasmidID: plasmidID}
		if err := tx.WithContext(ctx).Create(&link).Error; err != nil && !isUniqueViolation(err) {
			return err
		}
	}
	return nil
}

func (s *GormStore) DeleteStrain(ctx context.Context, userID string, strainID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		strain, _, err := s.strainWithRole(ctx, tx, userID, strainID, model.RoleAdmin)
		if err != nil {
			return err
		}
		user, err := s.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		steps := []*gorm.DB{
			tx.Where("strain_id = ?", strainID).Delete(&model.FieldValue{}),
			tx.Where("strain_id = ?", strainID).Delete(&model.StrainPlasmid{}),
			tx.Where("strain_id = ?", strainID).Delete(&model.StrainVersion{}),
			tx.Where("strain_id = ?", strainID).Delete(&model.Attachment{}),
			tx.Where("id = ?", strainID).Delete(&model.Strain{}),
		}
		for _, step := range steps {
			if step.Error != nil {
				return fmt.Errorf("failed to delete strain: %w", step.Error)
			}
		}
		return writeAudit(ctx, tx, &strain.DatabaseID, &user.ID, model.AuditStrainDelete, "strain",
			fmt.Sprint(strain.ID), map[string]interface{}{"strainId": strain.StrainID, "name": strain.Name})
	})
}

func (s *GormStore) ArchiveStrain(ctx context.Context, userID string, strainID uint) (*registrystore.StrainDetail, error) {
	return s.setArchived(ctx, userID, strainID, true)
}

func (s *GormStore) UnarchiveStrain(ctx context.Context, userID string, strainID uint) (*registrystore.StrainDetail, error) {
	return s.setArchived(ctx, userID, strainID, false)
}

func (s *GormStore) setArchived(ctx context.Context, userID string, strainID uint, archived bool) (*registrystore.StrainDetail, error) {
	var detail *registrystore.StrainDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		strain, role, err := s.strainWithRole(ctx, tx, userID, strainID, model.RoleEditor)
		if err != nil {
			return err
		}
		user, err := s.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if strain.IsArchived == archived {
			detail, err = s.detail(ctx, tx, *strain, role)
			return err
		}

		strain.IsArchived = archived
		if archived {
			now := time.Now().UTC()
			strain.ArchivedAt = &now
			strain.ArchivedByID = &user.ID
			strain.Status = model.StrainArchived
		} else {
			strain.ArchivedAt = nil
			strain.ArchivedByID = nil
			strain.Status = model.StrainActive
		}
		strain.UpdatedAt = time.Now().UTC()
		if err := tx.Save(strain).Error; err != nil {
			return err
		}
		if err := writeAudit(ctx, tx, &strain.DatabaseID, &user.ID, model.AuditStrainArchive, "strain",
			fmt.Sprint(strain.ID), map[string]interface{}{"strainId": strain.StrainID, "archived": archived}); err != nil {
			return err
		}
		detail, err = s.detail(ctx, tx, *strain, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// --- Versions ---

// writeStrainVersion appends a numbered point-in-time copy of the strain,
// capturing built-in fields and every stored custom value.
func (s *GormStore) writeStrainVersion(ctx context.Context, tx *gorm.DB, strain model.Strain, userID *uint) error {
	detail, err := s.detail(ctx, tx, strain, model.RoleOwner)
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"strainId":        strain.StrainID,
		"name":            strain.Name,
		"organismId":      strain.OrganismID,
		"genotype":        strain.Genotype,
		"selectiveMarker": strain.SelectiveMarker,
		"comments":        strain.Comments,
		"status":          string(strain.Status),
		"custom":          detail.CustomValues,
	}
	if strain.LocationID != nil {
		data["locationId"] = *strain.LocationID
	}

	var last int
	err = tx.WithContext(ctx).Model(&model.StrainVersion{}).
		Where("strain_id = ?", strain.ID).
		Select("COALESCE(MAX(number), 0)").Scan(&last).Error
	if err != nil {
		return err
	}

	version := model.StrainVersion{
		StrainID:    strain.ID,
		Number:      last + 1,
		Data:        data,
		CreatedByID: userID,
		CreatedAt:   time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&version).Error
}

func (s *GormStore) ListStrainVersions(ctx context.Context, userID string, strainID uint) ([]model.StrainVersion, error) {
	if _, _, err := s.strainWithRole(ctx, s.db, userID, strainID, model.RoleViewer); err != nil {
		return nil, err
	}
	var versions []model.StrainVersion
	if err := s.db.WithContext(ctx).Where("strain_id = ?", strainID).Order("number").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

func (s *GormStore) GetStrainVersion(ctx context.Context, userID string, strainID uint, number int) (*model.StrainVersion, error) {
	if _, _, err := s.strainWithRole(ctx, s.db, userID, strainID, model.RoleViewer); err != nil {
		return nil, err
	}
	var version model.StrainVersion
	result := s.db.WithContext(ctx).Where("strain_id = ? AND number = ?", strainID, number).Limit(1).Find(&version)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "strain version", ID: fmt.Sprint(number)}
	}
	return &version, nil
}

func (s *GormStore) DiffStrainVersions(ctx context.Context, userID string, strainID uint, from int, to int) ([]registrystore.FieldChange, error) {
	a, err := s.GetStrainVersion(ctx, userID, strainID, from)
	if err != nil {
		return nil, err
	}
	b, err := s.GetStrainVersion(ctx, userID, strainID, to)
	if err != nil {
		return nil, err
	}
	return diffVersionData(a.Data, b.Data), nil
}

// diffVersionData compares two version payloads field by field. Custom values
// are flattened under "custom.<key>".
func diffVersionData(oldData, newData map[string]interface{}) []registrystore.FieldChange {
	flatten := func(data map[string]interface{}) map[string]interface{} {
		flat := map[string]interface{}{}
		for key, value := range data {
			if key == "custom" {
				if custom, ok := value.(map[string]interface{}); ok {
					for k, v := range custom {
						flat["custom."+k] = v
					}
					continue
				}
			}
			flat[key] = value
		}
		return flat
	}

	oldFlat := flatten(oldData)
	newFlat := flatten(newData)

	keys := map[string]bool{}
	for k := range oldFlat {
		keys[k] = true
	}
	for k := range newFlat {
		keys[k] = true
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	var changes []registrystore.FieldChange
	for _, key := range ordered {
		oldValue := oldFlat[key]
		newValue := newFlat[key]
		if fmt.Sprintf("%v", oldValue) == fmt.Sprintf("%v", newValue) {
			continue
		}
		changes = append(changes, registrystore.FieldChange{Field: key, Old: oldValue, New: newValue})
	}
	return changes
}

// --- Attachments ---

func (s *GormStore) CreateAttachment(ctx context.Context, userID string, strainID uint, attachment model.Attachment) (*model.Attachment, error) {
	if attachment.Filename == "" {
		return nil, &ValidationError{Field: "filename", Message: "must not be empty"}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := s.strainWithRole(ctx, tx, userID, strainID, model.RoleEditor); err != nil {
			return err
		}
		user, err := s.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if attachment.ID == uuid.Nil {
			attachment.ID = uuid.New()
		}
		attachment.StrainID = strainID
		attachment.UploadedByID = &user.ID
		attachment.UploadedAt = time.Now().UTC()
		return tx.Create(&attachment).Error
	})
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (s *GormStore) ListAttachments(ctx context.Context, userID string, strainID uint) ([]model.Attachment, error) {
	if _, _, err := s.strainWithRole(ctx, s.db, userID, strainID, model.RoleViewer); err != nil {
		return nil, err
	}
	var attachments []model.Attachment
	if err := s.db.WithContext(ctx).Where("strain_id = ?", strainID).Order("uploaded_at").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}

func (s *GormStore) GetAttachment(ctx context.Context, userID string, attachmentID uuid.UUID) (*model.Attachment, error) {
	var attachment model.Attachment
	result := s.db.WithContext(ctx).Where("id = ?", attachmentID).Limit(1).Find(&attachment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "attachment", ID: attachmentID.String()}
	}
	if _, _, err := s.strainWithRole(ctx, s.db, userID, attachment.StrainID, model.RoleViewer); err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (s *GormStore) DeleteAttachment(ctx context.Context, userID string, attachmentID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attachment model.Attachment
		result := tx.Where("id = ?", attachmentID).Limit(1).Find(&attachment)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "attachment", ID: attachmentID.String()}
		}
		if _, _, err := s.strainWithRole(ctx, tx, userID, attachment.StrainID, model.RoleEditor); err != nil {
			return err
		}
		return tx.Where("id = ?", attachmentID).Delete(&model.Attachment{}).Error
	})
}

package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/helixmapr/helixmapr/internal/importer"
	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
	"gorm.io/gorm"
)

// ImportStrains reconciles mapped CSV rows against one database. The whole
// run is a transaction; each row gets a nested transaction (savepoint) so a
// bad row rolls back alone while the run continues. Lookup entities named by
// a row are resolved case-insensitively and created when missing.
func (s *GormStore) ImportStrains(ctx context.Context, userID string, databaseID uint, rows []map[string]string) (*registrystore.ImportResult, error) {
	if s.cfg != nil && s.cfg.ImportMaxRows > 0 && len(rows) > s.cfg.ImportMaxRows {
		return nil, &ValidationError{Field: "rows", Message: fmt.Sprintf("import exceeds the %d row limit", s.cfg.ImportMaxRows)}
	}

	result := &registrystore.ImportResult{AutoCreated: map[string][]string{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleEditor)
		if err != nil {
			return err
		}

		definitions, _, err := s.loadSchema(ctx, tx, databaseID)
		if err != nil {
			return err
		}
		definitionsByName := make(map[string]model.FieldDefinition, len(definitions))
		for _, def := range definitions {
			definitionsByName[def.Name] = def
		}

		state, err := newImportState(ctx, tx, databaseID)
		if err != nil {
			return err
		}

		for i, row := range rows {
			rowNumber := i + 2 // 1-based, after the header row

			if problems := importer.ValidateRow(row, definitionsByName); len(problems) > 0 {
				result.Errors = append(result.Errors, registrystore.ImportRowError{Row: rowNumber, Messages: problems})
				continue
			}

			strainID := strings.TrimSpace(row["strain_id"])
			if state.strainExists(strainID) {
				result.Skipped++
				continue
			}

			rowErr := tx.Transaction(func(rowTx *gorm.DB) error {
				return s.importRow(ctx, rowTx, user, databaseID, row, definitionsByName, state, result)
			})
			if rowErr != nil {
				log.Warn("import row failed", "row", rowNumber, "err", rowErr)
				result.Errors = append(result.Errors, registrystore.ImportRowError{Row: rowNumber, Messages: []string{rowErr.Error()}})
				continue
			}
			state.markStrain(strainID)
			result.Created++
			if security.ImportRowsTotal != nil {
				security.ImportRowsTotal.Inc()
			}
		}

		return writeAudit(ctx, tx, &databaseID, &user.ID, model.AuditStrainImport, "database",
			fmt.Sprint(databaseID), map[string]interface{}{
				"created":     result.Created,
				"skipped":     result.Skipped,
				"failed":      len(result.Errors),
				"autoCreated": result.AutoCreated,
			})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// importState caches the database's lookup entities for a run, keyed
// case-insensitively the way row values are matched.
type importState struct {
	databaseID uint
	strains    map[string]bool
	organisms  map[string]model.Organism
	plasmids   map[string]model.Plasmid
	locations  map[string]model.Location
}

func newImportState(ctx context.Context, tx *gorm.DB, databaseID uint) (*importState, error) {
	state := &importState{
		databaseID: databaseID,
		strains:    map[string]bool{},
		organisms:  map[string]model.Organism{},
		plasmids:   map[string]model.Plasmid{},
		locations:  map[string]model.Location{},
	}

	var strainIDs []string
	if err := tx.WithContext(ctx).Model(&model.Strain{}).Where("database_id = ?", databaseID).
		Pluck("strain_id", &strainIDs).Error; err != nil {
		return nil, err
	}
	for _, id := range strainIDs {
		state.markStrain(id)
	}

	var organisms []model.Organism
	if err := tx.WithContext(ctx).Where("database_id = ?", databaseID).Find(&organisms).Error; err != nil {
		return nil, err
	}
	for _, o := range organisms {
		state.organisms[strings.ToLower(o.Name)] = o
	}

	var plasmids []model.Plasmid
	if err := tx.WithContext(ctx).Where("database_id = ?", databaseID).Find(&plasmids).Error; err != nil {
		return nil, err
	}
	for _, p := range plasmids {
		state.plasmids[strings.ToLower(p.Name)] = p
	}

	var locations []model.Location
	if err := tx.WithContext(ctx).Where("database_id = ?", databaseID).Find(&locations).Error; err != nil {
		return nil, err
	}
	for _, l := range locations {
		state.locations[locationKey(l.Box, l.Position)] = l
	}

	return state, nil
}

func (st *importState) strainExists(strainID string) bool {
	return st.strains[strings.ToLower(strainID)]
}

func (st *importState) markStrain(strainID string) {
	st.strains[strings.ToLower(strainID)] = true
}

func locationKey(box, position string) string {
	return strings.ToLower(box) + "|" + strings.ToLower(position)
}

func (s *GormStore) importRow(ctx context.Context, tx *gorm.DB, user *model.User, databaseID uint, row map[string]string, definitionsByName map[string]model.FieldDefinition, state *importState, result *registrystore.ImportResult) error {
	organism, err := s.resolveOrganism(ctx, tx, user, state, row["organism"], result)
	if err != nil {
		return err
	}

	box, position, _ := importer.ParseLocation(row["location"])
	location, err := s.resolveLocation(ctx, tx, user, state, box, position, result)
	if err != nil {
		return err
	}

	var plasmids []model.Plasmid
	for _, name := range importer.SplitList(row["plasmids"]) {
		plasmid, err := s.resolvePlasmid(ctx, tx, user, state, name, result)
		if err != nil {
			return err
		}
		plasmids = append(plasmids, *plasmid)
	}

	now := time.Now().UTC()
	strain := model.Strain{
		DatabaseID:      databaseID,
		StrainID:        strings.TrimSpace(row["strain_id"]),
		Name:            strings.TrimSpace(row["strain_id"]),
		OrganismID:      organism.ID,
		Genotype:        row["genotype"],
		SelectiveMarker: row["selective_marker"],
		Comments:        row["comments"],
		LocationID:      &location.ID,
		Status:          model.StrainActive,
		CreatedByID:     &user.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Create(&strain).Error; err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Message: fmt.Sprintf("strain %q already exists", strain.StrainID)}
		}
		return err
	}
	for _, plasmid := range plasmids {
		link := model.StrainPlasmid{StrainID: strain.ID, PlasmidID: plasmid.ID}
		if err := tx.Create(&link).Error; err != nil && !isUniqueViolation(err) {
			return err
		}
	}

	for field, raw := range row {
		if !strings.HasPrefix(field, importer.CustomPrefix) {
			continue
		}
		def, ok := definitionsByName[strings.TrimPrefix(field, importer.CustomPrefix)]
		if !ok {
			continue
		}
		value, present, err := importer.ParseCustomValue(def, raw)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		valueRow := model.FieldValue{StrainID: strain.ID, DefinitionID: def.ID}
		value.Apply(&valueRow)
		if err := tx.Create(&valueRow).Error; err != nil {
			return err
		}
	}

	return s.writeStrainVersion(ctx, tx, strain, &user.ID)
}

// resolveOrganism finds or creates the named organism. A unique violation on
// create means another transaction won the race; the existing row is
// re-fetched and used. The create runs in its own savepoint so the violation
// rolls back alone and the enclosing transaction stays usable on postgres.
func (s *GormStore) resolveOrganism(ctx context.Context, tx *gorm.DB, user *model.User, state *importState, name string, result *registrystore.ImportResult) (*model.Organism, error) {
	name = strings.TrimSpace(name)
	if existing, ok := state.organisms[strings.ToLower(name)]; ok {
		return &existing, nil
	}

	organism := model.Organism{DatabaseID: state.databaseID, Name: name}
	if err := tx.Transaction(func(inner *gorm.DB) error {
		return inner.WithContext(ctx).Create(&organism).Error
	}); err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		result2 := tx.WithContext(ctx).
			Where("database_id = ? AND LOWER(name) = ?", state.databaseID, strings.ToLower(name)).
			Limit(1).Find(&organism)
		if result2.Error != nil {
			return nil, result2.Error
		}
		if result2.RowsAffected == 0 {
			return nil, fmt.Errorf("organism %q vanished during import", name)
		}
		state.organisms[strings.ToLower(name)] = organism
		return &organism, nil
	}

	state.organisms[strings.ToLower(name)] = organism
	result.AutoCreated["organism"] = append(result.AutoCreated["organism"], name)
	if err := writeAudit(ctx, tx, &state.databaseID, &user.ID, model.AuditAutoCreateEntity, "organism",
		fmt.Sprint(organism.ID), map[string]interface{}{"name": name, "autoCreated": true}); err != nil {
		return nil, err
	}
	return &organism, nil
}

func (s *GormStore) resolvePlasmid(ctx context.Context, tx *gorm.DB, user *model.User, state *importState, name string, result *registrystore.ImportResult) (*model.Plasmid, error) {
	name = strings.TrimSpace(name)
	if existing, ok := state.plasmids[strings.ToLower(name)]; ok {
		return &existing, nil
	}

	plasmid := model.Plasmid{DatabaseID: state.databaseID, Name: name}
	if err := tx.Transaction(func(inner *gorm.DB) error {
		return inner.WithContext(ctx).Create(&plasmid).Error
	}); err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		result2 := tx.WithContext(ctx).
			Where("database_id = ? AND LOWER(name) = ?", state.databaseID, strings.ToLower(name)).
			Limit(1).Find(&plasmid)
		if result2.Error != nil {
			return nil, result2.Error
		}
		if result2.RowsAffected == 0 {
			return nil, fmt.Errorf("plasmid %q vanished during import", name)
		}
		state.plasmids[strings.ToLower(name)] = plasmid
		return &plasmid, nil
	}

	state.plasmids[strings.ToLower(name)] = plasmid
	result.AutoCreated["plasmid"] = append(result.AutoCreated["plasmid"], name)
	if err := writeAudit(ctx, tx, &state.databaseID, &user.ID, model.AuditAutoCreateEntity, "plasmid",
		fmt.Sprint(plasmid.ID), map[string]interface{}{"name": name, "autoCreated": true}); err != nil {
		return nil, err
	}
	return &plasmid, nil
}

func (s *GormStore) resolveLocation(ctx context.Context, tx *gorm.DB, user *model.User, state *importState, box, position string, result *registrystore.ImportResult) (*model.Location, error) {
	key := locationKey(box, position)
	if existing, ok := state.locations[key]; ok {
		return &existing, nil
	}

	location := model.Location{DatabaseID: state.databaseID, Box: box, Position: position}
	if err := tx.Transaction(func(inner *gorm.DB) error {
		return inner.WithContext(ctx).Create(&location).Error
	}); err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		result2 := tx.WithContext(ctx).
			Where("database_id = ? AND box = ? AND position = ? AND building = ? AND room = ? AND freezer = ?",
				state.databaseID, box, position, "", "", "").
			Limit(1).Find(&location)
		if result2.Error != nil {
			return nil, result2.Error
		}
		if result2.RowsAffected == 0 {
			return nil, fmt.Errorf("location %q vanished during import", location.Label())
		}
		state.locations[key] = location
		return &location, nil
	}

	state.locations[key] = location
	result.AutoCreated["location"] = append(result.AutoCreated["location"], location.Label())
	if err := writeAudit(ctx, tx, &state.databaseID, &user.ID, model.AuditAutoCreateEntity, "location",
		fmt.Sprint(location.ID), map[string]interface{}{"label": location.Label(), "autoCreated": true}); err != nil {
		return nil, err
	}
	return &location, nil
}

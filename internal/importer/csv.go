// Package importer holds the pure parts of CSV strain import: file parsing,
// column mapping, and per-row validation. The transactional reconciliation
// against the database lives in the store.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
)

// StandardFields are the non-custom columns a CSV column can be mapped to.
var StandardFields = []string{
	"strain_id", "location", "organism", "genotype", "plasmids", "selective_marker", "comments",
}

// RequiredFields must be non-blank for a row to import.
var RequiredFields = []string{"strain_id", "organism", "genotype", "location"}

// CustomPrefix marks a column mapped to a custom field definition by name.
const CustomPrefix = "custom:"

// ParseCSV reads a comma-delimited UTF-8 upload (BOM tolerant). The first row
// is a required header; headers and cells are trimmed.
func ParseCSV(r io.Reader) (headers []string, rows []map[string]string, err error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, nil, fmt.Errorf("CSV file must include a header row")
	}

	headers = make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers[i] = strings.TrimSpace(h)
	}

	rows = make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(record) {
				row[header] = strings.TrimSpace(record[i])
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// BuildMappedRows applies the user's column mapping. Unmapped columns are
// dropped; mapped values are trimmed.
func BuildMappedRows(rows []map[string]string, columnMapping map[string]string) []map[string]string {
	mapped := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		mappedRow := map[string]string{}
		for csvColumn, field := range columnMapping {
			if field == "" {
				continue
			}
			mappedRow[field] = strings.TrimSpace(row[csvColumn])
		}
		mapped = append(mapped, mappedRow)
	}
	return mapped
}

// ParseLocation accepts only the "Box <n> ..." textual location form and
// returns the box number and remaining position, or false when the cell does
// not match.
func ParseLocation(raw string) (box, position string, ok bool) {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "Box ") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(value, "Box "))
	if rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, " ", 2)
	box = parts[0]
	for _, r := range box {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	if len(parts) == 2 {
		position = strings.TrimSpace(parts[1])
	}
	return box, position, true
}

// ValidateRow returns the reasons a mapped row cannot import: missing
// required fields, a malformed location, an unknown custom-field mapping, or
// a custom value that fails coercion. An empty result means the row is clean.
func ValidateRow(mappedRow map[string]string, definitionsByName map[string]model.FieldDefinition) []string {
	var problems []string

	for _, required := range RequiredFields {
		if strings.TrimSpace(mappedRow[required]) == "" {
			problems = append(problems, fmt.Sprintf("missing required field: %s", required))
		}
	}

	if location := mappedRow["location"]; location != "" {
		if _, _, ok := ParseLocation(location); !ok {
			problems = append(problems, `location must be in "Box <number> <position>" format`)
		}
	}

	for field, raw := range mappedRow {
		if !strings.HasPrefix(field, CustomPrefix) {
			continue
		}
		name := strings.TrimPrefix(field, CustomPrefix)
		def, ok := definitionsByName[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown custom field mapping: %s", name))
			continue
		}
		if _, _, err := ParseCustomValue(def, raw); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

// ParseCustomValue coerces a CSV cell into a typed custom field value. An
// empty cell yields ok=false with no error. FOREIGN_KEY and FILE fields are
// not importable from CSV and read as absent.
func ParseCustomValue(def model.FieldDefinition, raw string) (fields.Value, bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fields.Value{}, false, nil
	}

	switch def.FieldType {
	case model.FieldForeignKey, model.FieldFile:
		return fields.Value{}, false, nil
	case model.FieldMultiSelect:
		parts := strings.Split(value, ",")
		selections := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				selections = append(selections, trimmed)
			}
		}
		coerced, err := fields.Coerce(def, selections)
		if err != nil {
			return fields.Value{}, false, fmt.Errorf("invalid value for custom field %q: %w", def.Name, err)
		}
		return coerced, true, nil
	}

	coerced, err := fields.Coerce(def, value)
	if err != nil {
		return fields.Value{}, false, fmt.Errorf("invalid value for custom field %q: %w", def.Name, err)
	}
	return coerced, true, nil
}

// SplitList splits a comma-separated cell (e.g. the plasmids column) into
// trimmed, non-empty names.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

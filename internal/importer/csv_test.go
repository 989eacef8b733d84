package importer_test

import (
	"strings"
	"testing"

	"github.com/helixmapr/helixmapr/internal/importer"
	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVTrimsAndToleratesBOM(t *testing.T) {
	input := "\uFEFFStrain ID, Organism ,Genotype\n YCG-001 ,E. coli,wild type\nYCG-002,S. cerevisiae\n"

	headers, rows, err := importer.ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Strain ID", "Organism", "Genotype"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "YCG-001", rows[0]["Strain ID"])
	assert.Equal(t, "E. coli", rows[0]["Organism"])
	// A short record reads as empty cells, not an error.
	assert.Equal(t, "", rows[1]["Genotype"])
}

func TestParseCSVRequiresHeader(t *testing.T) {
	_, _, err := importer.ParseCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestBuildMappedRowsDropsUnmappedColumns(t *testing.T) {
	rows := []map[string]string{
		{"Strain ID": "YCG-001", "Ignore Me": "x", "Antibiotic": " amp "},
	}
	mapping := map[string]string{
		"Strain ID":  "strain_id",
		"Antibiotic": "custom:Antibiotic",
		"Ignore Me":  "",
	}

	mapped := importer.BuildMappedRows(rows, mapping)
	require.Len(t, mapped, 1)
	assert.Equal(t, map[string]string{
		"strain_id":         "YCG-001",
		"custom:Antibiotic": "amp",
	}, mapped[0])
}

func TestParseLocation(t *testing.T) {
	box, position, ok := importer.ParseLocation("Box 12 A3")
	require.True(t, ok)
	assert.Equal(t, "12", box)
	assert.Equal(t, "A3", position)

	box, position, ok = importer.ParseLocation("  Box 7  ")
	require.True(t, ok)
	assert.Equal(t, "7", box)
	assert.Equal(t, "", position)

	for _, bad := range []string{"Shelf 3", "Box", "Box ", "Box twelve A3", ""} {
		_, _, ok := importer.ParseLocation(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestValidateRow(t *testing.T) {
	defs := map[string]model.FieldDefinition{
		"Antibiotic": {Name: "Antibiotic", FieldType: model.FieldSingleSelect, Choices: "amp, kan"},
	}

	clean := map[string]string{
		"strain_id": "YCG-001", "organism": "E. coli", "genotype": "wild type",
		"location": "Box 1 A1", "custom:Antibiotic": "amp",
	}
	assert.Empty(t, importer.ValidateRow(clean, defs))

	missing := map[string]string{"strain_id": "YCG-001"}
	problems := importer.ValidateRow(missing, defs)
	assert.Len(t, problems, 3)

	badLocation := map[string]string{
		"strain_id": "YCG-001", "organism": "E. coli", "genotype": "wt", "location": "Shelf 3",
	}
	problems = importer.ValidateRow(badLocation, defs)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "Box")

	unknownField := map[string]string{
		"strain_id": "YCG-001", "organism": "E. coli", "genotype": "wt",
		"location": "Box 1 A1", "custom:Mystery": "x",
	}
	problems = importer.ValidateRow(unknownField, defs)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "Mystery")

	badValue := map[string]string{
		"strain_id": "YCG-001", "organism": "E. coli", "genotype": "wt",
		"location": "Box 1 A1", "custom:Antibiotic": "tet",
	}
	problems = importer.ValidateRow(badValue, defs)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "Antibiotic")
}

func TestParseCustomValue(t *testing.T) {
	multi := model.FieldDefinition{Name: "Tags", FieldType: model.FieldMultiSelect, Choices: "a, b, c"}
	value, ok, err := importer.ParseCustomValue(multi, "a, c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, value.MultiSelect)

	// Empty cells read as absent, not as errors.
	_, ok, err = importer.ParseCustomValue(multi, "   ")
	require.NoError(t, err)
	assert.False(t, ok)

	// FOREIGN_KEY and FILE columns are not importable from CSV.
	fk := model.FieldDefinition{Name: "Parent", FieldType: model.FieldForeignKey, RelatedKind: model.RelatedOrganism}
	_, ok, err = importer.ParseCustomValue(fk, "12")
	require.NoError(t, err)
	assert.False(t, ok)

	number := model.FieldDefinition{Name: "Copies", FieldType: model.FieldInteger}
	_, _, err = importer.ParseCustomValue(number, "many")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Copies")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"pUC19", "pBR322"}, importer.SplitList(" pUC19 , pBR322 ,, "))
	assert.Empty(t, importer.SplitList("   "))
}

package snapshot_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/helixmapr/helixmapr/internal/model"
	"github.com/helixmapr/helixmapr/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTrip(t *testing.T) {
	locID := uint(3)
	doc := &snapshot.Document{
		Version:    snapshot.Version,
		ExportedAt: "2026-08-01T10:00:00Z",
		Organization: snapshot.Organization{
			ID: 1, UUID: "0d3adb1e-0000-4000-8000-000000000001", Name: "Acme", Slug: "acme",
		},
		Databases: []snapshot.Database{{ID: 2, Name: "Lab Records"}},
		Organisms: []snapshot.Organism{{ID: 4, DatabaseID: 2, Name: "E. coli"}},
		Strains: []snapshot.Strain{{
			ID: 5, DatabaseID: 2, StrainID: "YCG-001", Name: "YCG-001",
			OrganismID: 4, LocationID: &locID, Status: model.StrainActive,
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, snapshot.WriteArchive(&buf, doc))

	got, err := snapshot.ReadArchiveBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, doc.Version, got.Version)
	assert.Equal(t, doc.Organization.UUID, got.Organization.UUID)
	require.Len(t, got.Strains, 1)
	assert.Equal(t, "YCG-001", got.Strains[0].StrainID)
	require.NotNil(t, got.Strains[0].LocationID)
	assert.Equal(t, locID, *got.Strains[0].LocationID)
}

func TestReadArchiveRejectsMissingMember(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	member, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = member.Write([]byte("not a snapshot"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = snapshot.ReadArchiveBytes(buf.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), snapshot.ArchiveMember)
}

func TestReadArchiveRejectsGarbage(t *testing.T) {
	_, err := snapshot.ReadArchiveBytes([]byte("definitely not a zip"))
	require.Error(t, err)
}

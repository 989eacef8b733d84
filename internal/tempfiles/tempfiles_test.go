package tempfiles

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpoolAndDeleteOnClose(t *testing.T) {
	dir := t.TempDir()

	f, err := Spool(dir, "spool-test-*")
	require.NoError(t, err)

	_, err = f.WriteString("hello")
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	path := f.Name()
	rel, err := filepath.Rel(dir, path)
	require.NoError(t, err)
	require.NotContains(t, rel, "..")

	rc := NewDeleteOnClose(f)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.NoError(t, rc.Close())

	_, err = os.Stat(path)
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestSpoolDefaultsToOSTempDir(t *testing.T) {
	f, err := Spool("", "spool-default-*")
	require.NoError(t, err)

	rc := NewDeleteOnClose(f)
	require.NoError(t, rc.Close())
	_, err = os.Stat(f.Name())
	require.True(t, os.IsNotExist(err))
}

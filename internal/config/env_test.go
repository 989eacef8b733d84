package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyEnv_APIKeys(t *testing.T) {
	t.Setenv("HELIXMAPR_API_KEYS_ALICE", "key-one, key-two")
	t.Setenv("HELIXMAPR_API_KEYS_BOB", "key-three")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, "alice", cfg.APIKeys["key-one"])
	require.Equal(t, "alice", cfg.APIKeys["key-two"])
	require.Equal(t, "bob", cfg.APIKeys["key-three"])
}

func TestApplyEnv_InvalidDuration(t *testing.T) {
	t.Setenv("HELIXMAPR_SCHEMA_CACHE_TTL", "not-a-duration")

	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}

func TestSuperuserSet(t *testing.T) {
	cfg := Config{Superusers: "root, ops ,"}
	set := cfg.SuperuserSet()
	require.True(t, set["root"])
	require.True(t, set["ops"])
	require.False(t, set["alice"])
}

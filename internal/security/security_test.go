package security_test

import (
	"context"
	"testing"

	"github.com/helixmapr/helixmapr/internal/config"
	"github.com/helixmapr/helixmapr/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	labels, err := security.ParseMetricsLabels("service=helixmapr,env=prod")
	require.NoError(t, err)
	assert.Equal(t, "helixmapr", labels["service"])
	assert.Equal(t, "prod", labels["env"])

	labels, err = security.ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = security.ParseMetricsLabels("service")
	assert.ErrorContains(t, err, "expected key=value")

	_, err = security.ParseMetricsLabels("bad-key=x")
	assert.ErrorContains(t, err, "invalid label key")
}

func TestParseMetricsLabelsExpandsEnv(t *testing.T) {
	t.Setenv("HELIXMAPR_TEST_REGION", "eu-west")
	labels, err := security.ParseMetricsLabels("region=${HELIXMAPR_TEST_REGION}")
	require.NoError(t, err)
	assert.Equal(t, "eu-west", labels["region"])
}

func newResolver(t *testing.T, mode string) *security.TokenResolver {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.APIKeys = map[string]string{"sk-alice-123": "alice"}
	return security.NewTokenResolver(&cfg)
}

func TestResolveAPIKey(t *testing.T) {
	r := newResolver(t, config.ModeProd)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "", "sk-alice-123", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Username)

	_, err = r.Resolve(ctx, "", "sk-wrong", "")
	assert.Error(t, err)
}

func TestResolveBearerFallsBackToAPIKeys(t *testing.T) {
	r := newResolver(t, config.ModeProd)
	ctx := context.Background()

	// Non-JWT bearer tokens are looked up as API keys.
	id, err := r.Resolve(ctx, "sk-alice-123", "", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Username)

	_, err = r.Resolve(ctx, "sk-wrong", "", "")
	assert.Error(t, err)
}

func TestResolveUserHeaderOnlyInTestingMode(t *testing.T) {
	ctx := context.Background()

	r := newResolver(t, config.ModeTesting)
	id, err := r.Resolve(ctx, "", "", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Username)

	r = newResolver(t, config.ModeProd)
	_, err = r.Resolve(ctx, "", "", "bob")
	assert.Error(t, err)
}

func TestResolveNoCredentials(t *testing.T) {
	r := newResolver(t, config.ModeTesting)
	_, err := r.Resolve(context.Background(), "", "", "")
	assert.Error(t, err)
}

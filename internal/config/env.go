package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv reads environment variables that are not represented by dedicated
// CLI flags in the serve command.
func (c *Config) ApplyEnv() error {
	if c == nil {
		return nil
	}

	var err error
	if err = applyBoolEnv("HELIXMAPR_DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	if err = applyDurationEnv("HELIXMAPR_SCHEMA_CACHE_TTL", &c.SchemaCacheTTL); err != nil {
		return err
	}
	if err = applyIntEnv("HELIXMAPR_IMPORT_MAX_ROWS", &c.ImportMaxRows); err != nil {
		return err
	}
	if err = applyInt64Env("HELIXMAPR_SNAPSHOT_MAX_SIZE", &c.SnapshotMaxSize); err != nil {
		return err
	}
	if err = applyIntEnv("HELIXMAPR_AUDIT_PAGE_LIMIT", &c.AuditPageLimit); err != nil {
		return err
	}
	applyStringEnv("HELIXMAPR_TEMP_DIR", &c.TempDir)
	applyStringEnv("HELIXMAPR_SUPERUSERS", &c.Superusers)
	applyStringEnv("HELIXMAPR_OIDC_DISCOVERY_URL", &c.OIDCDiscoveryURL)

	// API keys: HELIXMAPR_API_KEYS_<USER>=<key-value>.
	c.APIKeys = loadAPIKeysFromEnv()

	return nil
}

// loadAPIKeysFromEnv scans env vars matching HELIXMAPR_API_KEYS_<USER>=<key>[,<key>...]
// and returns a map from key value → username. Comma-separated values let a
// user hold several keys during rotation.
func loadAPIKeysFromEnv() map[string]string {
	const prefix = "HELIXMAPR_API_KEYS_"
	result := map[string]string{}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		eqIdx := strings.IndexByte(env, '=')
		if eqIdx < 0 {
			continue
		}
		username := strings.ToLower(strings.TrimSpace(env[len(prefix):eqIdx]))
		if username == "" {
			continue
		}
		for _, key := range strings.Split(env[eqIdx+1:], ",") {
			keyValue := strings.TrimSpace(key)
			if keyValue == "" {
				continue
			}
			result[keyValue] = username
		}
	}
	return result
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyInt64Env(key string, dest *int64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

package bdd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/helixmapr/helixmapr/internal/cmd/serve"
	"github.com/helixmapr/helixmapr/internal/config"
	"github.com/helixmapr/helixmapr/internal/testutil/cucumber"
	"github.com/stretchr/testify/require"

	// Import plugins to trigger init() registration
	_ "github.com/helixmapr/helixmapr/internal/plugin/cache/noop"
	_ "github.com/helixmapr/helixmapr/internal/plugin/route/system"
	_ "github.com/helixmapr/helixmapr/internal/plugin/store/gormstore"
)

func TestFeatures(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bdd.db")

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = dbPath
	cfg.CacheType = "noop"
	cfg.Superusers = "root"
	cfg.Listener.Port = 0
	cfg.Listener.EnablePlainText = true
	cfg.Listener.EnableTLS = false
	ctx := config.WithContext(context.Background(), &cfg)

	srv, err := serve.StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	apiURL := fmt.Sprintf("http://localhost:%d", srv.Running.Port)

	featureFiles, err := filepath.Glob(filepath.Join("features", "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles, "no feature files found")

	opts := cucumber.DefaultOptions()
	opts.Concurrency = 1
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = apiURL
			suite.TestingT = t
			suite.Context = &cfg
			suite.DB = &SQLiteTestDB{Path: dbPath}

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}

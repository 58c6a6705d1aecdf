package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/config"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/testutil"
)

// staticLoader hands out a copy of one model.
type staticLoader struct{ model *config.Model }

func (l staticLoader) Load(context.Context, ...string) (*config.Model, error) {
	m := *l.model
	return &m, nil
}

// StaticLoader is a config.Loader that always returns model, for tests
// that do not need configuration files.
func StaticLoader(model *config.Model) config.Loader {
	return staticLoader{model: model}
}

// SetupAppTest creates a new app instance for system testing. A nil loader
// yields the default configuration. The app is closed when the test ends.
func SetupAppTest(t *testing.T, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	if loader == nil {
		loader = StaticLoader(config.Default())
	}
	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp, err := NewApp(logBuffer, appConfig, loader, modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, testApp.Close(context.Background()))
		if os.Getenv("BLOCKGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}

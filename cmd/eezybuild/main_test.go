package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd(&app{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "ingest", "chat"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))

	chat, _, err := root.Find([]string{"chat"})
	require.NoError(t, err)
	assert.NotNil(t, chat.Flags().Lookup("project"))
	assert.NotNil(t, chat.Flags().Lookup("user"))
}

func TestInitLoadsEnvFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("EEZYBUILD_TEST_MARKER=loaded\n"), 0o600))
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("server:\n  port: \"9090\"\nlog:\n  mode: production\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("EEZYBUILD_TEST_MARKER") })
	t.Setenv("PORT", "")

	a := &app{}
	defer a.close()
	require.NoError(t, a.init(t.Context(), &rootFlags{configPath: cfgFile, envFile: envFile}))

	assert.Equal(t, "loaded", os.Getenv("EEZYBUILD_TEST_MARKER"))
	assert.Equal(t, "9090", a.cfg.Server.Port)
	assert.NotNil(t, a.log)
}

func TestPipelinesReportMissingSecrets(t *testing.T) {
	a := &app{cfg: &config.Config{}}

	_, err := a.chatPipeline(t.Context())
	assert.Equal(t, apierr.MissingConfiguration, apierr.KindOf(err))

	_, err = a.ingestJob(t.Context(), nil, nil)
	assert.Equal(t, apierr.MissingConfiguration, apierr.KindOf(err))
}

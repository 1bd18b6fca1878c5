package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "dispatch", "work", "serve", "list", "deadletter", "migrate", "export"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "council-scraper", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDispatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"council", "tag", "failed", "refresh", "all", "verbose"} {
		assert.NotNil(t, dispatchCmd.Flags().Lookup(name), "dispatch should have --%s", name)
	}
	assert.Equal(t, "0", dispatchCmd.Flags().Lookup("refresh").DefValue)
}

func TestWorkCommand_Flags(t *testing.T) {
	require.NotNil(t, workCmd.Flags().Lookup("concurrency"))
	require.NotNil(t, workCmd.Flags().Lookup("once"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestListCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range listCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"councils", "disabled", "failing", "runs"} {
		assert.True(t, names[name], "list should have subcommand %q", name)
	}
}

func TestDispatchFilter(t *testing.T) {
	cfg = &config.Config{Dispatch: config.DispatchConfig{RefreshHours: 12}}
	t.Cleanup(func() {
		dispatchCouncils, dispatchTags = nil, nil
		dispatchAll, dispatchOnlyFailed = false, false
		dispatchRefreshHours = 0
	})

	_, err := dispatchFilter()
	require.Error(t, err, "no selection at all")

	dispatchAll = true
	f, err := dispatchFilter()
	require.NoError(t, err)
	assert.Equal(t, "12h0m0s", f.Refresh.String(), "refresh falls back to config")

	dispatchRefreshHours = 2
	f, err = dispatchFilter()
	require.NoError(t, err)
	assert.Equal(t, "2h0m0s", f.Refresh.String())

	dispatchCouncils = []string{"KIR"}
	_, err = dispatchFilter()
	require.Error(t, err, "--all with --council")

	dispatchAll = false
	f, err = dispatchFilter()
	require.NoError(t, err)
	assert.Equal(t, []string{"KIR"}, f.Codes)
}

func TestDispatchCommand_RejectsEmptySelection(t *testing.T) {
	cfg = &config.Config{}
	dispatchCmd.SetContext(t.Context())
	defer dispatchCmd.SetContext(nil)

	err := dispatchCmd.RunE(dispatchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")
}

func TestMigrateCommand_CreatesSQLiteSchema(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: t.TempDir() + "/council.db"},
		Fetch: config.FetchConfig{MaxAttempts: 1},
	}
	migrateCmd.SetContext(t.Context())
	defer migrateCmd.SetContext(nil)

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))
}

func TestMigrateCommand_BadDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "mysql"},
		Fetch: config.FetchConfig{MaxAttempts: 1},
	}
	migrateCmd.SetContext(t.Context())
	defer migrateCmd.SetContext(nil)

	err := migrateCmd.RunE(migrateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestExportCommand_Flags(t *testing.T) {
	require.NotNil(t, exportCmd.Flags().Lookup("tag"))
	out := exportCmd.Flags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "o", out.Shorthand)
}

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/shelldeck/internal/config"
	"github.com/asheshgoplani/shelldeck/internal/statedb"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

func newTestDB(t *testing.T) *statedb.StateDB {
	t.Helper()
	db, err := statedb.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSavedTabsFallsBackToFirstTab(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveTabs([]statedb.TabRow{
		{ID: "a", Title: "api", Dir: "/srv/api"},
		{ID: "b", Title: "Terminal", Elevated: true},
	}))
	require.NoError(t, db.SetPreference(statedb.PrefActiveTab, "gone"))

	ts, active, err := savedTabs(db)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "a", active)
	assert.Equal(t, "/srv/api", ts[0].Dir)
	assert.True(t, ts[1].Elevated)

	require.NoError(t, db.SetPreference(statedb.PrefActiveTab, "b"))
	_, active, err = savedTabs(db)
	require.NoError(t, err)
	assert.Equal(t, "b", active)
}

func TestSavedTabsEmpty(t *testing.T) {
	ts, active, err := savedTabs(newTestDB(t))
	require.NoError(t, err)
	assert.Empty(t, ts)
	assert.Empty(t, active)
}

func TestApplySelectionTab(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveTabs([]statedb.TabRow{{ID: "a", Title: "api"}, {ID: "b", Title: "logs"}}))

	msg, err := applySelection(db, workspace.Result{Kind: workspace.ResultTab, TabID: "b", Label: "logs"})
	require.NoError(t, err)
	assert.Contains(t, msg, "logs")

	active, err := db.GetPreference(statedb.PrefActiveTab)
	require.NoError(t, err)
	assert.Equal(t, "b", active)

	rows, err := db.LoadTabs()
	require.NoError(t, err)
	assert.Len(t, rows, 2, "selecting a tab must not add tabs")
}

func TestApplySelectionProjectOpensTab(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveTabs([]statedb.TabRow{{ID: "a", Title: "api"}}))

	_, err := applySelection(db, workspace.Result{Kind: workspace.ResultProject, Label: "shelldeck", Path: "/src/shelldeck"})
	require.NoError(t, err)

	rows, err := db.LoadTabs()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "/src/shelldeck", rows[1].Dir)
	assert.Equal(t, "shelldeck", rows[1].Title)
	assert.False(t, rows[1].ManualTitle)

	active, err := db.GetPreference(statedb.PrefActiveTab)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, active)
}

func TestApplySelectionUnknownKind(t *testing.T) {
	_, err := applySelection(newTestDB(t), workspace.Result{Kind: "bogus"})
	assert.Error(t, err)
}

func TestParseServeFlags(t *testing.T) {
	cfg := &config.Config{Web: config.WebSettings{Token: "from-file", Push: true}}

	opts, err := parseServeFlags(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultListen, opts.listen)
	assert.Equal(t, "from-file", opts.token)
	assert.True(t, opts.push)
	assert.Equal(t, config.DefaultPushSubject, opts.subject)

	opts, err = parseServeFlags(cfg, []string{"--listen", "127.0.0.1:9000", "--read-only", "--token=cli", "--push=false"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", opts.listen)
	assert.Equal(t, "cli", opts.token)
	assert.True(t, opts.readOnly)
	assert.False(t, opts.push)

	_, err = parseServeFlags(cfg, []string{"stray"})
	assert.Error(t, err)
}

func TestDefaultConfigRoundTrips(t *testing.T) {
	require.NoError(t, config.Save(defaultConfig()))
	cfg, err := config.Reload()
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.ThemeName())
	assert.Equal(t, config.DefaultListen, cfg.Web.Listen)
	assert.Equal(t, "info", cfg.Logs.Level)
}

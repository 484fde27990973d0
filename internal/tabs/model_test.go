package tabs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/session"
)

func newTestModel() *Model {
	m := New(DefaultTitlePolicy())
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
	m.Restore(nil, "")
	return m
}

func ids(m *Model) []string {
	var out []string
	for _, t := range m.Tabs() {
		out = append(out, t.ID)
	}
	return out
}

func TestNewModelHasDefaultTab(t *testing.T) {
	m := New(DefaultTitlePolicy())
	require.Equal(t, 1, m.Len())
	tab := m.Tabs()[0]
	assert.Equal(t, DefaultTitle, tab.Title)
	assert.Equal(t, tab.ID, m.Active())
	assert.Equal(t, StateUnbound, tab.State)
}

func TestAddTabAppendsAndActivates(t *testing.T) {
	m := newTestModel()
	tab := m.AddTab("/home/dev/api", true)

	assert.Equal(t, []string{"t1", "t2"}, ids(m))
	assert.Equal(t, "t2", m.Active())
	assert.Equal(t, "api", tab.Title)
	assert.True(t, tab.Elevated)
	assert.Equal(t, "/home/dev/api", tab.Dir)
}

func TestCloseLastTabSynthesizesDefault(t *testing.T) {
	m := newTestModel()
	require.NoError(t, m.Bind("t1", session.ID(500)))

	res, err := m.CloseTab("t1")
	require.NoError(t, err)
	assert.Equal(t, session.ID(500), res.Closed.SessionID)
	assert.Equal(t, StateClosed, res.Closed.State)
	require.NotNil(t, res.Replacement)
	assert.Equal(t, DefaultTitle, res.Replacement.Title)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, res.Replacement.ID, m.Active())
}

func TestCloseActiveActivatesLastRemaining(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false) // t2
	m.AddTab("", false) // t3
	m.AddTab("", false) // t4
	require.NoError(t, m.Activate("t2"))

	res, err := m.CloseTab("t2")
	require.NoError(t, err)
	assert.Nil(t, res.Replacement)
	assert.Equal(t, "t4", m.Active())
	assert.Equal(t, []string{"t1", "t3", "t4"}, ids(m))
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false)
	require.NoError(t, m.Activate("t1"))

	_, err := m.CloseTab("t2")
	require.NoError(t, err)
	assert.Equal(t, "t1", m.Active())
}

func TestCloseUnknownTab(t *testing.T) {
	m := newTestModel()
	_, err := m.CloseTab("nope")
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.Equal(t, 1, m.Len())
}

func TestRenameTab(t *testing.T) {
	m := newTestModel()
	require.NoError(t, m.RenameTab("t1", "  backend  "))
	tab, _ := m.Get("t1")
	assert.Equal(t, "backend", tab.Title)
	assert.True(t, tab.ManualTitle)

	assert.ErrorIs(t, m.RenameTab("t1", "   "), ErrBlankTitle)
	assert.ErrorIs(t, m.RenameTab("zz", "x"), ErrTabNotFound)
	tab, _ = m.Get("t1")
	assert.Equal(t, "backend", tab.Title)
}

func TestManualTitleSurvivesDerivedTitle(t *testing.T) {
	m := newTestModel()
	require.NoError(t, m.RenameTab("t1", "deploy"))
	assert.False(t, m.ApplyDerivedTitle("t1", "bash"))
	assert.False(t, m.ApplyDerivedTitle("t1", "vim main.go"))
	tab, _ := m.Get("t1")
	assert.Equal(t, "deploy", tab.Title)
}

func TestGenericTitleSuppressed(t *testing.T) {
	m := newTestModel()
	require.True(t, m.ApplyDerivedTitle("t1", "MyProject"))
	assert.False(t, m.ApplyDerivedTitle("t1", "powershell.exe"))
	tab, _ := m.Get("t1")
	assert.Equal(t, "MyProject", tab.Title)
}

func TestDerivedTitleCleanup(t *testing.T) {
	m := newTestModel()

	assert.True(t, m.ApplyDerivedTitle("t1", `Administrator: C:\Users\dev\repo`))
	tab, _ := m.Get("t1")
	assert.Equal(t, "repo", tab.Title)

	assert.False(t, m.ApplyDerivedTitle("t1", "repo"))
	assert.True(t, m.ApplyDerivedTitle("t1", "htop"))
	tab, _ = m.Get("t1")
	assert.Equal(t, "htop", tab.Title)
}

func TestNotificationsFlagInactiveOnly(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false) // t2 active

	assert.False(t, m.SetNotification("t2", notify.Alert))
	assert.True(t, m.SetNotification("t1", notify.Alert))
	assert.True(t, m.SetNotification("t1", notify.Confirmation))
	assert.False(t, m.SetNotification("t1", notify.Alert))
	assert.False(t, m.SetNotification("t1", notify.None))

	tab, _ := m.Get("t1")
	assert.True(t, tab.Alert)
	assert.True(t, tab.Confirmation)

	require.NoError(t, m.Activate("t1"))
	tab, _ = m.Get("t1")
	assert.False(t, tab.Alert)
	assert.False(t, tab.Confirmation)
}

func TestClearNotifications(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false)
	m.SetNotification("t1", notify.Alert)
	m.ClearNotifications("t1")
	tab, _ := m.Get("t1")
	assert.False(t, tab.Alert)
}

func TestNextPrevWrap(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false)
	m.AddTab("", false) // t3 active

	assert.Equal(t, "t1", m.Next())
	assert.Equal(t, "t2", m.Next())
	assert.Equal(t, "t1", m.Prev())
	assert.Equal(t, "t3", m.Prev())
}

func TestNextClearsFlags(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false)
	m.SetNotification("t1", notify.Confirmation)
	assert.Equal(t, "t1", m.Next())
	tab, _ := m.Get("t1")
	assert.False(t, tab.Confirmation)
}

func TestLifecycle(t *testing.T) {
	m := newTestModel()
	require.NoError(t, m.MarkSpawning("t1"))
	tab, _ := m.Get("t1")
	assert.Equal(t, StateSpawning, tab.State)
	assert.ErrorIs(t, m.MarkSpawning("t1"), ErrSpawnInProgress)

	m.SpawnFailed("t1", errors.New("exec: bash: not found"))
	tab, _ = m.Get("t1")
	assert.Equal(t, StateUnbound, tab.State)
	assert.Equal(t, "exec: bash: not found", tab.Error)

	require.NoError(t, m.MarkSpawning("t1"))
	require.NoError(t, m.Bind("t1", session.ID(7)))
	tab, _ = m.Get("t1")
	assert.Equal(t, StateAlive, tab.State)
	assert.Empty(t, tab.Error)
	assert.True(t, tab.Bound())
	assert.ErrorIs(t, m.MarkSpawning("t1"), ErrAlreadyBound)

	got, ok := m.BySession(session.ID(7))
	require.True(t, ok)
	assert.Equal(t, "t1", got.ID)

	id, ok := m.MarkExited(session.ID(7), 2)
	require.True(t, ok)
	assert.Equal(t, "t1", id)
	_, ok = m.MarkExited(session.ID(7), 2)
	assert.False(t, ok)

	tab, _ = m.Get("t1")
	assert.Equal(t, StateExited, tab.State)
	assert.Equal(t, 2, tab.ExitCode)
}

func TestBindRejectsSharedSession(t *testing.T) {
	m := newTestModel()
	m.AddTab("", false)
	require.NoError(t, m.Bind("t1", session.ID(9)))
	assert.ErrorIs(t, m.Bind("t2", session.ID(9)), ErrSessionInUse)
	assert.ErrorIs(t, m.Bind("t1", session.ID(10)), ErrAlreadyBound)
}

func TestRestore(t *testing.T) {
	m := newTestModel()
	m.Restore([]Tab{
		{ID: "a", Title: "api", Dir: "/srv/api", ManualTitle: true, SessionID: 44, State: StateAlive, Alert: true},
		{ID: "a", Title: "dupe"},
		{ID: "b", Dir: "/srv/web"},
		{ID: ""},
	}, "b")

	require.Equal(t, []string{"a", "b"}, ids(m))
	a, _ := m.Get("a")
	assert.Equal(t, session.ID(0), a.SessionID)
	assert.Equal(t, StateUnbound, a.State)
	assert.False(t, a.Alert)
	assert.True(t, a.ManualTitle)
	b, _ := m.Get("b")
	assert.Equal(t, "web", b.Title)
	assert.Equal(t, "b", m.Active())

	m.Restore([]Tab{{ID: "x"}}, "missing")
	assert.Equal(t, "x", m.Active())

	m.Restore(nil, "")
	assert.Equal(t, 1, m.Len())
}

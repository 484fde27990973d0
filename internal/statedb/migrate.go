package statedb

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// legacyWorkspace mirrors the JSON export of the desktop app's local
// storage: one key per persisted value.
type legacyWorkspace struct {
	Tabs          []legacyTab     `json:"tabs"`
	ActiveTabID   string          `json:"activeTabId"`
	Projects      []legacyProject `json:"projects"`
	SidebarWidth  json.Number     `json:"sidebarWidth"`
	TerminalTheme string          `json:"terminalTheme"`
}

type legacyTab struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Cwd           string `json:"cwd"`
	IsManualTitle bool   `json:"isManualTitle"`
	IsAdmin       bool   `json:"isAdmin"`
}

type legacyProject struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ImportResult counts what ImportJSON stored.
type ImportResult struct {
	Tabs     int
	Projects int
}

// ImportJSON loads a legacy workspace export into db. Tabs replace the
// stored set; projects are added unless their path already exists.
func ImportJSON(jsonPath string, db *StateDB) (ImportResult, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read json: %w", err)
	}

	var ws legacyWorkspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return ImportResult{}, fmt.Errorf("parse json: %w", err)
	}

	var res ImportResult
	if len(ws.Tabs) > 0 {
		rows := make([]TabRow, 0, len(ws.Tabs))
		seen := make(map[string]bool, len(ws.Tabs))
		for _, t := range ws.Tabs {
			if t.ID == "" || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			rows = append(rows, TabRow{
				ID:          t.ID,
				Title:       t.Title,
				Dir:         t.Cwd,
				ManualTitle: t.IsManualTitle,
				Elevated:    t.IsAdmin,
			})
		}
		if err := db.SaveTabs(rows); err != nil {
			return ImportResult{}, fmt.Errorf("save tabs: %w", err)
		}
		res.Tabs = len(rows)
	}

	for _, p := range ws.Projects {
		if strings.TrimSpace(p.Path) == "" {
			continue
		}
		added, err := db.AddProject(ProjectRow{Path: p.Path, Name: p.Name, Type: p.Type})
		if err != nil {
			return res, fmt.Errorf("save project %s: %w", p.Path, err)
		}
		if added {
			res.Projects++
		}
	}

	prefs := map[string]string{
		PrefActiveTab:     ws.ActiveTabID,
		PrefTerminalTheme: ws.TerminalTheme,
	}
	if n, err := ws.SidebarWidth.Int64(); err == nil && n > 0 {
		prefs[PrefSidebarWidth] = strconv.FormatInt(n, 10)
	}
	for k, v := range prefs {
		if v == "" {
			continue
		}
		if err := db.SetPreference(k, v); err != nil {
			return res, fmt.Errorf("save preference %s: %w", k, err)
		}
	}
	return res, nil
}

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/asheshgoplani/shelldeck/internal/config"
	"github.com/asheshgoplani/shelldeck/internal/project"
	"github.com/asheshgoplani/shelldeck/internal/statedb"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
	"github.com/asheshgoplani/shelldeck/internal/ui"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

// tabJSON is the --json shape of a saved tab.
type tabJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Dir      string `json:"dir,omitempty"`
	Manual   bool   `json:"manualTitle,omitempty"`
	Elevated bool   `json:"elevated,omitempty"`
	Active   bool   `json:"active,omitempty"`
}

type projectJSON struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func handleTabs(args []string) {
	fs := flag.NewFlagSet("tabs", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: shelldeck tabs [--json]")
		fmt.Println()
		fmt.Println("List the saved tabs. * marks the active tab.")
	}
	if err := parseFlags(fs, args); err != nil {
		fatal(err)
	}

	cfg := loadConfig()
	ui.InitTheme(cfg.ResolveTheme())

	db, err := openStateDB()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ts, active, err := savedTabs(db)
	if err != nil {
		fatal(err)
	}

	if *jsonOutput {
		out := make([]tabJSON, 0, len(ts))
		for _, t := range ts {
			out = append(out, tabJSON{
				ID:       t.ID,
				Title:    t.Title,
				Dir:      t.Dir,
				Manual:   t.ManualTitle,
				Elevated: t.Elevated,
				Active:   t.ID == active,
			})
		}
		printJSON(out)
		return
	}
	if len(ts) == 0 {
		fmt.Println("No saved tabs. Start the server with: shelldeck serve")
		return
	}
	fmt.Print(ui.RenderTabTable(ts, active))
}

func handleProjects(args []string) {
	if len(args) == 0 {
		printProjectsHelp()
		os.Exit(1)
	}

	db, err := openStateDB()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	reg, err := project.NewRegistry(db, project.NewDetector())
	if err != nil {
		fatal(err)
	}

	switch args[0] {
	case "add":
		err = projectsAdd(reg, args[1:])
	case "list", "ls":
		err = projectsList(reg, args[1:])
	case "remove", "rm":
		err = projectsRemove(reg, args[1:])
	case "help", "--help", "-h":
		printProjectsHelp()
		return
	default:
		err = fmt.Errorf("unknown projects command %q", args[0])
	}
	if err != nil {
		db.Close()
		fatal(err)
	}
}

func printProjectsHelp() {
	fmt.Println("Usage: shelldeck projects <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add <path>      Register a directory (defaults to the current one)")
	fmt.Println("  list [--json]   List projects with their detected type")
	fmt.Println("  remove <path>   Unregister a directory")
}

func projectsAdd(reg *project.Registry, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}

	p, added, err := reg.Add(abs)
	if err != nil {
		return err
	}
	if !added {
		fmt.Printf("Project %s is already registered\n", p.Path)
		return nil
	}
	typ, err := reg.Resolve(p.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Added project %s (%s)\n", p.Name, typ)
	return nil
}

func projectsList(reg *project.Registry, args []string) error {
	fs := flag.NewFlagSet("projects list", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	list := reg.List()
	out := make([]projectJSON, 0, len(list))
	for _, p := range list {
		typ, err := reg.Resolve(p.Path)
		if err != nil {
			return err
		}
		out = append(out, projectJSON{Name: p.Name, Path: p.Path, Type: string(typ)})
	}

	if *jsonOutput {
		printJSON(out)
		return nil
	}
	if len(out) == 0 {
		fmt.Println("No projects. Add one with: shelldeck projects add <path>")
		return nil
	}
	nameCol := 4
	for _, p := range out {
		nameCol = max(nameCol, len(p.Name))
	}
	for _, p := range out {
		fmt.Printf("%-*s  %-6s  %s\n", nameCol, p.Name, p.Type, p.Path)
	}
	return nil
}

func projectsRemove(reg *project.Registry, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: shelldeck projects remove <path>")
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if err := reg.Remove(abs); err != nil {
		return err
	}
	fmt.Printf("Removed project %s\n", abs)
	return nil
}

// switchStore is the part of the state database the switcher writes.
type switchStore interface {
	LoadTabs() ([]statedb.TabRow, error)
	SaveTabs(tabs []statedb.TabRow) error
	SetPreference(key, value string) error
}

// applySelection persists a switcher choice: a tab becomes active, a
// project gets a new tab in its directory that becomes active.
func applySelection(store switchStore, r workspace.Result) (string, error) {
	switch r.Kind {
	case workspace.ResultTab:
		if err := store.SetPreference(statedb.PrefActiveTab, r.TabID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Active tab: %s", r.Label), nil

	case workspace.ResultProject:
		rows, err := store.LoadTabs()
		if err != nil {
			return "", err
		}
		row := statedb.TabRow{ID: tabs.NewID(), Title: tabs.DirTitle(r.Path), Dir: r.Path}
		if err := store.SaveTabs(append(rows, row)); err != nil {
			return "", err
		}
		if err := store.SetPreference(statedb.PrefActiveTab, row.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Opened tab %s in %s", row.Title, r.Path), nil
	}
	return "", fmt.Errorf("unknown result kind %q", r.Kind)
}

func handleSwitch(args []string) {
	fs := flag.NewFlagSet("switch", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Println("Usage: shelldeck switch")
		fmt.Println()
		fmt.Println("Fuzzy-pick a saved tab or a project. A tab becomes the active tab;")
		fmt.Println("a project gets a new tab. A running server applies it on next restore.")
	}
	if err := parseFlags(fs, args); err != nil {
		fatal(err)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fatal(errors.New("switch needs an interactive terminal"))
	}

	cfg := loadConfig()
	ui.InitTheme(cfg.ResolveTheme())

	db, err := openStateDB()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ts, _, err := savedTabs(db)
	if err != nil {
		fatal(err)
	}
	reg, err := project.NewRegistry(db, project.NewDetector())
	if err != nil {
		fatal(err)
	}
	projects := reg.List()

	switcher := ui.NewSwitcher(func(q string) []workspace.Result {
		return workspace.Match(q, ts, projects)
	})
	if _, err := tea.NewProgram(switcher).Run(); err != nil {
		fatal(err)
	}
	choice, ok := switcher.Selected()
	if !ok {
		return
	}
	msg, err := applySelection(db, choice)
	if err != nil {
		fatal(err)
	}
	fmt.Println(msg)
}

func handleImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Println("Usage: shelldeck import <workspace.json>")
		fmt.Println()
		fmt.Println("Import tabs, projects and layout from a legacy workspace export.")
		fmt.Println("Saved tabs are replaced; existing projects are kept.")
	}
	if err := parseFlags(fs, args); err != nil {
		fatal(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	db, err := openStateDB()
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	res, err := statedb.ImportJSON(fs.Arg(0), db)
	if err != nil {
		db.Close()
		fatal(err)
	}
	fmt.Printf("Imported %d tab(s) and %d project(s)\n", res.Tabs, res.Projects)
}

func handleConfig(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: shelldeck config <path|init>")
		os.Exit(1)
	}
	switch args[0] {
	case "path":
		path, err := config.Path()
		if err != nil {
			fatal(err)
		}
		fmt.Println(path)
	case "init":
		path, err := config.Path()
		if err != nil {
			fatal(err)
		}
		if _, err := os.Stat(path); err == nil {
			fatal(fmt.Errorf("%s already exists", path))
		}
		if err := config.Save(defaultConfig()); err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote %s\n", path)
	default:
		fatal(fmt.Errorf("unknown config command %q", args[0]))
	}
}

// defaultConfig is written by "config init" so every section shows up in
// the file.
func defaultConfig() *config.Config {
	cfg := &config.Config{Theme: "dark"}
	cfg.Web = cfg.WebConfig()
	cfg.Logs.Level = "info"
	cfg.Logs.Format = "json"
	return cfg
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/asheshgoplani/shelldeck/internal/config"
	"github.com/asheshgoplani/shelldeck/internal/statedb"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

// debugEnv turns on debug logging to stderr for every command.
const debugEnv = "SHELLDECK_DEBUG"

// normalizeArgs reorders args so flags come before positional arguments.
// The flag package stops at the first positional, which would make
// "projects add ~/src --json" ignore --json.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// parseFlags parses args into fs. It exits 0 for -h and returns any other
// parse error.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return fmt.Errorf("flag parsing: %w", err)
	}
	return nil
}

// fatal prints err and exits 1.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// loadConfig loads config.toml. A broken file is reported and defaults are
// used so the CLI stays usable.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg
}

// openStateDB opens and migrates the workspace database.
func openStateDB() (*statedb.StateDB, error) {
	path, err := config.DBPath()
	if err != nil {
		return nil, err
	}
	db, err := statedb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return db, nil
}

// savedTabs loads the persisted tab set as unbound tabs plus the stored
// active tab id. A stale active id falls back to the first tab.
func savedTabs(db *statedb.StateDB) ([]tabs.Tab, string, error) {
	rows, err := db.LoadTabs()
	if err != nil {
		return nil, "", err
	}
	active, err := db.GetPreference(statedb.PrefActiveTab)
	if err != nil {
		return nil, "", err
	}

	out := make([]tabs.Tab, 0, len(rows))
	found := false
	for _, r := range rows {
		out = append(out, tabs.Tab{
			ID:          r.ID,
			Title:       r.Title,
			Dir:         r.Dir,
			ManualTitle: r.ManualTitle,
			Elevated:    r.Elevated,
		})
		if r.ID == active {
			found = true
		}
	}
	if !found {
		active = ""
		if len(out) > 0 {
			active = out[0].ID
		}
	}
	return out, active, nil
}

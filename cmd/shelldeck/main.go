package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const Version = "0.4.0"

// ColorEnv forces a color profile: truecolor, 256, 16 or none.
const ColorEnv = "SHELLDECK_COLOR"

func init() {
	initColorProfile()
}

// initColorProfile picks the lipgloss color profile. Detection through the
// terminal is unreliable under ssh and tmux, so an explicit override wins
// and a few well-known terminals are trusted before falling back to 256.
func initColorProfile() {
	switch strings.ToLower(os.Getenv(ColorEnv)) {
	case "truecolor", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	term := os.Getenv("TERM")
	for _, t := range []string{"xterm-direct", "alacritty", "kitty", "wezterm", "tmux-256color", "xterm-256color"} {
		if strings.Contains(term, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}
	if os.Getenv("WT_SESSION") != "" || os.Getenv("ITERM_SESSION_ID") != "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("shelldeck v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "serve":
		handleServe(args[1:])
	case "tabs", "ls":
		handleTabs(args[1:])
	case "projects", "project":
		handleProjects(args[1:])
	case "switch", "sw":
		handleSwitch(args[1:])
	case "import":
		handleImport(args[1:])
	case "config":
		handleConfig(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("shelldeck v%s\n", Version)
	fmt.Println("Tabbed shell sessions served over a single websocket.")
	fmt.Println()
	fmt.Println("Usage: shelldeck <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve              Restore the workspace and serve it on /ws")
	fmt.Println("  tabs               List saved tabs")
	fmt.Println("  projects <cmd>     Manage projects (add, list, remove)")
	fmt.Println("  switch             Pick a tab or project with the quick switcher")
	fmt.Println("  import <file>      Import a legacy workspace JSON export")
	fmt.Println("  config path        Print the config file location")
	fmt.Println("  version            Show version")
	fmt.Println("  help               Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  %-18s State directory (default ~/.shelldeck)\n", "SHELLDECK_HOME")
	fmt.Printf("  %-18s Color profile: truecolor, 256, 16, none\n", ColorEnv)
	fmt.Printf("  %-18s Log to stderr at debug level\n", debugEnv)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  shelldeck serve --listen 127.0.0.1:9000 --token s3cret")
	fmt.Println("  shelldeck projects add ~/src/api")
	fmt.Println("  shelldeck switch")
}

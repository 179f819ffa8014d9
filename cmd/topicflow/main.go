package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _              _       __ _
  | |_ ___  _ __ (_) ___ / _| | _____      __
  | __/ _ \| '_ \| |/ __| |_| |/ _ \ \ /\ / /
  | || (_) | |_) | | (__|  _| | (_) \ V  V /
   \__\___/| .__/|_|\___|_| |_|\___/ \_/\_/
           |_|

  Topics for long AI conversations

  Usage: topicflow <command> [options]
         topicflow serve        start the web app
         topicflow --help

  MCP server mode requires piped input.`)
}

// resolveArgs maps a bare invocation with piped stdin to the MCP server,
// which is how MCP clients launch the binary.
func resolveArgs(args []string, terminal bool) []string {
	if len(args) < 2 && !terminal {
		return append(args, "mcp")
	}
	return args
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	terminal := isTerminal()
	if len(os.Args) < 2 && terminal {
		printBanner()
		return
	}

	app := newCLIApp(&appState{getenv: os.Getenv})
	if err := app.Run(resolveArgs(os.Args, terminal)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Package main is the entry point for the lesynth CLI.
//
// Usage:
//
//	lesynth [flags] <command> [subcommand] [args]
//
// Commands:
//
//	run        - Run the synth gateway or headset (default)
//	config     - Device contexts (add, set, use, list, show, delete)
//	preset     - Sound presets (list, show, import, export, delete)
//	version    - Show version information
package main

import (
	"os"

	"github.com/haivivi/lesynth/cmd/lesynth/commands"
	"github.com/haivivi/lesynth/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}

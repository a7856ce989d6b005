// Package cli provides the pieces shared by the lesynth command line:
// configuration contexts, file locations, output formatting and the
// terminal UI frame.
//
// Configuration is stored in ~/.haivivi/<app>/config.yaml and holds named
// contexts, similar to kubectl. Application settings live in a context's
// Extra map:
//
//	cfg, err := cli.LoadConfig("lesynth")
//	ctx, err := cfg.ResolveContext(name)
//	voices := ctx.ExtraInt("voices", 5)
package cli

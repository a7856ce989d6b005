package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/lesynth/pkg/cli"
	"github.com/haivivi/lesynth/pkg/preset"
)

var (
	presetOutput string
	presetFile   string
	presetName   string
)

// presetCmd represents the preset command
var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage sound presets",
	Long: `Manage sound presets.

Presets are stored in ~/.haivivi/lesynth/data/presets. The builtin presets
(default, pluck, pad) are always available; a stored preset of the same name
overrides them.`,
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *preset.Store) error {
			names, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			builtins := preset.Builtins()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tWAVEFORM\tBPM\tDIVIDER\tSOURCE")
			for _, name := range names {
				p, err := s.Load(cmd.Context(), name)
				if err != nil {
					fmt.Fprintf(w, "%s\t(error: %v)\t\t\t\n", name, err)
					continue
				}
				source := "stored"
				if b, ok := builtins[name]; ok && b == p {
					source = "builtin"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", name, p.Waveform, p.BPM, p.Divider, source)
			}
			return w.Flush()
		})
	},
}

var presetShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(presetOutput)
		if err != nil {
			return err
		}
		return withStore(func(s *preset.Store) error {
			p, err := s.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.Output(p, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
		})
	},
}

var presetImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a preset from a YAML or JSON file",
	Long: `Import a preset from a YAML or JSON file. The preset is validated
before it is stored. --name overrides the name in the file.

Example:
  lesynth preset export pad -f pad.yaml
  lesynth preset import pad.yaml --name=slowpad`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p preset.Preset
		if err := cli.LoadFile(args[0], &p); err != nil {
			return err
		}
		if presetName != "" {
			p.Name = presetName
		}
		if p.Name == "" {
			return fmt.Errorf("preset has no name; use --name")
		}
		return withStore(func(s *preset.Store) error {
			if err := s.Save(cmd.Context(), p); err != nil {
				return err
			}
			cli.PrintSuccess("Preset %q saved", p.Name)
			return nil
		})
	},
}

var presetExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write a preset to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(presetOutput)
		if err != nil {
			return err
		}
		return withStore(func(s *preset.Store) error {
			p, err := s.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts := cli.OutputOptions{Format: format, File: presetFile}
			if presetFile == "" {
				opts.Writer = cmd.OutOrStdout()
			}
			return cli.Output(p, opts)
		})
	},
}

var presetDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *preset.Store) error {
			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if _, ok := preset.Builtins()[args[0]]; ok {
				cli.PrintInfo("Preset %q reverted to builtin", args[0])
				return nil
			}
			cli.PrintSuccess("Preset %q deleted", args[0])
			return nil
		})
	},
}

// withStore opens the preset store for the duration of fn.
func withStore(fn func(*preset.Store) error) error {
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return err
	}
	s, err := openPresetStore(paths, slog.Default())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func init() {
	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetShowCmd)
	presetCmd.AddCommand(presetImportCmd)
	presetCmd.AddCommand(presetExportCmd)
	presetCmd.AddCommand(presetDeleteCmd)

	presetShowCmd.Flags().StringVarP(&presetOutput, "output", "o", "", "output format: yaml or json")
	presetExportCmd.Flags().StringVarP(&presetOutput, "output", "o", "", "output format: yaml or json")
	presetExportCmd.Flags().StringVarP(&presetFile, "file", "f", "", "output file (default stdout)")
	presetImportCmd.Flags().StringVar(&presetName, "name", "", "store under this name")
}

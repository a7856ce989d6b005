package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/lesynth/pkg/cli"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage lesynth configuration.

Configuration is stored in ~/.haivivi/lesynth/config.yaml`,
}

// contextCmd represents the context subcommand
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage contexts",
	Long:  `Manage lesynth contexts, one per device setup.`,
}

// contextListCmd lists all contexts
var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("\nCreate one with:")
			fmt.Println("  lesynth config context set desk --role=gateway --transport=cis --codec=adpcm")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tROLE\tTRANSPORT\tCODEC\tLINK\tDESCRIPTION")
		for _, name := range names {
			ctx, _ := cfg.GetContext(name)
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			dc, err := LoadDeviceConfig(ctx)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s\t(invalid: %v)\t\t\t\t\n", current, name, err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				current, name, dc.Role, dc.Transport, dc.Codec, dc.Link, ctx.Description)
		}
		return w.Flush()
	},
}

// contextUseCmd switches the current context
var contextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch to a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := args[0]
		if err := cfg.UseContext(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", name)
		return nil
	},
}

var (
	setFlags       deviceFlags
	setDescription string
)

// contextSetCmd creates or updates a context
var contextSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a context",
	Long: `Create or update a context with the specified settings. Only the flags
given are changed.

Examples:
  # Stereo gateway over two connected channels
  lesynth config context set desk --role=gateway --transport=cis --codec=adpcm

  # Broadcast over RTP
  lesynth config context set bcast --transport=bis --link=rtp \
    --rtp-local=0.0.0.0:5004 --rtp-remote=239.0.0.1:5004

  # Headset returning its microphone at 16 kHz
  lesynth config context set mic --role=headset --sample-rate=16000 --frame=7.5ms`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := args[0]

		// Get existing context or create new one
		ctx, err := cfg.GetContext(name)
		if err != nil {
			ctx = &cli.Context{Name: name}
		}

		dc, err := LoadDeviceConfig(ctx)
		if err != nil {
			return fmt.Errorf("context %q: %w", name, err)
		}
		if err := setFlags.apply(cmd.Flags(), &dc); err != nil {
			return err
		}
		if cmd.Flags().Changed("description") {
			ctx.Description = setDescription
		}
		SaveDeviceConfig(ctx, dc)

		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q saved\n", name)
		return nil
	},
}

// contextDeleteCmd deletes a context
var contextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := args[0]
		if err := cfg.DeleteContext(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted\n", name)
		return nil
	},
}

var showOutput string

// contextShowCmd shows the current context details
var contextShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show context details",
	Long: `Show the device configuration of a context. If no name is provided,
shows the current context.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var ctx *cli.Context
		if len(args) > 0 {
			ctx, err = cfg.GetContext(args[0])
		} else {
			if cfg.CurrentContext == "" {
				return fmt.Errorf("no current context set. Use 'lesynth config context use <name>' to set one")
			}
			ctx, err = cfg.GetCurrentContext()
		}
		if err != nil {
			return err
		}

		dc, err := LoadDeviceConfig(ctx)
		if err != nil {
			return fmt.Errorf("context %q: %w", ctx.Name, err)
		}

		format, err := cli.ParseFormat(showOutput)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !cmd.Flags().Changed("output") {
			fmt.Fprintf(out, "Context: %s", ctx.Name)
			if ctx.Name == cfg.CurrentContext {
				fmt.Fprint(out, " (current)")
			}
			fmt.Fprintln(out)
			if ctx.Description != "" {
				fmt.Fprintln(out, ctx.Description)
			}
			fmt.Fprintln(out, strings.Repeat("-", 40))
		}
		return cli.Output(dc, cli.OutputOptions{Format: format, Writer: out})
	},
}

// contextCurrentCmd shows the current context name
var contextCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

func init() {
	configCmd.AddCommand(contextCmd)

	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextDeleteCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextCurrentCmd)

	setFlags.register(contextSetCmd.Flags())
	contextSetCmd.Flags().StringVar(&setDescription, "description", "", "free text shown by list")

	contextShowCmd.Flags().StringVarP(&showOutput, "output", "o", "", "output format: yaml or json")
}

// Package cli implements the prebuilt command-line tool.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/daehyeonmun2021/react-native-godot/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Manifest string
	Format   string // "text" | "json"
	Verbose  bool
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the prebuilt root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prebuilt",
		Short: "Manage prebuilt engine artifacts",
		Long: `Download, verify, and unpack the prebuilt engine libraries listed in a
project manifest (package.json "prebuiltFiles" or an equivalent YAML file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Manifest, "manifest", "m", "package.json", "manifest file (package.json or .yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log each pipeline step")

	cmd.AddCommand(NewDownloadCommand(opts))
	cmd.AddCommand(NewPathCommand(opts))

	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelInfo
	}
	return config.NewLogger(cmd.ErrOrStderr(), level)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
}

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/daehyeonmun2021/react-native-godot/internal/prebuilt"
)

// NewPathCommand creates the path command.
func NewPathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <name>",
		Short: "Print the install directory of a prebuilt entry",
		Long:  "Print <destination_base_dir>/<name>/<version> for the named manifest entry, relative to the project root.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			manifest, err := prebuilt.LoadManifest(rootOpts.Manifest)
			if err != nil {
				return fail(out, ExitCommandError, ErrCodeManifest, "load manifest", err, nil)
			}
			p, err := manifest.PrebuiltPath(args[0])
			if errors.Is(err, prebuilt.ErrEntryNotFound) {
				return fail(out, ExitCommandError, ErrCodeEntryNotFound, "resolve path", err, nil)
			}
			if err != nil {
				return fail(out, ExitFailure, ErrCodeGeneric, "resolve path", err, nil)
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]string{"name": args[0], "path": p})
			}
			return out.Success(p)
		},
	}
}

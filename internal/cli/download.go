package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/daehyeonmun2021/react-native-godot/internal/prebuilt"
)

// DownloadOptions holds flags for the download command.
type DownloadOptions struct {
	Root            string
	SkipChecksum    bool
	ReplaceExisting bool
}

// downloadEnv holds the environment switches honored by download. Flags set
// on the command line take precedence.
type downloadEnv struct {
	ShasumCheck     string `env:"SHASUM_CHECK"`
	ReplaceExisting string `env:"REPLACE_EXISTING"`
}

// DownloadReport is the result of a download run.
type DownloadReport struct {
	Manifest string            `json:"manifest"`
	Root     string            `json:"root"`
	Entries  []prebuilt.Result `json:"entries"`
	Failed   bool              `json:"failed,omitempty"`
}

func (r DownloadReport) String() string {
	if len(r.Entries) == 0 {
		return "No prebuilt files defined in " + r.Manifest + "."
	}
	var b strings.Builder
	for _, e := range r.Entries {
		switch e.Action {
		case prebuilt.ActionSkipped:
			fmt.Fprintf(&b, "%s %s: skipped, %s is not empty\n", e.Name, e.Version, e.Target)
		default:
			check := "checksum skipped"
			if e.Verified {
				check = "checksum verified"
			}
			fmt.Fprintf(&b, "%s %s: installed from %s (%s) -> %s\n", e.Name, e.Version, e.Source, check, e.Target)
		}
	}
	if r.Failed {
		b.WriteString("Stopped at the first failure.")
	} else {
		b.WriteString("All prebuilt files processed.")
	}
	return b.String()
}

// NewDownloadCommand creates the download command.
func NewDownloadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DownloadOptions{}

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and unpack every artifact in the manifest",
		Long: `Download each prebuilt artifact, verify its SHA-256 digest, and unpack it into
<root>/<destination_base_dir>/<name>/<version>.

Entries whose target directory is already populated are skipped unless
--replace-existing is set. An entry's "env" variable, when set, names a
local archive used instead of the download.

Environment:
  SHASUM_CHECK=false      skip checksum verification
  REPLACE_EXISTING=true   reinstall populated targets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "", "project root (default: the manifest's directory)")
	cmd.Flags().BoolVar(&opts.SkipChecksum, "skip-checksum", false, "skip SHA-256 verification")
	cmd.Flags().BoolVar(&opts.ReplaceExisting, "replace-existing", false, "reinstall entries whose target is not empty")

	return cmd
}

func runDownload(cmd *cobra.Command, rootOpts *RootOptions, opts *DownloadOptions) error {
	out := rootOpts.formatter(cmd)

	var envOpts downloadEnv
	if err := env.Parse(&envOpts); err != nil {
		return fail(out, ExitCommandError, ErrCodeInvalidArguments, "parse environment", err, nil)
	}
	skip := strings.EqualFold(envOpts.ShasumCheck, "false")
	replace := strings.EqualFold(envOpts.ReplaceExisting, "true")
	if cmd.Flags().Changed("skip-checksum") {
		skip = opts.SkipChecksum
	}
	if cmd.Flags().Changed("replace-existing") {
		replace = opts.ReplaceExisting
	}

	manifest, err := prebuilt.LoadManifest(rootOpts.Manifest)
	if err != nil {
		return fail(out, ExitCommandError, ErrCodeManifest, "load manifest", err, nil)
	}

	root := opts.Root
	if root == "" {
		root = filepath.Dir(rootOpts.Manifest)
	}

	report := DownloadReport{Manifest: rootOpts.Manifest, Root: root}
	pipeline := prebuilt.NewPipeline(prebuilt.Options{
		Root:            root,
		SkipChecksum:    skip,
		ReplaceExisting: replace,
		Logger:          rootOpts.logger(cmd),
	})

	results, err := pipeline.Run(cmd.Context(), manifest.Entries)
	report.Entries = results
	if err != nil {
		report.Failed = true
		return fail(out, ExitFailure, pipelineErrorCode(err), "download prebuilt files", err, report)
	}
	return out.Success(report)
}

func pipelineErrorCode(err error) string {
	switch {
	case errors.Is(err, prebuilt.ErrChecksumMismatch):
		return ErrCodeChecksum
	case errors.Is(err, prebuilt.ErrFetch):
		return ErrCodeFetch
	case errors.Is(err, prebuilt.ErrLocalOverride):
		return ErrCodeLocalOverride
	case errors.Is(err, prebuilt.ErrExtract):
		return ErrCodeExtract
	default:
		return ErrCodeGeneric
	}
}

// fail reports err through the formatter and returns an ExitError.
func fail(out *OutputFormatter, exitCode int, code, message string, err error, details any) error {
	if ferr := out.Error(code, fmt.Sprintf("%s: %v", message, err), details); ferr != nil {
		return ferr
	}
	return WrapExitError(exitCode, fmt.Sprintf("[%s] %s", code, message), err)
}

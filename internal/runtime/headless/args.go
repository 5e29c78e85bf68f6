package headless

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/pflag"
)

// Display drivers the headless runtime can stand in for.
const (
	DisplayEmbedded = "embedded"
	DisplayHeadless = "headless"
)

var (
	// ErrNoProject is returned when neither --path nor --main-pack is given.
	ErrNoProject = errors.New("one of --path or --main-pack is required")

	// ErrDisplayDriver is returned for display drivers other than embedded or headless.
	ErrDisplayDriver = errors.New("unsupported display driver")
)

// LaunchOptions holds the Godot launch flags the headless runtime understands.
// Unknown flags are ignored so native-only arguments can pass through.
type LaunchOptions struct {
	Path            string
	MainPack        string
	RenderingDriver string
	RenderingMethod string
	DisplayDriver   string
	RemoteDebug     string
	Verbose         bool
	Headless        bool
}

// Project returns the project location: the --path value or the main pack.
func (o LaunchOptions) Project() string {
	if o.Path != "" {
		return o.Path
	}
	return o.MainPack
}

// ParseArgs parses a Godot launch argument list.
func ParseArgs(args []string) (LaunchOptions, error) {
	var opts LaunchOptions

	fs := pflag.NewFlagSet("godot", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	fs.StringVar(&opts.Path, "path", "", "project directory")
	fs.StringVar(&opts.MainPack, "main-pack", "", "path to a .pck file")
	fs.StringVar(&opts.RenderingDriver, "rendering-driver", "", "rendering driver")
	fs.StringVar(&opts.RenderingMethod, "rendering-method", "", "rendering method")
	fs.StringVar(&opts.DisplayDriver, "display-driver", DisplayEmbedded, "display driver")
	fs.StringVar(&opts.RemoteDebug, "remote-debug", "", "remote debugger address")
	fs.BoolVar(&opts.Verbose, "verbose", false, "verbose logging")
	fs.BoolVar(&opts.Headless, "headless", false, "run without a display")

	if err := fs.Parse(args); err != nil {
		return LaunchOptions{}, fmt.Errorf("parse launch args: %w", err)
	}

	if opts.Path == "" && opts.MainPack == "" {
		return LaunchOptions{}, ErrNoProject
	}
	if opts.Headless {
		opts.DisplayDriver = DisplayHeadless
	}
	if !slices.Contains([]string{DisplayEmbedded, DisplayHeadless}, opts.DisplayDriver) {
		return LaunchOptions{}, fmt.Errorf("%w: %q", ErrDisplayDriver, opts.DisplayDriver)
	}

	return opts, nil
}

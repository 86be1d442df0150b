package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-loader/config"
	"github.com/wippyai/wasm-loader/plugin"
	"github.com/wippyai/wasm-loader/target"
)

// useColor is resolved from --color by setupGlobals.
var useColor bool

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	moduleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// render applies style only when color output is enabled.
func render(style lipgloss.Style, s string) string {
	if !useColor {
		return s
	}
	return style.Render(s)
}

var (
	okLabel   = color.New(color.FgGreen, color.Bold)
	warnLabel = color.New(color.FgYellow, color.Bold)
)

func statusf(w io.Writer, format string, args ...any) {
	okLabel.Fprint(w, "ok")
	fmt.Fprintf(w, " "+format+"\n", args...)
}

func warnf(w io.Writer, format string, args ...any) {
	warnLabel.Fprint(w, "warn")
	fmt.Fprintf(w, " "+format+"\n", args...)
}

// addOptionFlags registers the plugin option overrides shared by gen and build.
func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("include", nil, "include globs or /regexp/ filters")
	cmd.Flags().StringSlice("exclude", nil, "exclude globs or /regexp/ filters")
	cmd.Flags().Int64("max-inline-size", 0, "largest payload inlined in bytes, 0 externalizes everything (default 14336)")
	cmd.Flags().String("file-name", "", "artifact file name template (default [hash][extname])")
	cmd.Flags().String("public-path", "", "runtime path prefix of external artifacts")
	cmd.Flags().String("target", "", "target environment (auto|auto-inline|browser|node)")
	cmd.Flags().Int("concurrency", 0, "references processed in parallel")
}

// loadOptions reads the project file and applies flag overrides on top.
func loadOptions(cmd *cobra.Command) (plugin.Options, error) {
	configPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return plugin.Options{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return plugin.Options{}, err
	}
	file, err := config.Discover(configPath, cwd)
	if err != nil {
		return plugin.Options{}, err
	}
	opts, err := file.Options()
	if err != nil {
		return plugin.Options{}, err
	}
	if opts.Root == "" {
		opts.Root = cwd
	}

	flags := cmd.Flags()
	if flags.Changed("include") {
		opts.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		opts.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("max-inline-size") {
		opts.MaxInlineSize, _ = flags.GetInt64("max-inline-size")
	}
	if flags.Changed("file-name") {
		opts.FileName, _ = flags.GetString("file-name")
	}
	if flags.Changed("public-path") {
		opts.PublicPath, _ = flags.GetString("public-path")
	}
	if flags.Changed("target") {
		s, _ := flags.GetString("target")
		env, err := target.Parse(s)
		if err != nil {
			return plugin.Options{}, err
		}
		opts.TargetEnv = env
	}
	if flags.Changed("concurrency") {
		opts.Concurrency, _ = flags.GetInt("concurrency")
	}
	return opts, nil
}

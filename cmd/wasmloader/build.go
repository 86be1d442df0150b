package main

import (
	"fmt"
	"os"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-loader/esbuild"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] entry.js...",
	Short: "Bundle entry points with esbuild and the wasm plugin",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().String("outdir", "dist", "output directory")
	buildCmd.Flags().String("platform", "browser", "esbuild platform (browser|node|neutral)")
	buildCmd.Flags().Bool("minify", false, "minify the bundle")
	buildCmd.Flags().Bool("sourcemap", false, "emit source maps")
	addOptionFlags(buildCmd)
}

func parsePlatform(s string) (api.Platform, error) {
	switch s {
	case "browser":
		return api.PlatformBrowser, nil
	case "node":
		return api.PlatformNode, nil
	case "neutral":
		return api.PlatformNeutral, nil
	default:
		return 0, fmt.Errorf("unknown platform: %s", s)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	outdir, _ := cmd.Flags().GetString("outdir")
	platformFlag, _ := cmd.Flags().GetString("platform")
	minify, _ := cmd.Flags().GetBool("minify")
	sourcemap, _ := cmd.Flags().GetBool("sourcemap")

	platform, err := parsePlatform(platformFlag)
	if err != nil {
		return err
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	buildOpts := api.BuildOptions{
		EntryPoints:       args,
		AbsWorkingDir:     cwd,
		Outdir:            outdir,
		Bundle:            true,
		Write:             true,
		Format:            api.FormatESModule,
		Platform:          platform,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		LogLevel:          api.LogLevelWarning,
		Plugins:           []api.Plugin{esbuild.Plugin(opts)},
	}
	if sourcemap {
		buildOpts.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(buildOpts)
	if len(result.Errors) > 0 {
		return fmt.Errorf("build failed with %d error(s)", len(result.Errors))
	}
	for _, f := range result.OutputFiles {
		statusf(cmd.ErrOrStderr(), "%s (%d bytes)", f.Path, len(f.Contents))
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-loader/loader"
	"github.com/wippyai/wasm-loader/target"
)

var loaderCmd = &cobra.Command{
	Use:   "loader [flags]",
	Short: "Print the loader module for a target environment",
	Args:  cobra.NoArgs,
	RunE:  runLoader,
}

func init() {
	loaderCmd.Flags().String("target", string(target.Auto), "target environment (auto|auto-inline|browser|node)")
}

func runLoader(cmd *cobra.Command, _ []string) error {
	s, err := cmd.Flags().GetString("target")
	if err != nil {
		return fmt.Errorf("failed to get target flag: %w", err)
	}
	env, err := target.Parse(s)
	if err != nil {
		return err
	}
	if env == "" {
		env = target.Auto
	}
	src, err := loader.Render(env)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), src)
	return err
}

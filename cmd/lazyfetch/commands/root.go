// Package commands implements the lazyfetch CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "lazyfetch",
	Short: "lazyfetch - load remote images through lazyload pools",
	Long: `lazyfetch loads remote images the way a feed does: a cheap preview
first, then the full picture or animation, scheduled on bounded
priority pools per tag.

Every configuration key can be overridden with LAZYLOAD_<SECTION>_<KEY>,
for example LAZYLOAD_POOLS_NORMAL_WORKERS=8.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or TOML)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(configCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

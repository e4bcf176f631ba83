package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"transformd/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "transformd",
	Short:        "Rendition transform dispatcher",
	SilenceUsage: true,
	Long: `transformd renders content nodes into renditions (thumbnails, previews,
flash and pdf documents) by dispatching transforms to a local engine, a
legacy engine or remote workers.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.InitFromEnv()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "transformd.yml",
		"config file (missing file means defaults plus TRANSFORMD__ env overrides)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

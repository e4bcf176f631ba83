package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"transformd/internal/config"
	"transformd/internal/legacy"
	"transformd/internal/rendition"
	"transformd/internal/transform"
	"transformd/internal/transformer"
)

var (
	renditionsMimetype string
	renditionsSize     int64
)

var renditionsCmd = &cobra.Command{
	Use:   "renditions",
	Short: "List the renditions the in-process engines can build for a source",
	Long: `Answers the same question as GET /renditions without a running server,
using the configured definitions and the local and legacy engines. Remote
workers are not consulted.`,
	Args: cobra.NoArgs,
	RunE: runRenditions,
}

func init() {
	rootCmd.AddCommand(renditionsCmd)
	renditionsCmd.Flags().StringVar(&renditionsMimetype, "mimetype", "", "source mimetype")
	renditionsCmd.Flags().Int64Var(&renditionsSize, "size", 0, "source size in bytes")
	_ = renditionsCmd.MarkFlagRequired("mimetype")
}

func runRenditions(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Definitions == "" {
		return fmt.Errorf("config names no definitions file")
	}
	f, err := config.LoadDefinitions(cfg.Definitions)
	if err != nil {
		return err
	}
	defs, err := f.Build()
	if err != nil {
		return err
	}

	local, err := transformer.NewRegistry(transformer.Builtins(cfg.Local.MaxImageBytes)...)
	if err != nil {
		return err
	}
	legacyReg := legacy.NewRegistry(legacy.ImageResizer{MaxSourceBytes: cfg.Legacy.MaxImageBytes})
	reg := rendition.NewRegistry(transform.Capabilities{local, legacy.Capabilities{Registry: legacyReg}}, nil)
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return err
		}
	}

	for _, name := range reg.RenditionNamesFrom(cmd.Context(), renditionsMimetype, renditionsSize) {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"transformd/internal/config"
)

var definitionsCmd = &cobra.Command{
	Use:   "definitions [file]",
	Short: "Validate and list rendition definitions",
	Long: `Loads a rendition definitions file, checks it and prints one line per
definition. Without an argument the file named by the config is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDefinitions,
}

func init() {
	rootCmd.AddCommand(definitionsCmd)
}

func runDefinitions(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.Definitions
	}
	if path == "" {
		return fmt.Errorf("no definitions file given")
	}

	f, err := config.LoadDefinitions(path)
	if err != nil {
		return err
	}
	defs, err := f.Build()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTARGET\tOPTIONS")
	for _, d := range defs {
		keys := make([]string, 0, len(d.Options))
		for k, v := range d.Options {
			keys = append(keys, k+"="+v)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.TargetMimetype, strings.Join(keys, ","))
	}
	return w.Flush()
}

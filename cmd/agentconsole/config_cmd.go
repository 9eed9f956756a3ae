package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	var sources bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if file := cli.meta.File(); file != "" {
				fmt.Fprintln(out, gray("# loaded from "+file))
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cli.cfg); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			if !sources {
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, bold("Sources"))
			keys := cli.meta.Keys()
			if len(keys) == 0 {
				fmt.Fprintln(out, gray("  every value is a default"))
			}
			for _, key := range keys {
				fmt.Fprintf(out, "  %-40s %s\n", key, cli.meta.Source(key))
			}
			return nil
		},
	}
	show.Flags().BoolVar(&sources, "sources", false, "Also list where non-default values came from")
	cmd.AddCommand(show)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config loading so version works with a broken config file.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentconsole %s (%s, %s/%s)\n",
				version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

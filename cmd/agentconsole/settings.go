package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agentconsole/internal/agentrun"
)

func newSettingsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change console settings (agent, browser, llm)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <section>",
		Short: "Print one settings section as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := agentrun.ParseSettingsSection(args[0])
			if err != nil {
				return err
			}
			client, err := cli.client()
			if err != nil {
				return err
			}
			raw, err := query(cmd.Context(), cli, func(ctx context.Context) (json.RawMessage, error) {
				return client.Settings(ctx, section)
			})
			if err != nil {
				return err
			}
			var values map[string]any
			if err := json.Unmarshal(raw, &values); err != nil {
				return fmt.Errorf("decode %s settings: %w", section, err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(values)
		},
	})

	var file string
	set := &cobra.Command{
		Use:   "set <section> [key=value...]",
		Short: "Update fields of a settings section",
		Long: `Update fields of a settings section. Values are parsed as YAML scalars,
so "true", "0.7" and "20" keep their types. With --file the section is read
from a YAML document instead and replaces the stored one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := agentrun.ParseSettingsSection(args[0])
			if err != nil {
				return err
			}
			client, err := cli.client()
			if err != nil {
				return err
			}

			values := map[string]any{}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				if err := yaml.Unmarshal(data, &values); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			} else {
				raw, err := client.Settings(cmd.Context(), section)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &values); err != nil {
					return fmt.Errorf("decode %s settings: %w", section, err)
				}
			}
			if err := applyAssignments(values, args[1:]); err != nil {
				return err
			}

			if err := client.UpdateSettings(cmd.Context(), section, values); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successText(fmt.Sprintf("%s settings updated", section)))
			return nil
		},
	}
	set.Flags().StringVarP(&file, "file", "f", "", "YAML file holding the whole section")
	cmd.AddCommand(set)

	return cmd
}

// applyAssignments sets key=value pairs on values. Keys are matched
// case-insensitively against existing keys so `modelname=x` updates
// modelName.
func applyAssignments(values map[string]any, assignments []string) error {
	for _, assignment := range assignments {
		key, raw, ok := strings.Cut(assignment, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid assignment %q, want key=value", assignment)
		}
		for existing := range values {
			if strings.EqualFold(existing, key) {
				key = existing
				break
			}
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		values[key] = value
	}
	return nil
}

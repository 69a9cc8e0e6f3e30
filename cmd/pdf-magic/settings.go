// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf-magic/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change persisted preferences",
	Long: `Settings are stored as JSON in the user config directory (or --config).
Keys missing from the file take their defaults; PDF_MAGIC_<KEY> environment
variables override the file for a single run without being saved.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all := prefs.All()
		asJSON, _ := cmd.Flags().GetBool("json")
		var (
			data []byte
			err  error
		)
		if asJSON {
			data, err = json.MarshalIndent(all, "", "  ")
			data = append(data, '\n')
		} else {
			data, err = yaml.Marshal(all)
		}
		if err != nil {
			return fmt.Errorf("marshaling settings: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := prefs.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Validate and save one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prefs.Set(args[0], args[1]); err != nil {
			return err
		}
		logger.Info().Str("key", args[0]).Str("value", args[1]).Msg("setting saved")
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore every setting to its default",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prefs.Reset(); err != nil {
			return err
		}
		logger.Info().Str("path", prefs.Path()).Msg("settings reset")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), prefs.Path())
	},
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the known setting keys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range settings.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

func init() {
	settingsShowCmd.Flags().Bool("json", false, "print as JSON instead of YAML")
	settingsCmd.AddCommand(settingsShowCmd, settingsGetCmd, settingsSetCmd, settingsResetCmd, settingsPathCmd, settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

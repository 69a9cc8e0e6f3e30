// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pdf-magic CLI: PDF and image
// conversions run as background tasks with progress, logging, and
// cancellation.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf-magic/internal/logging"
	"github.com/pdiddy/pdf-magic/internal/settings"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// prefs is the settings file opened at startup.
	prefs *settings.Store

	// cfg holds the effective settings for this run.
	cfg types.Settings

	logger = logging.Nop()
)

// rootCmd is the base command for the pdf-magic CLI.
var rootCmd = &cobra.Command{
	Use:   "pdf-magic",
	Short: "Convert, split, merge, and inspect PDF files",
	Long: `pdf-magic converts PDFs to Word documents, page images, plain text, and
metadata, wraps images into PDFs, and merges or splits PDFs.

Each conversion runs as a task: files are processed in order, a file that
fails is logged and skipped, and Ctrl-C stops the task after the current
file. Preferences live in a JSON settings file (see "pdf-magic settings").`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		keys, err := settings.LoadEnvFile(envFile)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			if path, err = settings.DefaultPath(); err != nil {
				return err
			}
		}
		if prefs, err = settings.Open(path); err != nil {
			return err
		}
		cfg, err = prefs.Load()
		invalid := err
		if err != nil && !errors.Is(err, settings.ErrInvalidValue) {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		consoleLevel, level := "error", "info"
		if verbose {
			consoleLevel, level = "debug", "debug"
		}
		logger, err = logging.New(logging.Config{
			Level:        level,
			ConsoleLevel: consoleLevel,
			File:         cfg.LogFile,
			Console:      cmd.ErrOrStderr(),
			NoColor:      cfg.Theme == "plain",
		})
		if err != nil {
			return err
		}
		applyTheme(cfg.Theme)
		if invalid != nil {
			logger.Warn().Err(invalid).Str("settings", path).Msg("ignoring invalid settings")
			colors.warn.Fprintln(cmd.ErrOrStderr(), "⚠ "+invalid.Error())
		}

		logger.Debug().Str("settings", path).Strs("env", keys).Msg("configuration loaded")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "settings file (default: <user config dir>/pdf-magic/settings.json)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with PDF_MAGIC_* overrides")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "show debug logging on the console")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

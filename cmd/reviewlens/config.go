package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yashubustudio/reviewlens/sentiment"
)

var configWrite bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints reviewlens.json as the service would see it, after defaults and
environment overrides. With --write the result is saved to --config (or
./reviewlens.json) so it can be edited by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig(cmd.OutOrStdout(), configPath, configWrite)
	},
}

func init() {
	configCmd.Flags().BoolVar(&configWrite, "write", false, "Save the effective configuration to the config file")
}

func showConfig(w io.Writer, path string, write bool) error {
	cfg, err := sentiment.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if write {
		if err := sentiment.SaveConfig(path, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		if logger != nil {
			logger.Info("config written", zap.String("path", displayPath(path)))
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func displayPath(path string) string {
	if path == "" {
		return "reviewlens.json"
	}
	return path
}

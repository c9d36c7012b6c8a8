package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"yashubustudio/reviewlens/internal/client"
)

var (
	healthURL     string
	healthTimeout time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query a running service",
	Long:  `Calls GET /health and exits non-zero unless the model is loaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(client.Config{
			BaseURL:       healthURL,
			HealthTimeout: healthTimeout,
			MaxRetries:    0,
		}, logger)
		h, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(h); err != nil {
			return err
		}
		if !h.ModelLoaded {
			return fmt.Errorf("model not loaded (state %s)", h.State)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", envOr("REVIEWLENS_BACKEND_URL", "http://localhost:8000"), "Service base URL")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 10*time.Second, "Request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

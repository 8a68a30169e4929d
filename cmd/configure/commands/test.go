package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidyplan/tidyplan-api/internal/config"
	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
	"github.com/tidyplan/tidyplan-api/internal/services/firebase"
)

// NewTestCmd creates the test command, which verifies connectivity to the
// external services the API depends on.
func NewTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test external service connectivity",
		Long:  "Verify that the Firebase JWKS endpoint and the Backboard API are reachable with the current configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if cfg.AuthAllowHeader {
				fmt.Println("AUTH_ALLOW_HEADER is enabled, skipping Firebase check")
			} else {
				fmt.Printf("Testing Firebase JWKS endpoint for project %s\n", cfg.FirebaseProjectID)
				jwks := firebase.NewJWKSManager()
				if _, err := jwks.GetJWKS(ctx, firebase.DefaultJWKSURL); err != nil {
					return fmt.Errorf("failed to fetch Firebase JWKS: %w", err)
				}
				fmt.Println("✓ Firebase JWKS endpoint is accessible")
			}

			if cfg.BackboardAPIKey == "" {
				fmt.Println("BACKBOARD_API_KEY not set, skipping Backboard check")
				return nil
			}

			fmt.Printf("Testing Backboard API at %s\n", cfg.BackboardBaseURL)
			client := backboard.NewClient(cfg.BackboardAPIKey, cfg.BackboardBaseURL)

			// A throwaway assistant round-trips auth and the API surface.
			assistant, err := client.CreateAssistant(ctx, &backboard.CreateAssistantRequest{
				Name: "tidyplan-connectivity-check",
			})
			if err != nil {
				return fmt.Errorf("failed to reach Backboard API: %w", err)
			}
			fmt.Printf("✓ Backboard API is accessible (assistant %s)\n", assistant.AssistantID)

			fmt.Println("\n✓ Connectivity test passed")
			return nil
		},
	}

	// Fail fast on obviously broken base URLs before any network call.
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return nil // Load errors surface in RunE with full context
		}
		if cfg.BackboardBaseURL != "" {
			req, err := http.NewRequest(http.MethodGet, cfg.BackboardBaseURL, nil)
			if err != nil || req.URL.Scheme == "" {
				fmt.Fprintf(os.Stderr, "Warning: BACKBOARD_BASE_URL looks malformed: %s\n", cfg.BackboardBaseURL)
			}
		}
		return nil
	}

	return cmd
}

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tidyplan/tidyplan-api/internal/config"
	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// runtimeConfigFile is the YAML shape accepted by 'apply'.
type runtimeConfigFile struct {
	Cors *struct {
		AllowedOrigins   []string `yaml:"allowed_origins"`
		AllowCredentials bool     `yaml:"allow_credentials"`
		MaxAge           int      `yaml:"max_age"`
	} `yaml:"cors"`
	Ratelimit *struct {
		Rate string `yaml:"rate"`
	} `yaml:"ratelimit"`
}

// NewApplyCmd creates the apply command, which seeds runtime configuration
// from a YAML file in one shot.
func NewApplyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply runtime configuration from a YAML file",
		Long:  "Read CORS and rate limit settings from a YAML file and store them in the database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read config file: %w", err)
			}

			var rc runtimeConfigFile
			if err := yaml.Unmarshal(data, &rc); err != nil {
				return fmt.Errorf("parse config file: %w", err)
			}
			if rc.Cors == nil && rc.Ratelimit == nil {
				return fmt.Errorf("config file has no cors or ratelimit section")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			ctx := context.Background()

			if rc.Cors != nil {
				if len(rc.Cors.AllowedOrigins) == 0 {
					return fmt.Errorf("cors.allowed_origins must not be empty")
				}
				repo := database.NewCorsConfigRepository(db)
				c := &models.CorsConfig{
					AllowedOrigins:   strings.Join(rc.Cors.AllowedOrigins, ","),
					AllowCredentials: rc.Cors.AllowCredentials,
					MaxAge:           rc.Cors.MaxAge,
				}
				if err := repo.Set(ctx, c); err != nil {
					return fmt.Errorf("set cors config: %w", err)
				}
				fmt.Println("CORS configuration applied.")
			}

			if rc.Ratelimit != nil {
				if rc.Ratelimit.Rate == "" {
					return fmt.Errorf("ratelimit.rate must not be empty")
				}
				repo := database.NewRatelimitConfigRepository(db)
				if err := repo.Set(ctx, &models.RatelimitConfig{Rate: rc.Ratelimit.Rate}); err != nil {
					return fmt.Errorf("set ratelimit config: %w", err)
				}
				fmt.Println("Rate limit configuration applied.")
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the YAML configuration file (required)")
	return cmd
}

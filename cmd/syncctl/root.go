package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/config"
	"github.com/vitrine/backend/internal/infrastructure/logger"
)

var (
	configPath string
	orgFlag    string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "syncctl",
	Short:         "Operate the catalog sync engine",
	Long:          `Discover, pull and push catalog entities of one organization without going through the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: search ., /etc/vitrine, /app)")
	rootCmd.PersistentFlags().StringVarP(&orgFlag, "org", "o", "", "organization id")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func newLogger() (*zap.Logger, error) {
	return logger.New(logger.CLIConfig(logLevel))
}

func organizationID() (uuid.UUID, error) {
	if orgFlag == "" {
		return uuid.Nil, errors.New("--org is required")
	}
	id, err := uuid.Parse(orgFlag)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid organization id %q", orgFlag)
	}
	return id, nil
}

func entityTypeArg(arg string) (integration.EntityType, error) {
	et, err := integration.ParseEntityType(arg)
	if err != nil {
		return "", fmt.Errorf("%w (expected one of products, customers, orders)", err)
	}
	return et, nil
}

// parseIDs accepts ids as separate args or comma separated
func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid remote id %q", part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one remote id is required")
	}
	return ids, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

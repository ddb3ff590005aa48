package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/opencti-sync/internal/bus"
	"github.com/Ashfaaq98/opencti-sync/internal/state"
)

var (
	confirmReset bool
	resetEvents  bool
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear saved connector state",
	Long: `Reset clears the connector's saved state: pagination cursors, the
last_run marker, and the run history. The next run behaves like a first
run and re-imports everything; deterministic STIX ids keep the re-import
idempotent on the destination.

WARNING: This operation is irreversible.

Examples:
  # Reset connector state (requires confirmation)
  opencti-sync reset

  # Reset with automatic confirmation
  opencti-sync reset --yes

  # Also clear the Redis run-events stream
  opencti-sync reset --events`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&confirmReset, "yes", "y", false, "Automatically confirm reset operation")
	resetCmd.Flags().BoolVar(&resetEvents, "events", false, "Also delete the Redis run-events stream")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	if cfg.Connector.ID == "" {
		return fmt.Errorf("connector id is required (CONNECTOR_ID)")
	}

	targets := []string{"connector state and run history"}
	if resetEvents {
		targets = append(targets, "Redis run-events stream")
	}
	fmt.Printf("This will permanently delete: %s\n", strings.Join(targets, " and "))

	// Confirm operation unless --yes flag is used
	if !confirmReset {
		fmt.Print("Are you sure you want to continue? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if strings.ToLower(response) != "y" && strings.ToLower(response) != "yes" {
			fmt.Println("Reset operation cancelled.")
			return nil
		}
	}

	store, err := state.NewStore(cfg.Database.Path, cfg.Connector.ID)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset connector state: %w", err)
	}
	fmt.Println("Connector state cleared successfully")

	if resetEvents {
		if err := resetRunEvents(ctx, cfg.Redis.URL); err != nil {
			return fmt.Errorf("failed to clear run-events stream: %w", err)
		}
		fmt.Println("Run-events stream cleared successfully")
	}

	return nil
}

func resetRunEvents(ctx context.Context, redisURL string) error {
	if redisURL == "" {
		return fmt.Errorf("no Redis URL configured")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client.Del(ctx, bus.RunStream).Err()
}

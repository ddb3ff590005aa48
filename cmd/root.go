package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	dbPath     string
	redisURL   string
	logLevel   string
	triggerDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opencti-sync",
	Short: "External-import connector syncing threat intel between OpenCTI instances",
	Long: `opencti-sync pulls observables and indicators from a source OpenCTI
instance over GraphQL, converts them to STIX 2.1, and pushes them to a
destination OpenCTI instance in bounded bundles.

Features:
- Two-phase import: observables first, then indicators with based-on relationships
- Deterministic STIX ids for idempotent re-imports
- Cursor pagination with cooldowns and bounded retries
- SQLite-backed run state with resumable cursors
- Redis Streams run lifecycle events (optional)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.opencti-sync.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/opencti-sync.db", "SQLite state database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for run events (empty disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&triggerDir, "trigger-dir", "./data/triggers", "Directory watched for refresh/reset trigger files")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("trigger.dir", rootCmd.PersistentFlags().Lookup("trigger-dir"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".opencti-sync" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".opencti-sync")
	}

	// The connector is configured env-first, matching how the host
	// platform launches external-import connectors. The NetManageIT
	// credentials name the instance fetched from; the plain OpenCTI
	// credentials name the instance receiving the bundles.
	viper.BindEnv("source.url", "OPENCTI_NETMANAGEIT_URL")
	viper.BindEnv("source.token", "OPENCTI_NETMANAGEIT_TOKEN")
	viper.BindEnv("destination.url", "OPENCTI_URL")
	viper.BindEnv("destination.token", "OPENCTI_TOKEN")
	viper.BindEnv("connector.id", "CONNECTOR_ID")
	viper.BindEnv("connector.name", "CONNECTOR_NAME")
	viper.BindEnv("connector.scope", "CONNECTOR_SCOPE")
	viper.BindEnv("connector.duration_period", "CONNECTOR_DURATION_PERIOD")
	viper.BindEnv("log.level", "CONNECTOR_LOG_LEVEL")
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("database.path", "./data/opencti-sync.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("trigger.dir", "./data/triggers")
	viper.SetDefault("connector.name", "OpenCTI NetManageIT Sync")
	viper.SetDefault("connector.scope", "netmanageit")
	viper.SetDefault("connector.duration_period", "24h")
	viper.SetDefault("source.page_size", 1000)
	viper.SetDefault("source.cooldown", "1s")
	viper.SetDefault("source.rate_limit_rps", 5)
	viper.SetDefault("batch.size", 100)
	viper.SetDefault("batch.cooldown", "1s")
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.delay", "10s")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Source: SourceConfig{
			URL:          viper.GetString("source.url"),
			Token:        viper.GetString("source.token"),
			PageSize:     viper.GetInt("source.page_size"),
			Cooldown:     viper.GetDuration("source.cooldown"),
			RateLimitRPS: viper.GetInt("source.rate_limit_rps"),
		},
		Destination: DestinationConfig{
			URL:   viper.GetString("destination.url"),
			Token: viper.GetString("destination.token"),
		},
		Connector: ConnectorConfig{
			ID:             viper.GetString("connector.id"),
			Name:           viper.GetString("connector.name"),
			Scope:          viper.GetString("connector.scope"),
			DurationPeriod: viper.GetDuration("connector.duration_period"),
		},
		Batch: BatchConfig{
			Size:     viper.GetInt("batch.size"),
			Cooldown: viper.GetDuration("batch.cooldown"),
		},
		Retry: RetryConfig{
			MaxAttempts: viper.GetInt("retry.max_attempts"),
			Delay:       viper.GetDuration("retry.delay"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Trigger: TriggerConfig{
			Dir: viper.GetString("trigger.dir"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	Connector   ConnectorConfig   `mapstructure:"connector"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Trigger     TriggerConfig     `mapstructure:"trigger"`
}

type SourceConfig struct {
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	PageSize     int           `mapstructure:"page_size"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	RateLimitRPS int           `mapstructure:"rate_limit_rps"`
}

type DestinationConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type ConnectorConfig struct {
	ID             string        `mapstructure:"id"`
	Name           string        `mapstructure:"name"`
	Scope          string        `mapstructure:"scope"`
	DurationPeriod time.Duration `mapstructure:"duration_period"`
}

type BatchConfig struct {
	Size     int           `mapstructure:"size"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TriggerConfig struct {
	Dir string `mapstructure:"dir"`
}

// Validate checks the fields a run cannot proceed without.
func (c Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source URL is required (OPENCTI_NETMANAGEIT_URL)")
	}
	if c.Source.Token == "" {
		return fmt.Errorf("source token is required (OPENCTI_NETMANAGEIT_TOKEN)")
	}
	if c.Destination.URL == "" {
		return fmt.Errorf("destination URL is required (OPENCTI_URL)")
	}
	if c.Destination.Token == "" {
		return fmt.Errorf("destination token is required (OPENCTI_TOKEN)")
	}
	if c.Connector.ID == "" {
		return fmt.Errorf("connector id is required (CONNECTOR_ID)")
	}
	return nil
}

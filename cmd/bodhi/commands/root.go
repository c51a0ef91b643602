package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/config"
	"github.com/bodhi-ai/bodhi/pkg/bus"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bodhi",
	Short: "Bodhi - Conversational companion agent constellation",
	Long: `Bodhi is a constellation of cooperating agents - a gateway, a memory
manager, a language worker and an emotion worker - that together form a
conversational companion.

The agents communicate over Redis pub/sub; the gateway presents a
synchronous HTTP and WebSocket surface on top of that asynchronous bus.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to companion.yml (defaults to built-in configuration)")
}

// loadConfig resolves the effective configuration for a subcommand.
func loadConfig() (*config.CompanionConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// connectBus parses the Redis URL, builds a bus client and verifies
// connectivity. The returned options are reused by services that also need a
// raw Redis client for key storage.
func connectBus(ctx context.Context, cfg *config.CompanionConfig) (*bus.Client, *redis.Options, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis.url: %w", err)
	}

	busClient, err := bus.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bus client: %w", err)
	}

	if err := busClient.Ping(ctx); err != nil {
		busClient.Close()
		return nil, nil, fmt.Errorf("redis not accessible: %w", err)
	}

	return busClient, redisOpts, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

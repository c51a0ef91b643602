package commands

import (
	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/gateway"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway service",
	Long: `Run the gateway service: the synchronous HTTP and WebSocket surface
over the asynchronous agent bus.

The gateway accepts user input on POST /input and over /ws/chat, enriches
requests with memory context, publishes them to the bus and correlates the
asynchronous replies back to the waiting caller.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	busClient, _, err := connectBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer busClient.Close()

	engine := gateway.NewEngine(busClient, gateway.Options{
		ListenAddr:       cfg.Gateway.Listen,
		MemoryManagerURL: cfg.Gateway.MemoryManagerURL,
		ResponseTimeout:  cfg.Gateway.ResponseTimeout.Duration,
		PublishTimeout:   cfg.Gateway.PublishTimeout.Duration,
		MemoryTimeout:    cfg.Gateway.MemoryFetchTimeout.Duration,
		Staleness:        cfg.Gateway.StalenessThreshold.Duration,
	})

	return engine.Run(ctx)
}

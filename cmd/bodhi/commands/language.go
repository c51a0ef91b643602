package commands

import (
	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/language"
)

var languageCmd = &cobra.Command{
	Use:   "language",
	Short: "Run the language worker",
	Long: `Run the language worker: it subscribes to user input on the bus,
classifies intent, extracts entities, scores sentiment, generates a reply
and publishes the full interpretation back on the request's reply channel.

It also follows emotion state broadcasts so generated replies reflect the
companion's current affect.`,
	RunE: runLanguage,
}

func init() {
	rootCmd.AddCommand(languageCmd)
}

func runLanguage(cmd *cobra.Command, args []string) error {
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

	engine := language.NewEngine(busClient, language.Options{
		ListenAddr:        cfg.Language.Listen,
		HeartbeatInterval: cfg.Language.HeartbeatInterval.Duration,
	})

	return engine.Run(ctx)
}

package commands

import (
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/emotion"
)

var emotionCmd = &cobra.Command{
	Use:   "emotion",
	Short: "Run the emotion worker",
	Long: `Run the emotion worker: it maintains a valence/arousal/dominance
affect state, reacts to bus events, drifts back toward its baseline over
time and broadcasts meaningful state changes to the constellation.

Postgres is optional; without it the personality profile neither loads
nor persists across restarts.`,
	RunE: runEmotion,
}

func init() {
	rootCmd.AddCommand(emotionCmd)
}

func runEmotion(cmd *cobra.Command, args []string) error {
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

	var db emotion.DB
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		defer pool.Close()
		db = pool
	} else {
		log.Printf("[Emotion] No Postgres DSN configured, personality persistence disabled")
	}

	engine := emotion.NewEngine(busClient, db, emotion.Options{
		ListenAddr:        cfg.Emotion.Listen,
		TransitionSpeed:   cfg.Emotion.TransitionSpeed,
		HeartbeatInterval: cfg.Emotion.HeartbeatInterval.Duration,
	})

	return engine.Run(ctx)
}

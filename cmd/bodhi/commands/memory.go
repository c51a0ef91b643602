package commands

import (
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Run the memory manager service",
	Long: `Run the memory manager service: working memory in Redis, episodic
memory in Postgres and semantic memory in Qdrant, plus the consolidation
sweeper that promotes important working memories into long-term storage.

Postgres and Qdrant are optional. Without Postgres the episodic store is
disabled; without Qdrant the semantic store is disabled and consolidation
degrades accordingly.`,
	RunE: runMemory,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
}

func runMemory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	busClient, redisOpts, err := connectBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer busClient.Close()

	// The working store and the consolidation lock need a raw Redis client
	// for keyspace operations; pub/sub stays on the bus client.
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	var db memory.DB
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		defer pool.Close()
		db = pool
	} else {
		log.Printf("[Memory] No Postgres DSN configured, episodic store disabled")
	}

	var index memory.VectorIndex
	if cfg.Qdrant.Host != "" {
		qdrantClient, err := qdrant.NewClient(&qdrant.Config{
			Host: cfg.Qdrant.Host,
			Port: cfg.Qdrant.Port,
		})
		if err != nil {
			return fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		defer qdrantClient.Close()

		qdrantIndex := memory.NewQdrantIndex(qdrantClient, cfg.Qdrant.Collection)
		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		index = qdrantIndex
	} else {
		log.Printf("[Memory] No Qdrant host configured, semantic store disabled")
	}

	engine := memory.NewEngine(busClient, rdb, db, index, memory.Options{
		ListenAddr:            cfg.Memory.Listen,
		ConsolidationInterval: cfg.Memory.ConsolidationInterval.Duration,
		EmbedWorkers:          cfg.Memory.EmbedWorkers,
	})

	return engine.Run(ctx)
}

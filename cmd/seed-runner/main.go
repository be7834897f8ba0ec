package main

import (
	"context"
	"os"

	"github.com/carepulse/analytics-platform/pkg/common/config"
	"github.com/carepulse/analytics-platform/pkg/common/database"
	"github.com/carepulse/analytics-platform/pkg/common/kafka"
	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/carepulse/analytics-platform/pkg/seed"
)

// seed-runner performs one ingestion pass and exits. Re-running it against
// unchanged files is a no-op by design.
func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	repo := seed.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate tables")
	}

	sources, err := seed.LoadSources(cfg.SeedSourcesFile)
	if err != nil {
		logger.Log.WithError(err).Warn("invalid seed source map, using defaults")
	}

	cache := database.NewRedis(cfg)
	defer database.CloseRedis(cache)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaReportTopic)
	defer producer.Close()

	seeder := seed.NewService(repo, cfg.DataDir, sources, producer, cache)
	reports, err := seeder.Run(context.Background())
	if err != nil {
		logger.Log.WithError(err).Error("ingestion run failed")
		os.Exit(1)
	}

	exitCode := 0
	for _, rep := range reports {
		if rep.Error != "" {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

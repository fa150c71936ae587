package main

import (
	"context"
	"log"
	"log/slog"

	"inkpost/internal/util"
	"inkpost/services/blog/internal/bootstrap"
	"inkpost/services/blog/internal/config"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	deps, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer deps.Close()

	res, err := deps.App.Seed(context.Background())
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	slog.Info("database seeded",
		"users", len(res.Users),
		"posts_deleted", res.PostsDeleted,
		"posts_created", res.PostsCreated,
	)
}

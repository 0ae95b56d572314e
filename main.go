package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"srmchat/internal/api"
	"srmchat/internal/attachment"
	"srmchat/internal/cache"
	"srmchat/internal/chat"
	"srmchat/internal/config"
	"srmchat/internal/enrich"
	"srmchat/internal/logging"
	"srmchat/internal/prefs"
	"srmchat/internal/srm"
	"srmchat/internal/storage"
)

func main() {
	cfgPath := os.Getenv("SRMCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: os.Getenv("SRMCHAT_LOG_LEVEL")})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	dbType := os.Getenv("SRMCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	archive, err := storage.NewArchive(ctx, db)
	if err != nil {
		log.Fatalf("init conversation archive: %v", err)
	}

	var cacheClient *cache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cache.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer cacheClient.Close()
	}

	previewDir := cfg.BasicConfig.PreviewDir
	if previewDir == "" {
		previewDir = "./data/previews"
	}
	store := attachment.NewStore(previewDir, logger)
	store.StartJanitor(ctx,
		time.Duration(cfg.BasicConfig.PreviewSweepMinutes)*time.Minute,
		time.Duration(cfg.BasicConfig.PreviewTTLMinutes)*time.Minute)

	srmClient := srm.NewClient(cfg.SRM)
	enricher := enrich.New(srmClient, cacheClient,
		time.Duration(cfg.BasicConfig.ExtractionCacheTTLMin)*time.Minute,
		cfg.BasicConfig.EnrichConcurrency, logger)

	languages := prefs.NewStore(db, cfg.BasicConfig.DefaultLanguage)
	engine := chat.NewEngine(store, enricher, srmClient, chat.Options{
		Language: languages,
		Archive:  archive,
		Logger:   logger,
	})

	handlers := api.NewHandler(engine, srmClient, languages, cfg.BasicConfig.MaxUploadBytes, logger)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

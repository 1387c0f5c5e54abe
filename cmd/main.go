package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bilgisen/altavoz/internal/api"
	"github.com/bilgisen/altavoz/internal/appwrite"
	"github.com/bilgisen/altavoz/internal/auth"
	"github.com/bilgisen/altavoz/internal/cache"
	"github.com/bilgisen/altavoz/internal/config"
	"github.com/bilgisen/altavoz/internal/content"
	"github.com/bilgisen/altavoz/internal/logger"
	"github.com/bilgisen/altavoz/internal/media"
	"github.com/bilgisen/altavoz/internal/metrics"
	"github.com/bilgisen/altavoz/internal/middleware"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/ordering"
	"github.com/bilgisen/altavoz/internal/sampler"
	"github.com/bilgisen/altavoz/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	output := "stdout"
	if cfg.LogFile != "" {
		output = cfg.LogFile
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: output,
		Pretty: cfg.IsDevelopment() && cfg.LogFile == "",
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("env", cfg.Env).Msg("Starting application...")

	ctx := context.Background()

	// Storage backend
	var (
		store storage.Backend
		ping  func(ctx context.Context) error
	)
	if cfg.UseAppwrite() {
		client := appwrite.NewClient(appwrite.Config{
			Endpoint:   cfg.AppwriteURL,
			ProjectID:  cfg.AppwriteProjectID,
			APIKey:     cfg.AppwriteAPIKey,
			DatabaseID: cfg.AppwriteDatabaseID,
			Timeout:    cfg.HTTPTimeout,
		})
		aw := storage.NewAppwrite(client, storage.Collections{
			Users:      cfg.UserCollectionID,
			Posts:      cfg.PostCollectionID,
			Categories: cfg.CategoryCollectionID,
			Orders:     cfg.OrderCollectionID,
			Banners:    cfg.BannerCollectionID,
			Saves:      cfg.SavesCollectionID,
		}, cfg.AppwritePageSize)
		store, ping = aw, aw.Ping
		log.Info().Str("endpoint", cfg.AppwriteURL).Msg("Using Appwrite storage")
	} else {
		mem, err := storage.NewMemory(filepath.Join(cfg.StoragePath, "altavoz.json"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize storage")
		}
		seedAdmin(ctx, mem, cfg, log)
		store = mem
		log.Info().Str("path", cfg.StoragePath).Msg("Using in-memory storage")
	}

	// Cache for device mirrors and section selections
	var kv cache.Store
	if cfg.UseRedis() {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis client")
		}
		kv = redisStore
	} else {
		log.Warn().Msg("REDIS_URL not set, device state is kept in memory")
		kv = cache.NewMemoryStore()
	}
	defer func() {
		log.Info().Msg("Closing cache...")
		if err := kv.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing cache")
		}
	}()

	// Image storage
	var (
		images   media.Store
		mediaDir string
	)
	if cfg.UseR2() {
		r2, err := media.NewR2(ctx, media.R2Config{
			Endpoint:  cfg.R2Endpoint,
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			Bucket:    cfg.R2Bucket,
			PublicURL: cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize R2 client")
		}
		images = r2
	} else {
		local, err := media.NewLocal(cfg.MediaDir, "/media")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize media directory")
		}
		images, mediaDir = local, local.Dir()
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Msg("JWT_SECRET not set, tokens will not survive a restart")
	}
	tokens := auth.NewTokens(auth.TokenConfig{
		Secret: secret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})

	m := metrics.New()
	orderingSvc := ordering.NewService(store, store, ordering.NewMirror(kv), m, logger.For("ordering"), ordering.Config{
		PostsLimit:  cfg.PostsLimit,
		SaveTimeout: cfg.OrderSaveTimeout,
	})

	handlers := api.NewHandlers(api.Deps{
		Store:      store,
		Ordering:   orderingSvc,
		Sampler:    sampler.New(kv, m, logger.For("sampler")),
		Publisher:  content.NewPublisher(store, images, cfg.MaxImageSize, logger.For("content")),
		Banners:    content.NewBanners(store, images, cfg.MaxImageSize, logger.For("content")),
		Auth:       auth.NewService(store, tokens, cfg.AdminAPIKey),
		PostsLimit: cfg.PostsLimit,
		LeftCount:  cfg.SectionLeftCount,
		Ping:       ping,
	})

	// Create Fiber app with custom config
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    int(cfg.MaxImageSize) + 1<<20,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New()) // Recover from panics
	app.Use(middleware.RequestLogger(m))

	// Setup API routes
	api.SetupRoutes(app, handlers, api.RouteConfig{
		Metrics:  m,
		MediaDir: mediaDir,
	})

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create a deadline for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown the server
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let pending order saves reach the store
	done := make(chan struct{})
	go func() {
		orderingSvc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Pending order saves abandoned")
	}

	log.Info().Msg("Server exited properly")
}

// seedAdmin registers the development administrator in the in-memory
// directory when it is not there yet.
func seedAdmin(ctx context.Context, mem *storage.Memory, cfg *config.Config, log *zerolog.Logger) {
	if cfg.DevAdminEmail == "" || cfg.DevAdminPassword == "" {
		return
	}

	_, err := mem.FindAdminByEmail(ctx, cfg.DevAdminEmail)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		log.Error().Err(err).Msg("Failed to look up development admin")
		return
	}

	if _, err := mem.AddUser(ctx, models.User{
		Name:  "Administrator",
		Email: cfg.DevAdminEmail,
		Role:  models.RoleAdmin,
	}, cfg.DevAdminPassword); err != nil {
		log.Error().Err(err).Msg("Failed to seed development admin")
		return
	}
	log.Info().Str("email", cfg.DevAdminEmail).Msg("Development admin created")
}

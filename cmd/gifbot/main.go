// Command gifbot runs the gif catalog bot: a websocket client for the chat
// gateway plus an HTTP server exposing the stored clips, a read-only catalog
// API, health, and metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-gif-bot/internal/blob"
	"github.com/tbourn/go-gif-bot/internal/bot"
	"github.com/tbourn/go-gif-bot/internal/config"
	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/gateway"
	httpapi "github.com/tbourn/go-gif-bot/internal/http"
	"github.com/tbourn/go-gif-bot/internal/observability"
	"github.com/tbourn/go-gif-bot/internal/repo"
	"github.com/tbourn/go-gif-bot/internal/services"
	"github.com/tbourn/go-gif-bot/internal/sysutil"
)

// version is stamped via -ldflags at release time.
var version = "dev"

// catalogRepo adapts the free functions in the repo package to the
// services.CatalogRepo interface.
type catalogRepo struct{}

func (catalogRepo) CountCatalogs(ctx context.Context, db *gorm.DB, community string) (int64, error) {
	return repo.CountCatalogs(ctx, db, community)
}

func (catalogRepo) CreateCatalog(ctx context.Context, db *gorm.DB, community string, gifs domain.GifMap) error {
	return repo.CreateCatalog(ctx, db, community, gifs)
}

func (catalogRepo) UpdateCatalogGif(ctx context.Context, db *gorm.DB, community, name, address string) error {
	return repo.UpdateCatalogGif(ctx, db, community, name, address)
}

func (catalogRepo) GetCatalogGifs(ctx context.Context, db *gorm.DB, community string) (domain.GifMap, error) {
	return repo.GetCatalogGifs(ctx, db, community)
}

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ver := sysutil.FirstNonEmpty(os.Getenv("VERSION"), version)
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open catalog database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("catalog migration failed")
	}

	store, err := blob.NewDiskStore(cfg.BlobPath, cfg.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BlobPath).Msg("open clip store failed")
	}

	svc := services.NewGifService(db, catalogRepo{}, store)

	// The gateway client and the command router reference each other: the
	// client dispatches inbound messages to the router, the router replies
	// through the client. The closure breaks the construction cycle.
	var router *bot.Router
	gw := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, func(ctx context.Context, msg gateway.Message) {
		router.HandleMessage(ctx, msg)
	})
	router = bot.NewRouter(svc, gw, bot.NewHTTPFetcher(cfg.MaxAttachmentBytes))

	engine := gin.New()
	httpapi.RegisterRoutes(engine, svc, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("url", cfg.Gateway.URL).Msg("starting gateway client")
		errc <- gw.Run(ctx)
	}()
	go func() {
		log.Info().Str("port", cfg.Port).Str("version", ver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("component failed, shutting down")
		}
	}
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := otelShutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}

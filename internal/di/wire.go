// Package di wires the application: database, clients, sync engine, price
// cache, state manager and background jobs, all built from configuration via
// plain constructor injection.
package di

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nsarvesh2011/gaino/internal/auth"
	"github.com/nsarvesh2011/gaino/internal/clientdata"
	"github.com/nsarvesh2011/gaino/internal/clients/prices"
	"github.com/nsarvesh2011/gaino/internal/config"
	"github.com/nsarvesh2011/gaino/internal/database"
	"github.com/nsarvesh2011/gaino/internal/market"
	"github.com/nsarvesh2011/gaino/internal/scheduler"
	"github.com/nsarvesh2011/gaino/internal/state"
	"github.com/nsarvesh2011/gaino/internal/store"
	"github.com/nsarvesh2011/gaino/internal/store/drive"
	"github.com/nsarvesh2011/gaino/internal/store/s3doc"
	"github.com/nsarvesh2011/gaino/internal/sync"
	"github.com/rs/zerolog"
)

// Container holds every wired component.
type Container struct {
	DB        *database.DB
	Cache     *clientdata.Repository
	Docs      store.DocumentStore
	Engine    *sync.Engine
	Prices    *market.Repo
	State     *state.Manager
	Scheduler *scheduler.Scheduler
}

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open the client data database
// 2. Build the document store backend and token provider
// 3. Build clients, engine and state manager
// 4. Register background jobs (when a refresh spec is configured)
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.Open(cfg.ClientDataDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open client data database: %w", err)
	}

	cache := clientdata.NewRepository(db.Conn())

	docs, tokens, err := buildStore(ctx, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	clientID, err := cfg.ClientID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to resolve client id: %w", err)
	}

	feed := prices.NewClient(cfg.PricesBaseURL, log)
	priceRepo := market.NewRepo(feed, cache, cfg.PricesTab, log)
	engine := sync.New(docs, tokens, cfg.CachePath(), clientID, log)
	manager := state.NewManager(engine, priceRepo, log)

	sched := scheduler.New(log)
	if cfg.RefreshSpec != "" {
		if err := sched.Register(cfg.RefreshSpec, scheduler.NewPriceRefreshJob(priceRepo)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to register price refresh job: %w", err)
		}
		if err := sched.Register("@every 24h", clientdata.NewCleanupJob(cache, log)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to register cleanup job: %w", err)
		}
	}

	log.Info().Str("store", cfg.Store).Msg("Dependency wiring completed")

	return &Container{
		DB:        db,
		Cache:     cache,
		Docs:      docs,
		Engine:    engine,
		Prices:    priceRepo,
		State:     manager,
		Scheduler: sched,
	}, nil
}

// buildStore selects the document store backend.
func buildStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.DocumentStore, auth.TokenProvider, error) {
	switch cfg.Store {
	case config.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		docs := s3doc.NewClient(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, log)
		// The SDK owns credentials; the engine's offline gate always passes.
		tokens := auth.Func(func(context.Context) (string, bool) { return "", true })
		return docs, tokens, nil

	default:
		// Re-read the token env var per call so a rotated credential is
		// picked up, and its absence flips the engine into offline mode.
		tokens := auth.Env{Var: "GAINO_ACCESS_TOKEN"}
		return drive.NewClient(cfg.DriveBaseURL, tokens, log), tokens, nil
	}
}

// Close releases held resources.
func (c *Container) Close() {
	c.Scheduler.Stop()
	c.DB.Close()
}

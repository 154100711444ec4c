package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saferoads/server/internal/api"
	"github.com/saferoads/server/internal/cache"
	"github.com/saferoads/server/internal/clients/graphhopper"
	"github.com/saferoads/server/internal/clients/osrm"
	"github.com/saferoads/server/internal/config"
	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/pathfinding"
	"github.com/saferoads/server/internal/lib/routing"
	"github.com/saferoads/server/internal/lib/scoring"
	"github.com/saferoads/server/internal/lib/segments"
	"github.com/saferoads/server/internal/services"
)

const cacheCleanupInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalw("failed to load configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Segment store, optionally backed by Postgres. A missing or unreachable
	// database degrades to in-memory ratings rather than failing startup.
	var backend segments.Backend
	if cfg.Segments.PostgresURL != "" {
		pg, err := segments.NewPostgresBackend(ctx, cfg.Segments.PostgresURL)
		if err != nil {
			logger.Warnw("postgres unavailable, ratings will not be persisted", "error", err)
		} else {
			backend = pg
			defer pg.Close()
		}
	}
	store := segments.NewStore(segments.StoreConfig{TieFavorsBad: cfg.Segments.TieFavorsBad}, backend, logger)
	if err := store.Hydrate(ctx, cfg.Region.Bounds()); err != nil {
		logger.Warnw("starting with empty ratings", "error", err)
	}

	engine := pathfinding.NewEngine(buildGraph(cfg, logger))

	providers := []routing.Provider{}
	if cfg.Providers.GraphHopper.APIKey != "" {
		providers = append(providers, graphhopper.NewClient(graphhopper.Config{
			APIKey:  cfg.Providers.GraphHopper.APIKey,
			BaseURL: cfg.Providers.GraphHopper.BaseURL,
			Timeout: cfg.Providers.GraphHopper.Timeout,
		}))
	} else {
		logger.Warnw("no GraphHopper API key configured, skipping primary provider")
	}
	providers = append(providers, osrm.NewClient(osrm.Config{
		BaseURL: cfg.Providers.OSRM.BaseURL,
		Timeout: cfg.Providers.OSRM.Timeout,
	}))

	chain := routing.NewChain(providers, engine, cfg.Routing.StepTimeout, cfg.Routing.GlobalTimeout, logger)

	routeCache := cache.New()
	routeCache.StartPeriodicCleanup(ctx, cacheCleanupInterval, logger)

	routesSvc := services.NewRoutesService(services.RoutesDeps{
		Chain:           chain,
		Engine:          engine,
		Store:           store,
		Scorer:          scoring.NewScorer(),
		Segmenter:       segments.NewSegmenter(cfg.Segments.TargetLengthKm),
		Cache:           routeCache,
		Region:          cfg.Region.Bounds(),
		RegionName:      cfg.Region.Name,
		MaxAlternatives: cfg.Routing.MaxAlternatives,
		CacheTTL:        cfg.Routing.CacheTTL,
		Logger:          logger,
	})
	ratingsSvc := services.NewRatingsService(store, cfg.Region.Bounds(), cfg.Region.Name, logger)

	handlers := api.NewHandlers(routesSvc, ratingsSvc, store, cfg.Region.Name, logger)
	server := api.NewServer(cfg.Server.Port, handlers, cfg.Server.CORSOrigins, logger)

	logger.Infow("road safety routing server starting",
		"region", cfg.Region.Name,
		"port", cfg.Server.Port,
		"providers", len(providers),
		"graph_nodes", engine.Graph().Len(),
		"persisted_ratings", backend != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalw("server failed", "error", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("shutdown did not complete cleanly", "error", err)
		}
	}
}

// buildGraph constructs the waypoint graph from configuration, falling back to
// the built-in national junction graph when none is configured.
func buildGraph(cfg *config.Config, logger *zap.SugaredLogger) *pathfinding.Graph {
	if len(cfg.Graph.Nodes) == 0 {
		return pathfinding.DefaultGraph()
	}

	g := pathfinding.NewGraph()
	for _, n := range cfg.Graph.Nodes {
		g.AddNode(n.ID, geo.Point{Lat: n.Lat, Lng: n.Lng})
	}
	for _, e := range cfg.Graph.Edges {
		if err := g.AddEdge(e.From, e.To, pathfinding.TrafficLevel(e.Traffic)); err != nil {
			logger.Warnw("skipping invalid graph edge", "from", e.From, "to", e.To, "error", err)
		}
	}
	return g
}

package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/catalog"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/session"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

//go:embed seed_catalog.json
var seedCatalog []byte

type Config struct {
	HTTPAddr         string
	GRPCAddr         string
	MySQLDSN         string
	RedisAddr        string
	ShopifyDomain    string
	ShopifyToken     string
	ShopifyVersion   string
	CatalogSeedFile  string
	SnapshotCacheTTL time.Duration
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
	HealthInterval   time.Duration
	CartIdleTTL      time.Duration
	FavoriteIdleTTL  time.Duration
	SweepInterval    time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:         getEnv("GRPC_ADDR", ":50051"),
		MySQLDSN:         getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		ShopifyDomain:    getEnv("SHOPIFY_STORE_DOMAIN", ""),
		ShopifyToken:     getEnv("SHOPIFY_STOREFRONT_TOKEN", ""),
		ShopifyVersion:   getEnv("SHOPIFY_API_VERSION", "2025-07"),
		CatalogSeedFile:  getEnv("CATALOG_SEED_FILE", ""),
		SnapshotCacheTTL: getEnvDuration("SNAPSHOT_CACHE_TTL", 15*time.Minute),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		HealthInterval:   getEnvDuration("HEALTH_INTERVAL", 10*time.Second),
		CartIdleTTL:      getEnvDuration("CART_IDLE_TTL", 2*time.Hour),
		FavoriteIdleTTL:  getEnvDuration("FAVORITE_IDLE_TTL", 30*time.Minute),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Initialize adapters
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.SnapshotCacheTTL)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	source, err := newCatalogSource(cfg)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	// Initialize services
	catalogService := service.NewCatalogService(source, redisAdapter)
	favoritesService := service.NewFavoritesService(session.ContextProvider{}, mysqlAdapter, redisAdapter)
	carts := service.NewCartSessions(func(cart *service.CartStore) {
		log.Printf("cart %s: opened", cart.ID())
		cart.Subscribe(func(c domain.Cart) {
			log.Printf("cart %s: v%d, %d items", c.ID, c.Version, c.ItemCount)
		})
	})

	monitor := handler.NewHealthMonitor(map[string]handler.Pinger{
		"mysql": mysqlAdapter,
		"redis": redisAdapter,
	}, cfg.HealthInterval)
	go monitor.Run(ctx)
	go runJanitor(ctx, cfg, carts, favoritesService)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	monitor.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(catalogService, carts, favoritesService, redisAdapter, monitor)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	httpHandler.Register(r)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	monitor.Shutdown()
	cancel()

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}
	log.Println("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	// Close connections
	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

// runJanitor drops carts and favorite trackers nobody has used recently.
func runJanitor(ctx context.Context, cfg *Config, carts *service.CartSessions, favorites *service.FavoritesService) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			droppedCarts := carts.Sweep(now.Add(-cfg.CartIdleTTL))
			droppedTrackers := favorites.Sweep(now.Add(-cfg.FavoriteIdleTTL))
			if droppedCarts > 0 || droppedTrackers > 0 {
				log.Printf("janitor: dropped %d idle carts, %d idle favorite trackers", droppedCarts, droppedTrackers)
			}
		}
	}
}

// newCatalogSource picks Shopify when a store domain is configured, then a
// seed file, then the embedded demo catalog.
func newCatalogSource(cfg *Config) (port.CatalogSource, error) {
	if cfg.ShopifyDomain != "" {
		log.Printf("catalog: using shopify store %s (api %s)", cfg.ShopifyDomain, cfg.ShopifyVersion)
		return catalog.NewShopifySource(catalog.ShopifyConfig{
			StoreDomain: cfg.ShopifyDomain,
			Token:       cfg.ShopifyToken,
			APIVersion:  cfg.ShopifyVersion,
			Timeout:     cfg.RequestTimeout,
		}), nil
	}
	if cfg.CatalogSeedFile != "" {
		log.Printf("catalog: loading seed file %s", cfg.CatalogSeedFile)
		return catalog.LoadMemorySource(cfg.CatalogSeedFile)
	}
	log.Println("catalog: using embedded demo catalog")
	return catalog.ParseMemorySource(seedCatalog)
}

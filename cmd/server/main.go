package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"tradewatch/internal/alerts"
	"tradewatch/internal/auth"
	"tradewatch/internal/broker"
	"tradewatch/internal/config"
	"tradewatch/internal/database"
	"tradewatch/internal/execlog"
	"tradewatch/internal/news"
	"tradewatch/internal/notify"
	"tradewatch/internal/orders"
	"tradewatch/internal/portfolio"
	"tradewatch/internal/quote"
	"tradewatch/internal/rates"
	"tradewatch/pkg/middleware"
)

// main initializes and runs the trading automation server with graceful
// shutdown support. It wires the broker, the order manager, market data,
// background tasks and all API routes from the loaded configuration.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogging(cfg.Logging)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	b, fetcher, err := buildBroker(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize broker")
	}
	zlog.Info().Str("provider", b.Name()).Msg("Broker ready")

	quoteService := quote.NewService(
		fetcher,
		time.Duration(cfg.MarketData.CacheTTLSeconds)*time.Second,
		cfg.MarketData.RequestsPerMinute,
	)

	executions := execlog.NewService(execlog.NewDatabase(db))

	// The order manager refuses to start over a store it cannot read;
	// silently dropping armed orders would be worse than not starting.
	policies := orders.DefaultPolicies(b, quoteService, cfg.Broker.TradingPassword)
	manager, err := orders.NewManager(
		orders.NewFileStore(cfg.Orders.StoragePath),
		policies,
		b,
		time.Duration(cfg.Orders.CheckIntervalSeconds)*time.Second,
		time.Duration(cfg.Orders.ExternalTimeoutSecs)*time.Second,
		executions,
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load order store")
	}
	manager.Start(context.Background())

	portfolioService := portfolio.NewService(b)
	ratesService := rates.NewService()

	topic := ""
	if cfg.Notifications.Enabled {
		topic = cfg.Notifications.Topic
	}
	notifier := notify.NewClient(cfg.Notifications.BaseURL, topic)

	alertService := alerts.NewService(notifier)
	if err := registerAlertTasks(alertService, cfg.Alerts.Tasks, ratesService, quoteService); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to register alert tasks")
	}
	if cfg.Alerts.Enabled {
		alertService.StartAll()
	}

	newsService := news.NewService(
		news.NewDatabase(db),
		cfg.News.Feeds,
		time.Duration(cfg.News.RefreshIntervalHours)*time.Hour,
	)
	if cfg.News.Enabled {
		newsService.Start(context.Background())
	}

	authService := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.APIKey,
		cfg.Auth.APISecret,
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour,
	)

	router := gin.Default()
	router.Use(middleware.RateLimit())

	setupRoutes(
		router,
		[]byte(cfg.Auth.JWTSecret),
		auth.NewGinHandlers(authService),
		orders.NewGinHandlers(manager),
		quote.NewGinHandlers(quoteService),
		portfolio.NewGinHandlers(portfolioService),
		execlog.NewGinHandlers(executions),
		news.NewGinHandlers(newsService),
		alerts.NewGinHandlers(alertService),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Background loops first, so nothing mutates orders while the HTTP
	// server drains.
	manager.Stop()
	alertService.StopAll()
	newsService.Stop()

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// configureLogging applies the configured level and output format to the
// global logger.
func configureLogging(cfg config.LoggingConfig) {
	if cfg.Pretty {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// buildBroker constructs the configured brokerage client along with the
// latest-trade source backing the quote service. Alpaca splits the two
// across its trading and market-data APIs; the simulator serves both
// roles itself.
func buildBroker(cfg *config.Config) (broker.Broker, quote.TradeFetcher, error) {
	switch cfg.Broker.Provider {
	case config.ProviderAlpaca:
		b := broker.NewAlpaca(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL)
		opts := marketdata.ClientOpts{
			APIKey:    cfg.Broker.APIKey,
			APISecret: cfg.Broker.APISecret,
		}
		if cfg.Broker.DataURL != "" {
			opts.BaseURL = cfg.Broker.DataURL
		}
		return b, marketdata.NewClient(opts), nil
	case config.ProviderSimulator:
		sim := broker.NewSimulator(broker.SimulatorConfig{
			TradingPassword: cfg.Broker.TradingPassword,
		})
		return sim, sim, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
	}
}

// registerAlertTasks binds every configured alert task to its data source.
func registerAlertTasks(service *alerts.Service, tasks []config.AlertTask, ratesService *rates.Service, quotes *quote.Service) error {
	for _, tc := range tasks {
		probe, err := alerts.BuildProbe(tc.Type, tc.Symbol, ratesService, quotes)
		if err != nil {
			return fmt.Errorf("alert task %s: %w", tc.ID, err)
		}
		task := alerts.Task{
			ID:        tc.ID,
			Name:      tc.Name,
			Threshold: tc.Threshold,
			Direction: tc.Direction,
			Interval:  time.Duration(tc.IntervalMinutes) * time.Minute,
			Message:   tc.Message,
			Probe:     probe,
		}
		if err := service.Register(task); err != nil {
			return err
		}
	}
	return nil
}

// setupRoutes configures all API endpoints and their handlers. The token
// endpoint is public; everything else requires a bearer token.
func setupRoutes(
	router *gin.Engine,
	jwtSecret []byte,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	quoteHandlers *quote.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
	executionHandlers *execlog.GinHandlers,
	newsHandlers *news.GinHandlers,
	alertHandlers *alerts.GinHandlers,
) {
	jwtAuth := middleware.JWTAuth(jwtSecret)

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Trailing sell orders
		sellOrders := v1.Group("/sell_orders")
		sellOrders.Use(jwtAuth)
		{
			sellOrders.POST("", orderHandlers.CreateSellOrderHandler())
			sellOrders.GET("", orderHandlers.ListSellOrdersHandler())
			sellOrders.GET("/:order_id", orderHandlers.GetSellOrderHandler())
			sellOrders.PATCH("/:order_id", orderHandlers.UpdateSellOrderHandler())
			sellOrders.DELETE("/:order_id", orderHandlers.CancelSellOrderHandler())
		}

		// Trailing buy orders
		buyOrders := v1.Group("/buy_orders")
		buyOrders.Use(jwtAuth)
		{
			buyOrders.POST("", orderHandlers.CreateBuyOrderHandler())
			buyOrders.GET("", orderHandlers.ListBuyOrdersHandler())
			buyOrders.GET("/:order_id", orderHandlers.GetBuyOrderHandler())
			buyOrders.PATCH("/:order_id", orderHandlers.UpdateBuyOrderHandler())
			buyOrders.DELETE("/:order_id", orderHandlers.CancelBuyOrderHandler())
		}

		// Market data
		stocks := v1.Group("/stocks")
		stocks.Use(jwtAuth)
		{
			stocks.GET("/:stock_code/price", quoteHandlers.GetPriceHandler())
		}

		// Account state
		account := v1.Group("")
		account.Use(jwtAuth)
		{
			account.GET("/positions", portfolioHandlers.GetPositionsHandler())
			account.GET("/pnl", portfolioHandlers.GetPnLHandler())
			account.GET("/executions", executionHandlers.ListExecutionsHandler())
		}

		// Financial news
		newsGroup := v1.Group("/news")
		newsGroup.Use(jwtAuth)
		{
			newsGroup.GET("", newsHandlers.ListNewsHandler())
			newsGroup.GET("/sources", newsHandlers.ListSourcesHandler())
		}

		// Alert task control
		alertTasks := v1.Group("/alerts/tasks")
		alertTasks.Use(jwtAuth)
		{
			alertTasks.GET("/:task_id/status", alertHandlers.TaskStatusHandler())
			alertTasks.POST("/:task_id/start", alertHandlers.StartTaskHandler())
			alertTasks.POST("/:task_id/stop", alertHandlers.StopTaskHandler())
		}
	}
}

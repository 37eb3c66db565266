package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/middlewares"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/notify"
	"github.com/mmdatafocus/warehouse_stock/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPort    = "8080"
	serviceVersion = "1.0.0"
)

type server struct {
	engine     *ledger.Engine
	store      models.Store
	warehouses models.WarehouseRepository
	db         *gorm.DB
	logger     *logrus.Logger
	limiter    *middlewares.RateLimiter

	startedAt time.Time
	now       func() time.Time
	ready     atomic.Bool
}

func newServer(logger *logrus.Logger) *server {
	return &server{
		logger:    logger,
		startedAt: time.Now(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// swapHandler lets the listener come up before the application router exists.
type swapHandler struct {
	current atomic.Value
}

func (h *swapHandler) set(next http.Handler) { h.current.Store(&next) }

func (h *swapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*h.current.Load().(*http.Handler)).ServeHTTP(w, r)
}

func (s *server) health(c *gin.Context) {
	status := "healthy"
	if !s.ready.Load() {
		status = "starting"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"service":     config.ServiceName(),
		"version":     serviceVersion,
		"uptime":      time.Since(s.startedAt).Seconds(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": config.Environment(),
	})
}

func (s *server) probes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", s.health)
}

// bootRouter answers probes while dependencies connect; everything else is 503.
func bootRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessMiddleware(func() bool { return false }, "/healthz", "/health"))
	s.probes(r)
	return r
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// production requires an explicit allowlist; elsewhere every origin is allowed
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(config.Environment(), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.HeaderCorrelationId, middlewares.HeaderActor, middlewares.HeaderChannel)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.HeaderCorrelationId)
	return corsConfig
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessMiddleware(s.ready.Load, "/healthz", "/health"))
	s.probes(r)

	r.Use(cors.New(corsConfig()))
	if s.limiter != nil {
		r.Use(s.limiter.RateLimitMiddleware)
	}
	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.LoaderMiddleware(s.warehouses))
	r.Use(customErrorLogger(s.logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")

	stock := api.Group("/stock")
	stock.GET("/warehouse/:warehouseId", s.getWarehouseStock)
	stock.GET("/:productId", s.getProductStock)
	stock.GET("/:productId/total", s.getProductTotal)
	stock.GET("/:productId/warehouse/:warehouseId", s.getStock)
	stock.POST("/set", stockMutation(s.engine.SetQuantity))
	stock.POST("/increment", stockMutation(s.engine.Increment))
	stock.POST("/decrement", stockMutation(s.engine.Decrement))
	stock.POST("/reserve", reservationMutation(s.engine.Reserve))
	stock.POST("/unreserve", reservationMutation(s.engine.Unreserve))
	stock.POST("/fulfill", reservationMutation(s.engine.Fulfill))
	stock.POST("/transfer", s.transferStock)
	stock.POST("/configure", s.configureStock)

	movements := api.Group("/movements")
	movements.GET("", s.getMovementsBetween)
	movements.GET("/export", s.exportMovements)
	movements.GET("/product/:productId", s.getProductMovements)
	movements.GET("/warehouse/:warehouseId", s.getWarehouseMovements)
	movements.GET("/replay/:productId/:warehouseId", s.replayMovements)

	reservations := api.Group("/reservations")
	reservations.GET("", s.listActiveReservations)
	reservations.GET("/order/:orderId", s.getOrderReservations)
	reservations.GET("/product/:productId", s.getProductReservations)
	reservations.POST("/:id/expire", s.expireReservation)

	warehouses := api.Group("/warehouses")
	warehouses.GET("", s.listWarehouses)
	warehouses.POST("", s.createWarehouse)
	warehouses.GET("/:id", s.getWarehouse)
	warehouses.PUT("/:id", s.updateWarehouse)
	warehouses.DELETE("/:id", s.deleteWarehouse)

	if s.db != nil {
		r.POST("/internal/ops/outbox/replay", s.outboxReplay)
		r.POST("/internal/ops/reconcile", s.reconcileNow)
	}

	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	respondFailure(c, http.StatusNotFound, errorBody{Kind: string(ledger.KindNotFound), Message: "route not found"})
}

// customErrorLogger logs only requests that recorded errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.WithFields(logrus.Fields{
				"field":  "http",
				"path":   c.FullPath(),
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

func buildLocker(logger *logrus.Logger, db *gorm.DB) (ledger.Locker, error) {
	switch backend := config.LedgerLockBackend(); backend {
	case config.LockRedis:
		if config.GetRedisLock() == nil {
			return nil, errors.New("LEDGER_LOCK_BACKEND=redis needs REDIS_ADDRESS")
		}
		return ledger.NewRedisLocker(config.GetRedisLock(), config.LedgerLockTTL(), logger), nil
	case config.LockDatabase:
		if db == nil {
			return nil, errors.New("LEDGER_LOCK_BACKEND=database needs a sql database")
		}
		return ledger.NewDatabaseLocker(logger), nil
	}
	return ledger.NewLocalLocker(), nil
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	if strings.EqualFold(config.Environment(), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	s := newServer(logger)
	handler := &swapHandler{}
	handler.set(bootRouter(s))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Dependencies connect after the port is open.
	if config.DatabaseDriver() == config.DriverMemory {
		mem := models.NewMemoryStore()
		s.store, s.warehouses = mem, mem.Warehouses()
		logger.WithField("field", "database").Warn("DB_DRIVER=memory; ledger state is not persisted")
	} else {
		config.ConnectDatabaseWithRetry()
		s.db = config.GetDB()
		if !config.SkipMigrations() {
			if err := models.MigrateTable(s.db); err != nil {
				logger.WithField("field", "migrations").Fatal(err.Error())
			}
		} else {
			logger.WithField("field", "migrations").Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
		gs := models.NewGormStore(s.db)
		s.store, s.warehouses = gs, gs.Warehouses()
	}
	if config.RedisConfigured() || config.LedgerLockBackend() == config.LockRedis || config.NotifierTransport() == config.NotifierRedis {
		config.ConnectRedisWithRetry()
		if enabled, limit, window := config.RateLimit(); enabled {
			s.limiter = middlewares.NewRateLimiter(config.GetRedisDB(), limit, window)
		}
	}

	locker, err := buildLocker(logger, s.db)
	if err != nil {
		logger.WithField("field", "locker").Fatal(err.Error())
	}
	publisher, err := notify.NewPublisher(config.NotifierTransport(), s.db, config.GetRedisDB(), logger)
	if err != nil {
		logger.WithField("field", "notifier").Fatal(err.Error())
	}
	notifier := notify.NewAsyncNotifier(publisher, logger, config.NotifierQueueSize())
	s.engine = ledger.New(s.store, ledger.OptionsFromEnv(logger, locker, notifier))

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if expirer := workflow.NewReservationExpirer(s.engine, logger); expirer.Interval > 0 {
		go expirer.Run(workersCtx)
	} else {
		logger.WithField("field", "reservations").Warn("RESERVATION_SWEEP_INTERVAL_SECONDS<=0; expiry sweeper disabled")
	}
	if config.NotifierTransport() == config.NotifierOutbox {
		relay, err := notify.NewPublisher(config.OutboxRelayTransport(), nil, config.GetRedisDB(), logger)
		if err != nil {
			logger.WithField("field", "outbox").Fatal(err.Error())
		}
		dispatcher := workflow.NewOutboxDispatcher(s.db, relay, logger)
		dispatcher.MaxAttempts, dispatcher.InitialBackoff, dispatcher.BatchSize = config.OutboxDispatchSettings()
		go dispatcher.Run(workersCtx)
	}

	handler.set(newRouter(s))
	s.ready.Store(true)
	logger.WithFields(logrus.Fields{
		"field":    "http",
		"port":     port,
		"driver":   config.DatabaseDriver(),
		"locker":   config.LedgerLockBackend(),
		"notifier": config.NotifierTransport(),
		"service":  config.ServiceName(),
		"version":  serviceVersion,
	}).Info(fmt.Sprintf("stock ledger listening on :%s", port))

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop taking new work, then drain requests, then flush events.
	s.ready.Store(false)
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "notifier"}).Warn("notification queue not drained: " + err.Error())
	}
	config.StopTopics()

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	log.Println("Server stopped")
}

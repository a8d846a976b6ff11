package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"studio-api/internal/checkin"
	"studio-api/internal/config"
	"studio-api/internal/crm"
	"studio-api/internal/database"
	"studio-api/internal/lock"
	custommiddleware "studio-api/internal/middleware"
	"studio-api/internal/payment"
	"studio-api/internal/repository"
	"studio-api/internal/service"
	"studio-api/internal/synclog"
	"studio-api/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the already-connected collaborators the API is built on.
// Redis may be nil, in which case slot locks and rate limiting are skipped.
type Dependencies struct {
	DB       database.Service
	Redis    *redis.Client
	Payments payment.Gateway
	Deals    crm.Publisher
	Mailer   service.Mailer
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	deps   Dependencies
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      NewRouter(cfg, logger, deps),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		deps:   deps,
	}
}

// NewRouter wires repositories, services and handlers into one chi router
func NewRouter(cfg *config.Config, logger *zap.Logger, deps Dependencies) http.Handler {
	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.Env == "development"))

	router.Get("/health", healthHandler(deps))

	db := deps.DB.DB()
	location := cfg.Studio.Location()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	serviceRepo := repository.NewServiceRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	loyaltyRepo := repository.NewLoyaltyRepository(db)
	trainingRepo := repository.NewTrainingRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Integrations
	syncRecorder := synclog.NewRecorder(syncLogRepo, logger.Named("synclog"))
	dispatcher := service.NewDispatcher(deps.Mailer, deps.Deals, syncRecorder, logger.Named("dispatch"))

	var locker lock.Locker = lock.Noop{}
	if deps.Redis != nil {
		locker = lock.NewRedisLocker(deps.Redis)
	}

	// Services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT)
	catalogService := service.NewCatalogService(serviceRepo, logger)
	loyaltyService := service.NewLoyaltyService(loyaltyRepo, logger)
	bookingService := service.NewBookingService(service.BookingServiceDeps{
		Bookings:   bookingRepo,
		Services:   serviceRepo,
		Users:      userRepo,
		Loyalty:    loyaltyService,
		Locker:     locker,
		Signer:     checkin.NewSigner(cfg.Studio.CheckInSecret),
		Dispatcher: dispatcher,
		Rules: service.SlotRules{
			Location:    location,
			OpeningHour: cfg.Studio.OpeningHour,
			ClosingHour: cfg.Studio.ClosingHour,
			Interval:    time.Duration(cfg.Studio.SlotInterval) * time.Minute,
		},
		LockTTL:   cfg.Studio.LockTTL(),
		PublicURL: cfg.Server.PublicURL,
		Logger:    logger,
	})
	reviewService := service.NewReviewService(reviewRepo, bookingRepo, serviceRepo, loyaltyService, logger)
	trainingService := service.NewTrainingService(trainingRepo, userRepo, dispatcher, logger)
	shopService := service.NewShopService(service.ShopServiceDeps{
		Products:   productRepo,
		Orders:     orderRepo,
		Users:      userRepo,
		Loyalty:    loyaltyService,
		Payments:   deps.Payments,
		Dispatcher: dispatcher,
		Sync:       syncRecorder,
		Logger:     logger,
	})
	dashboardService := service.NewDashboardService(statsRepo, userRepo, syncLogRepo, location, cfg.Studio.LowStockTrigger, logger)

	guards := transport.Guards{
		Auth:  custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger),
		Staff: custommiddleware.RequireStaff(logger),
		Admin: custommiddleware.RequireAdmin(logger),
	}
	if deps.Redis != nil {
		guards.RateLimit = custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.WindowDuration(),
			KeyPrefix:         "ratelimit:auth",
		}, logger)
	}

	transport.NewUserHandler(userService, logger).RegisterRoutes(router, guards)
	transport.NewCatalogHandler(catalogService, bookingService, location, logger).RegisterRoutes(router, guards)
	transport.NewBookingHandler(bookingService, location, logger).RegisterRoutes(router, guards)
	transport.NewReviewHandler(reviewService, logger).RegisterRoutes(router, guards)
	transport.NewLoyaltyHandler(loyaltyService, logger).RegisterRoutes(router, guards)
	transport.NewTrainingHandler(trainingService, logger).RegisterRoutes(router, guards)
	transport.NewShopHandler(shopService, deps.Payments, logger).RegisterRoutes(router, guards)
	transport.NewAdminHandler(dashboardService, logger).RegisterRoutes(router, guards)

	return router
}

func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		dbHealth := deps.DB.Health()
		body := map[string]interface{}{
			"status":   "ok",
			"database": dbHealth,
		}
		if dbHealth["status"] != "up" {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		if deps.Redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				body["redis"] = "down"
				body["status"] = "degraded"
			} else {
				body["redis"] = "up"
			}
		}
		custommiddleware.RespondWithJSON(w, status, body)
	}
}

// Close releases the connections the server was built with
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	return nil
}

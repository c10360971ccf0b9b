package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/db"
	"github.com/papertrade/apiserver/internal/handlers"
	"github.com/papertrade/apiserver/internal/mq"
	"github.com/papertrade/apiserver/internal/quotes"
	"github.com/papertrade/apiserver/internal/services"
	"github.com/papertrade/apiserver/internal/storage"
	"github.com/papertrade/apiserver/internal/store"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate || cfg.Database.Driver == config.DriverSQLite {
		if err := db.MigrateUp(dbConn, cfg.Database.Driver); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
	}

	oracle, err := quotes.New(cfg.Quotes)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("quotes: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		closeBroker(broker)
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	ledgerRepo := store.NewLedgerRepository(dbConn, cfg.Database.Driver)
	sessionRepo := store.NewSessionRepository(dbConn)

	// A nil *TradePublisher stored in the interface would not compare equal
	// to nil, so the publisher is only assigned when a broker is configured.
	var publisher services.TradePublisher
	if broker != nil {
		publisher = mq.NewTradePublisher(broker, cfg.MQ.TradesChannel)
	}
	var statementStorage services.StatementStorage
	if objects != nil {
		statementStorage = objects
	}

	userService := services.NewUserService(userRepo, cfg.InitialCash)
	sessionService := services.NewSessionService(sessionRepo)
	tradingService := services.NewTradingService(ledgerRepo, oracle, publisher)
	portfolioService := services.NewPortfolioService(ledgerRepo, oracle)
	ledgerService := services.NewLedgerService(userRepo, ledgerRepo)
	statementService := services.NewStatementService(ledgerRepo, statementStorage)

	authHandler := handlers.NewAuthHandler(userService, sessionService, cfg.JWTSecret, cfg.TokenTTL)
	authMiddleware := authHandler.RequireAuth

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger,
		middleware.NoCache,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/portfolio", func(r chi.Router) {
		handlers.PortfolioRouter(r, portfolioService, authMiddleware)
	})
	router.Route("/trades", func(r chi.Router) {
		handlers.TradingRouter(r, tradingService, authMiddleware)
	})
	router.Route("/history", func(r chi.Router) {
		handlers.HistoryRouter(r, ledgerService, statementService, authMiddleware)
	})
	router.Route("/quotes", func(r chi.Router) {
		handlers.QuoteRouter(r, tradingService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	zap.L().Info("Listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	closeBroker(s.mq)
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

func closeBroker(m *mq.MQ) {
	if m == nil {
		return
	}
	if err := m.Close(); err != nil {
		zap.L().Warn("Failed to close message broker", zap.Error(err))
	}
}

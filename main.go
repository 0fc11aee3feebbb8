package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"paytr-payment-api/config"
	"paytr-payment-api/database"
	"paytr-payment-api/handlers"
	"paytr-payment-api/logger"
	"paytr-payment-api/middleware"
	"paytr-payment-api/models"
	"paytr-payment-api/queue"
	"paytr-payment-api/services/auth"
	"paytr-payment-api/services/payment"
	"paytr-payment-api/services/payment/paytr"
	"paytr-payment-api/worker"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	// Config loading logs through the global logger, so start it from the
	// raw environment and reconfigure once .env has been read.
	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L()

	// Attempt journal
	var (
		db       *database.Connection
		journal  *database.AttemptJournal
		recorder payment.AttemptRecorder
		wjournal worker.Journal
		dbPinger handlers.Pinger
	)
	if cfg.JournalEnabled() {
		var err error
		for retries := 0; retries < 5; retries++ {
			db, err = database.NewConnection(cfg.Database)
			if err == nil {
				break
			}
			retryDelay := time.Duration(retries+1) * time.Second
			log.Warn("failed to connect to database, retrying",
				zap.Int("attempt", retries+1), zap.Duration("delay", retryDelay), zap.Error(err))
			time.Sleep(retryDelay)
		}
		if err != nil {
			log.Fatal("failed to connect to database after retries", zap.Error(err))
		}
		defer db.Close()

		if err := db.EnsureSchema(context.Background()); err != nil {
			log.Fatal("failed to prepare attempt journal", zap.Error(err))
		}
		journal = database.NewAttemptJournal(db)
		recorder, wjournal, dbPinger = journal, journal, db
		log.Info("attempt journal enabled", zap.String("host", cfg.Database.Host))
	} else {
		log.Info("DB_HOST not set, attempt journal disabled")
	}

	// Payment layer
	credentials := paytr.StaticCredentials(cfg.Credentials())
	endpoints := paytr.NewEndpoints(cfg.PayTR.BaseURL, cfg.PayTR.LinkBaseURL)
	paymentService := payment.NewService(credentials, payment.Config{
		Endpoints:          endpoints,
		Callbacks:          paytr.CallbackURLs{OK: cfg.PayTR.OKURL, Fail: cfg.PayTR.FailURL},
		LinkTimeoutSeconds: cfg.PayTR.LinkTimeoutSeconds,
		Timeout:            cfg.PayTR.Timeout,
		Simulator: paytr.SimulatorConfig{
			Delay:       cfg.PayTR.SimulationDelay,
			Jitter:      cfg.PayTR.SimulationDelay / 2,
			LinkBaseURL: endpoints.LinkBaseURL,
		},
		RequireLive:          cfg.PayTR.RequireLive,
		MaxRequestsPerSecond: cfg.PayTR.MaxRequestsPerSec,
	},
		payment.WithIPResolver(paytr.ContextIPResolver),
		payment.WithRecorder(recorder),
		payment.WithLogger(logger.Named("payment")),
	)
	log.Info("payment gateway ready", zap.Bool("live", paymentService.Live()))

	// Status polling queue and worker
	var (
		watcher      handlers.StatusWatcher
		statter      handlers.QueueStatter
		retrier      handlers.JobRetrier
		rateLimiter  *middleware.RateLimiter
		statusWorker *worker.StatusWorker
	)
	jobQueue, err := queue.NewQueue(cfg.Redis.URL, queue.DefaultQueueName)
	if err != nil {
		log.Warn("redis unavailable, status polling and rate limiting disabled", zap.Error(err))
	} else {
		defer jobQueue.Close()
		watcher, statter, retrier = jobQueue, jobQueue, jobQueue
		rateLimiter = middleware.NewRateLimiterFromClient(jobQueue.Client())

		concurrency := cfg.Redis.WorkerConcurrency
		if concurrency < 1 {
			concurrency = 1
		} else if concurrency > 8 {
			concurrency = 8
		}
		statusWorker = worker.NewStatusWorker(jobQueue, paymentService, wjournal, worker.DefaultOptions())
		statusWorker.Start(concurrency)

		recoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := statusWorker.Recover(recoverCtx, 500); err != nil {
			log.Warn("failed to recover pending attempts", zap.Error(err))
		}
		cancel()
	}

	// Handlers
	paymentHandler, err := handlers.NewPaymentHandler(paymentService, watcher)
	if err != nil {
		log.Fatal("failed to initialize payment handler", zap.Error(err))
	}
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	internalHandler := handlers.NewInternalHandler(jwtService, retrier, cfg.Auth.InternalSecret)
	healthHandler := handlers.NewHealthHandler(paymentService, dbPinger, statter)

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.ClientIPMiddleware(proxies))
	router.Use(corsMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(middleware.LoggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	payments := api.PathPrefix("/payments").Subrouter()
	payments.Use(middleware.AuthMiddleware(jwtService))
	if rateLimiter != nil {
		payments.Use(rateLimiter.RateLimitMiddleware())
	}
	scoped := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.RequireScope(scope)(h)
	}
	payments.Handle("/charge", scoped(models.ScopePaymentsCharge, paymentHandler.Charge)).Methods(http.MethodPost, http.MethodOptions)
	payments.Handle("/link", scoped(models.ScopePaymentsLink, paymentHandler.CreateLink)).Methods(http.MethodPost, http.MethodOptions)
	payments.Handle("/{merchantOid}/status", scoped(models.ScopePaymentsRead, paymentHandler.Status)).Methods(http.MethodGet, http.MethodOptions)
	payments.Handle("/{merchantOid}/watch", scoped(models.ScopePaymentsRead, paymentHandler.Watch)).Methods(http.MethodPost, http.MethodOptions)

	internal := router.PathPrefix("/internal").Subrouter()
	internal.HandleFunc("/token", internalHandler.RequireInternalSecret(internalHandler.IssueToken)).Methods(http.MethodPost)
	internal.HandleFunc("/jobs/{jobId}/retry", internalHandler.RequireInternalSecret(internalHandler.RetryFailedJob)).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.PayTR.Timeout + 15*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}

	if statusWorker != nil {
		statusWorker.Stop()
	}

	log.Info("server exited properly")
}

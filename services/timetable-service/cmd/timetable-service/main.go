package main

import (
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/medportal/timetable/libs/auth"
	"github.com/medportal/timetable/libs/config"
	"github.com/medportal/timetable/libs/grpcx"
	"github.com/medportal/timetable/libs/httpx"
	"github.com/medportal/timetable/libs/kafkax"
	otelx "github.com/medportal/timetable/libs/otel"
	"github.com/medportal/timetable/libs/runtime"
	"github.com/medportal/timetable/services/timetable-service/internal/cache"
	"github.com/medportal/timetable/services/timetable-service/internal/consumer"
	"github.com/medportal/timetable/services/timetable-service/internal/directory"
	"github.com/medportal/timetable/services/timetable-service/internal/handlers"
	"github.com/medportal/timetable/services/timetable-service/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	loaded, envErr := runtime.LoadEnvFiles()
	service := config.String("SERVICE_NAME", "timetable-service")
	logger := runtime.NewLogger(service)
	if envErr != nil {
		logger.Error("env file load failed", "err", envErr)
	} else if len(loaded) > 0 {
		logger.Info("env files loaded", "files", loaded)
	}

	port, err := config.Port("PORT", "8090")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	be, err := openBackend(ctx, logger, brokers)
	if err != nil {
		logger.Error("appointments backend init failed", "err", err)
		os.Exit(1)
	}
	defer be.close()
	checks := append([]runtime.ReadyCheck{}, be.checks...)

	cacheTTL, err := config.Seconds("CACHE_TTL_SECONDS", time.Minute)
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	ratePerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	var (
		weekCache cache.WeekCache
		limiter   httpx.Limiter
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			logger.Error("invalid config", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer rdb.Close()
		weekCache = cache.NewRedisWeekCache(rdb, cacheTTL, "")
		limiter = httpx.NewRedisLimiter(rdb, ratePerMinute, time.Minute, "")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	} else {
		logger.Warn("redis not configured; using in-memory cache and rate limiter")
		weekCache = cache.NewMemoryWeekCache(cacheTTL)
		limiter = httpx.NewMemoryLimiter(ratePerMinute)
	}

	weeks := directory.NewWeekLoader(be.dir, weekCache, logger)
	idleMinutes, err := config.Int("SESSION_IDLE_MINUTES", 30)
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	sessions := session.NewStore(weeks, be.dir, logger, time.Duration(idleMinutes)*time.Minute)
	go sessions.RunJanitor(ctx, time.Minute)

	if topics := config.List("KAFKA_CONSUME_TOPICS"); len(brokers) > 0 && len(topics) > 0 {
		eventConsumer := consumer.New(logger, be.inbox, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  topics,
		}, consumer.InvalidateWeeks(weeks, sessions, logger))
		go eventConsumer.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksTTL, err := config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute)
		if err != nil {
			logger.Error("invalid config", "err", err)
			os.Exit(1)
		}
		verifier.JWKS = auth.NewJWKSClient(jwksURL, jwksTTL, &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	}
	if verifier.Secret == "" && verifier.JWKS == nil {
		logger.Error("no token verification configured (set JWT_SECRET or JWKS_URL)")
		os.Exit(1)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	timetableHandler := handlers.NewTimetableHandler(sessions, be.dir, weeks, be.names, logger)
	timetableHandler.Register(mux, handlers.RequireAuth(verifier))

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithRateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "timetable")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := grpcx.NewServer(logger)
	go grpcx.WatchReadiness(ctx, healthServer, service, 10*time.Second, checks...)
	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	logger.Info("timetable service stopped", "open_sessions", sessions.Len())
}

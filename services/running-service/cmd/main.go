package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/config"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/handler"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/repository"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/telemetry"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/usecase"
	"github.com/vasapolrittideah/running-tracker-api/shared/auth"
	"github.com/vasapolrittideah/running-tracker-api/shared/database"
	"github.com/vasapolrittideah/running-tracker-api/shared/discovery"
	"github.com/vasapolrittideah/running-tracker-api/shared/logger"
	"github.com/vasapolrittideah/running-tracker-api/shared/middleware"
	"github.com/vasapolrittideah/running-tracker-api/shared/tokenstore"
	"github.com/vasapolrittideah/running-tracker-api/shared/utilities"
)

const shutdownTimeout = 15 * time.Second

func main() {
	bootLogger := logger.New(zerolog.LevelInfoValue, "running-service")
	cfg := config.NewRunningServiceConfig(bootLogger)
	log := logger.New(cfg.LogLevel, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("running service stopped with error")
	}

	log.Info().Msg("running service stopped")
}

func run(ctx context.Context, cfg *config.RunningServiceConfig, log *zerolog.Logger) error {
	mongoClient, err := database.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.OperationTimeout)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect from mongodb")
		}
	}()

	sessionRepo := repository.NewRunningSessionMongoRepository(ctx, log, mongoClient.Database(cfg.Mongo.Database))

	validator, err := telemetry.NewValidator(log)
	if err != nil {
		return err
	}

	runningUsecase := usecase.NewRunningUsecase(sessionRepo, validator, log)

	var blacklist middleware.TokenBlacklist
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		blacklist = tokenstore.NewRedisTokenStore(redisClient)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, revoked access tokens will not be rejected")
	}

	jwtAuth := auth.NewJWTAuthenticator(cfg.Token.Audience, cfg.Token.Issuer)
	authMiddleware := middleware.NewJWTMiddleware(jwtAuth, cfg.Token.AccessTokenSecret, blacklist, log)

	router := handler.NewRouter(handler.NewRunningHTTPHandler(runningUsecase, log), authMiddleware, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthEndpoint := utilities.NewHealthEndpoint()

	if cfg.Consul.Addr != "" {
		registry, err := discovery.NewConsulRegistry(cfg.Consul.Addr)
		if err != nil {
			return err
		}

		serviceID, err := registry.Register(discovery.Registration{
			Name:                cfg.ServiceName,
			Host:                cfg.ServiceHost,
			HTTPAddr:            cfg.HTTPAddr,
			GRPCHealthAddr:      cfg.GRPCAddr,
			HealthCheckInterval: cfg.Consul.HealthCheckInterval,
		})
		if err != nil {
			return err
		}
		log.Info().Str("service_id", serviceID).Msg("registered with consul")

		defer func() {
			if err := registry.Deregister(serviceID); err != nil {
				log.Error().Err(err).Str("service_id", serviceID).Msg("failed to deregister from consul")
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCAddr != "" {
		g.Go(func() error {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health endpoint listening")
			return healthEndpoint.ListenAndServe(gctx, cfg.GRPCAddr)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		healthEndpoint.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

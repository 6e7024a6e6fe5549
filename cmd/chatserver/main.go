// Command chatserver serves the polling chat room over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/whisper/roomchat/internal/config"
	"github.com/whisper/roomchat/internal/httpapi"
	"github.com/whisper/roomchat/internal/logging"
	"github.com/whisper/roomchat/internal/messaging"
	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/moderation"
	"github.com/whisper/roomchat/internal/ratelimit"
	"github.com/whisper/roomchat/internal/room"
	"github.com/whisper/roomchat/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = "chatserver"
	}
	logging.Init(cfg.Log)
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("chatserver stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	coordinator := room.NewDefault(cfg.Room.Capacity)
	if err := metrics.RegisterRoom(prometheus.DefaultRegisterer, coordinator); err != nil {
		return err
	}

	opts := httpapi.Options{CookieName: cfg.Session.Cookie}

	var sessions session.Store
	switch cfg.Session.Backend {
	case config.BackendRedis:
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.Session.TTL)
		if cfg.RateLimit.Enabled {
			opts.Limiter = ratelimit.NewLimiter(rdb, map[ratelimit.Op]ratelimit.Rule{
				ratelimit.OpLogin: {Limit: cfg.RateLimit.Login.Limit, Window: cfg.RateLimit.Login.Window},
				ratelimit.OpSend:  {Limit: cfg.RateLimit.Send.Limit, Window: cfg.RateLimit.Send.Window},
			})
		}
	default:
		sessions = session.NewMemoryStore(cfg.Session.TTL)
	}

	if cfg.NATS.Enabled {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		if cfg.NATS.Name != "" {
			natsConfig.Name = cfg.NATS.Name
		}
		nc, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			return err
		}
		defer nc.Close()
		opts.Publisher = nc

		if err := nc.SubscribeModerationResults(func(data []byte) {
			var res moderation.Result
			if err := json.Unmarshal(data, &res); err != nil {
				logger.Warn().Err(err).Msg("malformed moderation result")
				return
			}
			metrics.ModerationFlagged.WithLabelValues(res.Reason).Inc()
			logger.Warn().
				Str(logging.FieldUsername, res.Sender).
				Int64("timestamp", res.Timestamp).
				Str("reason", res.Reason).
				Str("term", res.Term).
				Msg("message flagged by moderator")
		}); err != nil {
			return err
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(logger))
	httpapi.NewHandler(coordinator, sessions, opts).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("session_backend", cfg.Session.Backend).
			Int("capacity", cfg.Room.Capacity).
			Bool("nats", cfg.NATS.Enabled).
			Bool("ratelimit", opts.Limiter != nil).
			Msg("chatserver starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

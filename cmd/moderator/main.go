// Command moderator reviews the room event feed and publishes advisory
// verdicts for flagged user messages. It never changes the room log.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/whisper/roomchat/internal/chat"
	"github.com/whisper/roomchat/internal/config"
	"github.com/whisper/roomchat/internal/logging"
	"github.com/whisper/roomchat/internal/messaging"
	"github.com/whisper/roomchat/internal/moderation"
	"github.com/whisper/roomchat/internal/protocol"
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
		cfg.Log.ServiceName = "moderator"
	}
	logging.Init(cfg.Log)
	logger := logging.L()

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.Name = "roomchat-moderator"

	nc, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	filter := moderation.NewFilter()
	if len(cfg.Moderation.Terms) > 0 {
		filter = moderation.NewFilterWithTerms(cfg.Moderation.Terms)
	}

	if err := nc.SubscribeRoomEvents(func(data []byte) {
		review(logger, filter, nc, data)
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe to room events")
	}

	logger.Info().Str("nats_url", natsConfig.URL).Int("custom_terms", len(cfg.Moderation.Terms)).Msg("moderator running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}

type resultPublisher interface {
	PublishModerationResult(data []byte) error
}

// review checks one feed event and publishes a verdict when it is flagged.
// It reports whether a verdict was published.
func review(logger zerolog.Logger, filter *moderation.Filter, pub resultPublisher, data []byte) bool {
	msg, err := protocol.DecodeEvent(data)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping malformed room event")
		return false
	}
	if msg.Type != string(chat.KindUser) {
		return false
	}

	result := filter.Check(msg.Content)
	if !result.Blocked {
		logger.Debug().Str(logging.FieldUsername, msg.Sender).Int64("timestamp", msg.Timestamp).Msg("clean")
		return false
	}

	logger.Info().
		Str(logging.FieldUsername, msg.Sender).
		Int64("timestamp", msg.Timestamp).
		Str("reason", result.Reason).
		Str("term", result.Term).
		Msg("flagged")

	out, err := json.Marshal(moderation.Result{
		Sender:    msg.Sender,
		Timestamp: msg.Timestamp,
		Blocked:   true,
		Reason:    result.Reason,
		Term:      result.Term,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal moderation result")
		return false
	}
	if err := pub.PublishModerationResult(out); err != nil {
		logger.Warn().Err(err).Msg("failed to publish moderation result")
		return false
	}
	return true
}

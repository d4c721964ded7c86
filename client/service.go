// Package client runs one training participant: it announces itself to the
// manager over MQTT, keeps a heartbeat going and answers trainer calls.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/absmach/fedcoord/pkg/channel"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
)

const offlineTimeout = 5 * time.Second

var (
	errEmptyID         = errors.New("empty client id")
	errInvalidInterval = errors.New("liveliness interval must be positive")
)

type Service struct {
	id                 string
	numSamples         uint64
	livelinessInterval time.Duration
	pubsub             mqtt.PubSub
	topics             mqtt.Topics
	server             *channel.Server
	logger             *slog.Logger

	registered atomic.Bool
	lastRound  atomic.Uint64
}

func NewService(id string, trainer fl.Trainer, numSamples uint64, livelinessInterval time.Duration, pubsub mqtt.PubSub, topics mqtt.Topics, logger *slog.Logger) (*Service, error) {
	if id == "" {
		return nil, errEmptyID
	}
	if livelinessInterval <= 0 {
		return nil, errInvalidInterval
	}

	return &Service{
		id:                 id,
		numSamples:         numSamples,
		livelinessInterval: livelinessInterval,
		pubsub:             pubsub,
		topics:             topics,
		server:             channel.NewServer(pubsub, topics, id, trainer, logger),
		logger:             logger,
	}, nil
}

// Will is the last will a client connection should carry so the manager
// learns about an unclean disconnect.
func Will(codec mqtt.Codec, topics mqtt.Topics, id string) (*mqtt.Will, error) {
	payload, err := codec.Marshal(channel.Announcement{ClientID: id, Status: channel.StatusOffline})
	if err != nil {
		return nil, err
	}

	return &mqtt.Will{Topic: topics.Alive(), Payload: payload}, nil
}

// Registered reports whether the manager accepted the last registration.
func (s *Service) Registered() bool {
	return s.registered.Load()
}

// LastRound is the most recent round the manager announced as published.
func (s *Service) LastRound() uint64 {
	return s.lastRound.Load()
}

// Run serves trainer calls until ctx is canceled, then announces the client
// as offline.
func (s *Service) Run(ctx context.Context) error {
	if err := s.pubsub.Subscribe(ctx, s.topics.Registry(s.id), s.handleAck); err != nil {
		return fmt.Errorf("failed to subscribe to registry topic: %w", err)
	}
	if err := s.pubsub.Subscribe(ctx, s.topics.Published(), s.handlePublished); err != nil {
		return fmt.Errorf("failed to subscribe to published topic: %w", err)
	}
	if err := s.server.Serve(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to request topic: %w", err)
	}

	if err := s.announce(ctx, s.topics.Register(), channel.StatusAlive); err != nil {
		return fmt.Errorf("failed to publish registration: %w", err)
	}
	s.logger.Info("Client service is running.", slog.String("client_id", s.id))

	s.startLivelinessUpdates(ctx)

	offCtx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()
	if err := s.announce(offCtx, s.topics.Alive(), channel.StatusOffline); err != nil {
		s.logger.Warn("failed to announce offline status", slog.Any("error", err))
	}

	return nil
}

// startLivelinessUpdates blocks until ctx is done. Registration is retried on
// every tick until the manager accepts it.
func (s *Service) startLivelinessUpdates(ctx context.Context) {
	ticker := time.NewTicker(s.livelinessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping liveliness updates")

			return
		case <-ticker.C:
			topic := s.topics.Alive()
			if !s.registered.Load() {
				topic = s.topics.Register()
			}
			if err := s.announce(ctx, topic, channel.StatusAlive); err != nil {
				s.logger.Error("failed to publish liveliness message", slog.Any("error", err))

				continue
			}
			s.logger.Debug("Published liveliness message", slog.String("topic", topic))
		}
	}
}

func (s *Service) announce(ctx context.Context, topic, status string) error {
	return s.pubsub.Publish(ctx, topic, channel.Announcement{
		ClientID:   s.id,
		Status:     status,
		NumSamples: s.numSamples,
	})
}

func (s *Service) handleAck(_ string, payload []byte) error {
	var ack channel.Ack
	if err := s.pubsub.Codec().Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("failed to decode registration ack: %w", err)
	}

	s.registered.Store(ack.Accepted)
	if !ack.Accepted {
		s.logger.Warn("registration rejected", slog.String("client_id", s.id), slog.String("reason", ack.Error))

		return nil
	}
	s.logger.Info("registration accepted", slog.String("client_id", s.id))

	return nil
}

func (s *Service) handlePublished(_ string, payload []byte) error {
	var msg channel.Published
	if err := s.pubsub.Codec().Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode round notification: %w", err)
	}
	s.lastRound.Store(msg.Round)

	args := []any{slog.Uint64("round", msg.Round)}
	if msg.Loss != nil {
		args = append(args, slog.Float64("loss", *msg.Loss))
	}
	s.logger.Info("global parameters published", args...)

	return nil
}

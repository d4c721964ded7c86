package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/pkg/channel"
	"github.com/absmach/fedcoord/pkg/fl"
)

var errMissingClientID = errors.New("announcement without client id")

// Subscribe listens on the register and alive topics. When AliveTimeout is
// set, clients that stop sending heartbeats are marked unreachable.
func (svc *service) Subscribe(ctx context.Context) error {
	if svc.pubsub == nil {
		return nil
	}

	if err := svc.pubsub.Subscribe(ctx, svc.topics.Register(), svc.handleRegister(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", svc.topics.Register(), err)
	}
	if err := svc.pubsub.Subscribe(ctx, svc.topics.Alive(), svc.handleAlive(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", svc.topics.Alive(), err)
	}

	if svc.cfg.AliveTimeout > 0 {
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			svc.expireClients(ctx)
		}()
	}

	return nil
}

func (svc *service) handleRegister(ctx context.Context) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		var msg channel.Announcement
		if err := svc.pubsub.Codec().Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to decode registration: %w", err)
		}
		if msg.ClientID == "" {
			return errMissingClientID
		}

		ack := channel.Ack{ClientID: msg.ClientID, Accepted: true}
		p, err := svc.RegisterClient(ctx, msg.ClientID)
		if err != nil {
			ack.Accepted = false
			ack.Error = err.Error()
			svc.logger.Warn("client registration rejected",
				slog.String("client_id", msg.ClientID),
				slog.Any("error", err),
			)
		} else {
			svc.logger.Info("client registered",
				slog.String("client_id", p.ID),
				slog.Uint64("num_samples", msg.NumSamples),
			)
		}

		if err := svc.pubsub.Publish(ctx, svc.topics.Registry(msg.ClientID), ack); err != nil {
			return fmt.Errorf("failed to acknowledge registration of %s: %w", msg.ClientID, err)
		}

		return nil
	}
}

func (svc *service) handleAlive(ctx context.Context) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		var msg channel.Announcement
		if err := svc.pubsub.Codec().Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to decode heartbeat: %w", err)
		}
		if msg.ClientID == "" {
			return errMissingClientID
		}

		if msg.Status == channel.StatusOffline {
			if err := svc.registry.Disconnect(msg.ClientID); err != nil {
				return err
			}
			svc.logger.InfoContext(ctx, "client went offline", slog.String("client_id", msg.ClientID))

			return nil
		}

		err := svc.registry.Heartbeat(msg.ClientID)
		if !errors.Is(err, fl.ErrClientNotFound) {
			return err
		}

		// An evicted or forgotten client is not admitted by a heartbeat. The
		// rejection makes it register again.
		svc.logger.Warn("heartbeat from unregistered client", slog.String("client_id", msg.ClientID))
		ack := channel.Ack{ClientID: msg.ClientID, Accepted: false, Error: err.Error()}
		if err := svc.pubsub.Publish(ctx, svc.topics.Registry(msg.ClientID), ack); err != nil {
			return fmt.Errorf("failed to reject heartbeat of %s: %w", msg.ClientID, err)
		}

		return nil
	}
}

func (svc *service) expireClients(ctx context.Context) {
	ticker := time.NewTicker(svc.cfg.AliveTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-svc.ctx.Done():
			return
		case <-ticker.C:
			for _, id := range svc.registry.Expire(svc.cfg.AliveTimeout) {
				svc.logger.Warn("client heartbeat expired", slog.String("client_id", id))
			}
		}
	}
}

// notify broadcasts a committed round. Delivery is best effort.
func (svc *service) notify(ctx context.Context, rec fl.RoundRecord) {
	if svc.pubsub == nil {
		return
	}

	msg := channel.Published{
		Round:     rec.Round,
		Loss:      rec.Loss,
		Metrics:   rec.Metrics,
		Timestamp: rec.Timestamp.Unix(),
	}
	if err := svc.pubsub.Publish(ctx, svc.topics.Published(), msg); err != nil {
		svc.logger.Warn("failed to publish round notification",
			slog.Uint64("round", rec.Round),
			slog.Any("error", err),
		)
	}
}

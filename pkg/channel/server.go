package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
)

// Server answers the requests a Router sends to one client by calling the
// local trainer.
type Server struct {
	pubsub   mqtt.PubSub
	topics   mqtt.Topics
	clientID string
	trainer  fl.Trainer
	logger   *slog.Logger
}

func NewServer(pubsub mqtt.PubSub, topics mqtt.Topics, clientID string, trainer fl.Trainer, logger *slog.Logger) *Server {
	return &Server{
		pubsub:   pubsub,
		topics:   topics,
		clientID: clientID,
		trainer:  trainer,
		logger:   logger,
	}
}

// Serve subscribes to the client's request topic. Each request is handled
// in its own goroutine bound to ctx.
func (s *Server) Serve(ctx context.Context) error {
	return s.pubsub.Subscribe(ctx, s.topics.Requests(s.clientID), func(topic string, payload []byte) error {
		var req Envelope
		if err := s.pubsub.Codec().Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("decode request on %s: %w", topic, err)
		}

		go s.respond(ctx, req)

		return nil
	})
}

func (s *Server) respond(ctx context.Context, req Envelope) {
	res := s.Handle(ctx, req)
	if err := s.pubsub.Publish(ctx, s.topics.Responses(s.clientID), res); err != nil {
		s.logger.Error("failed to publish response",
			slog.String("request_id", req.RequestID),
			slog.String("method", req.Method),
			slog.Any("error", err),
		)
	}
}

// Handle runs one request against the trainer and builds its response.
func (s *Server) Handle(ctx context.Context, req Envelope) Envelope {
	codec := s.pubsub.Codec()
	res := Envelope{RequestID: req.RequestID, Method: req.Method}

	result, err := s.dispatch(ctx, codec, req)
	if err == nil {
		res.Payload, err = codec.Marshal(result)
	}
	if err != nil {
		res.Error = err.Error()
		s.logger.Warn("request failed",
			slog.String("request_id", req.RequestID),
			slog.String("method", req.Method),
			slog.Any("error", err),
		)
	}

	return res
}

func (s *Server) dispatch(ctx context.Context, codec mqtt.Codec, req Envelope) (any, error) {
	if req.Method == MethodGetParameters {
		return s.trainer.GetParameters(ctx)
	}

	var in Instruction
	if err := codec.Unmarshal(req.Payload, &in); err != nil {
		return nil, fmt.Errorf("decode %s instruction: %w", req.Method, err)
	}

	switch req.Method {
	case MethodFit:
		return s.trainer.Fit(ctx, in.Parameters, in.Config)
	case MethodEvaluate:
		return s.trainer.Evaluate(ctx, in.Parameters, in.Config)
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

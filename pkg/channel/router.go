package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/google/uuid"
)

// Router multiplexes request/response calls to many clients over one MQTT
// connection. A single wildcard subscription receives every response and
// hands it to the call waiting on its request id. A response is only
// accepted on the topic of the client the request was sent to.
type Router struct {
	pubsub mqtt.PubSub
	topics mqtt.Topics
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingCall
}

type pendingCall struct {
	clientID string
	ch       chan Envelope
}

func NewRouter(pubsub mqtt.PubSub, topics mqtt.Topics, logger *slog.Logger) *Router {
	return &Router{
		pubsub:  pubsub,
		topics:  topics,
		logger:  logger,
		pending: make(map[string]pendingCall),
	}
}

func (r *Router) Start(ctx context.Context) error {
	return r.pubsub.Subscribe(ctx, r.topics.AllResponses(), r.handleResponse)
}

func (r *Router) Stop(ctx context.Context) error {
	return r.pubsub.Unsubscribe(ctx, r.topics.AllResponses())
}

// Channel returns the trainer capability of one remote client.
func (r *Router) Channel(clientID string) fl.Trainer {
	return &remote{router: r, clientID: clientID}
}

// Pending reports the number of calls still waiting for a response.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

func (r *Router) handleResponse(topic string, payload []byte) error {
	var env Envelope
	if err := r.pubsub.Codec().Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode response on %s: %w", topic, err)
	}

	clientID, _ := r.topics.ClientID(topic)

	r.mu.Lock()
	pc, ok := r.pending[env.RequestID]
	matched := ok && pc.clientID == clientID
	if matched {
		delete(r.pending, env.RequestID)
	}
	r.mu.Unlock()

	switch {
	case !ok:
		r.logger.Debug("dropping response without a waiting call",
			slog.String("topic", topic),
			slog.String("request_id", env.RequestID),
		)

		return nil
	case !matched:
		r.logger.Warn("dropping response from another client",
			slog.String("topic", topic),
			slog.String("request_id", env.RequestID),
			slog.String("client_id", pc.clientID),
		)

		return nil
	}
	pc.ch <- env

	return nil
}

func (r *Router) call(ctx context.Context, clientID, method string, req, resp any) error {
	codec := r.pubsub.Codec()
	env := Envelope{
		RequestID: uuid.NewString(),
		Method:    method,
	}
	if req != nil {
		data, err := codec.Marshal(req)
		if err != nil {
			return err
		}
		env.Payload = data
	}

	ch := make(chan Envelope, 1)
	r.mu.Lock()
	r.pending[env.RequestID] = pendingCall{clientID: clientID, ch: ch}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, env.RequestID)
		r.mu.Unlock()
	}()

	if err := r.pubsub.Publish(ctx, r.topics.Requests(clientID), env); err != nil {
		return fmt.Errorf("%w: publish %s to %s: %w", fl.ErrNoResponse, method, clientID, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s from %s: %w", fl.ErrNoResponse, method, clientID, ctx.Err())
	case res := <-ch:
		if res.Error != "" {
			return fmt.Errorf("%w: %s", fl.ErrClientFailure, res.Error)
		}
		if err := codec.Unmarshal(res.Payload, resp); err != nil {
			return fmt.Errorf("%w: decode %s result: %w", fl.ErrClientFailure, method, err)
		}

		return nil
	}
}

type remote struct {
	router   *Router
	clientID string
}

func (c *remote) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	var params fl.ParameterSet
	if err := c.router.call(ctx, c.clientID, MethodGetParameters, nil, &params); err != nil {
		return fl.ParameterSet{}, err
	}

	return params, nil
}

func (c *remote) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.FitResult, error) {
	var res fl.FitResult
	if err := c.router.call(ctx, c.clientID, MethodFit, Instruction{Parameters: params, Config: cfg}, &res); err != nil {
		return fl.FitResult{}, err
	}

	return res, nil
}

func (c *remote) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.EvaluateResult, error) {
	var res fl.EvaluateResult
	if err := c.router.call(ctx, c.clientID, MethodEvaluate, Instruction{Parameters: params, Config: cfg}, &res); err != nil {
		return fl.EvaluateResult{}, err
	}

	return res, nil
}

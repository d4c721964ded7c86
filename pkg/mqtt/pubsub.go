package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout    = 10
	reconnTimeout  = 1
	disconnTimeout = 250
)

var (
	errPublishTimeout     = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout   = errors.New("failed to subscribe due to timeout reached")
	errUnsubscribeTimeout = errors.New("failed to unsubscribe due to timeout reached")
	errEmptyTopic         = errors.New("empty topic")
	errEmptyID            = errors.New("empty ID")
)

// Handler receives the raw payload of a message. Decoding is left to the
// subscriber so one connection can carry differently shaped messages.
type Handler func(topic string, payload []byte) error

type PubSub interface {
	// Publish encodes msg with the configured codec. A []byte is sent as is.
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
	Codec() Codec
}

// Will is the message the broker publishes when the connection drops.
type Will struct {
	Topic   string
	Payload []byte
}

type Config struct {
	Address  string        `env:"ADDRESS"  envDefault:"tcp://localhost:1883"`
	QoS      uint8         `env:"QOS"      envDefault:"1"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	Timeout  time.Duration `env:"TIMEOUT"  envDefault:"30s"`
	Codec    string        `env:"CODEC"    envDefault:"cbor"`
}

type pubsub struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	codec   Codec
	logger  *slog.Logger
}

func NewPubSub(cfg Config, id string, will *Will, logger *slog.Logger) (PubSub, error) {
	if id == "" {
		return nil, errEmptyID
	}

	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	client, err := newClient(cfg, id, will, logger)
	if err != nil {
		return nil, err
	}

	return &pubsub{
		client:  client,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		codec:   codec,
		logger:  logger,
	}, nil
}

func (ps *pubsub) Codec() Codec {
	return ps.codec
}

func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return errEmptyTopic
	}

	data, ok := msg.([]byte)
	if !ok {
		var err error
		if data, err = ps.codec.Marshal(msg); err != nil {
			return err
		}
	}

	token := ps.client.Publish(topic, ps.qos, false, data)
	if token.Error() != nil {
		return token.Error()
	}

	if ok := token.WaitTimeout(ps.timeout); !ok {
		return errPublishTimeout
	}

	return token.Error()
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	token := ps.client.Subscribe(topic, ps.qos, ps.mqttHandler(handler))
	if token.Error() != nil {
		return token.Error()
	}
	if ok := token.WaitTimeout(ps.timeout); !ok {
		return errSubscribeTimeout
	}

	return token.Error()
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	token := ps.client.Unsubscribe(topic)
	if token.Error() != nil {
		return token.Error()
	}

	if ok := token.WaitTimeout(ps.timeout); !ok {
		return errUnsubscribeTimeout
	}

	return nil
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		ps.client.Disconnect(disconnTimeout)

		return nil
	}
}

func newClient(cfg Config, id string, will *Will, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Address).
		SetClientID(id).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(connTimeout * time.Second).
		SetMaxReconnectInterval(reconnTimeout * time.Minute)

	if will != nil {
		opts.SetBinaryWill(will.Topic, will.Payload, cfg.QoS, false)
	}

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connection established", slog.String("client_id", id))
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		args := []any{}
		if err != nil {
			args = append(args, slog.Any("error", err))
		}

		logger.Info("MQTT connection lost", args...)
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, options *mqtt.ClientOptions) {
		args := []any{}
		if options != nil {
			args = append(args,
				slog.String("client_id", options.ClientID),
				slog.String("username", options.Username),
			)
		}

		logger.Info("MQTT reconnecting", args...)
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if ok := token.WaitTimeout(cfg.Timeout); !ok {
		return nil, errors.New("timeout reached while connecting to MQTT broker")
	}
	if token.Error() != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to MQTT broker %s", cfg.Address), token.Error())
	}

	return client, nil
}

func (ps *pubsub) mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		if err := h(m.Topic(), m.Payload()); err != nil {
			ps.logger.Warn("Failed to handle MQTT message",
				slog.String("topic", m.Topic()),
				slog.Any("error", err),
			)
		}

		m.Ack()
	}
}

package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/absmach/fedcoord/pkg/mqtt"
)

var _ mqtt.PubSub = (*Broker)(nil)

// Broker is an in-process PubSub that delivers every publish synchronously
// to matching subscriptions. Several Broker views can share one bus to stand
// in for separate MQTT connections.
type Broker struct {
	bus   *Bus
	codec mqtt.Codec
}

type Bus struct {
	mu       sync.RWMutex
	subs     map[string][]mqtt.Handler
	messages []Message
}

type Message struct {
	Topic   string
	Payload []byte
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]mqtt.Handler)}
}

func NewBroker(bus *Bus, codec mqtt.Codec) *Broker {
	return &Broker{bus: bus, codec: codec}
}

func (b *Broker) Codec() mqtt.Codec {
	return b.codec
}

func (b *Broker) Publish(_ context.Context, topic string, msg any) error {
	data, ok := msg.([]byte)
	if !ok {
		var err error
		if data, err = b.codec.Marshal(msg); err != nil {
			return err
		}
	}

	b.bus.mu.Lock()
	b.bus.messages = append(b.bus.messages, Message{Topic: topic, Payload: data})
	var handlers []mqtt.Handler
	for filter, hs := range b.bus.subs {
		if Match(filter, topic) {
			handlers = append(handlers, hs...)
		}
	}
	b.bus.mu.Unlock()

	for _, h := range handlers {
		_ = h(topic, data)
	}

	return nil
}

func (b *Broker) Subscribe(_ context.Context, topic string, handler mqtt.Handler) error {
	b.bus.mu.Lock()
	defer b.bus.mu.Unlock()

	b.bus.subs[topic] = append(b.bus.subs[topic], handler)

	return nil
}

func (b *Broker) Unsubscribe(_ context.Context, topic string) error {
	b.bus.mu.Lock()
	defer b.bus.mu.Unlock()

	delete(b.bus.subs, topic)

	return nil
}

func (b *Broker) Disconnect(context.Context) error {
	return nil
}

// Messages returns everything published on topic so far.
func (b *Bus) Messages(topic string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Message
	for _, m := range b.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}

	return out
}

// Match reports whether topic matches an MQTT filter with + and # wildcards.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}

	return len(fs) == len(ts)
}

package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/meincms/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel = channel
	b.data = data
	b.attrs = attrs
	return "msg-1", nil
}

func (b *recordingBackend) Subscribe(context.Context, string, Handler) error { return nil }
func (b *recordingBackend) Close() error                                     { return nil }

func TestPublishJSON(t *testing.T) {
	backend := &recordingBackend{}
	queue := New(backend)

	attrs := map[string]string{"kind": "welcome"}
	id, err := queue.PublishJSON(context.Background(), "notifications", map[string]string{"to": "a@example.com"}, attrs)
	if err != nil {
		t.Fatalf("PublishJSON error: %v", err)
	}
	if id != "msg-1" || backend.channel != "notifications" {
		t.Fatalf("unexpected publish: id=%q channel=%q", id, backend.channel)
	}
	if backend.attrs[AttrContentType] != "application/json" || backend.attrs["kind"] != "welcome" {
		t.Fatalf("unexpected attrs: %v", backend.attrs)
	}
	if _, ok := attrs[AttrContentType]; ok {
		t.Fatalf("caller attrs were mutated")
	}

	var decoded map[string]string
	if err := json.Unmarshal(backend.data, &decoded); err != nil || decoded["to"] != "a@example.com" {
		t.Fatalf("unexpected payload %s (%v)", backend.data, err)
	}
}

func TestPublishJSONEncodeError(t *testing.T) {
	queue := New(&recordingBackend{})
	if _, err := queue.PublishJSON(context.Background(), "c", make(chan int), nil); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	if _, err := Open(ctx, config.Config{}); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("Open(empty) error = %v, want ErrNoBackend", err)
	}
	if _, err := Open(ctx, config.Config{MQ: config.MQConfig{Backend: "kafka"}}); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
	if _, err := Open(ctx, config.Config{MQ: config.MQConfig{Backend: BackendRabbitMQ}}); err == nil {
		t.Fatalf("expected error for missing rabbitmq url")
	}
	if _, err := Open(ctx, config.Config{MQ: config.MQConfig{Backend: BackendPubSub}}); err == nil {
		t.Fatalf("expected error for missing pubsub project")
	}
}

func TestRabbitPublishing(t *testing.T) {
	client := &RabbitMQClient{queueDurable: true}
	msg := client.publishing("id-1", []byte("{}"), map[string]string{
		AttrContentType: "application/json",
		"kind":          "password_reset",
	})
	if msg.ContentType != "application/json" {
		t.Fatalf("ContentType = %q, want application/json", msg.ContentType)
	}
	if msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("DeliveryMode = %d, want persistent", msg.DeliveryMode)
	}
	if _, ok := msg.Headers[AttrContentType]; ok {
		t.Fatalf("content type leaked into headers")
	}
	if msg.Headers["kind"] != "password_reset" || msg.MessageId != "id-1" {
		t.Fatalf("unexpected publishing: %+v", msg)
	}

	transient := (&RabbitMQClient{}).publishing("id-2", nil, nil)
	if transient.ContentType != "application/octet-stream" || transient.DeliveryMode != amqp.Transient {
		t.Fatalf("unexpected defaults: %+v", transient)
	}
}

func TestDeliveryAttributes(t *testing.T) {
	attrs := deliveryAttributes(amqp.Delivery{
		ContentType: "application/json",
		Headers:     amqp.Table{"kind": "welcome", "attempt": int32(2), "raw": []byte("x")},
	})
	want := map[string]string{
		AttrContentType: "application/json",
		"kind":          "welcome",
		"attempt":       "2",
		"raw":           "x",
	}
	for key, value := range want {
		if attrs[key] != value {
			t.Errorf("attrs[%q] = %q, want %q", key, attrs[key], value)
		}
	}

	if got := deliveryAttributes(amqp.Delivery{}); got != nil {
		t.Fatalf("deliveryAttributes(empty) = %v, want nil", got)
	}
}

func TestSubscriptionName(t *testing.T) {
	if got := subscriptionName("notifications.email", ""); got != "notifications.email-sub" {
		t.Errorf("subscriptionName default = %q", got)
	}
	if got := subscriptionName("notifications.email", ".tail"); got != "notifications.email.tail" {
		t.Errorf("subscriptionName custom = %q", got)
	}
}

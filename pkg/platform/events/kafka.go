package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces events to a single topic keyed by application
// ID so per-application ordering holds within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the brokers and ensures the topic
// exists. Topic creation races with other instances are tolerated.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 3, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			logger.Warn("topic creation", "topic", res.Topic, "error", res.Err)
		}
	}

	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

type wireEvent struct {
	ApplicationID string            `json:"applicationId"`
	Action        string            `json:"action"`
	Actor         string            `json:"actor,omitempty"`
	Detail        map[string]string `json:"detail,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Emit produces fire-and-forget. Delivery failures are logged; the
// store copy written by the worker remains the source of truth.
func (p *KafkaPublisher) Emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(wireEvent{
		ApplicationID: event.ApplicationID.String(),
		Action:        string(event.Action),
		Actor:         event.Actor,
		Detail:        event.Detail,
		Timestamp:     event.Timestamp,
	})
	if err != nil {
		p.logger.Error("encode event", "action", string(event.Action), "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ApplicationID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("produce event",
				"action", string(event.Action),
				"application_id", event.ApplicationID.String(),
				"error", err)
		}
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

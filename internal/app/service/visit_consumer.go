package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/infra/metrics"
	"go.uber.org/zap"
)

// VisitConsumer consumes visit events from NATS JetStream and hands them to
// the recorder.
type VisitConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	recorder *VisitRecorder
}

// NewVisitConsumer creates a new visit event consumer.
func NewVisitConsumer(js nats.JetStreamContext, logger *zap.Logger, recorder *VisitRecorder) *VisitConsumer {
	return &VisitConsumer{js: js, logger: logger, recorder: recorder}
}

// Start ensures the stream and durable consumer exist, then begins pulling.
func (c *VisitConsumer) Start() error {
	_, err := c.js.StreamInfo(model.VisitStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.VisitStreamName,
			Subjects: []string{model.VisitStreamSubject},
			MaxBytes: model.VisitStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.VisitStreamName, model.VisitConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.VisitStreamName, &nats.ConsumerConfig{
			Durable:   model.VisitConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.VisitStreamSubject, model.VisitConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *VisitConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.VisitEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal visit event", zap.Error(err))
				// Malformed payloads can never succeed; drop them.
				msg.Ack()
				continue
			}

			if err := c.recorder.Record(ctx, event); err != nil {
				c.logger.Error("failed to record visit",
					zap.String("id", event.ID),
					zap.String("link_code", event.LinkCode),
					zap.Error(err))
				// Store unavailable: at-most-once recording, drop rather
				// than redeliver forever.
				msg.Ack()
				metrics.VisitsDropped.Inc()
				continue
			}

			c.logger.Debug("visit recorded",
				zap.String("id", event.ID),
				zap.String("link_code", event.LinkCode),
				zap.Time("occurred_at", event.OccurredAt),
			)

			msg.Ack()
			metrics.VisitsRecorded.Inc()
		}
	}
}

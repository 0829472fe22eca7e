package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher ships security events to a Kafka topic keyed by identity so
// one identity's events land in order on one partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects a producer and ensures the audit topic exists.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &KafkaPublisher{client: client, topic: topic, logger: logger}
	if err := p.ensureTopic(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

// ensureTopic creates the audit topic when absent so first deployments do not
// drop events while waiting for ops to provision it.
func (p *KafkaPublisher) ensureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)

	topics, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	if topics.Has(p.topic) {
		return nil
	}

	if _, err := adm.CreateTopic(ctx, 3, 1, nil, p.topic); err != nil {
		return fmt.Errorf("create audit topic %q: %w", p.topic, err)
	}
	return nil
}

// Emit produces asynchronously; delivery failures are logged, never returned,
// so a broker hiccup cannot fail the request being audited.
func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Identity),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Warn("audit event delivery failed", "kind", event.Kind, "error", err)
		}
	})
	return nil
}

// Close flushes buffered records and releases the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil && p.logger != nil {
		p.logger.Warn("audit publisher flush failed", "error", err)
	}
	p.client.Close()
}

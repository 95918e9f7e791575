package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string      `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
	BatchTimeout time.Duration `env:"BATCH_TIMEOUT" envDefault:"10ms"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	Async        bool          `env:"ASYNC" envDefault:"false"`
}

// messageWriter is the part of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events through a kafka-go writer.
type Producer struct {
	writer  messageWriter
	brokers []string
	logger  *slog.Logger
}

// NewProducer creates a producer. No connection is made until the first publish.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		Async:                  cfg.Async,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w, brokers: cfg.Brokers, logger: logger}
}

// Publish writes event to topic, keyed by its aggregate id so every event
// for one user lands on the same partition.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	defer func(start time.Time) {
		producerPublishDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}(time.Now())

	msg, err := encodeMessage(ctx, topic, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		producerPublishErrors.WithLabelValues(topic).Inc()
		return fmt.Errorf("publish event to %s: %w", topic, err)
	}
	producerMessagesPublished.WithLabelValues(topic).Inc()

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
	)
	return nil
}

// encodeMessage serializes event and copies its routing fields plus the
// active trace context into message headers.
func encodeMessage(ctx context.Context, topic string, event *Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	headers := make([]kafka.Header, 0, 5)
	for _, h := range [][2]string{
		{"event_type", event.EventType},
		{"source", event.Source},
		{"correlation_id", event.CorrelationID},
	} {
		if h[1] != "" {
			headers = append(headers, kafka.Header{Key: h[0], Value: []byte(h[1])})
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, NewHeaderCarrier(&headers))

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   value,
		Headers: headers,
	}, nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers succeeds as soon as one broker answers a metadata request.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	var errs []error
	for _, addr := range brokers {
		if err := pingBroker(ctx, addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", errors.Join(errs...))
}

func pingBroker(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Brokers()
	return err
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/tan-res-space/draft-genie-sub004/pkg/kafka"
	"github.com/tan-res-space/draft-genie-sub004/pkg/logger"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// Kafka topics for auth domain events.
var (
	TopicUserRegistered = pkgkafka.Topic("auth", "user_registered")
	TopicUserLoggedIn   = pkgkafka.Topic("auth", "user_logged_in")
)

// AggregateTypeUser is the aggregate type of every auth event.
const AggregateTypeUser = "user"

// SourceGateway identifies events originating from the gateway.
const SourceGateway = "gateway"

// UserRegisteredData is the payload for a user_registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// UserLoggedInData is the payload for a user_logged_in event.
type UserLoggedInData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Publisher is the subset of *pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the gateway.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user_registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.DisplayName,
		Role:  user.Role,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, data)
}

// PublishUserLoggedIn publishes a user_logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	data := UserLoggedInData{
		UserID: user.ID,
		Email:  user.Email,
	}
	return p.publish(ctx, TopicUserLoggedIn, user.ID, data)
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, SourceGateway,
		pkgkafka.Aggregate{Type: AggregateTypeUser, ID: userID}, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
	)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)

	return nil
}

// Nop discards every event. It is used when Kafka is disabled.
type Nop struct{}

// PublishUserRegistered does nothing.
func (Nop) PublishUserRegistered(context.Context, *domain.User) error { return nil }

// PublishUserLoggedIn does nothing.
func (Nop) PublishUserLoggedIn(context.Context, *domain.User) error { return nil }

package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riteshshukladev/wrapper/internal/domain"
	pkgkafka "github.com/riteshshukladev/wrapper/pkg/kafka"
	"github.com/riteshshukladev/wrapper/pkg/logger"
)

// Kafka topic constants for session lifecycle events.
const (
	TopicUserRegistered   = "auth.user.registered"
	TopicSessionStarted   = "auth.session.started"
	TopicSessionRefreshed = "auth.session.refreshed"
	TopicSessionEnded     = "auth.session.ended"
)

// AggregateTypeUser is the aggregate every event is keyed by.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for an auth.user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SessionData is the payload for the auth.session.* events. Tokens are
// never part of it.
type SessionData struct {
	UserID string `json:"user_id"`
}

// Producer publishes session lifecycle events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes an auth.user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, data)
}

// PublishSessionStarted publishes an auth.session.started event.
func (p *Producer) PublishSessionStarted(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicSessionStarted, userID, SessionData{UserID: userID})
}

// PublishSessionRefreshed publishes an auth.session.refreshed event.
func (p *Producer) PublishSessionRefreshed(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicSessionRefreshed, userID, SessionData{UserID: userID})
}

// PublishSessionEnded publishes an auth.session.ended event.
func (p *Producer) PublishSessionEnded(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicSessionEnded, userID, SessionData{UserID: userID})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
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

func (Nop) PublishUserRegistered(context.Context, *domain.User) error { return nil }
func (Nop) PublishSessionStarted(context.Context, string) error       { return nil }
func (Nop) PublishSessionRefreshed(context.Context, string) error     { return nil }
func (Nop) PublishSessionEnded(context.Context, string) error         { return nil }

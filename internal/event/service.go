package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/mq"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/validator"
)

// Service consumes stock events.
type Service struct {
	logger     *slog.Logger
	validator  validator.Validator
	mqConsumer mq.Consumer
}

// New creates a new event service.
func New(
	logger *slog.Logger,
	validator validator.Validator,
	mqConsumer mq.Consumer,
) *Service {
	return &Service{
		logger:     logger.With(slog.String("service", "event")),
		validator:  validator,
		mqConsumer: mqConsumer,
	}
}

type CleanupFunc func()

func (s *Service) Run(ctx context.Context) (CleanupFunc, error) {
	if err := s.mqConsumer.RegisterHandler(TopicStockBorrowed, jsonHandler(s, s.handleStockBorrowedEvent)); err != nil {
		return nil, fmt.Errorf("register stock borrowed event handler: %w", err)
	}

	if err := s.mqConsumer.RegisterHandler(TopicStockReturned, jsonHandler(s, s.handleStockReturnedEvent)); err != nil {
		return nil, fmt.Errorf("register stock returned event handler: %w", err)
	}

	mqCleanup, err := s.mqConsumer.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run mq consumer: %w", err)
	}

	return CleanupFunc(mqCleanup), nil
}

// jsonHandler decodes and validates the payload before calling handle.
// Events failing validation are dropped with a warning since redelivery cannot fix them.
func jsonHandler[T any](s *Service, handle func(context.Context, T) error) mq.HandlerFunc {
	return func(ctx context.Context, topic string, payload []byte) error {
		var ev T
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("unmarshal %s event: %w", topic, err)
		}

		if err := s.validator.Validate(ev); err != nil {
			if validator.IsValidationError(err) {
				s.logger.WarnContext(ctx, "dropping invalid event",
					slog.String("topic", topic),
					slog.Any("error", err),
				)
				return nil
			}
			return fmt.Errorf("validate %s event: %w", topic, err)
		}

		if err := handle(ctx, ev); err != nil {
			return fmt.Errorf("handle %s event: %w", topic, err)
		}

		return nil
	}
}

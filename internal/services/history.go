//go:generate go run go.uber.org/mock/mockgen -source=history.go -destination=../mocks/mock_message_store.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/samber/lo"
)

// MessageStore is the append-only persisted log behind the relay.
// Implementations assign the message ID and a strictly increasing timestamp.
type MessageStore interface {
	// Append writes a new immutable record and returns it as stored.
	Append(ctx context.Context, msg models.Message) (models.Message, error)

	// Recent returns up to limit most recently appended messages, newest first.
	Recent(ctx context.Context, limit int) ([]models.Message, error)

	// Empty reports whether the log holds no record at all.
	Empty(ctx context.Context) (bool, error)
}

// HistoryService mediates between the relay and the message store.
// Every store call is bounded by timeout, and any failure, including the
// timeout, surfaces as a *models.PersistenceError.
type HistoryService struct {
	store   MessageStore
	log     *slog.Logger
	timeout time.Duration
	limit   int
	welcome models.Message
}

// NewHistoryService creates a HistoryService.
//   - limit: size of the history window sent to new connections
//   - timeout: bound applied to each store call
//   - welcome: record seeded into an empty log
func NewHistoryService(store MessageStore, log *slog.Logger, limit int, timeout time.Duration, welcome models.Message) *HistoryService {
	return &HistoryService{
		store:   store,
		log:     log,
		timeout: timeout,
		limit:   limit,
		welcome: welcome,
	}
}

// Limit returns the configured history window size.
func (s *HistoryService) Limit() int {
	return s.limit
}

// Append persists a chat message. The caller must not broadcast it unless
// the returned error is nil.
func (s *HistoryService) Append(ctx context.Context, sender, body string) (models.Message, error) {
	stored, err := bounded(ctx, s.timeout, func(ctx context.Context) (models.Message, error) {
		return s.store.Append(ctx, models.Message{Sender: sender, Body: body})
	})
	if err != nil {
		return models.Message{}, &models.PersistenceError{Op: "append", Err: err}
	}
	return stored, nil
}

// FetchRecent returns up to limit most recent messages in ascending timestamp order.
func (s *HistoryService) FetchRecent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}

	messages, err := bounded(ctx, s.timeout, func(ctx context.Context) ([]models.Message, error) {
		return s.store.Recent(ctx, limit)
	})
	if err != nil {
		return nil, &models.PersistenceError{Op: "fetch recent", Err: err}
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}

	// The store hands back newest first
	ascending := make([]models.Message, len(messages))
	for i, msg := range messages {
		ascending[len(messages)-1-i] = msg
	}
	return ascending, nil
}

// BootstrapIfEmpty appends the welcome record when the log holds nothing.
// The check and the append are separate calls, so two cold starts racing
// may both seed. Returns whether a seed was written.
func (s *HistoryService) BootstrapIfEmpty(ctx context.Context) (bool, error) {
	empty, err := bounded(ctx, s.timeout, s.store.Empty)
	if err != nil {
		return false, &models.PersistenceError{Op: "empty check", Err: err}
	}
	if !empty {
		return false, nil
	}

	_, err = bounded(ctx, s.timeout, func(ctx context.Context) (models.Message, error) {
		return s.store.Append(ctx, s.welcome)
	})
	if err != nil {
		return false, &models.PersistenceError{Op: "bootstrap", Err: err}
	}
	s.log.Info("Seeded empty history", "sender", s.welcome.Sender)
	return true, nil
}

// Window bootstraps the log if needed and returns the history window for a
// joining connection. Failures degrade to an empty window so a join is never blocked.
func (s *HistoryService) Window(ctx context.Context) []models.Message {
	if _, err := s.BootstrapIfEmpty(ctx); err != nil {
		s.log.Warn("History bootstrap failed", "error", err)
	}

	messages, err := s.FetchRecent(ctx, s.limit)
	if err != nil {
		s.log.Warn("History fetch failed, sending empty window", "error", err)
		return []models.Message{}
	}
	return messages
}

// Payloads converts messages to their outbound wire form.
func Payloads(messages []models.Message) []models.ChatMessagePayload {
	return lo.Map(messages, func(msg models.Message, _ int) models.ChatMessagePayload {
		return models.NewChatMessagePayload(msg)
	})
}

// bounded runs a store call under timeout. Once the deadline passes the call
// fails with the context error, even if the store ignores ctx and later succeeds.
func bounded[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := call(ctx)
		done <- result{value: value, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, r.err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return r.value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

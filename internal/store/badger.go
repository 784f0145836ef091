package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const badgerPrefix = "msg:"

// BadgerStore persists the history log in BadgerDB.
type BadgerStore struct {
	db    *badger.DB
	log   *slog.Logger
	clock *Clock
}

type badgerRecord struct {
	ID     string `cbor:"1,keyasint"`
	Sender string `cbor:"2,keyasint"`
	Body   string `cbor:"3,keyasint"`
	At     int64  `cbor:"4,keyasint"`
}

// NewBadgerStore wraps an open Badger database. The clock is advanced past
// the newest stored message so timestamps keep increasing across restarts.
func NewBadgerStore(db *badger.DB, log *slog.Logger) (*BadgerStore, error) {
	s := &BadgerStore{db: db, log: log, clock: NewClock()}
	latest, err := s.Recent(context.Background(), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest message: %w", err)
	}
	if len(latest) == 1 {
		s.clock.Observe(latest[0].Timestamp)
	}
	return s, nil
}

// Append persists a message.
// The key is formatted as "msg:{timestamp_padded}:{uuid}" so that a prefix
// scan returns messages in timestamp order (19 digit zero padding keeps the
// lexicographical order equal to the numeric one).
func (s *BadgerStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	msg.ID = uuid.New().String()
	msg.Timestamp = s.clock.Next()

	key := fmt.Sprintf("%s%019d:%s", badgerPrefix, msg.Timestamp.UnixNano(), msg.ID)
	value, err := cbor.Marshal(badgerRecord{
		ID:     msg.ID,
		Sender: msg.Sender,
		Body:   msg.Body,
		At:     msg.Timestamp.UnixNano(),
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return models.Message{}, err
	}
	s.log.Debug("Message persisted", "key", key)
	return msg, nil
}

// Recent scans the prefix backwards from the newest key and stops after limit messages.
func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0)
	if limit <= 0 {
		return messages, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Start past the largest possible timestamp and walk back
		seekKey := append([]byte(badgerPrefix), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var record badgerRecord
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &record)
			})
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, models.Message{
				ID:        record.ID,
				Sender:    record.Sender,
				Body:      record.Body,
				Timestamp: time.Unix(0, record.At).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Empty reports whether any key exists under the message prefix.
func (s *BadgerStore) Empty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	empty := true
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(prefix)
		empty = !it.ValidForPrefix(prefix)
		return nil
	})
	return empty, err
}

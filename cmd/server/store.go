package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adi-253/parley/backend/internal/config"
	"github.com/adi-253/parley/backend/internal/services"
	"github.com/adi-253/parley/backend/internal/store"
	"github.com/adi-253/parley/backend/internal/supabase"
	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// openStore opens the history log selected by STORE_DRIVER. The returned
// close function releases the backend and is never nil.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (services.MessageStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemoryStore(), noop, nil

	case config.DriverBadger:
		db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		s, err := store.NewBadgerStore(db, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case config.DriverSQLite:
		s, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		disconnect := func() error { return client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			_ = disconnect()
			return nil, nil, fmt.Errorf("mongo ping failed: %w", err)
		}
		s, err := store.NewMongoStore(ctx, client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err != nil {
			_ = disconnect()
			return nil, nil, err
		}
		return s, disconnect, nil

	case config.DriverSupabase:
		client := supabase.NewClient(cfg)
		if err := client.ObserveLatest(ctx); err != nil {
			return nil, nil, fmt.Errorf("supabase unreachable: %w", err)
		}
		return client, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/services"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func modelsMessage(sender, body string) models.Message {
	return models.Message{Sender: sender, Body: body}
}

// runStoreContract exercises the behaviour every MessageStore backend shares.
func runStoreContract(t *testing.T, store services.MessageStore) {
	req := require.New(t)
	ctx := context.Background()

	empty, err := store.Empty(ctx)
	req.NoError(err)
	req.True(empty)

	recent, err := store.Recent(ctx, 5)
	req.NoError(err)
	req.Empty(recent)

	var appended []string
	var last time.Time
	for _, author := range []string{"Alice", "Bob", "Clara"} {
		stored, err := store.Append(ctx, modelsMessage(author, "hello from "+author))
		req.NoError(err)
		req.NotEmpty(stored.ID)
		req.True(stored.Timestamp.After(last), "timestamps must strictly increase")
		last = stored.Timestamp
		appended = append(appended, stored.ID)
	}

	empty, err = store.Empty(ctx)
	req.NoError(err)
	req.False(empty)

	recent, err = store.Recent(ctx, 2)
	req.NoError(err)
	req.Len(recent, 2)
	req.Equal("Clara", recent[0].Sender)
	req.Equal("Bob", recent[1].Sender)
	req.Equal(appended[2], recent[0].ID)
	req.True(recent[0].Timestamp.After(recent[1].Timestamp))

	recent, err = store.Recent(ctx, 10)
	req.NoError(err)
	req.Len(recent, 3)
	req.Equal("hello from Alice", recent[2].Body)

	recent, err = store.Recent(ctx, 0)
	req.NoError(err)
	req.Empty(recent)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Append(cancelled, modelsMessage("Dan", "too late"))
	req.Error(err)
}

func Test_Memory_Store_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func Test_Badger_Store_Contract(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	store, err := NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)
	runStoreContract(t, store)
}

func Test_Badger_Store_Keeps_Order_Across_Reopen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelError)

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store, err := NewBadgerStore(db, log)
	req.NoError(err)
	first, err := store.Append(ctx, modelsMessage("Alice", "before restart"))
	req.NoError(err)
	req.NoError(db.Close())

	db, err = badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	store, err = NewBadgerStore(db, log)
	req.NoError(err)

	empty, err := store.Empty(ctx)
	req.NoError(err)
	req.False(empty)

	second, err := store.Append(ctx, modelsMessage("Bob", "after restart"))
	req.NoError(err)
	req.True(second.Timestamp.After(first.Timestamp))

	recent, err := store.Recent(ctx, 5)
	req.NoError(err)
	req.Len(recent, 2)
	req.Equal(second.ID, recent[0].ID)
	req.Equal(first.ID, recent[1].ID)
}

func Test_SQLite_Store_Contract(t *testing.T) {
	req := require.New(t)
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	req.NoError(err)
	defer store.Close()

	runStoreContract(t, store)
}

func Test_SQLite_Store_Reopen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenSQLite(path)
	req.NoError(err)
	first, err := store.Append(ctx, modelsMessage("Alice", "persisted"))
	req.NoError(err)
	req.NoError(store.Close())

	store, err = OpenSQLite(path)
	req.NoError(err)
	defer store.Close()

	recent, err := store.Recent(ctx, 1)
	req.NoError(err)
	req.Len(recent, 1)
	req.Equal(first.ID, recent[0].ID)
	req.True(first.Timestamp.Equal(recent[0].Timestamp))
}

// Runs only against a real server, e.g. MONGO_TEST_URI=mongodb://localhost:27017
func Test_Mongo_Store_Contract(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	req := require.New(t)
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	req.NoError(err)
	defer client.Disconnect(ctx)

	collection := client.Database("parley_test").Collection("messages_" + time.Now().Format("150405.000000"))
	defer collection.Drop(ctx)

	store, err := NewMongoStore(ctx, collection)
	req.NoError(err)
	runStoreContract(t, store)
}

func Test_Clock_Is_Strictly_Increasing(t *testing.T) {
	req := require.New(t)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &Clock{now: func() time.Time { return frozen }}

	a := clock.Next()
	b := clock.Next()
	req.True(b.After(a))

	clock.Observe(frozen.Add(time.Hour))
	c := clock.Next()
	req.True(c.After(frozen.Add(time.Hour)))
}

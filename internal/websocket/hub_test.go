package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adi-253/parley/backend/internal/mocks"
	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/presence"
	"github.com/adi-253/parley/backend/internal/services"
	"github.com/adi-253/parley/backend/internal/store"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var welcome = models.Message{Sender: "Parley", Body: "Welcome to the chat!"}

func newTestHub(t *testing.T, messageStore services.MessageStore) *Hub {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	history := services.NewHistoryService(messageStore, log, 20, time.Second, welcome)
	hub := NewHub(history, presence.NewRegistry(), log, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

// connect opens a client without a transport; frames are read from its send queue.
func connect(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(hub, nil)
	require.True(t, hub.Connect(client))
	return client
}

func next(t *testing.T, client *Client) models.Envelope {
	t.Helper()
	select {
	case frame, ok := <-client.send:
		require.True(t, ok, "send queue closed")
		var envelope models.Envelope
		require.NoError(t, json.Unmarshal(frame, &envelope))
		return envelope
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return models.Envelope{}
	}
}

func nextUsers(t *testing.T, client *Client) []string {
	t.Helper()
	envelope := next(t, client)
	require.Equal(t, models.EventActiveUsersList, envelope.Type)
	var payload models.ActiveUsersPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	return payload.Users
}

func nextChat(t *testing.T, client *Client) models.ChatMessagePayload {
	t.Helper()
	envelope := next(t, client)
	require.Equal(t, models.EventChatMessage, envelope.Type)
	var payload models.ChatMessagePayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	return payload
}

func nextHistory(t *testing.T, client *Client) models.HistoricalMessagesPayload {
	t.Helper()
	envelope := next(t, client)
	require.Equal(t, models.EventHistoricalMessages, envelope.Type)
	var payload models.HistoricalMessagesPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	return payload
}

func identify(t *testing.T, hub *Hub, client *Client, name string) {
	t.Helper()
	require.True(t, hub.submit(client, inboundEvent{
		Type:     models.EventIdentify,
		Identify: models.IdentifyPayload{DisplayName: name},
	}))
}

func chat(t *testing.T, hub *Hub, client *Client, sender, body string) {
	t.Helper()
	require.True(t, hub.submit(client, inboundEvent{
		Type: models.EventChat,
		Chat: models.ChatPayload{Sender: sender, Body: body},
	}))
}

func leave(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	require.True(t, hub.submit(client, inboundEvent{Type: models.EventLeave}))
}

func Test_Presence_And_Chat_Scenario(t *testing.T) {
	req := require.New(t)
	memory := store.NewMemoryStore()
	hub := newTestHub(t, memory)

	a := connect(t, hub)
	history := nextHistory(t, a)
	req.Equal(models.OrderAscending, history.Order)
	req.Len(history.Messages, 1)
	req.Equal(welcome.Body, history.Messages[0].Message)
	// Presence is broadcast before the new connection identifies
	req.Empty(nextUsers(t, a))

	identify(t, hub, a, "alice")
	req.Equal([]string{"alice"}, nextUsers(t, a))

	b := connect(t, hub)
	nextHistory(t, b)
	req.Equal([]string{"alice"}, nextUsers(t, b))
	req.Equal([]string{"alice"}, nextUsers(t, a))

	identify(t, hub, b, "bob")
	req.ElementsMatch([]string{"alice", "bob"}, nextUsers(t, a))
	req.ElementsMatch([]string{"alice", "bob"}, nextUsers(t, b))

	chat(t, hub, a, "alice", "hi")
	for _, client := range []*Client{a, b} {
		payload := nextChat(t, client)
		req.Equal("alice", payload.Sender)
		req.Equal("hi", payload.Message)
	}
	req.Equal(2, memory.Count())

	hub.Disconnect(a)
	req.Equal([]string{"bob"}, nextUsers(t, b))
	req.Eventually(func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func Test_Fresh_Store_Join_Receives_Seeded_Welcome(t *testing.T) {
	req := require.New(t)
	memory := store.NewMemoryStore()
	hub := newTestHub(t, memory)

	client := connect(t, hub)
	history := nextHistory(t, client)
	req.Len(history.Messages, 1)
	req.Equal(welcome.Sender, history.Messages[0].Sender)

	// A second join does not seed again
	other := connect(t, hub)
	req.Len(nextHistory(t, other).Messages, 1)
	req.Equal(1, memory.Count())
}

func Test_History_Window_Is_Bounded_And_Ascending(t *testing.T) {
	req := require.New(t)
	memory := store.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		_, err := memory.Append(ctx, models.Message{Sender: "alice", Body: string(rune('a' + i%26))})
		req.NoError(err)
	}
	hub := newTestHub(t, memory)

	history := nextHistory(t, connect(t, hub))
	req.Len(history.Messages, 20)
	for i := 1; i < len(history.Messages); i++ {
		req.False(history.Messages[i].Timestamp.Before(history.Messages[i-1].Timestamp))
	}
}

func Test_Chat_Allowed_Before_Identify(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, store.NewMemoryStore())

	a := connect(t, hub)
	nextHistory(t, a)
	nextUsers(t, a)

	chat(t, hub, a, "ghost", "boo")
	payload := nextChat(t, a)
	req.Equal("ghost", payload.Sender)
}

func Test_Persistence_Failure_Suppresses_Broadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMessageStore(ctrl)
	mockStore.EXPECT().Empty(gomock.Any()).Return(false, nil).AnyTimes()
	mockStore.EXPECT().Recent(gomock.Any(), 20).Return([]models.Message{}, nil).AnyTimes()
	mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(models.Message{}, errors.New("write rejected"))

	hub := newTestHub(t, mockStore)
	a := connect(t, hub)
	nextHistory(t, a)
	nextUsers(t, a)
	b := connect(t, hub)
	nextHistory(t, b)
	nextUsers(t, a)
	nextUsers(t, b)

	chat(t, hub, a, "alice", "lost")
	req.Empty(a.send)
	req.Empty(b.send)

	// The relay keeps serving the same connection
	identify(t, hub, a, "alice")
	req.Equal([]string{"alice"}, nextUsers(t, b))
}

func Test_Empty_History_On_Fetch_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMessageStore(ctrl)
	mockStore.EXPECT().Empty(gomock.Any()).Return(false, errors.New("unreachable"))
	mockStore.EXPECT().Recent(gomock.Any(), 20).Return(nil, errors.New("unreachable"))

	hub := newTestHub(t, mockStore)
	client := connect(t, hub)

	history := nextHistory(t, client)
	req.NotNil(history.Messages)
	req.Empty(history.Messages)
	req.Empty(nextUsers(t, client))
}

func Test_Leave_Unidentified_Is_Noop_For_Peers(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, store.NewMemoryStore())

	a := connect(t, hub)
	nextHistory(t, a)
	nextUsers(t, a)
	b := connect(t, hub)
	nextHistory(t, b)
	nextUsers(t, b)
	nextUsers(t, a)

	leave(t, hub, b)
	req.Empty(a.send)

	_, open := <-b.send
	req.False(open, "leave closes the connection")
	req.Equal(StateClosed, b.state)
}

func Test_Leave_Identified_Rebroadcasts_Presence(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, store.NewMemoryStore())

	a := connect(t, hub)
	nextHistory(t, a)
	nextUsers(t, a)
	identify(t, hub, a, "alice")
	nextUsers(t, a)

	b := connect(t, hub)
	nextHistory(t, b)
	nextUsers(t, b)
	nextUsers(t, a)
	identify(t, hub, b, "bob")
	nextUsers(t, a)
	nextUsers(t, b)

	leave(t, hub, b)
	req.Equal([]string{"alice"}, nextUsers(t, a))

	// Events after leave are ignored
	chat(t, hub, b, "bob", "still here?")
	req.Empty(a.send)
}

func Test_Duplicate_Names_Collapse_In_Presence(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, store.NewMemoryStore())

	a := connect(t, hub)
	nextHistory(t, a)
	nextUsers(t, a)
	identify(t, hub, a, "alice")
	nextUsers(t, a)

	twin := connect(t, hub)
	nextHistory(t, twin)
	nextUsers(t, twin)
	nextUsers(t, a)
	identify(t, hub, twin, "alice")
	req.Equal([]string{"alice"}, nextUsers(t, a))

	leave(t, hub, twin)
	req.Equal([]string{"alice"}, nextUsers(t, a))
}

func Test_History_Discarded_When_Connection_Closes_First(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMessageStore(ctrl)
	started := make(chan struct{})
	release := make(chan struct{})
	mockStore.EXPECT().Empty(gomock.Any()).DoAndReturn(func(context.Context) (bool, error) {
		close(started)
		<-release
		return false, nil
	})
	mockStore.EXPECT().Recent(gomock.Any(), 20).Return([]models.Message{}, nil)

	hub := newTestHub(t, mockStore)
	client := NewClient(hub, nil)
	connected := make(chan bool, 1)
	go func() { connected <- hub.Connect(client) }()

	<-started
	hub.Disconnect(client)
	close(release)

	req.True(<-connected)
	_, open := <-client.send
	req.False(open, "no frame may reach a closed connection")
}

// A slow append of one connection must not hold back chat from another;
// broadcast order follows persistence completion.
func Test_Broadcast_Follows_Persistence_Completion(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMessageStore(ctrl)
	aliceStarted := make(chan struct{})
	aliceRelease := make(chan struct{})

	mockStore.EXPECT().Empty(gomock.Any()).Return(false, nil).AnyTimes()
	mockStore.EXPECT().Recent(gomock.Any(), 20).Return([]models.Message{}, nil).AnyTimes()
	mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg models.Message) (models.Message, error) {
			if msg.Sender == "alice" {
				close(aliceStarted)
				<-aliceRelease
			}
			msg.ID = msg.Sender
			msg.Timestamp = time.Now().UTC()
			return msg, nil
		}).Times(2)

	hub := newTestHub(t, mockStore)
	a := connect(t, hub)
	b := connect(t, hub)
	observer := connect(t, hub)
	// drain join traffic: history plus one presence per later join
	for _, client := range []*Client{a, b, observer} {
		for len(client.send) > 0 {
			<-client.send
		}
	}

	aliceDone := make(chan bool, 1)
	go func() {
		aliceDone <- hub.submit(a, inboundEvent{Type: models.EventChat, Chat: models.ChatPayload{Sender: "alice", Body: "slow"}})
	}()
	<-aliceStarted

	chat(t, hub, b, "bob", "fast")
	req.Equal("bob", nextChat(t, observer).Sender)

	close(aliceRelease)
	req.True(<-aliceDone)
	req.Equal("alice", nextChat(t, observer).Sender)
}

func Test_Slow_Client_Is_Dropped(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	history := services.NewHistoryService(store.NewMemoryStore(), log, 20, time.Second, welcome)
	registry := presence.NewRegistry()
	hub := NewHub(history, registry, log, Options{SendBufferSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	slow := connect(t, hub) // history + presence fill its queue
	identify(t, hub, slow, "sleepy")

	// The presence frame did not fit, the client was removed
	req.Eventually(func() bool { return registry.Len() == 0 }, time.Second, 10*time.Millisecond)
	req.Equal(0, hub.ClientCount())
}

func Test_Shutdown_Closes_Clients(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	history := services.NewHistoryService(store.NewMemoryStore(), log, 20, time.Second, welcome)
	hub := NewHub(history, presence.NewRegistry(), log, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := connect(t, hub)
	nextHistory(t, client)
	nextUsers(t, client)

	cancel()
	<-hub.Done()

	_, open := <-client.send
	req.False(open)
	late := NewClient(hub, nil)
	req.False(hub.Connect(late))
	_, open = <-late.send
	req.False(open, "a rejected connection must release its writer")
	req.False(hub.submit(client, inboundEvent{Type: models.EventLeave}))
}

// holdingStore pauses the next Recent call until released, reading the log
// either before or after the pause.
type holdingStore struct {
	*store.MemoryStore
	hold      atomic.Bool
	readFirst bool
	entered   chan struct{}
	release   chan struct{}
}

func newHoldingStore(readFirst bool) *holdingStore {
	return &holdingStore{
		MemoryStore: store.NewMemoryStore(),
		readFirst:   readFirst,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *holdingStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if !s.hold.CompareAndSwap(true, false) {
		return s.MemoryStore.Recent(ctx, limit)
	}
	if s.readFirst {
		messages, err := s.MemoryStore.Recent(ctx, limit)
		close(s.entered)
		<-s.release
		return messages, err
	}
	close(s.entered)
	<-s.release
	return s.MemoryStore.Recent(ctx, limit)
}

// joinWhileChatting connects b with its history fetch held, has a chat
// "hi" during the hold and returns b once its join completed.
func joinWhileChatting(t *testing.T, readFirst bool) *Client {
	t.Helper()
	held := newHoldingStore(readFirst)
	hub := newTestHub(t, held)

	a := connect(t, hub)
	nextHistory(t, a)
	nextUsers(t, a)

	held.hold.Store(true)
	b := NewClient(hub, nil)
	connected := make(chan bool, 1)
	go func() { connected <- hub.Connect(b) }()
	<-held.entered

	chat(t, hub, a, "alice", "hi")
	require.Equal(t, "hi", nextChat(t, a).Message)
	require.Empty(t, b.send, "no live frame before the history window")

	close(held.release)
	require.True(t, <-connected)
	return b
}

func Test_Chat_During_Join_Follows_History(t *testing.T) {
	req := require.New(t)
	b := joinWhileChatting(t, true)

	history := nextHistory(t, b)
	req.Len(history.Messages, 1)
	req.Equal(welcome.Body, history.Messages[0].Message)

	payload := nextChat(t, b)
	req.Equal("alice", payload.Sender)
	req.Equal("hi", payload.Message)
	req.Empty(nextUsers(t, b))
	req.Empty(b.send)
}

func Test_Chat_During_Join_Not_Duplicated(t *testing.T) {
	req := require.New(t)
	b := joinWhileChatting(t, false)

	history := nextHistory(t, b)
	req.Len(history.Messages, 2)
	req.Equal("hi", history.Messages[1].Message)

	// The queued live copy is dropped, presence comes next
	req.Empty(nextUsers(t, b))
	req.Empty(b.send)
}

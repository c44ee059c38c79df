package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"
	"courier/server/internal/pool"
	"courier/server/internal/services"
	"courier/server/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// wsStore backs the messenger with in-memory maps, mirroring the pair
// uniqueness and receipt dedup the SQL layer enforces.
type wsStore struct {
	nextConversationID int
	nextMessageID      int
	pairs              map[string]int
	conversations      map[int]*models.Conversation
	participants       map[int][]int
	messages           map[int][]models.Message
	reads              map[string]bool
}

func newWSStore() *wsStore {
	return &wsStore{
		pairs:         make(map[string]int),
		conversations: make(map[int]*models.Conversation),
		participants:  make(map[int][]int),
		messages:      make(map[int][]models.Message),
		reads:         make(map[string]bool),
	}
}

func (s *wsStore) FindDMByPair(ctx context.Context, userA, userB int) (int, error) {
	return s.pairs[storage.DMPairKey(userA, userB)], nil
}

func (s *wsStore) CreateDM(ctx context.Context, createdBy, friendID int, at time.Time) (*models.Conversation, *models.Message, error) {
	key := storage.DMPairKey(createdBy, friendID)
	if s.pairs[key] != 0 {
		return nil, nil, apperrors.Conflict("Conversation already exist")
	}

	s.nextConversationID++
	conversation := &models.Conversation{
		ID:        s.nextConversationID,
		Type:      models.ConversationTypeDM,
		CreatedBy: createdBy,
		CreatedAt: at,
	}
	s.pairs[key] = conversation.ID
	s.conversations[conversation.ID] = conversation
	s.participants[conversation.ID] = []int{createdBy, friendID}

	greeting, err := s.Append(ctx, conversation.ID, createdBy, models.DefaultGreeting, models.MessageTypeText, at)
	if err != nil {
		return nil, nil, err
	}
	return conversation, greeting, nil
}

func (s *wsStore) ListDMsForUser(ctx context.Context, userID int) ([]models.ConversationListItem, error) {
	return nil, nil
}

func (s *wsStore) Append(ctx context.Context, conversationID, senderID int, content, msgType string, at time.Time) (*models.Message, error) {
	s.nextMessageID++
	message := models.Message{
		ID:             s.nextMessageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		SentAt:         at,
	}
	s.messages[conversationID] = append(s.messages[conversationID], message)
	return &message, nil
}

func (s *wsStore) ListByConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	return s.messages[conversationID], nil
}

func (s *wsStore) GetRefs(ctx context.Context, messageIDs []int) ([]models.MessageRef, error) {
	var refs []models.MessageRef
	for _, id := range messageIDs {
		for conversationID, msgs := range s.messages {
			for _, msg := range msgs {
				if msg.ID == id {
					refs = append(refs, models.MessageRef{ID: id, ConversationID: conversationID})
				}
			}
		}
	}
	return refs, nil
}

func (s *wsStore) ExistingReads(ctx context.Context, messageIDs []int, userID int) (map[int]bool, error) {
	existing := make(map[int]bool)
	for _, id := range messageIDs {
		if s.reads[fmt.Sprintf("%d:%d", id, userID)] {
			existing[id] = true
		}
	}
	return existing, nil
}

func (s *wsStore) BulkCreate(ctx context.Context, receipts []storage.ReadReceipt, at time.Time) (int, error) {
	created := 0
	for _, receipt := range receipts {
		key := fmt.Sprintf("%d:%d", receipt.MessageID, receipt.UserID)
		if !s.reads[key] {
			s.reads[key] = true
			created++
		}
	}
	return created, nil
}

func (s *wsStore) UnreadCount(ctx context.Context, conversationID, userID int) (int, error) {
	fromOthers := 0
	receipts := 0
	for _, msg := range s.messages[conversationID] {
		if msg.SenderID != userID {
			fromOthers++
		}
		if s.reads[fmt.Sprintf("%d:%d", msg.ID, userID)] {
			receipts++
		}
	}
	return fromOthers - receipts, nil
}

func (s *wsStore) UnreadCounts(ctx context.Context, conversationIDs []int, userID int) (map[int]int, error) {
	counts := make(map[int]int, len(conversationIDs))
	for _, conversationID := range conversationIDs {
		count, _ := s.UnreadCount(ctx, conversationID, userID)
		counts[conversationID] = count
	}
	return counts, nil
}

func (s *wsStore) ParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	return s.participants[conversationID], nil
}

func (s *wsStore) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	for _, member := range s.participants[conversationID] {
		if member == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *wsStore) MemberConversations(ctx context.Context, conversationIDs []int, userID int) ([]int, error) {
	var member []int
	for _, conversationID := range conversationIDs {
		if ok, _ := s.IsParticipant(ctx, conversationID, userID); ok {
			member = append(member, conversationID)
		}
	}
	return member, nil
}

func (s *wsStore) Prime(conversationID int, userIDs []int) {}

// wsFriendStore only tracks accepted pairs; the request workflow itself
// is covered by the friend service tests.
type wsFriendStore struct {
	accepted map[string]bool
}

func (f *wsFriendStore) befriend(userA, userB int) {
	f.accepted[storage.DMPairKey(userA, userB)] = true
}

func (f *wsFriendStore) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	return f.accepted[storage.DMPairKey(userA, userB)], nil
}

func (f *wsFriendStore) CreateRequest(ctx context.Context, requesterID, recipientID int, at time.Time) (int, error) {
	return 0, nil
}

func (f *wsFriendStore) ActiveRequestBetween(ctx context.Context, userA, userB int) (*models.FriendRequest, error) {
	return nil, nil
}

func (f *wsFriendStore) GetByID(ctx context.Context, requestID int) (*models.FriendRequest, error) {
	return nil, apperrors.NotFound("friend request not found")
}

func (f *wsFriendStore) UpdateStatus(ctx context.Context, requestID int, status string, at time.Time) error {
	return nil
}

func (f *wsFriendStore) ListIncoming(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	return nil, nil
}

func (f *wsFriendStore) ListOutgoing(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	return nil, nil
}

func (f *wsFriendStore) ListFriends(ctx context.Context, userID int) ([]models.FriendProfile, error) {
	return nil, nil
}

// frameConn records every frame written to it.
type frameConn struct {
	frames []pool.Event
}

func (f *frameConn) WriteJSON(v any) error {
	f.frames = append(f.frames, v.(pool.Event))
	return nil
}

func (f *frameConn) Close() error { return nil }

func (f *frameConn) last(t *testing.T) pool.Event {
	t.Helper()
	require.NotEmpty(t, f.frames)
	return f.frames[len(f.frames)-1]
}

type wsFixture struct {
	handlers *Handlers
	store    *wsStore
	friends  *wsFriendStore
	registry *pool.Registry
	req      *http.Request
}

func newWSFixture(t *testing.T, userIDs ...int) *wsFixture {
	t.Helper()

	store := newWSStore()
	friendStore := &wsFriendStore{accepted: make(map[string]bool)}
	accounts := &memAccounts{users: make(map[int]*models.User)}
	for _, id := range userIDs {
		accounts.users[id] = &models.User{
			ID:    id,
			Name:  fmt.Sprintf("user-%d", id),
			Email: fmt.Sprintf("user-%d@example.com", id),
		}
	}

	clock := clockwork.NewFakeClock()
	users := services.NewUserService(accounts, bcrypt.MinCost, clock)
	friends := services.NewFriendService(friendStore, users, clock)
	registry := pool.NewRegistry()
	delivery := services.NewDelivery(store, registry)
	messenger := services.NewMessengerService(store, store, store, store, users, delivery, clock)

	return &wsFixture{
		handlers: New(messenger, users, friends, registry, []byte("test-secret"), time.Hour, clock),
		store:    store,
		friends:  friendStore,
		registry: registry,
		req:      httptest.NewRequest(http.MethodGet, "/ws", nil),
	}
}

func sendFrame(t *testing.T, fx *wsFixture, client *pool.Client, payload string) {
	t.Helper()
	fx.handlers.handleSendMessage(fx.req, client, json.RawMessage(payload))
}

func frameData(t *testing.T, event pool.Event) map[string]interface{} {
	t.Helper()
	data, ok := event.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestHandleSendMessage(t *testing.T) {
	t.Run("missing fields produce a failure frame", func(t *testing.T) {
		fx := newWSFixture(t, 1, 2)
		conn := &frameConn{}
		client := fx.registry.Register(1, conn)

		sendFrame(t, fx, client, `{"message":"hello"}`)

		event := conn.last(t)
		assert.Equal(t, "send_message_failure", event.RequestType)
		assert.Equal(t, "missing required fields conversationId, messageId, to", frameData(t, event)["error"])
	})

	t.Run("direct send to a non-friend is rejected", func(t *testing.T) {
		fx := newWSFixture(t, 1, 2)
		conn := &frameConn{}
		client := fx.registry.Register(1, conn)

		sendFrame(t, fx, client, `{"to":2,"messageId":"tmp-1","message":"hello"}`)

		event := conn.last(t)
		assert.Equal(t, "send_message_failure", event.RequestType)
		data := frameData(t, event)
		assert.Equal(t, "Destination should be a friend before sending messages", data["error"])
		assert.Equal(t, "tmp-1", data["messageId"])
		assert.Empty(t, fx.store.messages, "nothing persisted")
	})

	t.Run("first direct send creates the conversation and delivers", func(t *testing.T) {
		fx := newWSFixture(t, 1, 2)
		fx.friends.befriend(1, 2)

		senderConn := &frameConn{}
		sender := fx.registry.Register(1, senderConn)
		recipientConn := &frameConn{}
		fx.registry.Register(2, recipientConn)

		sendFrame(t, fx, sender, `{"to":2,"messageId":"tmp-1","message":"hello"}`)

		event := senderConn.last(t)
		assert.Equal(t, "conversation_creation_confirmation", event.RequestType)
		data := frameData(t, event)
		assert.Equal(t, "tmp-1", data["messageId"])
		assert.Equal(t, 1, data["conversationId"])

		delivered := recipientConn.last(t)
		assert.Equal(t, "deliver_message", delivered.RequestType)
	})

	t.Run("second direct send reuses the conversation", func(t *testing.T) {
		fx := newWSFixture(t, 1, 2)
		fx.friends.befriend(1, 2)
		conn := &frameConn{}
		client := fx.registry.Register(1, conn)

		sendFrame(t, fx, client, `{"to":2,"messageId":"tmp-1","message":"hello"}`)
		first := frameData(t, conn.last(t))

		sendFrame(t, fx, client, `{"to":2,"messageId":"tmp-2","message":"again"}`)
		event := conn.last(t)

		assert.Equal(t, "send_message_confirmation", event.RequestType)
		assert.Equal(t, first["conversationId"], frameData(t, event)["conversationId"])
	})

	t.Run("send by conversation id", func(t *testing.T) {
		fx := newWSFixture(t, 1, 2, 3)
		fx.friends.befriend(1, 2)
		conn := &frameConn{}
		client := fx.registry.Register(1, conn)

		sendFrame(t, fx, client, `{"to":2,"messageId":"tmp-1","message":"hello"}`)
		conversationID := frameData(t, conn.last(t))["conversationId"]

		sendFrame(t, fx, client, fmt.Sprintf(`{"conversationId":%d,"messageId":"tmp-2","message":"follow-up"}`, conversationID))
		event := conn.last(t)
		assert.Equal(t, "send_message_confirmation", event.RequestType)

		outsiderConn := &frameConn{}
		outsider := fx.registry.Register(3, outsiderConn)
		sendFrame(t, fx, outsider, fmt.Sprintf(`{"conversationId":%d,"messageId":"tmp-3","message":"intruder"}`, conversationID))

		rejected := outsiderConn.last(t)
		assert.Equal(t, "send_message_failure", rejected.RequestType)
		assert.Equal(t, "Conversation not found", frameData(t, rejected)["error"])
	})
}

func TestHandleMarkRead(t *testing.T) {
	ctx := context.Background()

	fx := newWSFixture(t, 1, 2)
	fx.friends.befriend(1, 2)
	conn := &frameConn{}
	client := fx.registry.Register(1, conn)

	sendFrame(t, fx, client, `{"to":2,"messageId":"tmp-1","message":"hello"}`)
	conversationID := int(frameData(t, conn.last(t))["conversationId"].(int))

	unread, err := fx.store.UnreadCount(ctx, conversationID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, unread, "greeting plus the direct message")

	var messageIDs []int
	for _, msg := range fx.store.messages[conversationID] {
		messageIDs = append(messageIDs, msg.ID)
	}
	payload, err := json.Marshal(map[string]any{"messageIds": messageIDs})
	require.NoError(t, err)

	fx.handlers.handleMarkRead(fx.req, 2, payload)

	unread, err = fx.store.UnreadCount(ctx, conversationID, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)

	t.Run("malformed payload is ignored", func(t *testing.T) {
		fx.handlers.handleMarkRead(fx.req, 2, json.RawMessage(`{"messageIds":`))

		unread, err := fx.store.UnreadCount(ctx, conversationID, 2)
		require.NoError(t, err)
		assert.Zero(t, unread)
	})
}

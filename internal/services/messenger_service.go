package services

import (
	"context"
	"log"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"
	"courier/server/internal/storage"

	"github.com/jonboulle/clockwork"
)

// ConversationStore is the conversation creation/lookup capability the
// orchestrator composes.
type ConversationStore interface {
	FindDMByPair(ctx context.Context, userA, userB int) (int, error)
	CreateDM(ctx context.Context, createdBy, friendID int, at time.Time) (*models.Conversation, *models.Message, error)
	ListDMsForUser(ctx context.Context, userID int) ([]models.ConversationListItem, error)
}

type MessageStore interface {
	Append(ctx context.Context, conversationID, senderID int, content, msgType string, at time.Time) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID int) ([]models.Message, error)
	GetRefs(ctx context.Context, messageIDs []int) ([]models.MessageRef, error)
}

type ReadTracker interface {
	ExistingReads(ctx context.Context, messageIDs []int, userID int) (map[int]bool, error)
	BulkCreate(ctx context.Context, receipts []storage.ReadReceipt, at time.Time) (int, error)
	UnreadCount(ctx context.Context, conversationID, userID int) (int, error)
	UnreadCounts(ctx context.Context, conversationIDs []int, userID int) (map[int]int, error)
}

type ParticipantDirectory interface {
	ParticipantIDs(ctx context.Context, conversationID int) ([]int, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
	MemberConversations(ctx context.Context, conversationIDs []int, userID int) ([]int, error)
	Prime(conversationID int, userIDs []int)
}

// Identity is the external user-resolution capability; the core only
// references users by id.
type Identity interface {
	GetByID(ctx context.Context, userID int) (*models.User, error)
	Profiles(ctx context.Context, userIDs []int) (map[int]models.FriendProfile, error)
}

// ConversationList is the assembled result of ListConversations.
type ConversationList struct {
	Conversations []models.ConversationListItem `json:"conversations"`
	Friends       map[int]models.FriendProfile  `json:"friends"`
}

// MessengerService implements the five messaging operations by composing
// the stores, the participant directory, and the delivery fan-out.
type MessengerService struct {
	conversations ConversationStore
	messages      MessageStore
	reads         ReadTracker
	directory     ParticipantDirectory
	users         Identity
	delivery      *Delivery
	clock         clockwork.Clock
}

func NewMessengerService(
	conversations ConversationStore,
	messages MessageStore,
	reads ReadTracker,
	directory ParticipantDirectory,
	users Identity,
	delivery *Delivery,
	clock clockwork.Clock,
) *MessengerService {
	return &MessengerService{
		conversations: conversations,
		messages:      messages,
		reads:         reads,
		directory:     directory,
		users:         users,
		delivery:      delivery,
		clock:         clock,
	}
}

// StartConversation creates the DM between currentUser and friendID. An
// existing conversation for the pair is a Conflict here: the public API
// treats a duplicate start as a client mistake even though the storage
// layer resolves it idempotently.
func (ms *MessengerService) StartConversation(ctx context.Context, currentUser, friendID int) (*models.ConversationSummary, error) {
	if currentUser == 0 || friendID == 0 {
		return nil, apperrors.InvalidInput("Missing required fields")
	}
	if currentUser == friendID {
		return nil, apperrors.InvalidInput("Cannot start a conversation with yourself")
	}

	sender, err := ms.users.GetByID(ctx, currentUser)
	if err != nil {
		return nil, err
	}
	if _, err := ms.users.GetByID(ctx, friendID); err != nil {
		return nil, err
	}

	existingID, err := ms.conversations.FindDMByPair(ctx, currentUser, friendID)
	if err != nil {
		return nil, err
	}
	if existingID > 0 {
		return nil, apperrors.Conflict("Conversation already exist")
	}

	conversation, greeting, err := ms.conversations.CreateDM(ctx, currentUser, friendID, ms.clock.Now())
	if err != nil {
		return nil, err
	}

	ms.directory.Prime(conversation.ID, []int{currentUser, friendID})

	summary := &models.ConversationSummary{
		ConversationID: conversation.ID,
		ParticipantID:  friendID,
		Type:           conversation.Type,
		LastMessage: &models.LastMessagePreview{
			ID:       greeting.ID,
			Content:  greeting.Content,
			Type:     greeting.Type,
			SenderID: greeting.SenderID,
			SentAt:   greeting.SentAt,
		},
	}

	// best-effort push; the conversation is already durable
	ms.delivery.Notify(ctx, conversation.ID, currentUser, "new_conversation", map[string]interface{}{
		"message": map[string]interface{}{
			"friend": map[string]interface{}{
				"userId": sender.ID,
				"name":   sender.Name,
				"email":  sender.Email,
			},
			"conversation": map[string]interface{}{
				"conversationId": conversation.ID,
				"type":           conversation.Type,
				"participantId":  currentUser,
				"lastMessage":    summary.LastMessage,
			},
			"messageId": greeting.ID,
		},
	})

	return summary, nil
}

// EnsureDM returns the DM conversation for the pair, creating it when
// missing. Unlike StartConversation, an existing conversation is simply
// reused; the websocket direct-send path relies on this.
func (ms *MessengerService) EnsureDM(ctx context.Context, currentUser, friendID int) (int, bool, error) {
	existingID, err := ms.conversations.FindDMByPair(ctx, currentUser, friendID)
	if err != nil {
		return 0, false, err
	}
	if existingID > 0 {
		return existingID, false, nil
	}

	conversation, _, err := ms.conversations.CreateDM(ctx, currentUser, friendID, ms.clock.Now())
	if err != nil {
		// lost a concurrent create for the same pair: the winner's
		// conversation is the one to use
		if apperrors.IsClientError(err) {
			raceID, findErr := ms.conversations.FindDMByPair(ctx, currentUser, friendID)
			if findErr == nil && raceID > 0 {
				return raceID, false, nil
			}
		}
		return 0, false, err
	}

	ms.directory.Prime(conversation.ID, []int{currentUser, friendID})
	return conversation.ID, true, nil
}

// ListConversations returns every DM the user takes part in, with unread
// counts and the friend profiles needed to render the list.
func (ms *MessengerService) ListConversations(ctx context.Context, currentUser int) (*ConversationList, error) {
	if currentUser == 0 {
		return nil, apperrors.InvalidInput("Missing required fields")
	}

	items, err := ms.conversations.ListDMsForUser(ctx, currentUser)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &ConversationList{
			Conversations: []models.ConversationListItem{},
			Friends:       map[int]models.FriendProfile{},
		}, nil
	}

	conversationIDs := make([]int, 0, len(items))
	friendIDs := make([]int, 0, len(items))
	for _, item := range items {
		conversationIDs = append(conversationIDs, item.ConversationID)
		friendIDs = append(friendIDs, item.OtherParticipantID)
	}

	unreads, err := ms.reads.UnreadCounts(ctx, conversationIDs, currentUser)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].UnreadCount = unreads[items[i].ConversationID]
	}

	friends, err := ms.users.Profiles(ctx, friendIDs)
	if err != nil {
		return nil, err
	}

	return &ConversationList{Conversations: items, Friends: friends}, nil
}

// ListMessages returns the ordered message log with a per-viewer unread
// flag. Messages sent by the viewer are never unread; deleted messages
// keep their slot with blank content.
func (ms *MessengerService) ListMessages(ctx context.Context, conversationID, currentUser int) ([]models.MessageView, error) {
	if conversationID == 0 || currentUser == 0 {
		return nil, apperrors.InvalidInput("Missing required fields")
	}

	isParticipant, err := ms.directory.IsParticipant(ctx, conversationID, currentUser)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, apperrors.Forbidden("Conversation does not exist")
	}

	messages, err := ms.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var othersIDs []int
	for _, msg := range messages {
		if msg.SenderID != currentUser {
			othersIDs = append(othersIDs, msg.ID)
		}
	}

	readSet := map[int]bool{}
	if len(othersIDs) > 0 {
		readSet, err = ms.reads.ExistingReads(ctx, othersIDs, currentUser)
		if err != nil {
			return nil, err
		}
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		content := msg.Content
		if msg.IsDeleted {
			content = ""
		}
		views = append(views, models.MessageView{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Content:        content,
			Type:           msg.Type,
			Edited:         msg.Edited,
			IsDeleted:      msg.IsDeleted,
			Unread:         msg.SenderID != currentUser && !readSet[msg.ID],
			SentAt:         msg.SentAt,
		})
	}

	return views, nil
}

// SendMessage appends a message to the conversation and fans it out to
// the other participants. Delivery never gates the returned message: by
// the time Notify runs the write is durable.
func (ms *MessengerService) SendMessage(ctx context.Context, currentUser, conversationID int, content string) (*models.Message, error) {
	if currentUser == 0 || conversationID == 0 || content == "" {
		return nil, apperrors.InvalidInput("Missing required fields")
	}

	isParticipant, err := ms.directory.IsParticipant(ctx, conversationID, currentUser)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, apperrors.NotFound("Conversation not found")
	}

	message, err := ms.messages.Append(ctx, conversationID, currentUser, content, models.MessageTypeText, ms.clock.Now())
	if err != nil {
		return nil, err
	}

	ms.delivery.Notify(ctx, conversationID, currentUser, "deliver_message", map[string]interface{}{
		"message": models.MessageView{
			ID:             message.ID,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			Content:        message.Content,
			Type:           message.Type,
			Unread:         true,
			SentAt:         message.SentAt,
		},
	})

	return message, nil
}

// MarkRead records receipts for the given messages on behalf of the user
// and returns how many were newly created. Re-marking already-read
// messages is a no-op, not an error.
func (ms *MessengerService) MarkRead(ctx context.Context, currentUser int, messageIDs []int) (int, error) {
	if currentUser == 0 || len(messageIDs) == 0 {
		return 0, apperrors.InvalidInput("Missing required fields")
	}

	unique := make([]int, 0, len(messageIDs))
	seen := make(map[int]bool, len(messageIDs))
	for _, id := range messageIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	refs, err := ms.messages.GetRefs(ctx, unique)
	if err != nil {
		return 0, err
	}
	if len(refs) != len(unique) {
		return 0, apperrors.InvalidInput("Request contains some invalid message ids")
	}

	conversationOf := make(map[int]int, len(refs))
	var conversationIDs []int
	seenConversations := make(map[int]bool)
	for _, ref := range refs {
		conversationOf[ref.ID] = ref.ConversationID
		if !seenConversations[ref.ConversationID] {
			seenConversations[ref.ConversationID] = true
			conversationIDs = append(conversationIDs, ref.ConversationID)
		}
	}

	memberOf, err := ms.directory.MemberConversations(ctx, conversationIDs, currentUser)
	if err != nil {
		return 0, err
	}
	if len(memberOf) != len(conversationIDs) {
		return 0, apperrors.Forbidden("User must be part of the conversation")
	}

	existing, err := ms.reads.ExistingReads(ctx, unique, currentUser)
	if err != nil {
		return 0, err
	}

	var receipts []storage.ReadReceipt
	for _, messageID := range unique {
		if existing[messageID] {
			continue
		}
		receipts = append(receipts, storage.ReadReceipt{
			ConversationID: conversationOf[messageID],
			MessageID:      messageID,
			UserID:         currentUser,
		})
	}

	if len(receipts) == 0 {
		return 0, nil
	}

	created, err := ms.reads.BulkCreate(ctx, receipts, ms.clock.Now())
	if err != nil {
		return 0, err
	}

	log.Printf("User %d marked %d messages as read", currentUser, created)
	return created, nil
}

// UnreadCount exposes the advisory unread total for one conversation.
func (ms *MessengerService) UnreadCount(ctx context.Context, conversationID, currentUser int) (int, error) {
	if conversationID == 0 {
		return 0, apperrors.InvalidInput("Missing required fields")
	}
	return ms.reads.UnreadCount(ctx, conversationID, currentUser)
}

package storage

import (
	"context"
	"log"
	"time"

	"courier/server/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// MessageStore appends to the message log and keeps each conversation's
// last-message pointer current. Membership checks belong to the caller.
type MessageStore struct {
	db DB
}

func NewMessageStore(db DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append writes the message row, then moves the conversation's
// last_message_id to it. A failed pointer update only leaves the preview
// stale until the next message, so it is logged rather than surfaced.
func (ms *MessageStore) Append(ctx context.Context, conversationID, senderID int, content, msgType string, at time.Time) (*models.Message, error) {
	insert := psql.
		Insert("messages").
		Columns("conversation_id", "sender_id", "content", "type", "sent_at").
		Values(conversationID, senderID, content, msgType, at).
		Suffix("RETURNING id")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building message insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var messageID int
	if err := ms.db.QueryRow(ctx, sqlStr, args...).Scan(&messageID); err != nil {
		return nil, errors.Wrap(err, "inserting message")
	}

	update := psql.
		Update("conversations").
		Set("last_message_id", messageID).
		Where(squirrel.Eq{"id": conversationID})

	sqlStr, args, err = update.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building last message update")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	if _, err := ms.db.Exec(ctx, sqlStr, args...); err != nil {
		log.Printf("Error updating last message for conversation %d (stale preview until next message): %v", conversationID, err)
	}

	return &models.Message{
		ID:             messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		SentAt:         at,
	}, nil
}

// ListByConversation returns the full ordered message log of a
// conversation, oldest first, ties broken by id.
func (ms *MessageStore) ListByConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	query := psql.
		Select("id", "conversation_id", "sender_id", "content", "type", "edited", "is_deleted", "sent_at").
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("sent_at ASC", "id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building messages query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := ms.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing messages")
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msg.Type, &msg.Edited, &msg.IsDeleted, &msg.SentAt)
		if err != nil {
			return nil, errors.Wrap(err, "scanning message row")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating message rows")
	}

	return messages, nil
}

// GetRefs resolves which conversation each of the given message ids
// belongs to. Unknown ids are simply absent from the result.
func (ms *MessageStore) GetRefs(ctx context.Context, messageIDs []int) ([]models.MessageRef, error) {
	query := psql.
		Select("id", "conversation_id").
		From("messages").
		Where(squirrel.Eq{"id": messageIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building message refs query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := ms.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching message refs")
	}
	defer rows.Close()

	var refs []models.MessageRef
	for rows.Next() {
		var ref models.MessageRef
		if err := rows.Scan(&ref.ID, &ref.ConversationID); err != nil {
			return nil, errors.Wrap(err, "scanning message ref")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating message refs")
	}

	return refs, nil
}

package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ConversationStore owns the conversations table and the dedup-create
// path for DM conversations.
type ConversationStore struct {
	db DB
}

func NewConversationStore(db DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// DMPairKey is the deterministic key of an unordered user pair. The
// unique index on it makes concurrent creates for the same pair collide
// at the storage layer instead of racing past a check.
func DMPairKey(userA, userB int) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

// FindDMByPair returns the id of the DM conversation whose participant
// set equals {userA, userB}, or 0 when none exists.
func (cs *ConversationStore) FindDMByPair(ctx context.Context, userA, userB int) (int, error) {
	query := psql.
		Select("conversation_id").
		From("conversation_participants").
		Where(squirrel.Eq{"user_id": []int{userA, userB}}).
		GroupBy("conversation_id").
		Having("COUNT(user_id) = 2")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building pair query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return 0, errors.Wrap(err, "finding pair conversations")
	}
	defer rows.Close()

	var conversationIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return 0, errors.Wrap(err, "scanning conversation id")
		}
		conversationIDs = append(conversationIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "iterating pair conversations")
	}

	if len(conversationIDs) == 0 {
		return 0, nil
	}

	dmQuery := psql.
		Select("id").
		From("conversations").
		Where(squirrel.Eq{
			"id":   conversationIDs,
			"type": models.ConversationTypeDM,
		}).
		OrderBy("id").
		Limit(1)

	sqlStr, args, err = dmQuery.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building dm query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var dmID int
	err = cs.db.QueryRow(ctx, sqlStr, args...).Scan(&dmID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, errors.Wrap(err, "selecting dm conversation")
	}

	return dmID, nil
}

// CreateDM creates a DM conversation together with both participant rows
// and the default greeting message in a single transaction, so a failure
// can never leave a one-sided conversation behind.
func (cs *ConversationStore) CreateDM(ctx context.Context, createdBy, friendID int, at time.Time) (*models.Conversation, *models.Message, error) {
	tx, err := cs.db.Begin(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	insertConv := psql.
		Insert("conversations").
		Columns("type", "created_by", "dm_pair_key", "created_at").
		Values(models.ConversationTypeDM, createdBy, DMPairKey(createdBy, friendID), at).
		Suffix("RETURNING id")

	sqlStr, args, err := insertConv.ToSql()
	if err != nil {
		return nil, nil, errors.Wrap(err, "building conversation insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var conversationID int
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&conversationID); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, apperrors.Conflict("Conversation already exist")
		}
		return nil, nil, errors.Wrap(err, "inserting conversation")
	}

	insertParticipants := psql.
		Insert("conversation_participants").
		Columns("conversation_id", "user_id", "role", "joined_at").
		Values(conversationID, createdBy, models.ParticipantRoleUser, at).
		Values(conversationID, friendID, models.ParticipantRoleUser, at)

	sqlStr, args, err = insertParticipants.ToSql()
	if err != nil {
		return nil, nil, errors.Wrap(err, "building participants insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return nil, nil, errors.Wrap(err, "inserting participants")
	}

	insertGreeting := psql.
		Insert("messages").
		Columns("conversation_id", "sender_id", "content", "type", "sent_at").
		Values(conversationID, createdBy, models.DefaultGreeting, models.MessageTypeText, at).
		Suffix("RETURNING id")

	sqlStr, args, err = insertGreeting.ToSql()
	if err != nil {
		return nil, nil, errors.Wrap(err, "building greeting insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var messageID int
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&messageID); err != nil {
		return nil, nil, errors.Wrap(err, "inserting greeting message")
	}

	updateLast := psql.
		Update("conversations").
		Set("last_message_id", messageID).
		Where(squirrel.Eq{"id": conversationID})

	sqlStr, args, err = updateLast.ToSql()
	if err != nil {
		return nil, nil, errors.Wrap(err, "building last message update")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return nil, nil, errors.Wrap(err, "setting last message")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "committing conversation")
	}

	log.Printf("Conversation %d created by user %d with user %d", conversationID, createdBy, friendID)

	conversation := &models.Conversation{
		ID:            conversationID,
		Type:          models.ConversationTypeDM,
		CreatedBy:     createdBy,
		LastMessageID: &messageID,
		CreatedAt:     at,
	}
	greeting := &models.Message{
		ID:             messageID,
		ConversationID: conversationID,
		SenderID:       createdBy,
		Content:        models.DefaultGreeting,
		Type:           models.MessageTypeText,
		SentAt:         at,
	}
	return conversation, greeting, nil
}

// ListDMsForUser returns one row per DM conversation of the user, joined
// with the other participant and the last message preview.
func (cs *ConversationStore) ListDMsForUser(ctx context.Context, userID int) ([]models.ConversationListItem, error) {
	query := psql.
		Select("c.id", "c.type", "other.user_id",
			"m.id", "m.content", "m.type", "m.sender_id", "m.sent_at").
		From("conversations c").
		Join("conversation_participants own ON own.conversation_id = c.id").
		Join("conversation_participants other ON other.conversation_id = c.id AND other.user_id <> own.user_id").
		LeftJoin("messages m ON m.id = c.last_message_id").
		Where(squirrel.Eq{
			"own.user_id": userID,
			"c.type":      models.ConversationTypeDM,
		}).
		OrderBy("m.sent_at DESC NULLS LAST")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building conversation list query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing conversations")
	}
	defer rows.Close()

	var items []models.ConversationListItem
	for rows.Next() {
		var item models.ConversationListItem
		var lastID, lastSender *int
		var lastContent, lastType *string
		var lastSentAt *time.Time

		err := rows.Scan(&item.ConversationID, &item.Type, &item.OtherParticipantID,
			&lastID, &lastContent, &lastType, &lastSender, &lastSentAt)
		if err != nil {
			return nil, errors.Wrap(err, "scanning conversation row")
		}

		if lastID != nil {
			item.LastMessage = &models.LastMessagePreview{
				ID:       *lastID,
				Content:  *lastContent,
				Type:     *lastType,
				SenderID: *lastSender,
				SentAt:   *lastSentAt,
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating conversation rows")
	}

	return items, nil
}

package storage

import (
	"context"
	"log"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// ReadStore records per-user read receipts and computes unread counts
// with the subtraction formula: messages from others minus the user's
// receipts in the conversation. The two aggregates may race with new
// arrivals; unread counts are advisory.
type ReadStore struct {
	db DB
}

func NewReadStore(db DB) *ReadStore {
	return &ReadStore{db: db}
}

// ExistingReads returns the subset of messageIDs that already carry a
// receipt for the user.
func (rs *ReadStore) ExistingReads(ctx context.Context, messageIDs []int, userID int) (map[int]bool, error) {
	query := psql.
		Select("message_id").
		From("message_reads").
		Where(squirrel.Eq{
			"message_id": messageIDs,
			"user_id":    userID,
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building existing reads query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := rs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching existing reads")
	}
	defer rows.Close()

	existing := make(map[int]bool)
	for rows.Next() {
		var messageID int
		if err := rows.Scan(&messageID); err != nil {
			return nil, errors.Wrap(err, "scanning read row")
		}
		existing[messageID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating read rows")
	}

	return existing, nil
}

// ReadReceipt is one pending receipt insert.
type ReadReceipt struct {
	ConversationID int
	MessageID      int
	UserID         int
}

// BulkCreate inserts receipts for the given messages. Duplicates lose to
// the unique (message_id, user_id) constraint and count as no-ops, which
// keeps the concurrent mark-read window harmless.
func (rs *ReadStore) BulkCreate(ctx context.Context, receipts []ReadReceipt, at time.Time) (int, error) {
	if len(receipts) == 0 {
		return 0, nil
	}

	insert := psql.
		Insert("message_reads").
		Columns("conversation_id", "message_id", "user_id", "read", "updated_at")
	for _, receipt := range receipts {
		insert = insert.Values(receipt.ConversationID, receipt.MessageID, receipt.UserID, true, at)
	}
	insert = insert.Suffix("ON CONFLICT (message_id, user_id) DO NOTHING")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building receipts insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	tag, err := rs.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, errors.Wrap(err, "inserting receipts")
	}

	created := int(tag.RowsAffected())
	log.Printf("Created %d read receipts for user %d", created, receipts[0].UserID)
	return created, nil
}

// UnreadCount computes the advisory unread total for one conversation.
func (rs *ReadStore) UnreadCount(ctx context.Context, conversationID, userID int) (int, error) {
	messagesQuery := psql.
		Select("COUNT(*)").
		From("messages").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.NotEq{"sender_id": userID},
		})

	sqlStr, args, err := messagesQuery.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building message count query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var messageCount int
	if err := rs.db.QueryRow(ctx, sqlStr, args...).Scan(&messageCount); err != nil {
		return 0, errors.Wrap(err, "counting messages")
	}

	readsQuery := psql.
		Select("COUNT(*)").
		From("message_reads").
		Where(squirrel.Eq{
			"conversation_id": conversationID,
			"user_id":         userID,
		})

	sqlStr, args, err = readsQuery.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building read count query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var readCount int
	if err := rs.db.QueryRow(ctx, sqlStr, args...).Scan(&readCount); err != nil {
		return 0, errors.Wrap(err, "counting reads")
	}

	return messageCount - readCount, nil
}

// UnreadCounts batches the subtraction across conversations with two
// grouped aggregates instead of a query per conversation.
func (rs *ReadStore) UnreadCounts(ctx context.Context, conversationIDs []int, userID int) (map[int]int, error) {
	counts := make(map[int]int, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	messagesQuery := psql.
		Select("conversation_id", "COUNT(*)").
		From("messages").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationIDs},
			squirrel.NotEq{"sender_id": userID},
		}).
		GroupBy("conversation_id")

	sqlStr, args, err := messagesQuery.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building grouped message count query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := rs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "counting grouped messages")
	}
	defer rows.Close()

	for rows.Next() {
		var conversationID, count int
		if err := rows.Scan(&conversationID, &count); err != nil {
			return nil, errors.Wrap(err, "scanning grouped message count")
		}
		counts[conversationID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating grouped message counts")
	}

	readsQuery := psql.
		Select("conversation_id", "COUNT(*)").
		From("message_reads").
		Where(squirrel.Eq{
			"conversation_id": conversationIDs,
			"user_id":         userID,
		}).
		GroupBy("conversation_id")

	sqlStr, args, err = readsQuery.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building grouped read count query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	readRows, err := rs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "counting grouped reads")
	}
	defer readRows.Close()

	for readRows.Next() {
		var conversationID, count int
		if err := readRows.Scan(&conversationID, &count); err != nil {
			return nil, errors.Wrap(err, "scanning grouped read count")
		}
		counts[conversationID] -= count
	}
	if err := readRows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating grouped read counts")
	}

	return counts, nil
}

package storage

import (
	"context"
	"log"

	"github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// ParticipantDirectory resolves conversation membership. Participant sets
// of this core are immutable after creation, so lookups sit behind an LRU
// cache primed at conversation creation.
type ParticipantDirectory struct {
	db    Querier
	cache *lru.Cache[int, []int]
}

func NewParticipantDirectory(db Querier, cacheSize int) (*ParticipantDirectory, error) {
	cache, err := lru.New[int, []int](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating participants cache")
	}
	return &ParticipantDirectory{db: db, cache: cache}, nil
}

// ParticipantIDs returns the user ids of a conversation's participants.
func (pd *ParticipantDirectory) ParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	if cached, ok := pd.cache.Get(conversationID); ok {
		return cached, nil
	}

	query := psql.
		Select("user_id").
		From("conversation_participants").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("user_id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building participants query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := pd.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching participants")
	}
	defer rows.Close()

	var userIDs []int
	for rows.Next() {
		var userID int
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Wrap(err, "scanning participant row")
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating participant rows")
	}

	// an empty set means the conversation does not exist; keep it uncached
	if len(userIDs) > 0 {
		pd.cache.Add(conversationID, userIDs)
	}
	return userIDs, nil
}

// Prime seeds the cache right after conversation creation.
func (pd *ParticipantDirectory) Prime(conversationID int, userIDs []int) {
	pd.cache.Add(conversationID, userIDs)
}

// IsParticipant reports whether the user belongs to the conversation.
func (pd *ParticipantDirectory) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	participants, err := pd.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, id := range participants {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// MemberConversations returns which of the given conversations have the
// user as a participant; one query for the whole batch.
func (pd *ParticipantDirectory) MemberConversations(ctx context.Context, conversationIDs []int, userID int) ([]int, error) {
	query := psql.
		Select("conversation_id").
		From("conversation_participants").
		Where(squirrel.Eq{
			"conversation_id": conversationIDs,
			"user_id":         userID,
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building membership query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := pd.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching memberships")
	}
	defer rows.Close()

	var memberOf []int
	for rows.Next() {
		var conversationID int
		if err := rows.Scan(&conversationID); err != nil {
			return nil, errors.Wrap(err, "scanning membership row")
		}
		memberOf = append(memberOf, conversationID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating membership rows")
	}

	return memberOf, nil
}

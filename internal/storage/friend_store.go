package storage

import (
	"context"
	"log"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type FriendStore struct {
	db DB
}

func NewFriendStore(db DB) *FriendStore {
	return &FriendStore{db: db}
}

func pairWhere(userA, userB int) squirrel.Or {
	return squirrel.Or{
		squirrel.Eq{"requester_id": userA, "recipient_id": userB},
		squirrel.Eq{"requester_id": userB, "recipient_id": userA},
	}
}

// CreateRequest inserts a PENDING friend request.
func (fs *FriendStore) CreateRequest(ctx context.Context, requesterID, recipientID int, at time.Time) (int, error) {
	insert := psql.
		Insert("friend_requests").
		Columns("requester_id", "recipient_id", "status", "created_at", "updated_at").
		Values(requesterID, recipientID, models.RequestStatusPending, at, at).
		Suffix("RETURNING id")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building request insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var requestID int
	if err := fs.db.QueryRow(ctx, sqlStr, args...).Scan(&requestID); err != nil {
		return 0, errors.Wrap(err, "inserting friend request")
	}

	log.Printf("Friend request %d created: %d -> %d", requestID, requesterID, recipientID)
	return requestID, nil
}

// ActiveRequestBetween returns the PENDING or ACCEPTED request between the
// pair in either direction, or nil when there is none.
func (fs *FriendStore) ActiveRequestBetween(ctx context.Context, userA, userB int) (*models.FriendRequest, error) {
	query := psql.
		Select("id", "requester_id", "recipient_id", "status", "created_at", "updated_at").
		From("friend_requests").
		Where(squirrel.And{
			pairWhere(userA, userB),
			squirrel.Eq{"status": []string{models.RequestStatusPending, models.RequestStatusAccepted}},
		}).
		OrderBy("created_at DESC").
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building active request query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var request models.FriendRequest
	err = fs.db.QueryRow(ctx, sqlStr, args...).
		Scan(&request.ID, &request.RequesterID, &request.RecipientID, &request.Status,
			&request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "fetching active request")
	}

	return &request, nil
}

func (fs *FriendStore) GetByID(ctx context.Context, requestID int) (*models.FriendRequest, error) {
	query := psql.
		Select("id", "requester_id", "recipient_id", "status", "created_at", "updated_at").
		From("friend_requests").
		Where(squirrel.Eq{"id": requestID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building request query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var request models.FriendRequest
	err = fs.db.QueryRow(ctx, sqlStr, args...).
		Scan(&request.ID, &request.RequesterID, &request.RecipientID, &request.Status,
			&request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("friend request not found")
		}
		return nil, errors.Wrap(err, "fetching friend request")
	}

	return &request, nil
}

func (fs *FriendStore) UpdateStatus(ctx context.Context, requestID int, status string, at time.Time) error {
	update := psql.
		Update("friend_requests").
		Set("status", status).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": requestID})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return errors.Wrap(err, "building status update")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	tag, err := fs.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return errors.Wrap(err, "updating request status")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("friend request not found")
	}

	log.Printf("Friend request %d moved to %s", requestID, status)
	return nil
}

// AreFriends reports whether an ACCEPTED request exists between the pair.
func (fs *FriendStore) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	query := psql.
		Select("COUNT(*)").
		From("friend_requests").
		Where(squirrel.And{
			pairWhere(userA, userB),
			squirrel.Eq{"status": models.RequestStatusAccepted},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building friendship query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var count int
	if err := fs.db.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, "checking friendship")
	}

	return count > 0, nil
}

// ListIncoming returns pending requests addressed to the user, joined
// with the requester's profile.
func (fs *FriendStore) ListIncoming(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	query := psql.
		Select("fr.id", "u.id", "u.name", "u.email", "fr.status").
		From("friend_requests fr").
		Join("users u ON u.id = fr.requester_id").
		Where(squirrel.Eq{
			"fr.recipient_id": userID,
			"fr.status":       models.RequestStatusPending,
		}).
		OrderBy("fr.created_at DESC")

	return fs.listRequests(ctx, query)
}

// ListOutgoing returns pending requests the user has sent.
func (fs *FriendStore) ListOutgoing(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	query := psql.
		Select("fr.id", "u.id", "u.name", "u.email", "fr.status").
		From("friend_requests fr").
		Join("users u ON u.id = fr.recipient_id").
		Where(squirrel.Eq{
			"fr.requester_id": userID,
			"fr.status":       models.RequestStatusPending,
		}).
		OrderBy("fr.created_at DESC")

	return fs.listRequests(ctx, query)
}

func (fs *FriendStore) listRequests(ctx context.Context, query squirrel.SelectBuilder) ([]models.FriendRequestView, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building request list query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := fs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing friend requests")
	}
	defer rows.Close()

	var views []models.FriendRequestView
	for rows.Next() {
		var view models.FriendRequestView
		if err := rows.Scan(&view.RequestID, &view.UserID, &view.Name, &view.Email, &view.Status); err != nil {
			return nil, errors.Wrap(err, "scanning request row")
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating request rows")
	}

	return views, nil
}

// ListFriends returns the accepted counterparts of the user.
func (fs *FriendStore) ListFriends(ctx context.Context, userID int) ([]models.FriendProfile, error) {
	query := psql.
		Select("u.id", "u.name", "u.email").
		From("friend_requests fr").
		Join("users u ON u.id = CASE WHEN fr.requester_id = ? THEN fr.recipient_id ELSE fr.requester_id END", userID).
		Where(squirrel.And{
			squirrel.Or{
				squirrel.Eq{"fr.requester_id": userID},
				squirrel.Eq{"fr.recipient_id": userID},
			},
			squirrel.Eq{"fr.status": models.RequestStatusAccepted},
		}).
		OrderBy("u.name")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building friends query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := fs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing friends")
	}
	defer rows.Close()

	var friends []models.FriendProfile
	for rows.Next() {
		var profile models.FriendProfile
		if err := rows.Scan(&profile.UserID, &profile.Name, &profile.Email); err != nil {
			return nil, errors.Wrap(err, "scanning friend row")
		}
		friends = append(friends, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating friend rows")
	}

	return friends, nil
}

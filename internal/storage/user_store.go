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

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (us *UserStore) Create(ctx context.Context, name, email, passwordHash string, at time.Time) (int, error) {
	insert := psql.
		Insert("users").
		Columns("name", "email", "password_hash", "created_at").
		Values(name, email, passwordHash, at).
		Suffix("RETURNING id")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building user insert")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var userID int
	if err := us.db.QueryRow(ctx, sqlStr, args...).Scan(&userID); err != nil {
		if isUniqueViolation(err) {
			return 0, apperrors.Conflict("User with this email already exists")
		}
		return 0, errors.Wrap(err, "inserting user")
	}

	log.Printf("User created: %s (ID: %d)", email, userID)
	return userID, nil
}

func (us *UserStore) GetByID(ctx context.Context, userID int) (*models.User, error) {
	query := psql.
		Select("id", "name", "email", "password_hash", "created_at").
		From("users").
		Where(squirrel.Eq{"id": userID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building user query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var user models.User
	err = us.db.QueryRow(ctx, sqlStr, args...).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, errors.Wrap(err, "fetching user")
	}

	return &user, nil
}

func (us *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := psql.
		Select("id", "name", "email", "password_hash", "created_at").
		From("users").
		Where(squirrel.Eq{"email": email})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building user query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	var user models.User
	err = us.db.QueryRow(ctx, sqlStr, args...).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, errors.Wrap(err, "fetching user by email")
	}

	return &user, nil
}

// Profiles returns the public profile data for a set of user ids, keyed
// by id, for assembling the friends map of a conversation list.
func (us *UserStore) Profiles(ctx context.Context, userIDs []int) (map[int]models.FriendProfile, error) {
	profiles := make(map[int]models.FriendProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	query := psql.
		Select("id", "name", "email").
		From("users").
		Where(squirrel.Eq{"id": userIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building profiles query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := us.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching profiles")
	}
	defer rows.Close()

	for rows.Next() {
		var profile models.FriendProfile
		if err := rows.Scan(&profile.UserID, &profile.Name, &profile.Email); err != nil {
			return nil, errors.Wrap(err, "scanning profile row")
		}
		profiles[profile.UserID] = profile
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating profile rows")
	}

	return profiles, nil
}

// SearchByEmail finds users whose email contains the term, excluding the
// searcher, for the friend-request flow.
func (us *UserStore) SearchByEmail(ctx context.Context, term string, excludeUserID int) ([]models.FriendProfile, error) {
	query := psql.
		Select("id", "name", "email").
		From("users").
		Where(squirrel.And{
			squirrel.ILike{"email": "%" + term + "%"},
			squirrel.NotEq{"id": excludeUserID},
		}).
		OrderBy("email").
		Limit(20)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building search query")
	}

	log.Printf("Executing SQL: %s, Args: %v", sqlStr, args)

	rows, err := us.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "searching users")
	}
	defer rows.Close()

	var results []models.FriendProfile
	for rows.Next() {
		var profile models.FriendProfile
		if err := rows.Scan(&profile.UserID, &profile.Name, &profile.Email); err != nil {
			return nil, errors.Wrap(err, "scanning search row")
		}
		results = append(results, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating search rows")
	}

	return results, nil
}

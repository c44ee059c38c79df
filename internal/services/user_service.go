package services

import (
	"context"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"
	"courier/server/internal/utils"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// UserAccounts is the account storage the user service drives.
type UserAccounts interface {
	Create(ctx context.Context, name, email, passwordHash string, at time.Time) (int, error)
	GetByID(ctx context.Context, userID int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Profiles(ctx context.Context, userIDs []int) (map[int]models.FriendProfile, error)
	SearchByEmail(ctx context.Context, term string, excludeUserID int) ([]models.FriendProfile, error)
}

type UserService struct {
	store      UserAccounts
	bcryptCost int
	clock      clockwork.Clock
}

func NewUserService(store UserAccounts, bcryptCost int, clock clockwork.Clock) *UserService {
	return &UserService{store: store, bcryptCost: bcryptCost, clock: clock}
}

func (us *UserService) Register(ctx context.Context, name, email, password string) (int, error) {
	if name == "" || email == "" || password == "" {
		return 0, apperrors.InvalidInput("Missing required fields")
	}

	hash, err := utils.HashPassword(password, us.bcryptCost)
	if err != nil {
		return 0, errors.Wrap(err, "hashing password")
	}

	return us.store.Create(ctx, name, email, hash, us.clock.Now())
}

// Authenticate verifies the credentials and returns the user. Both an
// unknown email and a bad password come back as the same NotFound so the
// response does not leak which one failed.
func (us *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, apperrors.InvalidInput("Missing required fields")
	}

	user, err := us.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := utils.CheckPasswordHash(password, user.PasswordHash); err != nil {
		return nil, apperrors.NotFound("invalid email or password")
	}

	return user, nil
}

func (us *UserService) GetByID(ctx context.Context, userID int) (*models.User, error) {
	return us.store.GetByID(ctx, userID)
}

func (us *UserService) Profiles(ctx context.Context, userIDs []int) (map[int]models.FriendProfile, error) {
	return us.store.Profiles(ctx, userIDs)
}

func (us *UserService) SearchByEmail(ctx context.Context, term string, currentUser int) ([]models.FriendProfile, error) {
	if term == "" {
		return nil, apperrors.InvalidInput("Missing required fields")
	}
	return us.store.SearchByEmail(ctx, term, currentUser)
}

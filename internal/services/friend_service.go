package services

import (
	"context"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"

	"github.com/jonboulle/clockwork"
)

// FriendRequests is the request storage behind the friendship workflow.
type FriendRequests interface {
	CreateRequest(ctx context.Context, requesterID, recipientID int, at time.Time) (int, error)
	ActiveRequestBetween(ctx context.Context, userA, userB int) (*models.FriendRequest, error)
	GetByID(ctx context.Context, requestID int) (*models.FriendRequest, error)
	UpdateStatus(ctx context.Context, requestID int, status string, at time.Time) error
	AreFriends(ctx context.Context, userA, userB int) (bool, error)
	ListIncoming(ctx context.Context, userID int) ([]models.FriendRequestView, error)
	ListOutgoing(ctx context.Context, userID int) ([]models.FriendRequestView, error)
	ListFriends(ctx context.Context, userID int) ([]models.FriendProfile, error)
}

// FriendService runs the request state machine:
// PENDING -> ACCEPTED | REJECTED | CANCELLED.
type FriendService struct {
	store FriendRequests
	users Identity
	clock clockwork.Clock
}

func NewFriendService(store FriendRequests, users Identity, clock clockwork.Clock) *FriendService {
	return &FriendService{store: store, users: users, clock: clock}
}

func (fs *FriendService) SendRequest(ctx context.Context, requesterID, recipientID int) (int, error) {
	if requesterID == 0 || recipientID == 0 {
		return 0, apperrors.InvalidInput("Missing required fields")
	}
	if requesterID == recipientID {
		return 0, apperrors.InvalidInput("Cannot send a friend request to yourself")
	}

	if _, err := fs.users.GetByID(ctx, recipientID); err != nil {
		return 0, err
	}

	active, err := fs.store.ActiveRequestBetween(ctx, requesterID, recipientID)
	if err != nil {
		return 0, err
	}
	if active != nil {
		return 0, apperrors.Conflict("Friend request already exists")
	}

	return fs.store.CreateRequest(ctx, requesterID, recipientID, fs.clock.Now())
}

// Accept moves a pending request to ACCEPTED; only the recipient may do it.
func (fs *FriendService) Accept(ctx context.Context, currentUser, requestID int) error {
	return fs.resolve(ctx, currentUser, requestID, models.RequestStatusAccepted)
}

// Reject moves a pending request to REJECTED; only the recipient may do it.
func (fs *FriendService) Reject(ctx context.Context, currentUser, requestID int) error {
	return fs.resolve(ctx, currentUser, requestID, models.RequestStatusRejected)
}

// Cancel withdraws a pending request; only the requester may do it.
func (fs *FriendService) Cancel(ctx context.Context, currentUser, requestID int) error {
	if currentUser == 0 || requestID == 0 {
		return apperrors.InvalidInput("Missing required fields")
	}

	request, err := fs.store.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.RequesterID != currentUser {
		return apperrors.Forbidden("Only the requester can cancel the request")
	}
	if request.Status != models.RequestStatusPending {
		return apperrors.Conflict("Friend request is no longer pending")
	}

	return fs.store.UpdateStatus(ctx, requestID, models.RequestStatusCancelled, fs.clock.Now())
}

func (fs *FriendService) resolve(ctx context.Context, currentUser, requestID int, status string) error {
	if currentUser == 0 || requestID == 0 {
		return apperrors.InvalidInput("Missing required fields")
	}

	request, err := fs.store.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.RecipientID != currentUser {
		return apperrors.Forbidden("Only the recipient can resolve the request")
	}
	if request.Status != models.RequestStatusPending {
		return apperrors.Conflict("Friend request is no longer pending")
	}

	return fs.store.UpdateStatus(ctx, requestID, status, fs.clock.Now())
}

func (fs *FriendService) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	return fs.store.AreFriends(ctx, userA, userB)
}

func (fs *FriendService) ListIncoming(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	return fs.store.ListIncoming(ctx, userID)
}

func (fs *FriendService) ListOutgoing(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	return fs.store.ListOutgoing(ctx, userID)
}

func (fs *FriendService) ListFriends(ctx context.Context, userID int) ([]models.FriendProfile, error) {
	return fs.store.ListFriends(ctx, userID)
}

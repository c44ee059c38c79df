package services

import (
	"context"
	"testing"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFriendStore struct {
	nextID   int
	requests map[int]*models.FriendRequest
}

func newMemFriendStore() *memFriendStore {
	return &memFriendStore{requests: make(map[int]*models.FriendRequest)}
}

func (m *memFriendStore) CreateRequest(ctx context.Context, requesterID, recipientID int, at time.Time) (int, error) {
	m.nextID++
	m.requests[m.nextID] = &models.FriendRequest{
		ID:          m.nextID,
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.RequestStatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	return m.nextID, nil
}

func (m *memFriendStore) ActiveRequestBetween(ctx context.Context, userA, userB int) (*models.FriendRequest, error) {
	for _, request := range m.requests {
		samePair := (request.RequesterID == userA && request.RecipientID == userB) ||
			(request.RequesterID == userB && request.RecipientID == userA)
		if !samePair {
			continue
		}
		if request.Status == models.RequestStatusPending || request.Status == models.RequestStatusAccepted {
			return request, nil
		}
	}
	return nil, nil
}

func (m *memFriendStore) GetByID(ctx context.Context, requestID int) (*models.FriendRequest, error) {
	request, ok := m.requests[requestID]
	if !ok {
		return nil, apperrors.NotFound("friend request not found")
	}
	return request, nil
}

func (m *memFriendStore) UpdateStatus(ctx context.Context, requestID int, status string, at time.Time) error {
	request, ok := m.requests[requestID]
	if !ok {
		return apperrors.NotFound("friend request not found")
	}
	request.Status = status
	request.UpdatedAt = at
	return nil
}

func (m *memFriendStore) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	request, err := m.ActiveRequestBetween(ctx, userA, userB)
	if err != nil {
		return false, err
	}
	return request != nil && request.Status == models.RequestStatusAccepted, nil
}

func (m *memFriendStore) ListIncoming(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	var views []models.FriendRequestView
	for _, request := range m.requests {
		if request.RecipientID == userID && request.Status == models.RequestStatusPending {
			views = append(views, models.FriendRequestView{
				RequestID: request.ID,
				UserID:    request.RequesterID,
				Status:    request.Status,
			})
		}
	}
	return views, nil
}

func (m *memFriendStore) ListOutgoing(ctx context.Context, userID int) ([]models.FriendRequestView, error) {
	var views []models.FriendRequestView
	for _, request := range m.requests {
		if request.RequesterID == userID && request.Status == models.RequestStatusPending {
			views = append(views, models.FriendRequestView{
				RequestID: request.ID,
				UserID:    request.RecipientID,
				Status:    request.Status,
			})
		}
	}
	return views, nil
}

func (m *memFriendStore) ListFriends(ctx context.Context, userID int) ([]models.FriendProfile, error) {
	var friends []models.FriendProfile
	for _, request := range m.requests {
		if request.Status != models.RequestStatusAccepted {
			continue
		}
		switch userID {
		case request.RequesterID:
			friends = append(friends, models.FriendProfile{UserID: request.RecipientID})
		case request.RecipientID:
			friends = append(friends, models.FriendProfile{UserID: request.RequesterID})
		}
	}
	return friends, nil
}

func newFriendFixture(t *testing.T, userIDs ...int) (*FriendService, *memFriendStore) {
	t.Helper()

	store := newMemFriendStore()
	identity := &fakeIdentity{users: make(map[int]models.User)}
	for _, id := range userIDs {
		identity.users[id] = models.User{ID: id}
	}
	return NewFriendService(store, identity, clockwork.NewFakeClock()), store
}

func TestSendFriendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		service, store := newFriendFixture(t, 1, 2)

		requestID, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)

		request, err := store.GetByID(ctx, requestID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, request.Status)
	})

	t.Run("duplicate request is a conflict either way", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1, 2)

		_, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)

		_, err = service.SendRequest(ctx, 1, 2)
		require.Error(t, err)
		assert.Equal(t, "Friend request already exists", err.Error())

		_, err = service.SendRequest(ctx, 2, 1)
		require.Error(t, err)
		assert.Equal(t, "Friend request already exists", err.Error())
	})

	t.Run("rejected request can be retried", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1, 2)

		requestID, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)
		require.NoError(t, service.Reject(ctx, 2, requestID))

		_, err = service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)
	})

	t.Run("rejects self and unknown recipients", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1)

		_, err := service.SendRequest(ctx, 1, 1)
		require.Error(t, err)
		assert.True(t, apperrors.IsClientError(err))

		_, err = service.SendRequest(ctx, 1, 42)
		require.Error(t, err)
		assert.Equal(t, "user not found", err.Error())
	})
}

func TestResolveFriendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("recipient accepts and the pair become friends", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1, 2)
		requestID, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)

		require.NoError(t, service.Accept(ctx, 2, requestID))

		areFriends, err := service.AreFriends(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, areFriends)
	})

	t.Run("only the recipient may resolve", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1, 2)
		requestID, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)

		err = service.Accept(ctx, 1, requestID)
		require.Error(t, err)
		assert.Equal(t, "Only the recipient can resolve the request", err.Error())
	})

	t.Run("only the requester may cancel", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1, 2)
		requestID, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)

		err = service.Cancel(ctx, 2, requestID)
		require.Error(t, err)
		assert.Equal(t, "Only the requester can cancel the request", err.Error())

		require.NoError(t, service.Cancel(ctx, 1, requestID))
	})

	t.Run("a resolved request stays resolved", func(t *testing.T) {
		service, _ := newFriendFixture(t, 1, 2)
		requestID, err := service.SendRequest(ctx, 1, 2)
		require.NoError(t, err)
		require.NoError(t, service.Accept(ctx, 2, requestID))

		err = service.Reject(ctx, 2, requestID)
		require.Error(t, err)
		assert.Equal(t, "Friend request is no longer pending", err.Error())
	})
}

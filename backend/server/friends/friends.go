// Package friends implements friend requests and the friend list.
//
// A request starts pending and moves once to accepted or rejected. At most one
// pending request exists per pair of users, in either direction.
package friends

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/errs"
	"github.com/jghoshh/goalpal/backend/models"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
)

// Store is the part of the persistent storage the friends service uses.
type Store interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	AddFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*storage.UpdateResult, error)
	RemoveFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*storage.UpdateResult, error)
	AddFriendRequest(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error)
	FindFriendRequestByID(ctx context.Context, id primitive.ObjectID) (*models.FriendRequest, error)
	FindPendingFriendRequestBetween(ctx context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error)
	FindFriendRequests(ctx context.Context, query storage.FriendRequestQuery) ([]models.FriendRequest, error)
	TransitionFriendRequest(ctx context.Context, id primitive.ObjectID, from, to models.FriendRequestStatus) error
}

// Notifier receives friend request events once they are persisted.
type Notifier interface {
	FriendRequestSent(req models.FriendRequest)
	FriendRequestAccepted(req models.FriendRequest)
}

type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

func unexpected(message string, err error) error {
	log.Printf("%s: %v", message, err)
	return errs.Unexpected(message, err)
}

func (s *Service) user(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("user not found")
	}
	if err != nil {
		return nil, unexpected("failed to fetch user", err)
	}
	return user, nil
}

// SendRequest creates a pending request from senderID to the user registered with email.
func (s *Service) SendRequest(ctx context.Context, senderID primitive.ObjectID, email string) (*models.FriendRequestView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errs.Validation("email is required")
	}

	recipient, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("user not found with that email")
	}
	if err != nil {
		return nil, unexpected("failed to fetch user", err)
	}
	if recipient.ID == senderID {
		return nil, errs.Conflict("cannot send friend request to yourself")
	}

	sender, err := s.user(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender.HasFriend(recipient.ID) {
		return nil, errs.Conflict("already friends with this user")
	}

	_, err = s.store.FindPendingFriendRequestBetween(ctx, senderID, recipient.ID)
	if err == nil {
		return nil, errs.Conflict("friend request already pending")
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, unexpected("failed to check friend requests", err)
	}

	now := s.now()
	req, err := s.store.AddFriendRequest(ctx, &models.FriendRequest{
		SenderID:    senderID,
		RecipientID: recipient.ID,
		Status:      models.FriendRequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, unexpected("failed to send friend request", err)
	}

	s.notifier.FriendRequestSent(*req)

	senderSummary, recipientSummary := sender.Summary(), recipient.Summary()
	return &models.FriendRequestView{FriendRequest: *req, Sender: &senderSummary, Recipient: &recipientSummary}, nil
}

// populate attaches user summaries to requests. Requests whose users no longer exist keep nil summaries.
func (s *Service) populate(ctx context.Context, requests []models.FriendRequest) ([]models.FriendRequestView, error) {
	ids := make([]primitive.ObjectID, 0, 2*len(requests))
	for _, req := range requests {
		ids = append(ids, req.SenderID, req.RecipientID)
	}
	users, err := s.store.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, unexpected("failed to fetch users", err)
	}
	byID := make(map[primitive.ObjectID]models.UserSummary, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Summary()
	}

	views := make([]models.FriendRequestView, 0, len(requests))
	for _, req := range requests {
		view := models.FriendRequestView{FriendRequest: req}
		if summary, ok := byID[req.SenderID]; ok {
			view.Sender = &summary
		}
		if summary, ok := byID[req.RecipientID]; ok {
			view.Recipient = &summary
		}
		views = append(views, view)
	}
	return views, nil
}

// IncomingRequests returns pending requests addressed to userID.
func (s *Service) IncomingRequests(ctx context.Context, userID primitive.ObjectID) ([]models.FriendRequestView, error) {
	requests, err := s.store.FindFriendRequests(ctx, storage.FriendRequestQuery{RecipientID: userID, Status: models.FriendRequestPending})
	if err != nil {
		return nil, unexpected("failed to fetch friend requests", err)
	}
	return s.populate(ctx, requests)
}

// SentRequests returns pending requests sent by userID.
func (s *Service) SentRequests(ctx context.Context, userID primitive.ObjectID) ([]models.FriendRequestView, error) {
	requests, err := s.store.FindFriendRequests(ctx, storage.FriendRequestQuery{SenderID: userID, Status: models.FriendRequestPending})
	if err != nil {
		return nil, unexpected("failed to fetch sent requests", err)
	}
	return s.populate(ctx, requests)
}

// pendingFor loads a request and checks that callerID is its recipient and it is still pending.
func (s *Service) pendingFor(ctx context.Context, callerID, requestID primitive.ObjectID) (*models.FriendRequest, error) {
	req, err := s.store.FindFriendRequestByID(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("friend request not found")
	}
	if err != nil {
		return nil, unexpected("failed to fetch friend request", err)
	}
	if req.RecipientID != callerID {
		return nil, errs.Forbidden("only the recipient can respond to a friend request")
	}
	if req.Status != models.FriendRequestPending {
		return nil, errs.Conflict("request already processed")
	}
	return req, nil
}

// Accept makes sender and recipient friends. The friend edges are written
// before the status flips, so a failed accept can simply be retried.
func (s *Service) Accept(ctx context.Context, callerID, requestID primitive.ObjectID) error {
	req, err := s.pendingFor(ctx, callerID, requestID)
	if err != nil {
		return err
	}

	if _, err := s.store.AddFriend(ctx, req.SenderID, req.RecipientID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return unexpected("failed to accept friend request", err)
	}
	if _, err := s.store.AddFriend(ctx, req.RecipientID, req.SenderID); err != nil {
		return unexpected("failed to accept friend request", err)
	}

	err = s.store.TransitionFriendRequest(ctx, req.ID, models.FriendRequestPending, models.FriendRequestAccepted)
	if errors.Is(err, storage.ErrNotFound) {
		return errs.Conflict("request already processed")
	}
	if err != nil {
		return unexpected("failed to accept friend request", err)
	}

	req.Status = models.FriendRequestAccepted
	s.notifier.FriendRequestAccepted(*req)
	return nil
}

// Reject closes a pending request without creating a friendship.
func (s *Service) Reject(ctx context.Context, callerID, requestID primitive.ObjectID) error {
	req, err := s.pendingFor(ctx, callerID, requestID)
	if err != nil {
		return err
	}

	err = s.store.TransitionFriendRequest(ctx, req.ID, models.FriendRequestPending, models.FriendRequestRejected)
	if errors.Is(err, storage.ErrNotFound) {
		return errs.Conflict("request already processed")
	}
	if err != nil {
		return unexpected("failed to reject friend request", err)
	}
	return nil
}

// Friends returns the public profiles of userID's friends.
func (s *Service) Friends(ctx context.Context, userID primitive.ObjectID) ([]models.UserSummary, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.store.FindUsersByIDs(ctx, user.Friends)
	if err != nil {
		return nil, unexpected("failed to fetch friends", err)
	}
	friends := make([]models.UserSummary, 0, len(users))
	for i := range users {
		friends = append(friends, users[i].Summary())
	}
	return friends, nil
}

// RemoveFriend drops the friendship in both directions. Removing a non-friend is a no-op.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID primitive.ObjectID) error {
	if _, err := s.store.RemoveFriend(ctx, userID, friendID); err != nil {
		return unexpected("failed to remove friend", err)
	}
	if _, err := s.store.RemoveFriend(ctx, friendID, userID); err != nil {
		return unexpected("failed to remove friend", err)
	}
	return nil
}

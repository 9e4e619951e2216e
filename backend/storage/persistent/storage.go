package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/models"
)

// ErrNotFound is returned when a single-document lookup or update matches nothing.
var ErrNotFound = errors.New("document not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// DeleteResult represents the result of a deletion operation,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// UpdateResult represents the result of an update operation,
// specifically the count of documents matched and modified.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// FriendRequestQuery selects friend requests. Zero-valued fields are not filtered on.
type FriendRequestQuery struct {
	SenderID    primitive.ObjectID
	RecipientID primitive.ObjectID
	Status      models.FriendRequestStatus
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement. Every method is atomic for a single document only;
// methods touching several documents are independent per-document writes.
type StorageInterface interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error

	// Adds a new user. Returns ErrDuplicate if the email is taken.
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	// Adds friendID to the user's friend set if absent.
	AddFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*UpdateResult, error)
	// Removes friendID from the user's friend set if present.
	RemoveFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*UpdateResult, error)
	// Removes friendID from every user's friend set.
	PullFriendEverywhere(ctx context.Context, friendID primitive.ObjectID) (*UpdateResult, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error)

	// Assigns token to userID, taking it away from any previous owner.
	UpsertPushToken(ctx context.Context, token string, userID primitive.ObjectID) error
	FindPushTokensByUsers(ctx context.Context, userIDs []primitive.ObjectID) ([]models.PushToken, error)
	FindAllPushTokens(ctx context.Context) ([]models.PushToken, error)
	DeletePushTokensByUser(ctx context.Context, userID primitive.ObjectID) (*DeleteResult, error)

	AddFriendRequest(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error)
	FindFriendRequestByID(ctx context.Context, id primitive.ObjectID) (*models.FriendRequest, error)
	// Finds a pending request between a and b in either direction.
	FindPendingFriendRequestBetween(ctx context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error)
	FindFriendRequests(ctx context.Context, query FriendRequestQuery) ([]models.FriendRequest, error)
	// Moves a request from status from to status to. Returns ErrNotFound if the request
	// does not exist or is no longer in status from.
	TransitionFriendRequest(ctx context.Context, id primitive.ObjectID, from, to models.FriendRequestStatus) error
	DeleteFriendRequestsByUser(ctx context.Context, userID primitive.ObjectID) (*DeleteResult, error)

	AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	FindGoalByID(ctx context.Context, id primitive.ObjectID) (*models.Goal, error)
	// Goals owned by ownerID, sorted by order ascending.
	FindGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Goal, error)
	// Goals owned by or shared with userID, sorted by order ascending.
	FindGoalsByOwnerOrShared(ctx context.Context, userID primitive.ObjectID) ([]models.Goal, error)
	// Replaces the stored goal document with goal. Returns ErrNotFound if it no longer exists.
	ReplaceGoal(ctx context.Context, goal *models.Goal) error
	// Sets the order of one goal, scoped to its owner.
	SetGoalOrder(ctx context.Context, goalID, ownerID primitive.ObjectID, order int) error
	DeleteGoal(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error)
	DeleteGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) (*DeleteResult, error)
	// Removes userID from the share set of every goal.
	PullSharedUser(ctx context.Context, userID primitive.ObjectID) (*UpdateResult, error)
	GoalCount(ctx context.Context, ownerID primitive.ObjectID) (int64, error)
}

// NewStorage creates a StorageInterface. With an empty uri the in-memory backend is used,
// otherwise it connects to MongoDB and returns an error if the connection failed.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	var storage StorageInterface
	if uri == "" {
		storage = NewMemoryStorage()
	} else {
		storage = NewMongoStorage()
	}
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}

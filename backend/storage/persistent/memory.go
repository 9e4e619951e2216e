package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/models"
)

// MemoryStorage keeps every collection in process memory. It is used when no
// MONGODB_URI is configured and by the service tests. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStorage struct {
	mu             sync.RWMutex
	users          map[primitive.ObjectID]models.User
	goals          map[primitive.ObjectID]models.Goal
	friendRequests map[primitive.ObjectID]models.FriendRequest
	pushTokens     map[string]models.PushToken
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:          make(map[primitive.ObjectID]models.User),
		goals:          make(map[primitive.ObjectID]models.Goal),
		friendRequests: make(map[primitive.ObjectID]models.FriendRequest),
		pushTokens:     make(map[string]models.PushToken),
	}
}

func (m *MemoryStorage) Connect(dbName, uri string) error { return nil }

func (m *MemoryStorage) Disconnect() error { return nil }

func copyUser(u models.User) models.User {
	u.Friends = append([]primitive.ObjectID{}, u.Friends...)
	return u
}

func (m *MemoryStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Friends == nil {
		user.Friends = []primitive.ObjectID{}
	}
	m.users[user.ID] = copyUser(*user)
	return user, nil
}

func (m *MemoryStorage) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyUser(user)
	return &out, nil
}

func (m *MemoryStorage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.Email == email {
			out := copyUser(user)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStorage) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []models.User{}
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			users = append(users, copyUser(user))
		}
	}
	return users, nil
}

func (m *MemoryStorage) AddFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if user.HasFriend(friendID) {
		return &UpdateResult{MatchedCount: 1}, nil
	}
	user = copyUser(user)
	user.Friends = append(user.Friends, friendID)
	m.users[userID] = user
	return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func removeID(ids []primitive.ObjectID, id primitive.ObjectID) ([]primitive.ObjectID, bool) {
	out := make([]primitive.ObjectID, 0, len(ids))
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}

func (m *MemoryStorage) RemoveFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return &UpdateResult{}, nil
	}
	friends, removed := removeID(user.Friends, friendID)
	if !removed {
		return &UpdateResult{MatchedCount: 1}, nil
	}
	user.Friends = friends
	m.users[userID] = user
	return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *MemoryStorage) PullFriendEverywhere(ctx context.Context, friendID primitive.ObjectID) (*UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &UpdateResult{}
	for id, user := range m.users {
		friends, removed := removeID(user.Friends, friendID)
		if !removed {
			continue
		}
		user.Friends = friends
		m.users[id] = user
		result.MatchedCount++
		result.ModifiedCount++
	}
	return result, nil
}

func (m *MemoryStorage) DeleteUser(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return &DeleteResult{}, nil
	}
	delete(m.users, id)
	return &DeleteResult{DeletedCount: 1}, nil
}

func (m *MemoryStorage) UpsertPushToken(ctx context.Context, token string, userID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.pushTokens[token]
	if !ok {
		existing = models.PushToken{ID: primitive.NewObjectID(), Token: token, CreatedAt: now}
	}
	existing.UserID = userID
	existing.UpdatedAt = now
	m.pushTokens[token] = existing
	return nil
}

func (m *MemoryStorage) FindPushTokensByUsers(ctx context.Context, userIDs []primitive.ObjectID) ([]models.PushToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[primitive.ObjectID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	tokens := []models.PushToken{}
	for _, token := range m.pushTokens {
		if wanted[token.UserID] {
			tokens = append(tokens, token)
		}
	}
	sortTokens(tokens)
	return tokens, nil
}

func (m *MemoryStorage) FindAllPushTokens(ctx context.Context) ([]models.PushToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := make([]models.PushToken, 0, len(m.pushTokens))
	for _, token := range m.pushTokens {
		tokens = append(tokens, token)
	}
	sortTokens(tokens)
	return tokens, nil
}

// Map iteration is random; keep results stable for callers and tests.
func sortTokens(tokens []models.PushToken) {
	sort.Slice(tokens, func(i, j int) bool {
		if !tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
		}
		return tokens[i].Token < tokens[j].Token
	})
}

func (m *MemoryStorage) DeletePushTokensByUser(ctx context.Context, userID primitive.ObjectID) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &DeleteResult{}
	for key, token := range m.pushTokens {
		if token.UserID == userID {
			delete(m.pushTokens, key)
			result.DeletedCount++
		}
	}
	return result, nil
}

func (m *MemoryStorage) AddFriendRequest(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	m.friendRequests[req.ID] = *req
	return req, nil
}

func (m *MemoryStorage) FindFriendRequestByID(ctx context.Context, id primitive.ObjectID) (*models.FriendRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.friendRequests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (m *MemoryStorage) FindPendingFriendRequestBetween(ctx context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.friendRequests {
		if req.Status != models.FriendRequestPending {
			continue
		}
		if (req.SenderID == a && req.RecipientID == b) || (req.SenderID == b && req.RecipientID == a) {
			out := req
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStorage) FindFriendRequests(ctx context.Context, query FriendRequestQuery) ([]models.FriendRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requests := []models.FriendRequest{}
	for _, req := range m.friendRequests {
		if !query.SenderID.IsZero() && req.SenderID != query.SenderID {
			continue
		}
		if !query.RecipientID.IsZero() && req.RecipientID != query.RecipientID {
			continue
		}
		if query.Status != "" && req.Status != query.Status {
			continue
		}
		requests = append(requests, req)
	}
	// Newest first, like the Mongo backend.
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

func (m *MemoryStorage) TransitionFriendRequest(ctx context.Context, id primitive.ObjectID, from, to models.FriendRequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.friendRequests[id]
	if !ok || req.Status != from {
		return ErrNotFound
	}
	req.Status = to
	req.UpdatedAt = time.Now()
	m.friendRequests[id] = req
	return nil
}

func (m *MemoryStorage) DeleteFriendRequestsByUser(ctx context.Context, userID primitive.ObjectID) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &DeleteResult{}
	for id, req := range m.friendRequests {
		if req.SenderID == userID || req.RecipientID == userID {
			delete(m.friendRequests, id)
			result.DeletedCount++
		}
	}
	return result, nil
}

func (m *MemoryStorage) AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if goal.ID.IsZero() {
		goal.ID = primitive.NewObjectID()
	}
	if goal.SubItems == nil {
		goal.SubItems = []models.SubItem{}
	}
	if goal.SharedWith == nil {
		goal.SharedWith = []primitive.ObjectID{}
	}
	m.goals[goal.ID] = goal.Clone()
	return goal, nil
}

func (m *MemoryStorage) FindGoalByID(ctx context.Context, id primitive.ObjectID) (*models.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	goal, ok := m.goals[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := goal.Clone()
	return &out, nil
}

func (m *MemoryStorage) filterGoals(keep func(models.Goal) bool) []models.Goal {
	goals := []models.Goal{}
	for _, goal := range m.goals {
		if keep(goal) {
			goals = append(goals, goal.Clone())
		}
	}
	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].Order != goals[j].Order {
			return goals[i].Order < goals[j].Order
		}
		return goals[i].CreatedAt.Before(goals[j].CreatedAt)
	})
	return goals
}

func (m *MemoryStorage) FindGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterGoals(func(g models.Goal) bool { return g.UserID == ownerID }), nil
}

func (m *MemoryStorage) FindGoalsByOwnerOrShared(ctx context.Context, userID primitive.ObjectID) ([]models.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterGoals(func(g models.Goal) bool { return g.CanWrite(userID) }), nil
}

func (m *MemoryStorage) ReplaceGoal(ctx context.Context, goal *models.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.goals[goal.ID]; !ok {
		return ErrNotFound
	}
	m.goals[goal.ID] = goal.Clone()
	return nil
}

func (m *MemoryStorage) SetGoalOrder(ctx context.Context, goalID, ownerID primitive.ObjectID, order int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	goal, ok := m.goals[goalID]
	if !ok || goal.UserID != ownerID {
		return ErrNotFound
	}
	goal.Order = order
	goal.UpdatedAt = time.Now()
	m.goals[goalID] = goal
	return nil
}

func (m *MemoryStorage) DeleteGoal(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.goals[id]; !ok {
		return &DeleteResult{}, nil
	}
	delete(m.goals, id)
	return &DeleteResult{DeletedCount: 1}, nil
}

func (m *MemoryStorage) DeleteGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &DeleteResult{}
	for id, goal := range m.goals {
		if goal.UserID == ownerID {
			delete(m.goals, id)
			result.DeletedCount++
		}
	}
	return result, nil
}

func (m *MemoryStorage) PullSharedUser(ctx context.Context, userID primitive.ObjectID) (*UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &UpdateResult{}
	for id, goal := range m.goals {
		shared, removed := removeID(goal.SharedWith, userID)
		if !removed {
			continue
		}
		goal.SharedWith = shared
		m.goals[id] = goal
		result.MatchedCount++
		result.ModifiedCount++
	}
	return result, nil
}

func (m *MemoryStorage) GoalCount(ctx context.Context, ownerID primitive.ObjectID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, goal := range m.goals {
		if goal.UserID == ownerID {
			count++
		}
	}
	return count, nil
}

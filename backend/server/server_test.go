package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/auth"
	"github.com/jghoshh/goalpal/backend/server/friends"
	"github.com/jghoshh/goalpal/backend/server/goals"
	"github.com/jghoshh/goalpal/backend/server/notifications"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
	"github.com/jghoshh/goalpal/backend/server/reminders"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
)

var errDBDown = errors.New("db down")

// serverStore is everything the services behind the router read and write.
type serverStore interface {
	auth.Store
	goals.Store
	friends.Store
	notifications.Directory
	reminders.Store
}

// flakyStore is a MemoryStorage whose cascade and reorder writes can be made to fail.
type flakyStore struct {
	*storage.MemoryStorage

	mu              sync.Mutex
	failFriendPull  bool
	failOrderWrites bool
	orderWritesLeft int
}

func (s *flakyStore) PullFriendEverywhere(ctx context.Context, friendID primitive.ObjectID) (*storage.UpdateResult, error) {
	if s.failFriendPull {
		return nil, errDBDown
	}
	return s.MemoryStorage.PullFriendEverywhere(ctx, friendID)
}

func (s *flakyStore) SetGoalOrder(ctx context.Context, goalID, ownerID primitive.ObjectID, order int) error {
	s.mu.Lock()
	if s.failOrderWrites {
		if s.orderWritesLeft == 0 {
			s.mu.Unlock()
			return errDBDown
		}
		s.orderWritesLeft--
	}
	s.mu.Unlock()
	return s.MemoryStorage.SetGoalOrder(ctx, goalID, ownerID, order)
}

type recordingSender struct {
	mu       sync.Mutex
	messages []push.Message
}

func (s *recordingSender) Send(ctx context.Context, msgs []push.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *recordingSender) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, m := range s.messages {
		out = append(out, m.Title)
	}
	return out
}

type testServer struct {
	handler    http.Handler
	sender     *recordingSender
	dispatcher *notifications.Dispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerOn(t, storage.NewMemoryStorage())
}

func newTestServerOn(t *testing.T, store serverStore) *testServer {
	t.Helper()
	sender := &recordingSender{}
	dispatcher := notifications.NewDispatcher(store, sender, time.Second)
	t.Cleanup(dispatcher.Wait)

	srv := New(
		auth.NewService(store, "test-key", time.Hour),
		goals.NewService(store, dispatcher, goals.Options{}),
		friends.NewService(store, dispatcher),
		reminders.NewJob(store, sender),
	)
	return &testServer{handler: srv.Handler(), sender: sender, dispatcher: dispatcher}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeInto(t, rec, &body)
	return body["error"]
}

func (ts *testServer) register(t *testing.T, name, email string) auth.Session {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "Test1234",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session auth.Session
	decodeInto(t, rec, &session)
	return session
}

func (ts *testServer) createGoal(t *testing.T, token string, in goals.CreateInput) models.Goal {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/goals", token, in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var goal models.Goal
	decodeInto(t, rec, &goal)
	return goal
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/health", "/api/health"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t)
	session := ts.register(t, "Ana", "ana@example.com")
	assert.NotEmpty(t, session.Token)

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ana", "email": "ana@example.com", "password": "Test1234",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "nope1234"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, errorOf(t, rec))

	rec = ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/auth/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/auth/me", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]interface{}
	decodeInto(t, rec, &me)
	assert.Equal(t, "ana@example.com", me["email"])
	assert.NotContains(t, me, "passwordHash")

	rec = ts.do(t, http.MethodPost, "/api/push-token", session.Token, map[string]string{"pushToken": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/auth/push-token", session.Token, map[string]string{"pushToken": "ExponentPushToken[ana]"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGoalRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "Ana", "ana@example.com").Token

	first := ts.createGoal(t, token, goals.CreateInput{
		Title:    "Read",
		Type:     models.GoalDiscrete,
		SubItems: []goals.SubItemInput{{Title: "Chapter 1"}, {Title: "Chapter 2"}},
	})
	assert.Equal(t, models.DefaultGoalColor, first.Color)
	assert.Equal(t, 0, first.Progress)
	second := ts.createGoal(t, token, goals.CreateInput{Title: "Run", Type: models.GoalContinuous, ResetFrequency: models.ResetDaily})
	assert.Equal(t, 1, second.Order)

	rec := ts.do(t, http.MethodPost, "/api/goals", token, map[string]string{"type": "discrete"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/goals/"+first.ID.Hex()+"/subgoals/"+first.SubItems[0].ID+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var toggled models.Goal
	decodeInto(t, rec, &toggled)
	assert.Equal(t, 50, toggled.Progress)
	assert.False(t, toggled.IsCompleted)

	rec = ts.do(t, http.MethodPatch, "/api/goals/"+first.ID.Hex()+"/subgoals/missing/toggle", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	title := "Read more"
	rec = ts.do(t, http.MethodPut, "/api/goals/"+first.ID.Hex(), token, goals.GoalPatch{Title: &title})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/goals/reorder", token, map[string][]string{
		"orderedIds": {second.ID.Hex(), first.ID.Hex()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/goals", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Goal
	decodeInto(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "Read more", list[1].Title)

	rec = ts.do(t, http.MethodPost, "/api/goals/reorder", token, map[string][]string{"orderedIds": {"xyz"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/goals/not-an-id", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/goals/"+first.ID.Hex(), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/goals/"+first.ID.Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/goals/feed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestFriendsAndSharing(t *testing.T) {
	ts := newTestServer(t)
	ana := ts.register(t, "Ana", "ana@example.com")
	ben := ts.register(t, "Ben", "ben@example.com")

	rec := ts.do(t, http.MethodPost, "/api/friends/request", ana.Token, map[string]string{"email": "ben@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view models.FriendRequestView
	decodeInto(t, rec, &view)

	rec = ts.do(t, http.MethodPost, "/api/friends/request", ana.Token, map[string]string{"email": "ben@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/friends/requests", ben.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var incoming []models.FriendRequestView
	decodeInto(t, rec, &incoming)
	require.Len(t, incoming, 1)

	rec = ts.do(t, http.MethodPost, "/api/friends/request/"+view.ID.Hex()+"/accept", ana.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/friends/request/"+view.ID.Hex()+"/accept", ben.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/friends", ana.Token, nil)
	var list []models.UserSummary
	decodeInto(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, ben.User.ID, list[0].ID)

	goal := ts.createGoal(t, ana.Token, goals.CreateInput{Title: "Shared", Type: models.GoalDiscrete})
	rec = ts.do(t, http.MethodPost, "/api/goals/"+goal.ID.Hex()+"/share", ana.Token, map[string]string{"friendId": ben.User.ID.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/goals/"+goal.ID.Hex(), ben.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/goals/"+goal.ID.Hex()+"/share/"+ben.User.ID.Hex(), ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/goals/"+goal.ID.Hex(), ben.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/friends/"+ana.User.ID.Hex(), ben.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/friends", ana.Token, nil)
	decodeInto(t, rec, &list)
	assert.Empty(t, list)
}

func TestDeleteAccountRoute(t *testing.T) {
	ts := newTestServer(t)
	ana := ts.register(t, "Ana", "ana@example.com")
	ts.createGoal(t, ana.Token, goals.CreateInput{Title: "Mine", Type: models.GoalDiscrete})

	rec := ts.do(t, http.MethodDelete, "/api/auth/account", ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Message string              `json:"message"`
		Deleted auth.DeletionReport `json:"deleted"`
	}
	decodeInto(t, rec, &body)
	assert.Equal(t, "account deleted", body.Message)
	assert.Equal(t, int64(1), body.Deleted.Goals)

	rec = ts.do(t, http.MethodGet, "/api/auth/me", ana.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAccountRouteReportsPartialDeletion(t *testing.T) {
	store := &flakyStore{MemoryStorage: storage.NewMemoryStorage()}
	ts := newTestServerOn(t, store)
	ana := ts.register(t, "Ana", "ana@example.com")
	ts.createGoal(t, ana.Token, goals.CreateInput{Title: "One", Type: models.GoalDiscrete})
	ts.createGoal(t, ana.Token, goals.CreateInput{Title: "Two", Type: models.GoalDiscrete})

	store.failFriendPull = true
	rec := ts.do(t, http.MethodDelete, "/api/auth/account", ana.Token, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Error   string              `json:"error"`
		Deleted auth.DeletionReport `json:"deleted"`
	}
	decodeInto(t, rec, &body)
	assert.Equal(t, "failed to remove friend connections", body.Error)
	assert.Equal(t, auth.DeletionReport{Goals: 2}, body.Deleted)

	remaining, err := store.FindGoalsByOwner(context.Background(), ana.User.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestReorderRouteReportsPartialUpdate(t *testing.T) {
	store := &flakyStore{MemoryStorage: storage.NewMemoryStorage()}
	ts := newTestServerOn(t, store)
	ana := ts.register(t, "Ana", "ana@example.com")
	a := ts.createGoal(t, ana.Token, goals.CreateInput{Title: "a", Type: models.GoalDiscrete})
	b := ts.createGoal(t, ana.Token, goals.CreateInput{Title: "b", Type: models.GoalDiscrete})
	c := ts.createGoal(t, ana.Token, goals.CreateInput{Title: "c", Type: models.GoalDiscrete})

	store.mu.Lock()
	store.failOrderWrites = true
	store.orderWritesLeft = 2
	store.mu.Unlock()

	rec := ts.do(t, http.MethodPost, "/api/goals/reorder", ana.Token, map[string][]string{
		"orderedIds": {c.ID.Hex(), b.ID.Hex(), a.ID.Hex()},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Error   string `json:"error"`
		Updated int    `json:"updated"`
	}
	decodeInto(t, rec, &body)
	assert.Equal(t, "failed to reorder goals", body.Error)
	assert.Equal(t, 2, body.Updated)
}

func TestTestNotification(t *testing.T) {
	ts := newTestServer(t)
	ana := ts.register(t, "Ana", "ana@example.com")
	rec := ts.do(t, http.MethodPost, "/api/push-token", ana.Token, map[string]string{"pushToken": "ExponentPushToken[ana]"})
	require.Equal(t, http.StatusOK, rec.Code)
	ts.createGoal(t, ana.Token, goals.CreateInput{Title: "Stretch", Type: models.GoalDiscrete, SubItems: []goals.SubItemInput{{Title: "a"}}})

	rec = ts.do(t, http.MethodPost, "/api/test-notification", ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ts.dispatcher.Wait()
	assert.Contains(t, ts.sender.titles(), reminders.Title)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", errorOf(t, rec))
}

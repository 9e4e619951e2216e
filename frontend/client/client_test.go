package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server"
	"github.com/jghoshh/goalpal/backend/server/auth"
	"github.com/jghoshh/goalpal/backend/server/friends"
	"github.com/jghoshh/goalpal/backend/server/goals"
	"github.com/jghoshh/goalpal/backend/server/notifications"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
	"github.com/jghoshh/goalpal/backend/server/reminders"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
)

type discardSender struct{}

func (discardSender) Send(ctx context.Context, msgs []push.Message) error { return nil }

func startBackend(t *testing.T) {
	t.Helper()
	keyring.MockInit()

	store := storage.NewMemoryStorage()
	dispatcher := notifications.NewDispatcher(store, discardSender{}, time.Second)
	srv := server.New(
		auth.NewService(store, "client-test-key", time.Hour),
		goals.NewService(store, dispatcher, goals.Options{}),
		friends.NewService(store, dispatcher),
		reminders.NewJob(store, discardSender{}),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		dispatcher.Wait()
	})

	InitClient(ts.URL, "test_token")
	t.Cleanup(func() { _ = ClearKeyring() })
}

func TestSessionLifecycle(t *testing.T) {
	startBackend(t)

	_, err := Me()
	assert.ErrorIs(t, err, ErrNotSignedIn)

	user, err := SignUp("Ana", "ana@example.com", "Test1234")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)

	_, err = SignIn("ana@example.com", "Test1234")
	assert.EqualError(t, err, "a user is already signed in")

	me, err := Me()
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	require.NoError(t, SignOut())
	assert.ErrorIs(t, SignOut(), ErrNotSignedIn)

	_, err = SignIn("ana@example.com", "Wrong1234")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = SignIn("ana@example.com", "Test1234")
	require.NoError(t, err)

	report, err := DeleteAccount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Goals)

	token, err := IsUserAuthenticated()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestGoalsAndFriends(t *testing.T) {
	startBackend(t)

	_, err := SignUp("Ben", "ben@example.com", "Test1234")
	require.NoError(t, err)
	require.NoError(t, SignOut())

	_, err = SignUp("Ana", "ana@example.com", "Test1234")
	require.NoError(t, err)

	goal, err := CreateGoal(goals.CreateInput{
		Title:    "Read",
		Type:     models.GoalDiscrete,
		SubItems: []goals.SubItemInput{{Title: "Chapter 1"}},
	})
	require.NoError(t, err)

	goal, err = ToggleSubItem(goal.ID.Hex(), goal.SubItems[0].ID)
	require.NoError(t, err)
	assert.True(t, goal.IsCompleted)

	list, err := Goals()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, SendFriendRequest("ben@example.com"))
	sent, err := SentRequests()
	require.NoError(t, err)
	require.Len(t, sent, 1)

	err = SendFriendRequest("ben@example.com")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	require.NoError(t, SignOut())
	_, err = SignIn("ben@example.com", "Test1234")
	require.NoError(t, err)

	incoming, err := IncomingRequests()
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.NoError(t, AcceptRequest(incoming[0].ID.Hex()))

	friendList, err := Friends()
	require.NoError(t, err)
	require.Len(t, friendList, 1)
	assert.Equal(t, "Ana", friendList[0].Name)
}

func TestExpiredTokenIsDiscarded(t *testing.T) {
	startBackend(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "000000000000000000000000",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString([]byte("whatever"))
	require.NoError(t, err)
	require.NoError(t, keyring.Set(KeyringService, KeyringKey, signed))

	token, err := IsUserAuthenticated()
	require.NoError(t, err)
	assert.Empty(t, token)

	_, err = keyring.Get(KeyringService, KeyringKey)
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestRejectedTokenClearsSession(t *testing.T) {
	startBackend(t)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "000000000000000000000000",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := foreign.SignedString([]byte("another-key"))
	require.NoError(t, err)
	require.NoError(t, keyring.Set(KeyringService, KeyringKey, signed))

	_, err = Goals()
	assert.ErrorIs(t, err, ErrSessionExpired)

	token, err := IsUserAuthenticated()
	require.NoError(t, err)
	assert.Empty(t, token)
}

package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []push.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msgs []push.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msgs...)
	return s.err
}

func (s *recordingSender) sent() []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]push.Message(nil), s.msgs...)
}

type fixture struct {
	store      *storage.MemoryStorage
	sender     *recordingSender
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	store := storage.NewMemoryStorage()
	sender := &recordingSender{}
	return &fixture{store: store, sender: sender, dispatcher: NewDispatcher(store, sender, time.Second)}
}

func (f *fixture) user(t *testing.T, name string, tokens ...string) *models.User {
	t.Helper()
	ctx := context.Background()
	user, err := f.store.AddUser(ctx, &models.User{Name: name, Email: name + "@example.com"})
	require.NoError(t, err)
	for _, token := range tokens {
		require.NoError(t, f.store.UpsertPushToken(ctx, token, user.ID))
	}
	return user
}

func (f *fixture) befriend(t *testing.T, a, b *models.User) {
	t.Helper()
	_, err := f.store.AddFriend(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.store.AddFriend(context.Background(), b.ID, a.ID)
	require.NoError(t, err)
}

func recipients(msgs []push.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.To)
	}
	return out
}

func TestGoalCompletedReachesFriendsWithTokens(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "Ana", "ExponentPushToken[owner]")
	withTwo := f.user(t, "Ben", "ExponentPushToken[ben-1]", "ExponentPushToken[ben-2]")
	without := f.user(t, "Cy")
	f.befriend(t, owner, withTwo)
	f.befriend(t, owner, without)

	goal := models.Goal{ID: primitive.NewObjectID(), UserID: owner.ID, Title: "Run 5k"}
	f.dispatcher.GoalCompleted(goal)
	f.dispatcher.Wait()

	msgs := f.sender.sent()
	assert.ElementsMatch(t, []string{"ExponentPushToken[ben-1]", "ExponentPushToken[ben-2]"}, recipients(msgs))
	for _, msg := range msgs {
		assert.Equal(t, "Ana achieved a goal!", msg.Title)
		assert.Equal(t, "Run 5k", msg.Body)
		assert.Equal(t, TypeGoalCompleted, msg.Data["type"])
	}
}

func TestSubGoalCompletedBody(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "Ana")
	friend := f.user(t, "Ben", "ExponentPushToken[ben]")
	f.befriend(t, owner, friend)

	goal := models.Goal{ID: primitive.NewObjectID(), UserID: owner.ID, Title: "Marathon"}
	f.dispatcher.SubGoalCompleted(goal, models.SubItem{ID: "s1", Title: "Long run"})
	f.dispatcher.Wait()

	msgs := f.sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Ana achieved a subgoal!", msgs[0].Title)
	assert.Equal(t, "Marathon - Long run", msgs[0].Body)
}

func TestSharedGoalUpdatedExcludesUpdater(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "Ana", "ExponentPushToken[ana]")
	editor := f.user(t, "Ben", "ExponentPushToken[ben]")
	watcher := f.user(t, "Cy", "ExponentPushToken[cy]")

	goal := models.Goal{
		ID: primitive.NewObjectID(), UserID: owner.ID, Title: "Garden",
		SharedWith: []primitive.ObjectID{editor.ID, watcher.ID},
	}
	f.dispatcher.SharedGoalUpdated(goal, editor.ID)
	f.dispatcher.Wait()

	msgs := f.sender.sent()
	assert.ElementsMatch(t, []string{"ExponentPushToken[ana]", "ExponentPushToken[cy]"}, recipients(msgs))
	assert.Equal(t, "Ben updated shared goal", msgs[0].Title)
	assert.Equal(t, "Garden has been updated", msgs[0].Body)
}

func TestAddedToGoalTargetsOnlyNewMember(t *testing.T) {
	f := newFixture()
	owner := f.user(t, "Ana", "ExponentPushToken[ana]")
	existing := f.user(t, "Ben", "ExponentPushToken[ben]")
	added := f.user(t, "Cy", "ExponentPushToken[cy]")

	goal := models.Goal{ID: primitive.NewObjectID(), UserID: owner.ID, Title: "Read", SharedWith: []primitive.ObjectID{existing.ID, added.ID}}
	f.dispatcher.AddedToGoal(goal, added.ID)
	f.dispatcher.Wait()

	msgs := f.sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ExponentPushToken[cy]", msgs[0].To)
	assert.Equal(t, "Ana added you to a goal!", msgs[0].Title)
}

func TestFriendRequestMessages(t *testing.T) {
	f := newFixture()
	sender := f.user(t, "Ana", "ExponentPushToken[ana]")
	recipient := f.user(t, "Ben", "ExponentPushToken[ben]")
	req := models.FriendRequest{ID: primitive.NewObjectID(), SenderID: sender.ID, RecipientID: recipient.ID}

	f.dispatcher.FriendRequestSent(req)
	f.dispatcher.Wait()
	f.dispatcher.FriendRequestAccepted(req)
	f.dispatcher.Wait()

	msgs := f.sender.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ExponentPushToken[ben]", msgs[0].To)
	assert.Equal(t, "New Friend Request", msgs[0].Title)
	assert.Equal(t, "Ana wants to be your friend!", msgs[0].Body)
	assert.Equal(t, "ExponentPushToken[ana]", msgs[1].To)
	assert.Equal(t, "Friend Request Accepted", msgs[1].Title)
	assert.Equal(t, "Ben accepted your friend request!", msgs[1].Body)
}

func TestSendFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("transport down")
	owner := f.user(t, "Ana")
	friend := f.user(t, "Ben", "ExponentPushToken[ben]")
	f.befriend(t, owner, friend)

	assert.NotPanics(t, func() {
		f.dispatcher.GoalCompleted(models.Goal{UserID: owner.ID, Title: "x"})
		f.dispatcher.Wait()
	})
}

func TestUnknownUserSendsNothing(t *testing.T) {
	f := newFixture()
	f.dispatcher.GoalCompleted(models.Goal{UserID: primitive.NewObjectID(), Title: "x"})
	f.dispatcher.Wait()
	assert.Empty(t, f.sender.sent())
}

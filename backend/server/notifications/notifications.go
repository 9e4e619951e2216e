// Package notifications turns goal and friendship events into push messages.
//
// Every trigger returns immediately. Audience lookup and delivery happen on a
// tracked goroutine with its own deadline, detached from the request that
// caused the event, and failures are logged and dropped.
package notifications

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
)

// Event types carried in the data payload of every message.
const (
	TypeGoalCompleted         = "goal_completed"
	TypeSubGoalCompleted      = "subgoal_completed"
	TypeSharedGoalUpdated     = "shared_goal_updated"
	TypeAddedToGoal           = "added_to_goal"
	TypeFriendRequest         = "friend_request"
	TypeFriendRequestAccepted = "friend_request_accepted"
	TypeDailyReminder         = "daily_reminder"
)

const defaultDispatchTimeout = 30 * time.Second

// Sender hands a batch of messages to a push transport.
type Sender interface {
	Send(ctx context.Context, msgs []push.Message) error
}

// Directory is the part of the store the dispatcher reads audiences from.
type Directory interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindPushTokensByUsers(ctx context.Context, userIDs []primitive.ObjectID) ([]models.PushToken, error)
}

// Dispatcher computes audiences for events and sends them through a Sender.
type Dispatcher struct {
	directory Directory
	sender    Sender
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A non-positive timeout selects the default.
func NewDispatcher(directory Directory, sender Sender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{directory: directory, sender: sender, timeout: timeout}
}

// Wait blocks until every dispatch started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(event string, build func(ctx context.Context) ([]push.Message, error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		msgs, err := build(ctx)
		if err != nil {
			log.Printf("notification %s: %v", event, err)
			return
		}
		if len(msgs) == 0 {
			return
		}
		if err := d.sender.Send(ctx, msgs); err != nil {
			log.Printf("notification %s: failed to send %d messages: %v", event, len(msgs), err)
		}
	}()
}

// tokens returns every push token registered to any of userIDs.
func (d *Dispatcher) tokens(ctx context.Context, userIDs []primitive.ObjectID) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	records, err := d.directory.FindPushTokensByUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load push tokens: %w", err)
	}
	tokens := make([]string, 0, len(records))
	for _, record := range records {
		tokens = append(tokens, record.Token)
	}
	return tokens, nil
}

func (d *Dispatcher) user(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := d.directory.FindUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id.Hex(), err)
	}
	return user, nil
}

// fanOut builds one message per token held by any of userIDs.
func (d *Dispatcher) fanOut(ctx context.Context, userIDs []primitive.ObjectID, title, body string, data map[string]interface{}) ([]push.Message, error) {
	tokens, err := d.tokens(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	msgs := make([]push.Message, 0, len(tokens))
	for _, token := range tokens {
		msgs = append(msgs, push.NewMessage(token, title, body, data))
	}
	return msgs, nil
}

func goalData(kind string, goal models.Goal) map[string]interface{} {
	return map[string]interface{}{"type": kind, "goalId": goal.ID.Hex()}
}

// GoalCompleted tells the owner's friends that goal was just completed.
func (d *Dispatcher) GoalCompleted(goal models.Goal) {
	d.dispatch(TypeGoalCompleted, func(ctx context.Context) ([]push.Message, error) {
		owner, err := d.user(ctx, goal.UserID)
		if err != nil {
			return nil, err
		}
		return d.fanOut(ctx, owner.Friends,
			fmt.Sprintf("%s achieved a goal!", owner.Name),
			goal.Title,
			goalData(TypeGoalCompleted, goal))
	})
}

// SubGoalCompleted tells the owner's friends that one sub-item of goal was just completed.
func (d *Dispatcher) SubGoalCompleted(goal models.Goal, item models.SubItem) {
	d.dispatch(TypeSubGoalCompleted, func(ctx context.Context) ([]push.Message, error) {
		owner, err := d.user(ctx, goal.UserID)
		if err != nil {
			return nil, err
		}
		data := goalData(TypeSubGoalCompleted, goal)
		data["subItemId"] = item.ID
		return d.fanOut(ctx, owner.Friends,
			fmt.Sprintf("%s achieved a subgoal!", owner.Name),
			fmt.Sprintf("%s - %s", goal.Title, item.Title),
			data)
	})
}

// SharedGoalUpdated tells everyone with access to goal, except updaterID, that it changed.
func (d *Dispatcher) SharedGoalUpdated(goal models.Goal, updaterID primitive.ObjectID) {
	d.dispatch(TypeSharedGoalUpdated, func(ctx context.Context) ([]push.Message, error) {
		updater, err := d.user(ctx, updaterID)
		if err != nil {
			return nil, err
		}

		audience := make([]primitive.ObjectID, 0, len(goal.SharedWith)+1)
		for _, id := range append([]primitive.ObjectID{goal.UserID}, goal.SharedWith...) {
			if id != updaterID {
				audience = append(audience, id)
			}
		}

		return d.fanOut(ctx, audience,
			fmt.Sprintf("%s updated shared goal", updater.Name),
			fmt.Sprintf("%s has been updated", goal.Title),
			goalData(TypeSharedGoalUpdated, goal))
	})
}

// AddedToGoal tells userID that the owner of goal shared it with them.
func (d *Dispatcher) AddedToGoal(goal models.Goal, userID primitive.ObjectID) {
	d.dispatch(TypeAddedToGoal, func(ctx context.Context) ([]push.Message, error) {
		owner, err := d.user(ctx, goal.UserID)
		if err != nil {
			return nil, err
		}
		return d.fanOut(ctx, []primitive.ObjectID{userID},
			fmt.Sprintf("%s added you to a goal!", owner.Name),
			goal.Title,
			goalData(TypeAddedToGoal, goal))
	})
}

// FriendRequestSent tells the recipient about a new request.
func (d *Dispatcher) FriendRequestSent(req models.FriendRequest) {
	d.dispatch(TypeFriendRequest, func(ctx context.Context) ([]push.Message, error) {
		sender, err := d.user(ctx, req.SenderID)
		if err != nil {
			return nil, err
		}
		return d.fanOut(ctx, []primitive.ObjectID{req.RecipientID},
			"New Friend Request",
			fmt.Sprintf("%s wants to be your friend!", sender.Name),
			map[string]interface{}{"type": TypeFriendRequest, "requestId": req.ID.Hex()})
	})
}

// FriendRequestAccepted tells the original sender that the recipient accepted.
func (d *Dispatcher) FriendRequestAccepted(req models.FriendRequest) {
	d.dispatch(TypeFriendRequestAccepted, func(ctx context.Context) ([]push.Message, error) {
		recipient, err := d.user(ctx, req.RecipientID)
		if err != nil {
			return nil, err
		}
		return d.fanOut(ctx, []primitive.ObjectID{req.SenderID},
			"Friend Request Accepted",
			fmt.Sprintf("%s accepted your friend request!", recipient.Name),
			map[string]interface{}{"type": TypeFriendRequestAccepted, "requestId": req.ID.Hex()})
	})
}

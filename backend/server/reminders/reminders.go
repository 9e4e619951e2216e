// Package reminders builds the daily "top priorities" push reminder.
package reminders

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/completion"
	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/notifications"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
)

const (
	// DefaultSchedule runs the reminder every day at 08:00 server time.
	DefaultSchedule = "0 8 * * *"

	// TopGoals is how many goals a reminder lists at most.
	TopGoals = 3

	Title = "🎯 Daily Goal Reminder"

	runTimeout = 5 * time.Minute
)

// Store is the part of the persistent storage the job needs.
type Store interface {
	FindAllPushTokens(ctx context.Context) ([]models.PushToken, error)
	FindGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Goal, error)
	ReplaceGoal(ctx context.Context, goal *models.Goal) error
}

// Summary reports what a run did.
type Summary struct {
	Users    int `json:"users"`
	Messages int `json:"messages"`
	Resets   int `json:"resets"`
}

type Job struct {
	store  Store
	sender notifications.Sender
	now    func() time.Time
}

func NewJob(store Store, sender notifications.Sender) *Job {
	return &Job{store: store, sender: sender, now: time.Now}
}

// Run sends one reminder per registered token to every user with at least one
// incomplete goal. Continuous goals are reconciled, and resets persisted, before
// incompleteness is judged.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	tokens, err := j.store.FindAllPushTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load push tokens: %w", err)
	}

	byUser := make(map[primitive.ObjectID][]string)
	var users []primitive.ObjectID
	for _, token := range tokens {
		if _, seen := byUser[token.UserID]; !seen {
			users = append(users, token.UserID)
		}
		byUser[token.UserID] = append(byUser[token.UserID], token.Token)
	}

	summary := &Summary{}
	var msgs []push.Message
	for _, userID := range users {
		top, resets, err := j.topGoals(ctx, userID)
		summary.Resets += resets
		if err != nil {
			log.Printf("daily reminder: skipping user %s: %v", userID.Hex(), err)
			continue
		}
		if len(top) == 0 {
			continue
		}

		body := Body(top)
		added := 0
		for _, token := range byUser[userID] {
			if !push.IsValidToken(token) {
				log.Printf("daily reminder: invalid token %q", token)
				continue
			}
			msgs = append(msgs, push.NewMessage(token, Title, body,
				map[string]interface{}{"type": notifications.TypeDailyReminder}))
			added++
		}
		if added > 0 {
			summary.Users++
			summary.Messages += added
		}
	}

	if len(msgs) == 0 {
		log.Printf("daily reminder: no notifications to send")
		return summary, nil
	}
	if err := j.sender.Send(ctx, msgs); err != nil {
		return summary, fmt.Errorf("failed to send daily reminders: %w", err)
	}
	log.Printf("daily reminder: sent %d notifications to %d users", summary.Messages, summary.Users)
	return summary, nil
}

// topGoals reconciles every goal owned by userID and returns the incomplete
// ones ranked by priority descending then order ascending, at most TopGoals.
func (j *Job) topGoals(ctx context.Context, userID primitive.ObjectID) ([]models.Goal, int, error) {
	goals, err := j.store.FindGoalsByOwner(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	now := j.now()
	resets := 0
	incomplete := make([]models.Goal, 0, len(goals))
	for _, goal := range goals {
		current, reset := completion.Reconcile(goal, now)
		if reset {
			if err := j.store.ReplaceGoal(ctx, &current); err != nil {
				log.Printf("daily reminder: failed to persist reset of goal %s: %v", current.ID.Hex(), err)
			} else {
				resets++
			}
		}
		if !current.IsCompleted {
			incomplete = append(incomplete, current)
		}
	}

	Rank(incomplete)
	if len(incomplete) > TopGoals {
		incomplete = incomplete[:TopGoals]
	}
	return incomplete, resets, nil
}

// Rank sorts goals by priority descending, then order ascending.
func Rank(goals []models.Goal) {
	sort.SliceStable(goals, func(a, b int) bool {
		if goals[a].Priority != goals[b].Priority {
			return goals[a].Priority > goals[b].Priority
		}
		return goals[a].Order < goals[b].Order
	})
}

// Body renders the bulleted reminder text for goals.
func Body(goals []models.Goal) string {
	lines := make([]string, 0, len(goals))
	for _, goal := range goals {
		lines = append(lines, "• "+goal.Title)
	}
	return fmt.Sprintf("Your top priorities:\n%s\n\nTap to see all goals", strings.Join(lines, "\n"))
}

// Schedule runs the job on the given cron spec until the returned cron is stopped.
func (j *Job) Schedule(spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if _, err := j.Run(ctx); err != nil {
			log.Printf("daily reminder failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}

	c.Start()
	return c, nil
}

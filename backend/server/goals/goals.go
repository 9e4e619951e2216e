// Package goals implements the goal operations: creation, listing, updates,
// sub-item mutation, ordering and sharing. Every read path goes through
// completion.Reconcile, and every change to sub-items recomputes IsCompleted
// before the goal is persisted. Notifications are only raised after the write
// succeeded.
package goals

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/completion"
	"github.com/jghoshh/goalpal/backend/errs"
	"github.com/jghoshh/goalpal/backend/models"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
)

// Store is the part of the persistent storage the goal service uses.
type Store interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	FindGoalByID(ctx context.Context, id primitive.ObjectID) (*models.Goal, error)
	FindGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Goal, error)
	FindGoalsByOwnerOrShared(ctx context.Context, userID primitive.ObjectID) ([]models.Goal, error)
	ReplaceGoal(ctx context.Context, goal *models.Goal) error
	SetGoalOrder(ctx context.Context, goalID, ownerID primitive.ObjectID, order int) error
	DeleteGoal(ctx context.Context, id primitive.ObjectID) (*storage.DeleteResult, error)
	GoalCount(ctx context.Context, ownerID primitive.ObjectID) (int64, error)
}

// Notifier receives goal events once they are persisted. Implementations must not block.
type Notifier interface {
	GoalCompleted(goal models.Goal)
	SubGoalCompleted(goal models.Goal, item models.SubItem)
	SharedGoalUpdated(goal models.Goal, updaterID primitive.ObjectID)
	AddedToGoal(goal models.Goal, userID primitive.ObjectID)
}

// Options toggles behavior that differs between deployments.
type Options struct {
	// OwnerOnlyGet hides shared goals from Get. List still returns them.
	OwnerOnlyGet bool
}

type Service struct {
	store    Store
	notifier Notifier
	opts     Options
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, opts Options) *Service {
	return &Service{store: store, notifier: notifier, opts: opts, now: time.Now}
}

// SubItemInput describes a sub-item in a create or full update request.
// An ID matching an existing sub-item keeps that item's identity.
type SubItemInput struct {
	ID           string             `json:"id,omitempty"`
	Title        string             `json:"title"`
	Type         models.SubItemType `json:"type"`
	IsChecked    bool               `json:"isChecked"`
	CurrentValue float64            `json:"currentValue"`
	TargetValue  float64            `json:"targetValue"`
}

type CreateInput struct {
	Title          string                `json:"title"`
	Type           models.GoalType       `json:"type"`
	ResetFrequency models.ResetFrequency `json:"resetFrequency"`
	Color          string                `json:"color"`
	Priority       int                   `json:"priority"`
	SubItems       []SubItemInput        `json:"subItems"`
}

// GoalPatch lists the goal fields a caller may change. Nil fields are left alone.
// Ownership, sharing and ordering are deliberately absent.
type GoalPatch struct {
	Title          *string                `json:"title"`
	Color          *string                `json:"color"`
	Priority       *int                   `json:"priority"`
	SubItems       *[]SubItemInput        `json:"subItems"`
	ResetFrequency *models.ResetFrequency `json:"resetFrequency"`
}

// SubItemPatch lists the sub-item fields a caller may change. Nil fields are left alone.
type SubItemPatch struct {
	Title        *string  `json:"title"`
	IsChecked    *bool    `json:"isChecked"`
	CurrentValue *float64 `json:"currentValue"`
	TargetValue  *float64 `json:"targetValue"`
}

// ReorderResult reports how many goals were written and the caller's goals afterwards.
type ReorderResult struct {
	Updated int           `json:"updated"`
	Goals   []models.Goal `json:"goals"`
}

func unexpected(message string, err error) error {
	log.Printf("%s: %v", message, err)
	return errs.Unexpected(message, err)
}

// observe returns goal as the caller should see it, persisting a due reset.
func (s *Service) observe(ctx context.Context, goal models.Goal) models.Goal {
	current, reset := completion.Reconcile(goal, s.now())
	if reset {
		current.UpdatedAt = s.now()
		if err := s.store.ReplaceGoal(ctx, &current); err != nil {
			log.Printf("failed to persist reset of goal %s: %v", current.ID.Hex(), err)
		}
	}
	current.Progress = completion.Percent(current.SubItems)
	return current
}

func (s *Service) observeAll(ctx context.Context, goals []models.Goal) []models.Goal {
	out := make([]models.Goal, 0, len(goals))
	for _, goal := range goals {
		out = append(out, s.observe(ctx, goal))
	}
	return out
}

// load fetches a goal and reconciles it. Missing goals are NotFound.
func (s *Service) load(ctx context.Context, goalID primitive.ObjectID) (models.Goal, error) {
	goal, err := s.store.FindGoalByID(ctx, goalID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Goal{}, errs.NotFound("goal not found")
	}
	if err != nil {
		return models.Goal{}, unexpected("failed to fetch goal", err)
	}
	return s.observe(ctx, *goal), nil
}

// loadWritable fetches a goal the caller may write to; anything else is NotFound.
func (s *Service) loadWritable(ctx context.Context, callerID, goalID primitive.ObjectID) (models.Goal, error) {
	goal, err := s.load(ctx, goalID)
	if err != nil {
		return models.Goal{}, err
	}
	if !goal.CanWrite(callerID) {
		return models.Goal{}, errs.NotFound("goal not found")
	}
	return goal, nil
}

// loadOwned fetches a goal the caller owns. Invisible goals are NotFound,
// goals merely shared with the caller are Forbidden.
func (s *Service) loadOwned(ctx context.Context, callerID, goalID primitive.ObjectID) (models.Goal, error) {
	goal, err := s.load(ctx, goalID)
	if err != nil {
		return models.Goal{}, err
	}
	if goal.IsOwner(callerID) {
		return goal, nil
	}
	if goal.IsSharedWith(callerID) {
		return models.Goal{}, errs.Forbidden("only the owner can do this")
	}
	return models.Goal{}, errs.NotFound("goal not found")
}

func (s *Service) save(ctx context.Context, goal *models.Goal) error {
	goal.UpdatedAt = s.now()
	goal.Progress = completion.Percent(goal.SubItems)
	err := s.store.ReplaceGoal(ctx, goal)
	if errors.Is(err, storage.ErrNotFound) {
		return errs.NotFound("goal not found")
	}
	if err != nil {
		return unexpected("failed to save goal", err)
	}
	return nil
}

func (s *Service) buildSubItems(inputs []SubItemInput, existing []models.SubItem) ([]models.SubItem, error) {
	byID := make(map[string]models.SubItem, len(existing))
	for _, item := range existing {
		byID[item.ID] = item
	}

	now := s.now()
	items := make([]models.SubItem, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return nil, errs.Validation("sub-item title is required")
		}
		if in.Type == "" {
			in.Type = models.SubItemCheckbox
		}
		if !in.Type.Valid() {
			return nil, errs.Validation("invalid sub-item type %q", in.Type)
		}

		item := models.SubItem{ID: in.ID, Title: title, Type: in.Type, Order: i}
		prev, known := byID[in.ID]
		if !known || seen[in.ID] {
			item.ID = uuid.NewString()
		}
		seen[item.ID] = true

		switch item.Type {
		case models.SubItemCheckbox:
			item.IsChecked = in.IsChecked
			if item.IsChecked {
				if known && prev.IsChecked && prev.CompletedAt != nil {
					item.CompletedAt = prev.CompletedAt
				} else {
					checkedAt := now
					item.CompletedAt = &checkedAt
				}
			}
		case models.SubItemProgress:
			item.TargetValue = in.TargetValue
			if item.TargetValue == 0 {
				item.TargetValue = models.DefaultTargetValue
			}
			if item.TargetValue < 0 {
				return nil, errs.Validation("targetValue must be positive")
			}
			if in.CurrentValue < 0 {
				return nil, errs.Validation("currentValue must not be negative")
			}
			item.CurrentValue = in.CurrentValue
		}
		items = append(items, item)
	}
	return items, nil
}

// Create adds a goal for ownerID at the end of the owner's order.
func (s *Service) Create(ctx context.Context, ownerID primitive.ObjectID, in CreateInput) (*models.Goal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.Validation("title is required")
	}
	if !in.Type.Valid() {
		return nil, errs.Validation("type must be discrete or continuous")
	}
	if !in.ResetFrequency.Valid() {
		return nil, errs.Validation("invalid reset frequency %q", in.ResetFrequency)
	}

	items, err := s.buildSubItems(in.SubItems, nil)
	if err != nil {
		return nil, err
	}

	count, err := s.store.GoalCount(ctx, ownerID)
	if err != nil {
		return nil, unexpected("failed to count goals", err)
	}

	now := s.now()
	goal := &models.Goal{
		UserID:         ownerID,
		Title:          title,
		Type:           in.Type,
		ResetFrequency: in.ResetFrequency,
		SubItems:       items,
		IsCompleted:    completion.IsComplete(items),
		Priority:       in.Priority,
		Order:          int(count),
		Color:          in.Color,
		SharedWith:     []primitive.ObjectID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if goal.Color == "" {
		goal.Color = models.DefaultGoalColor
	}
	if goal.Type == models.GoalContinuous {
		goal.LastResetDate = &now
	}

	goal, err = s.store.AddGoal(ctx, goal)
	if err != nil {
		return nil, unexpected("failed to create goal", err)
	}
	goal.Progress = completion.Percent(goal.SubItems)
	return goal, nil
}

// List returns goals owned by or shared with callerID, by position.
func (s *Service) List(ctx context.Context, callerID primitive.ObjectID) ([]models.Goal, error) {
	goals, err := s.store.FindGoalsByOwnerOrShared(ctx, callerID)
	if err != nil {
		return nil, unexpected("failed to fetch goals", err)
	}
	return s.observeAll(ctx, goals), nil
}

// Feed returns the caller's own goals, newest first.
func (s *Service) Feed(ctx context.Context, callerID primitive.ObjectID) ([]models.Goal, error) {
	goals, err := s.store.FindGoalsByOwner(ctx, callerID)
	if err != nil {
		return nil, unexpected("failed to fetch goals", err)
	}
	out := s.observeAll(ctx, goals)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns a single goal visible to callerID.
func (s *Service) Get(ctx context.Context, callerID, goalID primitive.ObjectID) (*models.Goal, error) {
	goal, err := s.load(ctx, goalID)
	if err != nil {
		return nil, err
	}
	visible := goal.CanWrite(callerID)
	if s.opts.OwnerOnlyGet {
		visible = goal.IsOwner(callerID)
	}
	if !visible {
		return nil, errs.NotFound("goal not found")
	}
	return &goal, nil
}

// Update applies patch to a goal the caller owns or shares.
func (s *Service) Update(ctx context.Context, callerID, goalID primitive.ObjectID, patch GoalPatch) (*models.Goal, error) {
	goal, err := s.loadWritable(ctx, callerID, goalID)
	if err != nil {
		return nil, err
	}
	wasCompleted := goal.IsCompleted

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, errs.Validation("title is required")
		}
		goal.Title = title
	}
	if patch.Color != nil {
		goal.Color = *patch.Color
	}
	if patch.Priority != nil {
		goal.Priority = *patch.Priority
	}
	if patch.ResetFrequency != nil {
		if !patch.ResetFrequency.Valid() {
			return nil, errs.Validation("invalid reset frequency %q", *patch.ResetFrequency)
		}
		goal.ResetFrequency = *patch.ResetFrequency
	}
	if patch.SubItems != nil {
		items, err := s.buildSubItems(*patch.SubItems, goal.SubItems)
		if err != nil {
			return nil, err
		}
		goal.SubItems = items
	}
	goal.IsCompleted = completion.IsComplete(goal.SubItems)

	if err := s.save(ctx, &goal); err != nil {
		return nil, err
	}

	if !wasCompleted && goal.IsCompleted {
		s.notifier.GoalCompleted(goal)
	}
	if len(goal.SharedWith) > 0 {
		s.notifier.SharedGoalUpdated(goal, callerID)
	}
	return &goal, nil
}

// Delete removes a goal owned by callerID and closes the gap in the owner's order.
func (s *Service) Delete(ctx context.Context, callerID, goalID primitive.ObjectID) error {
	if _, err := s.loadOwned(ctx, callerID, goalID); err != nil {
		return err
	}

	result, err := s.store.DeleteGoal(ctx, goalID)
	if err != nil {
		return unexpected("failed to delete goal", err)
	}
	if result.DeletedCount == 0 {
		return errs.NotFound("goal not found")
	}

	remaining, err := s.store.FindGoalsByOwner(ctx, callerID)
	if err != nil {
		log.Printf("failed to compact goal order for %s: %v", callerID.Hex(), err)
		return nil
	}
	for i, goal := range remaining {
		if goal.Order == i {
			continue
		}
		if err := s.store.SetGoalOrder(ctx, goal.ID, callerID, i); err != nil {
			log.Printf("failed to compact order of goal %s: %v", goal.ID.Hex(), err)
		}
	}
	return nil
}

// Reorder assigns order = index for every id in orderedIDs. The ids must be
// exactly the caller's goals, each once; otherwise nothing is written.
func (s *Service) Reorder(ctx context.Context, callerID primitive.ObjectID, orderedIDs []primitive.ObjectID) (*ReorderResult, error) {
	if len(orderedIDs) == 0 {
		return nil, errs.Validation("orderedIds is required")
	}

	owned, err := s.store.FindGoalsByOwner(ctx, callerID)
	if err != nil {
		return nil, unexpected("failed to fetch goals", err)
	}
	ownedIDs := make(map[primitive.ObjectID]bool, len(owned))
	for _, goal := range owned {
		ownedIDs[goal.ID] = true
	}

	seen := make(map[primitive.ObjectID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !ownedIDs[id] {
			return nil, errs.Validation("goal %s does not belong to you", id.Hex())
		}
		if seen[id] {
			return nil, errs.Validation("goal %s is listed twice", id.Hex())
		}
		seen[id] = true
	}
	if len(seen) != len(ownedIDs) {
		return nil, errs.Validation("orderedIds must list every goal")
	}

	result := &ReorderResult{}
	for i, id := range orderedIDs {
		if err := s.store.SetGoalOrder(ctx, id, callerID, i); err != nil {
			return result, unexpected("failed to reorder goals", err)
		}
		result.Updated++
	}

	goals, err := s.store.FindGoalsByOwner(ctx, callerID)
	if err != nil {
		return result, unexpected("failed to fetch goals", err)
	}
	result.Goals = s.observeAll(ctx, goals)
	return result, nil
}

// mutateSubItem loads a writable goal, lets mutate change one sub-item, then
// persists and raises completion and sharing notifications.
func (s *Service) mutateSubItem(ctx context.Context, callerID, goalID primitive.ObjectID, subItemID string, mutate func(item *models.SubItem) error) (*models.Goal, error) {
	goal, err := s.loadWritable(ctx, callerID, goalID)
	if err != nil {
		return nil, err
	}
	item := goal.SubItem(subItemID)
	if item == nil {
		return nil, errs.NotFound("sub-item not found")
	}

	wasSatisfied := completion.IsSatisfied(*item)
	wasCompleted := goal.IsCompleted

	if err := mutate(item); err != nil {
		return nil, err
	}
	if item.Type == models.SubItemCheckbox {
		switch {
		case item.IsChecked && !wasSatisfied:
			checkedAt := s.now()
			item.CompletedAt = &checkedAt
		case !item.IsChecked:
			item.CompletedAt = nil
		}
	}
	nowSatisfied := completion.IsSatisfied(*item)
	changed := *item
	goal.IsCompleted = completion.IsComplete(goal.SubItems)

	if err := s.save(ctx, &goal); err != nil {
		return nil, err
	}

	if !wasSatisfied && nowSatisfied {
		s.notifier.SubGoalCompleted(goal, changed)
	}
	if !wasCompleted && goal.IsCompleted {
		s.notifier.GoalCompleted(goal)
	}
	if len(goal.SharedWith) > 0 {
		s.notifier.SharedGoalUpdated(goal, callerID)
	}
	return &goal, nil
}

// ToggleSubItem flips a checkbox, or moves a progress item between zero and its target.
func (s *Service) ToggleSubItem(ctx context.Context, callerID, goalID primitive.ObjectID, subItemID string) (*models.Goal, error) {
	return s.mutateSubItem(ctx, callerID, goalID, subItemID, func(item *models.SubItem) error {
		switch item.Type {
		case models.SubItemCheckbox:
			item.IsChecked = !item.IsChecked
		case models.SubItemProgress:
			if completion.IsSatisfied(*item) {
				item.CurrentValue = 0
			} else {
				item.CurrentValue = item.TargetValue
			}
		}
		return nil
	})
}

// UpdateSubItem applies patch to one sub-item.
func (s *Service) UpdateSubItem(ctx context.Context, callerID, goalID primitive.ObjectID, subItemID string, patch SubItemPatch) (*models.Goal, error) {
	return s.mutateSubItem(ctx, callerID, goalID, subItemID, func(item *models.SubItem) error {
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return errs.Validation("sub-item title is required")
			}
			item.Title = title
		}
		if patch.IsChecked != nil {
			if item.Type != models.SubItemCheckbox {
				return errs.Validation("isChecked only applies to checkbox sub-items")
			}
			item.IsChecked = *patch.IsChecked
		}
		if patch.TargetValue != nil {
			if item.Type != models.SubItemProgress {
				return errs.Validation("targetValue only applies to progress sub-items")
			}
			if *patch.TargetValue <= 0 {
				return errs.Validation("targetValue must be positive")
			}
			item.TargetValue = *patch.TargetValue
		}
		if patch.CurrentValue != nil {
			if item.Type != models.SubItemProgress {
				return errs.Validation("currentValue only applies to progress sub-items")
			}
			if *patch.CurrentValue < 0 {
				return errs.Validation("currentValue must not be negative")
			}
			item.CurrentValue = *patch.CurrentValue
		}
		return nil
	})
}

// Share adds userID to the goal's share set.
func (s *Service) Share(ctx context.Context, callerID, goalID, userID primitive.ObjectID) (*models.Goal, error) {
	goal, err := s.loadOwned(ctx, callerID, goalID)
	if err != nil {
		return nil, err
	}
	if userID == callerID {
		return nil, errs.Validation("you already own this goal")
	}
	if goal.IsSharedWith(userID) {
		return nil, errs.Conflict("goal is already shared with this user")
	}

	_, err = s.store.FindUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("user not found")
	}
	if err != nil {
		return nil, unexpected("failed to fetch user", err)
	}

	goal.SharedWith = append(goal.SharedWith, userID)
	if err := s.save(ctx, &goal); err != nil {
		return nil, err
	}

	s.notifier.AddedToGoal(goal, userID)
	return &goal, nil
}

// Unshare removes userID from the goal's share set. Removing someone who is not there is a no-op.
func (s *Service) Unshare(ctx context.Context, callerID, goalID, userID primitive.ObjectID) (*models.Goal, error) {
	goal, err := s.loadOwned(ctx, callerID, goalID)
	if err != nil {
		return nil, err
	}
	if !goal.IsSharedWith(userID) {
		return &goal, nil
	}

	shared := make([]primitive.ObjectID, 0, len(goal.SharedWith))
	for _, id := range goal.SharedWith {
		if id != userID {
			shared = append(shared, id)
		}
	}
	goal.SharedWith = shared

	if err := s.save(ctx, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

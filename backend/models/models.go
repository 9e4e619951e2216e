package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultGoalColor is the color assigned to goals created without one.
const DefaultGoalColor = "#E8B4B8"

// DefaultTargetValue is the target assigned to progress sub-items created without one.
const DefaultTargetValue = 100

type GoalType string

const (
	GoalDiscrete   GoalType = "discrete"
	GoalContinuous GoalType = "continuous"
)

// Valid reports whether t is one of the known goal types.
func (t GoalType) Valid() bool {
	return t == GoalDiscrete || t == GoalContinuous
}

type ResetFrequency string

const (
	ResetNone    ResetFrequency = ""
	ResetDaily   ResetFrequency = "daily"
	ResetWeekly  ResetFrequency = "weekly"
	ResetMonthly ResetFrequency = "monthly"
)

// Valid reports whether f is a known frequency. The empty frequency is valid and means "never".
func (f ResetFrequency) Valid() bool {
	switch f {
	case ResetNone, ResetDaily, ResetWeekly, ResetMonthly:
		return true
	}
	return false
}

type SubItemType string

const (
	SubItemCheckbox SubItemType = "checkbox"
	SubItemProgress SubItemType = "progress"
)

func (t SubItemType) Valid() bool {
	return t == SubItemCheckbox || t == SubItemProgress
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

type User struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string               `bson:"name" json:"name"`
	Email        string               `bson:"email" json:"email"`
	PasswordHash string               `bson:"password_hash" json:"-"`
	Friends      []primitive.ObjectID `bson:"friends" json:"friends"`
	CreatedAt    time.Time            `bson:"created_at" json:"createdAt"`
}

// HasFriend reports whether id is in the user's friend set.
func (u *User) HasFriend(id primitive.ObjectID) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// UserSummary is the public projection of a user shown to other users.
type UserSummary struct {
	ID    primitive.ObjectID `json:"id"`
	Name  string             `json:"name"`
	Email string             `json:"email"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// PushToken maps a device token to the user currently owning it.
type PushToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	Token     string             `bson:"token" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

type FriendRequest struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SenderID    primitive.ObjectID  `bson:"sender_id" json:"sender"`
	RecipientID primitive.ObjectID  `bson:"recipient_id" json:"recipient"`
	Status      FriendRequestStatus `bson:"status" json:"status"`
	CreatedAt   time.Time           `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updatedAt"`
}

// FriendRequestView is a friend request with the other party populated.
type FriendRequestView struct {
	FriendRequest
	Sender    *UserSummary `json:"senderUser,omitempty"`
	Recipient *UserSummary `json:"recipientUser,omitempty"`
}

type SubItem struct {
	ID           string      `bson:"id" json:"id"`
	Title        string      `bson:"title" json:"title"`
	Type         SubItemType `bson:"type" json:"type"`
	Order        int         `bson:"order" json:"order"`
	IsChecked    bool        `bson:"is_checked" json:"isChecked"`
	CompletedAt  *time.Time  `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CurrentValue float64     `bson:"current_value" json:"currentValue"`
	TargetValue  float64     `bson:"target_value" json:"targetValue"`
}

type Goal struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID   `bson:"user_id" json:"userId"`
	Title          string               `bson:"title" json:"title"`
	Type           GoalType             `bson:"type" json:"type"`
	ResetFrequency ResetFrequency       `bson:"reset_frequency,omitempty" json:"resetFrequency,omitempty"`
	LastResetDate  *time.Time           `bson:"last_reset_date" json:"lastResetDate"`
	SubItems       []SubItem            `bson:"sub_items" json:"subItems"`
	IsCompleted    bool                 `bson:"is_completed" json:"isCompleted"`
	Progress       int                  `bson:"-" json:"progress"`
	Priority       int                  `bson:"priority" json:"priority"`
	Order          int                  `bson:"order" json:"order"`
	Color          string               `bson:"color" json:"color"`
	SharedWith     []primitive.ObjectID `bson:"shared_with" json:"sharedWith"`
	CreatedAt      time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updatedAt"`
}

// IsOwner reports whether userID owns the goal.
func (g *Goal) IsOwner(userID primitive.ObjectID) bool {
	return g.UserID == userID
}

// IsSharedWith reports whether userID is in the goal's share set.
func (g *Goal) IsSharedWith(userID primitive.ObjectID) bool {
	for _, id := range g.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// CanWrite reports whether userID may update the goal's content.
func (g *Goal) CanWrite(userID primitive.ObjectID) bool {
	return g.IsOwner(userID) || g.IsSharedWith(userID)
}

// SubItem returns a pointer to the embedded sub-item with the given id, or nil.
func (g *Goal) SubItem(id string) *SubItem {
	for i := range g.SubItems {
		if g.SubItems[i].ID == id {
			return &g.SubItems[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the goal.
func (g Goal) Clone() Goal {
	out := g
	if g.LastResetDate != nil {
		t := *g.LastResetDate
		out.LastResetDate = &t
	}
	if g.SubItems != nil {
		out.SubItems = make([]SubItem, len(g.SubItems))
		for i, item := range g.SubItems {
			if item.CompletedAt != nil {
				t := *item.CompletedAt
				item.CompletedAt = &t
			}
			out.SubItems[i] = item
		}
	}
	if g.SharedWith != nil {
		out.SharedWith = append([]primitive.ObjectID(nil), g.SharedWith...)
	}
	return out
}

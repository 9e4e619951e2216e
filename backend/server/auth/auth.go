package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/jghoshh/goalpal/backend/errs"
	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
	"github.com/jghoshh/goalpal/lib/utils"
)

// DefaultTokenTTL is how long an auth token stays valid.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Store is the part of the persistent storage the auth service uses.
type Store interface {
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertPushToken(ctx context.Context, token string, userID primitive.ObjectID) error

	DeleteGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) (*storage.DeleteResult, error)
	PullSharedUser(ctx context.Context, userID primitive.ObjectID) (*storage.UpdateResult, error)
	PullFriendEverywhere(ctx context.Context, friendID primitive.ObjectID) (*storage.UpdateResult, error)
	DeleteFriendRequestsByUser(ctx context.Context, userID primitive.ObjectID) (*storage.DeleteResult, error)
	DeletePushTokensByUser(ctx context.Context, userID primitive.ObjectID) (*storage.DeleteResult, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) (*storage.DeleteResult, error)
}

// Service registers and authenticates users and owns account deletion.
type Service struct {
	store      Store
	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

// NewService is a function for initializing the authentication service.
//
// It accepts three arguments:
// - store: The storage backend users, goals and tokens live in.
// - signingKey: The key used to sign JWT tokens.
// - tokenTTL: How long issued tokens stay valid. Non-positive values select DefaultTokenTTL.
func NewService(store Store, signingKey string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{store: store, signingKey: []byte(signingKey), tokenTTL: tokenTTL, now: time.Now}
}

// Session is what a successful sign up or sign in returns to the client.
type Session struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// DeletionReport counts what an account deletion removed, step by step.
type DeletionReport struct {
	Goals             int64 `json:"goals"`
	SharedGoals       int64 `json:"sharedGoals"`
	FriendConnections int64 `json:"friendConnections"`
	FriendRequests    int64 `json:"friendRequests"`
	PushTokens        int64 `json:"pushTokens"`
}

func unexpected(message string, err error) error {
	log.Printf("%s: %v", message, err)
	return errs.Unexpected(message, err)
}

// CreateAuthToken is a function to create a signed JWT token for a user.
//
// It accepts one argument:
// - userID: The ID of the user to generate a token for.
//
// The function creates a JWT token with the user's ID and an expiration time.
// It returns a signed JWT token or an error if there was a problem during the token creation.
func (s *Service) CreateAuthToken(userID primitive.ObjectID) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID.Hex(),
		"iat": s.now().Unix(),
		"exp": s.now().Add(s.tokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", unexpected("failed to create auth token", err)
	}

	return signedToken, nil
}

// ParseToken is a function that validates an auth token and returns the user ID it was issued for.
//
// It accepts one argument:
// - tokenString: The raw bearer token.
//
// Expired, malformed, or foreign tokens all yield an authentication error.
func (s *Service) ParseToken(tokenString string) (primitive.ObjectID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})

	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return primitive.NilObjectID, errs.Authentication("token expired")
		}
		return primitive.NilObjectID, errs.Authentication("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return primitive.NilObjectID, errs.Authentication("invalid token")
	}

	id, ok := claims["id"].(string)
	if !ok {
		return primitive.NilObjectID, errs.Authentication("invalid token")
	}
	userID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errs.Authentication("invalid token")
	}
	return userID, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.CreateAuthToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user.Summary()}, nil
}

// SignUp is a function for registering a new user.
//
// It accepts three arguments:
// - name: The display name of the new user.
// - email: The email of the new user. It is stored lower-cased.
// - password: The password of the new user.
//
// This function performs several tasks:
// It validates the name, the email format and the password complexity.
// It checks if a user with the same email already exists in the database.
// It hashes the password and creates the user.
// It issues an auth token for the new user.
//
// The function returns a Session, or an error if there was a problem with any step of the process.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return nil, errs.Validation("name is required")
	}

	if !utils.ValidateEmail(email) {
		return nil, errs.Validation("invalid email format")
	}

	if !utils.ValidatePassword(password) {
		return nil, errs.Validation("password must be at least 8 characters and contain both letters and numbers")
	}

	_, err := s.store.FindUserByEmail(ctx, email)
	if err == nil {
		return nil, errs.Conflict("user already exists with this email")
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, unexpected("registration failed", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, unexpected("registration failed", err)
	}

	user, err := s.store.AddUser(ctx, &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Friends:      []primitive.ObjectID{},
		CreatedAt:    s.now(),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, errs.Conflict("user already exists with this email")
	}
	if err != nil {
		return nil, unexpected("registration failed", err)
	}

	return s.session(user)
}

// SignIn is a function for authenticating a user.
//
// It accepts two arguments:
// - email: The email the user registered with.
// - password: The password of the user attempting to log in.
//
// Unknown emails and wrong passwords are reported the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	foundUser, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.Authentication("invalid email or password")
	}
	if err != nil {
		return nil, unexpected("login failed", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(password))
	if err != nil {
		return nil, errs.Authentication("invalid email or password")
	}

	return s.session(foundUser)
}

// Me returns the caller's own user record.
func (s *Service) Me(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("user not found")
	}
	if err != nil {
		return nil, unexpected("failed to fetch user", err)
	}
	return user, nil
}

// RegisterPushToken assigns a device token to userID. A token previously held
// by another account moves to this one.
func (s *Service) RegisterPushToken(ctx context.Context, userID primitive.ObjectID, token string) error {
	token = strings.TrimSpace(token)
	if !push.IsValidToken(token) {
		return errs.Validation("invalid push token")
	}
	if err := s.store.UpsertPushToken(ctx, token, userID); err != nil {
		return unexpected("failed to update push token", err)
	}
	return nil
}

// DeleteAccount is a function that removes a user and every reference to them.
//
// It accepts one argument:
// - userID: The ID of the account to delete.
//
// The steps run in this order: owned goals, share sets, other users' friend
// sets, friend requests, push tokens, and finally the user record. Every step
// is safe to run again. If a step fails the report covers the steps that
// completed and the error is returned alongside it.
func (s *Service) DeleteAccount(ctx context.Context, userID primitive.ObjectID) (*DeletionReport, error) {
	report := &DeletionReport{}

	goals, err := s.store.DeleteGoalsByOwner(ctx, userID)
	if err != nil {
		return report, unexpected("failed to delete goals", err)
	}
	report.Goals = goals.DeletedCount

	shared, err := s.store.PullSharedUser(ctx, userID)
	if err != nil {
		return report, unexpected("failed to remove user from shared goals", err)
	}
	report.SharedGoals = shared.ModifiedCount

	friends, err := s.store.PullFriendEverywhere(ctx, userID)
	if err != nil {
		return report, unexpected("failed to remove friend connections", err)
	}
	report.FriendConnections = friends.ModifiedCount

	requests, err := s.store.DeleteFriendRequestsByUser(ctx, userID)
	if err != nil {
		return report, unexpected("failed to delete friend requests", err)
	}
	report.FriendRequests = requests.DeletedCount

	tokens, err := s.store.DeletePushTokensByUser(ctx, userID)
	if err != nil {
		return report, unexpected("failed to delete push tokens", err)
	}
	report.PushTokens = tokens.DeletedCount

	if _, err := s.store.DeleteUser(ctx, userID); err != nil {
		return report, unexpected("failed to delete user", err)
	}

	log.Printf("account %s deleted: %+v", userID.Hex(), *report)
	return report, nil
}

package client

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/zalando/go-keyring"

	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/auth"
	"github.com/jghoshh/goalpal/backend/server/goals"
	"github.com/jghoshh/goalpal/lib/utils"
)

// startSession stores the token of a successful sign in or sign up.
func startSession(path string, body interface{}) (*models.UserSummary, error) {
	token, err := IsUserAuthenticated()
	if err != nil {
		return nil, err
	}
	if token != "" {
		return nil, errors.New("a user is already signed in")
	}

	var session auth.Session
	if err := send(http.MethodPost, path, "", body, &session); err != nil {
		return nil, err
	}
	if err := keyring.Set(KeyringService, KeyringKey, session.Token); err != nil {
		return nil, err
	}
	return &session.User, nil
}

// SignUp registers a new account and signs it in.
func SignUp(name, email, password string) (*models.UserSummary, error) {
	if len(name) < 1 {
		return nil, errors.New("name is required")
	}
	if !utils.ValidateEmail(email) {
		return nil, errors.New("invalid email format")
	}
	if !utils.ValidatePassword(password) {
		return nil, errors.New("password must be at least 8 characters and contain both letters and numbers")
	}
	return startSession("/auth/register", map[string]string{"name": name, "email": email, "password": password})
}

// SignIn signs in with email and password and stores the token in the keyring.
func SignIn(email, password string) (*models.UserSummary, error) {
	return startSession("/auth/login", map[string]string{"email": email, "password": password})
}

// SignOut forgets the stored token.
func SignOut() error {
	token, err := IsUserAuthenticated()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotSignedIn
	}
	return ClearKeyring()
}

func Me() (*models.User, error) {
	var user models.User
	if err := sendAuthed(http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteAccount deletes the signed in account and signs out.
func DeleteAccount() (*auth.DeletionReport, error) {
	var body struct {
		Deleted auth.DeletionReport `json:"deleted"`
	}
	if err := sendAuthed(http.MethodDelete, "/auth/account", nil, &body); err != nil {
		return nil, err
	}
	return &body.Deleted, ClearKeyring()
}

func RegisterPushToken(pushToken string) error {
	return sendAuthed(http.MethodPost, "/auth/push-token", map[string]string{"pushToken": pushToken}, nil)
}

func Goals() ([]models.Goal, error) {
	var list []models.Goal
	err := sendAuthed(http.MethodGet, "/goals", nil, &list)
	return list, err
}

func CreateGoal(in goals.CreateInput) (*models.Goal, error) {
	var goal models.Goal
	if err := sendAuthed(http.MethodPost, "/goals", in, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

func DeleteGoal(goalID string) error {
	return sendAuthed(http.MethodDelete, "/goals/"+url.PathEscape(goalID), nil, nil)
}

func ToggleSubItem(goalID, subItemID string) (*models.Goal, error) {
	var goal models.Goal
	path := "/goals/" + url.PathEscape(goalID) + "/subgoals/" + url.PathEscape(subItemID) + "/toggle"
	if err := sendAuthed(http.MethodPatch, path, nil, &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

// ReorderGoals sets the caller's goal order. orderedIDs must list every goal the caller owns.
func ReorderGoals(orderedIDs []string) error {
	return sendAuthed(http.MethodPost, "/goals/reorder", map[string][]string{"orderedIds": orderedIDs}, nil)
}

func ShareGoal(goalID, friendID string) error {
	return sendAuthed(http.MethodPost, "/goals/"+url.PathEscape(goalID)+"/share", map[string]string{"friendId": friendID}, nil)
}

func UnshareGoal(goalID, friendID string) error {
	return sendAuthed(http.MethodDelete, "/goals/"+url.PathEscape(goalID)+"/share/"+url.PathEscape(friendID), nil, nil)
}

func Friends() ([]models.UserSummary, error) {
	var list []models.UserSummary
	err := sendAuthed(http.MethodGet, "/friends", nil, &list)
	return list, err
}

func SendFriendRequest(email string) error {
	return sendAuthed(http.MethodPost, "/friends/request", map[string]string{"email": email}, nil)
}

func IncomingRequests() ([]models.FriendRequestView, error) {
	var list []models.FriendRequestView
	err := sendAuthed(http.MethodGet, "/friends/requests", nil, &list)
	return list, err
}

func SentRequests() ([]models.FriendRequestView, error) {
	var list []models.FriendRequestView
	err := sendAuthed(http.MethodGet, "/friends/requests/sent", nil, &list)
	return list, err
}

func AcceptRequest(requestID string) error {
	return sendAuthed(http.MethodPost, "/friends/request/"+url.PathEscape(requestID)+"/accept", nil, nil)
}

func RejectRequest(requestID string) error {
	return sendAuthed(http.MethodPost, "/friends/request/"+url.PathEscape(requestID)+"/reject", nil, nil)
}

func RemoveFriend(friendID string) error {
	return sendAuthed(http.MethodDelete, "/friends/"+url.PathEscape(friendID), nil, nil)
}

// TestNotification asks the server to run the daily reminder now.
func TestNotification() error {
	return sendAuthed(http.MethodPost, "/test-notification", nil, nil)
}

// Package client talks to the goalpal REST API on behalf of the CLI and keeps
// the session token in the system keyring.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/zalando/go-keyring"
)

// KeyringService is the name of the service in the system keyring where the auth token is stored.
const KeyringService = "GoalPal"

// KeyringKey is used to store and retrieve the JWT token from the system keyring.
var KeyringKey = "auth_token"

// ServerURL is the URL of the server the client is connecting to.
var ServerURL = "http://localhost:8080"

// client is the HTTP client used to make requests to the server.
var client = &http.Client{Timeout: 15 * time.Second}

// ErrNotSignedIn is returned by calls that need a session when none is stored.
var ErrNotSignedIn = errors.New("no user is currently signed in")

// ErrSessionExpired is returned when the stored token was rejected. The token is removed from the keyring.
var ErrSessionExpired = errors.New("session expired, please sign in again")

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// InitClient sets the server URL and the keyring entry the client uses.
// Empty arguments keep the defaults.
func InitClient(serverURL, keyringKey string) {
	if serverURL != "" {
		ServerURL = serverURL
	}
	if keyringKey != "" {
		KeyringKey = keyringKey
	}
}

// storedToken returns the token in the keyring, or "" if there is none.
func storedToken() (string, error) {
	token, err := keyring.Get(KeyringService, KeyringKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to access keyring: %w", err)
	}
	return token, nil
}

// tokenExpired reads the exp claim without verifying the signature.
func tokenExpired(tokenStr string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
		return true
	}
	return !claims.VerifyExpiresAt(time.Now().Unix(), true)
}

// ClearKeyring removes the auth token from the system keyring.
func ClearKeyring() error {
	err := keyring.Delete(KeyringService, KeyringKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// IsUserAuthenticated returns the stored token if it exists and has not expired.
// An expired token is removed and reported as "".
func IsUserAuthenticated() (string, error) {
	token, err := storedToken()
	if err != nil || token == "" {
		return "", err
	}
	if tokenExpired(token) {
		return "", ClearKeyring()
	}
	return token, nil
}

// send performs one request against the API and decodes the JSON response into out.
// Non-2xx responses are returned as *APIError.
func send(method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ServerURL+"/api"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &errBody) != nil || errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// sendAuthed is send with the stored token. A 401 clears the keyring.
func sendAuthed(method, path string, body, out interface{}) error {
	token, err := IsUserAuthenticated()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotSignedIn
	}

	err = send(method, path, token, body, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		if clearErr := ClearKeyring(); clearErr != nil {
			return clearErr
		}
		return ErrSessionExpired
	}
	return err
}

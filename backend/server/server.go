// Package server exposes the goal, friend and account services over a JSON REST API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/errs"
	"github.com/jghoshh/goalpal/backend/server/auth"
	"github.com/jghoshh/goalpal/backend/server/contextkey"
	"github.com/jghoshh/goalpal/backend/server/friends"
	"github.com/jghoshh/goalpal/backend/server/goals"
	"github.com/jghoshh/goalpal/backend/server/reminders"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the services.
type Server struct {
	auth      *auth.Service
	goals     *goals.Service
	friends   *friends.Service
	reminders *reminders.Job
}

func New(authService *auth.Service, goalService *goals.Service, friendService *friends.Service, reminderJob *reminders.Job) *Server {
	return &Server{auth: authService, goals: goalService, friends: friendService, reminders: reminderJob}
}

// Handler builds the router with every route under /api, wrapped in the
// recovery, CORS and access log middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(s.jwtMiddleware)

	private.HandleFunc("/auth/me", s.me).Methods(http.MethodGet)
	private.HandleFunc("/auth/push-token", s.pushToken).Methods(http.MethodPost)
	private.HandleFunc("/push-token", s.pushToken).Methods(http.MethodPost)
	private.HandleFunc("/auth/account", s.deleteAccount).Methods(http.MethodDelete)

	private.HandleFunc("/goals", s.createGoal).Methods(http.MethodPost)
	private.HandleFunc("/goals", s.listGoals).Methods(http.MethodGet)
	private.HandleFunc("/goals/feed", s.feed).Methods(http.MethodGet)
	private.HandleFunc("/goals/reorder", s.reorderGoals).Methods(http.MethodPost)
	private.HandleFunc("/goals/{id}", s.getGoal).Methods(http.MethodGet)
	private.HandleFunc("/goals/{id}", s.updateGoal).Methods(http.MethodPut)
	private.HandleFunc("/goals/{id}", s.deleteGoal).Methods(http.MethodDelete)
	private.HandleFunc("/goals/{goalId}/subgoals/{subgoalId}/toggle", s.toggleSubItem).Methods(http.MethodPatch)
	private.HandleFunc("/goals/{goalId}/subitems/{subItemId}", s.updateSubItem).Methods(http.MethodPut)
	private.HandleFunc("/goals/{goalId}/share", s.shareGoal).Methods(http.MethodPost)
	private.HandleFunc("/goals/{goalId}/share/{friendId}", s.unshareGoal).Methods(http.MethodDelete)

	private.HandleFunc("/friends", s.listFriends).Methods(http.MethodGet)
	private.HandleFunc("/friends/request", s.sendFriendRequest).Methods(http.MethodPost)
	private.HandleFunc("/friends/requests", s.incomingRequests).Methods(http.MethodGet)
	private.HandleFunc("/friends/requests/sent", s.sentRequests).Methods(http.MethodGet)
	private.HandleFunc("/friends/request/{id}/accept", s.acceptFriendRequest).Methods(http.MethodPost)
	private.HandleFunc("/friends/request/{id}/reject", s.rejectFriendRequest).Methods(http.MethodPost)
	private.HandleFunc("/friends/{friendId}", s.removeFriend).Methods(http.MethodDelete)

	private.HandleFunc("/test-notification", s.testNotification).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errs.NotFound("route not found"))
	})

	// Apply the CORS middleware to the router
	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	corsRouter := handlers.CORS(corsOrigins, corsMethods, corsHeaders)(r)

	return handlers.LoggingHandler(os.Stdout, corsRouter)
}

// Start listens on the host of serverURL until ctx is cancelled, then shuts the
// HTTP server down gracefully.
func (s *Server) Start(ctx context.Context, serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}

	server := &http.Server{
		Handler:      s.Handler(),
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", u.Host)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// jwtMiddleware rejects requests without a valid bearer token and stores the
// caller's ID in the request context under contextkey.UserIDKey.
func (s *Server) jwtMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader || token == "" {
			writeError(w, errs.Authentication("missing auth token"))
			return
		}

		userID, err := s.auth.ParseToken(token)
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkey.WithUserID(r.Context(), userID)))
	})
}

// recoveryMiddleware recovers from panics and answers with a generic error.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered on %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, errs.Unexpected("internal server error", fmt.Errorf("%v", err)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// writeError responds with {"error": message} and the status matching the error kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(err), map[string]string{"error": errs.PublicMessage(err)})
}

// writePartialError is writeError for batch operations that stopped midway.
// The body also carries what was already done under key.
func writePartialError(w http.ResponseWriter, err error, key string, done interface{}) {
	writeJSON(w, errs.HTTPStatus(err), map[string]interface{}{
		"error": errs.PublicMessage(err),
		key:     done,
	})
}

func message(text string) map[string]string {
	return map[string]string{"message": text}
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errs.Validation("invalid request body")
	}
	return nil
}

func callerID(r *http.Request) primitive.ObjectID {
	id, _ := contextkey.UserID(r.Context())
	return id
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[name])
	if err != nil {
		return primitive.NilObjectID, errs.Validation("invalid %s", name)
	}
	return id, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// testNotification runs the daily reminder job immediately.
func (s *Server) testNotification(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reminders.Run(r.Context())
	if err != nil {
		writeError(w, errs.Unexpected("failed to send notifications", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "notifications sent", "summary": summary})
}

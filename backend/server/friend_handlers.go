package server

import (
	"net/http"
)

type friendRequestRequest struct {
	Email string `json:"email"`
}

func (s *Server) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req friendRequestRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.friends.SendRequest(r.Context(), callerID(r), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) incomingRequests(w http.ResponseWriter, r *http.Request) {
	views, err := s.friends.IncomingRequests(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) sentRequests(w http.ResponseWriter, r *http.Request) {
	views, err := s.friends.SentRequests(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) acceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.friends.Accept(r.Context(), callerID(r), requestID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message("friend request accepted"))
}

func (s *Server) rejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.friends.Reject(r.Context(), callerID(r), requestID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message("friend request rejected"))
}

func (s *Server) listFriends(w http.ResponseWriter, r *http.Request) {
	list, err := s.friends.Friends(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) removeFriend(w http.ResponseWriter, r *http.Request) {
	friendID, err := pathID(r, "friendId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.friends.RemoveFriend(r.Context(), callerID(r), friendID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message("friend removed"))
}

package server

import (
	"net/http"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type pushTokenRequest struct {
	PushToken string `json:"pushToken"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.auth.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Me(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) pushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.auth.RegisterPushToken(r.Context(), callerID(r), req.PushToken); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message("push token updated"))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	report, err := s.auth.DeleteAccount(r.Context(), callerID(r))
	if err != nil {
		if report == nil {
			writeError(w, err)
			return
		}
		writePartialError(w, err, "deleted", report)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "account deleted",
		"deleted": report,
	})
}

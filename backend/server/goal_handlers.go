package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jghoshh/goalpal/backend/errs"
	"github.com/jghoshh/goalpal/backend/models"
	"github.com/jghoshh/goalpal/backend/server/goals"
)

type reorderRequest struct {
	OrderedIDs []string `json:"orderedIds"`
}

type shareRequest struct {
	FriendID string `json:"friendId"`
}

// goalResponse writes a single goal, or the error that produced it.
func goalResponse(w http.ResponseWriter, status int, goal *models.Goal, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, goal)
}

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	var in goals.CreateInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	goal, err := s.goals.Create(r.Context(), callerID(r), in)
	goalResponse(w, http.StatusCreated, goal, err)
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	list, err := s.goals.List(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	list, err := s.goals.Feed(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	goal, err := s.goals.Get(r.Context(), callerID(r), goalID)
	goalResponse(w, http.StatusOK, goal, err)
}

func (s *Server) updateGoal(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var patch goals.GoalPatch
	if err := decode(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	goal, err := s.goals.Update(r.Context(), callerID(r), goalID, patch)
	goalResponse(w, http.StatusOK, goal, err)
}

func (s *Server) deleteGoal(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.goals.Delete(r.Context(), callerID(r), goalID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message("goal deleted"))
}

func (s *Server) reorderGoals(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ids := make([]primitive.ObjectID, 0, len(req.OrderedIDs))
	for _, raw := range req.OrderedIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			writeError(w, errs.Validation("invalid goal id %q", raw))
			return
		}
		ids = append(ids, id)
	}

	result, err := s.goals.Reorder(r.Context(), callerID(r), ids)
	if err != nil {
		if result == nil {
			writeError(w, err)
			return
		}
		writePartialError(w, err, "updated", result.Updated)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) toggleSubItem(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "goalId")
	if err != nil {
		writeError(w, err)
		return
	}
	goal, err := s.goals.ToggleSubItem(r.Context(), callerID(r), goalID, mux.Vars(r)["subgoalId"])
	goalResponse(w, http.StatusOK, goal, err)
}

func (s *Server) updateSubItem(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "goalId")
	if err != nil {
		writeError(w, err)
		return
	}
	var patch goals.SubItemPatch
	if err := decode(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	goal, err := s.goals.UpdateSubItem(r.Context(), callerID(r), goalID, mux.Vars(r)["subItemId"], patch)
	goalResponse(w, http.StatusOK, goal, err)
}

func (s *Server) shareGoal(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "goalId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req shareRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	friendID, err := primitive.ObjectIDFromHex(req.FriendID)
	if err != nil {
		writeError(w, errs.Validation("invalid friendId"))
		return
	}
	goal, err := s.goals.Share(r.Context(), callerID(r), goalID, friendID)
	goalResponse(w, http.StatusOK, goal, err)
}

func (s *Server) unshareGoal(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "goalId")
	if err != nil {
		writeError(w, err)
		return
	}
	friendID, err := pathID(r, "friendId")
	if err != nil {
		writeError(w, err)
		return
	}
	goal, err := s.goals.Unshare(r.Context(), callerID(r), goalID, friendID)
	goalResponse(w, http.StatusOK, goal, err)
}

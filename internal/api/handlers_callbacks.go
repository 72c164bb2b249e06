package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// CallbackResponse describes a registered callback.
type CallbackResponse struct {
	ID      knxip.CallbackID `json:"id"`
	Name    string           `json:"name"`
	Enabled bool             `json:"enabled"`
}

// AssignmentResponse describes one group address binding.
type AssignmentResponse struct {
	ID           knxip.AssignmentID `json:"id"`
	Address      string             `json:"address"`
	Callback     knxip.CallbackID   `json:"callback"`
	CallbackName string             `json:"callback_name"`
}

// AssignmentRequest binds Address to the callback with id Callback.
type AssignmentRequest struct {
	Address  string           `json:"address"`
	Callback knxip.CallbackID `json:"callback"`
}

func (s *Server) handleListCallbacks(w http.ResponseWriter, _ *http.Request) {
	callbacks := s.device.Callbacks()
	out := make([]CallbackResponse, 0, len(callbacks))
	for _, cb := range callbacks {
		out = append(out, CallbackResponse{ID: cb.ID, Name: cb.Name, Enabled: cb.Enabled()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"callbacks": out, "count": len(out)})
}

func (s *Server) handleListAssignments(w http.ResponseWriter, _ *http.Request) {
	names := make(map[knxip.CallbackID]string)
	for _, cb := range s.device.Callbacks() {
		names[cb.ID] = cb.Name
	}

	assignments := s.device.Assignments()
	out := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignmentResponse{
			ID:           a.ID,
			Address:      a.Address.String(),
			Callback:     a.Callback,
			CallbackName: names[a.Callback],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assignments": out,
		"count":       len(out),
		"capacity":    s.device.Capacities().Assignments,
	})
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ga, err := knxip.ParseGroupAddress(req.Address)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	id, err := s.device.AssignCallback(req.Callback, ga)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	s.logger.Info("assignment created", "id", id, "ga", ga.String(), "callback", req.Callback)
	writeJSON(w, http.StatusCreated, AssignmentResponse{
		ID:       id,
		Address:  ga.String(),
		Callback: req.Callback,
	})
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint8Param(r, "id")
	if !ok {
		writeBadRequest(w, "invalid assignment id")
		return
	}
	if err := s.device.DeleteAssignment(knxip.AssignmentID(id)); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.logger.Info("assignment deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Feedback
// =============================================================================

func (s *Server) handleListFeedback(w http.ResponseWriter, _ *http.Request) {
	values := s.device.Feedback()
	writeJSON(w, http.StatusOK, map[string]any{"items": values, "count": len(values)})
}

func (s *Server) handleTriggerFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint8Param(r, "id")
	if !ok {
		writeBadRequest(w, "invalid feedback id")
		return
	}

	err := s.device.TriggerFeedback(knxip.FeedbackID(id))
	if s.recorder != nil {
		s.recorder.ObserveTrigger("api", err)
	}
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.logger.Info("feedback triggered", "id", id, "origin", "api")
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

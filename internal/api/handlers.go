package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trfife/barnabee-assistant/internal/automation"
	"github.com/trfife/barnabee-assistant/internal/engine"
	"github.com/trfife/barnabee-assistant/internal/entity"
)

// maxQueryParamLen limits URL parameter length to prevent DoS via oversized params.
const maxQueryParamLen = 100

// invokeRequest is the request body for POST /invoke.
type invokeRequest struct {
	Function       string         `json:"function"`
	Arguments      map[string]any `json:"arguments"`
	ConversationID string         `json:"conversation_id"`
	Language       string         `json:"language"`
}

// statusQueryRequest is the request body for POST /status-query.
type statusQueryRequest struct {
	Query string `json:"query"`
}

// exposureRequest is the request body for PUT /entities/{id}/exposure.
type exposureRequest struct {
	Exposed bool `json:"exposed"`
}

// handleListFunctions returns the model-facing specs of every loaded
// function, in catalog order. This is the tool list the conversation
// layer hands to the model.
func (s *Server) handleListFunctions(w http.ResponseWriter, _ *http.Request) {
	specs := s.engine.Catalog().Specs()
	writeJSON(w, http.StatusOK, map[string]any{"functions": specs, "count": len(specs)})
}

// handleInvoke executes one catalog function on behalf of the
// conversation layer. The caller identity comes from the JWT; the
// exposed-entity set comes from the registry at call time.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Function == "" {
		writeBadRequest(w, "function is required")
		return
	}

	caller := engine.CallerContext{
		ConversationID: req.ConversationID,
		UserID:         userIDFromContext(r.Context()),
		Language:       req.Language,
	}

	result, err := s.engine.Invoke(r.Context(), req.Function, engine.Arguments(req.Arguments), caller, s.entities.ExposedEntities())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleStatusQuery answers a free-text device status question against
// the caller's exposed entities.
func (s *Server) handleStatusQuery(w http.ResponseWriter, r *http.Request) {
	var req statusQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeBadRequest(w, "query is required")
		return
	}

	reply, err := s.engine.StatusQuery(r.Context(), req.Query, s.entities.ExposedEntities())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

// handleListEntities returns all registered entities, exposed or not.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.entities.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list entities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

// handleSetExposure flips whether an entity is visible to the
// conversation layer.
func (s *Server) handleSetExposure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid entity ID")
		return
	}

	var req exposureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.entities.SetExposed(r.Context(), id, req.Exposed); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to update exposure")
		return
	}

	updated, err := s.entities.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load updated entity")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleListAutomations returns the stored automation definitions.
func (s *Server) handleListAutomations(w http.ResponseWriter, _ *http.Request) {
	if s.automations == nil {
		writeJSON(w, http.StatusOK, map[string]any{"automations": []automation.Automation{}, "count": 0})
		return
	}
	defs := s.automations.List()
	writeJSON(w, http.StatusOK, map[string]any{"automations": defs, "count": len(defs)})
}

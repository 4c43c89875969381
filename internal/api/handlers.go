package api

import (
	"encoding/json"
	"net/http"

	"github.com/tabsense/tabsense/models"
)

func (s *Server) handleAddTab(w http.ResponseWriter, r *http.Request) {
	var payload models.TabPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.URL == "" && payload.Title == "" {
		s.respondWithError(w, http.StatusBadRequest, "payload needs a url or title")
		return
	}

	s.graph.AddTab(payload)
	s.logger.Info("tab added to graph", "url", payload.URL, "entities", len(payload.Entities))
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.graph.Export())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, message string) {
	s.respondWithJSON(w, status, map[string]string{"error": message})
}

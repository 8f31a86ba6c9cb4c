package httpserver

import (
	"fmt"
	"net/http"

	"github.com/fairyhunter13/recipe-extractor/internal/domain"
)

// KeyStatsHandler returns a snapshot of every loaded credential pool.
// Credentials themselves are never included.
func (s *Server) KeyStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, s.Keys.Statistics())
	}
}

// KeyResetHandler clears failure markings for one service, or for every
// service when the body is empty or names none.
func (s *Server) KeyResetHandler() http.HandlerFunc {
	type request struct {
		Service string `json:"service" validate:"omitempty,oneof=youtube gemini"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req request
		if r.ContentLength != 0 {
			if !decodeBody(w, r, &req) {
				return
			}
		}
		lg := LoggerFrom(r)
		if req.Service == "" {
			s.Keys.ResetAllFailed()
			lg.Info("credential failures reset by admin", "scope", "all")
		} else {
			if s.Keys.Size(req.Service) == 0 {
				writeError(w, r, fmt.Errorf("%w: no credentials configured for %s", domain.ErrNotFound, req.Service), nil)
				return
			}
			s.Keys.ResetFailed(req.Service)
			lg.Info("credential failures reset by admin", "scope", req.Service)
		}
		writeJSON(w, http.StatusOK, s.Keys.Statistics())
	}
}

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	"github.com/fairyhunter13/recipe-extractor/internal/service/keyrotation"
	"github.com/fairyhunter13/recipe-extractor/internal/usecase"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg        config.Config
	Recipes    usecase.RecipeService
	Keys       *keyrotation.Manager
	RedisCheck func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, recipes usecase.RecipeService, keys *keyrotation.Manager, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Recipes: recipes, Keys: keys, RedisCheck: redisCheck}
}

// acceptsJSON rejects clients that cannot take a JSON response.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
		writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
		return false
	}
	return true
}

// decodeBody decodes a size-capped JSON body and runs struct validation.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}

// VideoHandler returns metadata for the video in the {id} path parameter.
func (s *Server) VideoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := ParseVideoID(chi.URLParam(r, "id"))
		if vr := ValidateVideoID(id); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid video id", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		v, err := s.Recipes.Video(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// SearchHandler lists videos for the q query parameter, limited by max.
func (s *Server) SearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		q := SanitizeString(r.URL.Query().Get("q"))
		limit := r.URL.Query().Get("max")
		if vr := ValidateSearch(q, limit); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid search", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		n, _ := strconv.Atoi(limit)
		results, err := s.Recipes.Search(r.Context(), q, n)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": results, "count": len(results)})
	}
}

// ExtractHandler turns the video named in the request body into a recipe.
func (s *Server) ExtractHandler() http.HandlerFunc {
	type request struct {
		VideoID string `json:"video_id" validate:"required,max=512"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req request
		if !decodeBody(w, r, &req) {
			return
		}
		id := ParseVideoID(req.VideoID)
		if vr := ValidateVideoID(id); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid video id", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		recipe, err := s.Recipes.Extract(r.Context(), id)
		if err != nil {
			writeError(w, r, fmt.Errorf("extract: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, recipe)
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports readiness. Credential pools with no credential make
// the service not ready, as does an unreachable cache.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		for _, svc := range []struct{ name, env string }{
			{config.ServiceYouTube, config.EnvYouTubeAPIKeys},
			{config.ServiceGemini, config.EnvGeminiAPIKeys},
		} {
			if n := s.Keys.Size(svc.name); n == 0 {
				checks = append(checks, check{Name: svc.name + "_credentials", OK: false, Details: "set " + svc.env})
			} else {
				checks = append(checks, check{Name: svc.name + "_credentials", OK: true, Details: strconv.Itoa(n) + " configured"})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

package httpserver_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/service/keyrotation"
)

func getStats(t *testing.T, h http.Handler) keyrotation.Statistics {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/keys/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st keyrotation.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestKeyStatsHandler(t *testing.T) {
	srv, h := newTestServer(t, &stubVideos{}, &stubGenerator{})

	k, ok := srv.Keys.Select(config.ServiceYouTube)
	require.True(t, ok)
	srv.Keys.MarkFailed(config.ServiceYouTube, k, errors.New("quotaExceeded"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/keys/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "yt-aaaaaaaaaa")

	st := getStats(t, h)
	assert.Equal(t, "ROUND_ROBIN", st.Strategy)
	yt := st.Services[config.ServiceYouTube]
	assert.Equal(t, 2, yt.Total)
	assert.Equal(t, 1, yt.Failed)
	assert.Equal(t, 1, yt.Available)
	assert.NotNil(t, yt.LastUsedAt)
}

func TestKeyResetHandler_OneService(t *testing.T) {
	srv, h := newTestServer(t, &stubVideos{}, &stubGenerator{})
	srv.Keys.Select(config.ServiceYouTube)
	srv.Keys.Select(config.ServiceGemini)
	srv.Keys.MarkFailed(config.ServiceYouTube, "yt-aaaaaaaaaa", nil)
	srv.Keys.MarkFailed(config.ServiceGemini, "gm-cccccccccc", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api/keys/reset", strings.NewReader(`{"service":"youtube"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := getStats(t, h)
	assert.Equal(t, 0, st.Services[config.ServiceYouTube].Failed)
	assert.Equal(t, 1, st.Services[config.ServiceGemini].Failed)
}

func TestKeyResetHandler_All(t *testing.T) {
	srv, h := newTestServer(t, &stubVideos{}, &stubGenerator{})
	srv.Keys.Select(config.ServiceYouTube)
	srv.Keys.Select(config.ServiceGemini)
	srv.Keys.MarkFailed(config.ServiceYouTube, "yt-bbbbbbbbbb", nil)
	srv.Keys.MarkFailed(config.ServiceGemini, "gm-cccccccccc", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api/keys/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	st := getStats(t, h)
	assert.Equal(t, 0, st.Services[config.ServiceYouTube].Failed)
	assert.Equal(t, 0, st.Services[config.ServiceGemini].Failed)
}

func TestKeyResetHandler_UnknownService(t *testing.T) {
	_, h := newTestServer(t, &stubVideos{}, &stubGenerator{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api/keys/reset", strings.NewReader(`{"service":"vimeo"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "oneof")
}

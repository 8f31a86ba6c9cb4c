// Package youtube implements domain.VideoMetadataClient on top of the
// YouTube Data API v3 with credential rotation.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	"github.com/fairyhunter13/recipe-extractor/internal/service/keyrotation"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 50
	maxErrorBody         = 4 << 10
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown"
	}
	return fmt.Sprintf("youtube: status %d (%s): %s", e.Status, reason, e.Message)
}

// IsCredentialFault reports whether err should demote the credential that
// produced it: quota and rate-limit messages, or a 403/429 status.
func IsCredentialFault(err error) bool {
	if keyrotation.IsQuotaExceededError(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}

// Client calls the YouTube Data API, drawing a credential from the rotation
// manager for every attempt.
type Client struct {
	baseURL string
	hc      *http.Client
	keys    *keyrotation.Manager
	policy  keyrotation.Policy
}

var _ domain.VideoMetadataClient = (*Client)(nil)

// New constructs a client from configuration.
func New(cfg config.Config, keys *keyrotation.Manager) *Client {
	rc := cfg.GetRetryConfig(config.ServiceYouTube)
	return &Client{
		baseURL: strings.TrimRight(cfg.YouTubeBaseURL, "/"),
		hc: &http.Client{
			Timeout:   cfg.YouTubeTimeout,
			Transport: observability.HTTPTransport(config.ServiceYouTube, nil, "key"),
		},
		keys: keys,
		policy: keyrotation.Policy{
			Service:           config.ServiceYouTube,
			ConfigKey:         config.EnvYouTubeAPIKeys,
			MaxRetries:        rc.MaxRetries,
			InitialDelay:      rc.InitialDelay,
			Multiplier:        rc.Multiplier,
			MaxDelay:          rc.MaxDelay,
			IsCredentialFault: IsCredentialFault,
		},
	}
}

type thumbnails struct {
	Default struct {
		URL string `json:"url"`
	} `json:"default"`
	High struct {
		URL string `json:"url"`
	} `json:"high"`
}

func (t thumbnails) best() string {
	if t.High.URL != "" {
		return t.High.URL
	}
	return t.Default.URL
}

type snippet struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ChannelID    string     `json:"channelId"`
	ChannelTitle string     `json:"channelTitle"`
	PublishedAt  time.Time  `json:"publishedAt"`
	Thumbnails   thumbnails `json:"thumbnails"`
	Tags         []string   `json:"tags"`
}

type videoListResponse struct {
	Items []struct {
		ID             string  `json:"id"`
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet snippet `json:"snippet"`
	} `json:"items"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// Video fetches the snippet and content details of one video.
func (c *Client) Video(ctx domain.Context, id string) (domain.Video, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Video{}, fmt.Errorf("%w: video id required", domain.ErrInvalidArgument)
	}
	q := url.Values{}
	q.Set("part", "snippet,contentDetails")
	q.Set("id", id)

	resp, err := keyrotation.Do(ctx, c.keys, c.policy, func(ctx context.Context, key string) (videoListResponse, error) {
		var out videoListResponse
		err := c.get(ctx, "/videos", q, key, &out)
		return out, err
	})
	if err != nil {
		return domain.Video{}, fmt.Errorf("op=youtube.Video: %w", err)
	}
	if len(resp.Items) == 0 {
		return domain.Video{}, fmt.Errorf("op=youtube.Video: %w: video %s", domain.ErrNotFound, id)
	}
	it := resp.Items[0]
	return domain.Video{
		ID:           it.ID,
		Title:        it.Snippet.Title,
		Description:  it.Snippet.Description,
		ChannelID:    it.Snippet.ChannelID,
		ChannelTitle: it.Snippet.ChannelTitle,
		PublishedAt:  it.Snippet.PublishedAt,
		Duration:     it.ContentDetails.Duration,
		ThumbnailURL: it.Snippet.Thumbnails.best(),
		Tags:         it.Snippet.Tags,
	}, nil
}

// Search lists videos matching query. maxResults outside 1..50 is clamped,
// with zero meaning the default of 5.
func (c *Client) Search(ctx domain.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query required", domain.ErrInvalidArgument)
	}
	switch {
	case maxResults <= 0:
		maxResults = defaultSearchResults
	case maxResults > maxSearchResults:
		maxResults = maxSearchResults
	}
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(maxResults))

	resp, err := keyrotation.Do(ctx, c.keys, c.policy, func(ctx context.Context, key string) (searchListResponse, error) {
		var out searchListResponse
		err := c.get(ctx, "/search", q, key, &out)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("op=youtube.Search: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.ID.VideoID == "" {
			continue
		}
		results = append(results, domain.SearchResult{
			VideoID:      it.ID.VideoID,
			Title:        it.Snippet.Title,
			ChannelTitle: it.Snippet.ChannelTitle,
			PublishedAt:  it.Snippet.PublishedAt,
			ThumbnailURL: it.Snippet.Thumbnails.best(),
		})
	}
	return results, nil
}

// get performs one attempt. The credential travels as the key query parameter.
func (c *Client) get(ctx context.Context, path string, params url.Values, key string, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the credential
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("youtube %s: %w", path, uerr.Err)
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
			apiErr.Message = env.Error.Message
			if len(env.Error.Errors) > 0 {
				apiErr.Reason = env.Error.Errors[0].Reason
			}
		}
		slog.Debug("youtube api error",
			slog.String("path", path),
			slog.Int("status", apiErr.Status),
			slog.String("reason", apiErr.Reason))
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("youtube %s: decode response: %w", path, err)
	}
	return nil
}

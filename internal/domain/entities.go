package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrInternal          = errors.New("internal error")

	// ErrNoCredential is fatal: the service has no credential configured and
	// retrying cannot fix it.
	ErrNoCredential = errors.New("no credential configured")
	// ErrUpstreamExhausted wraps the last upstream error once the retry budget is spent.
	ErrUpstreamExhausted = errors.New("upstream call failed")
	// ErrCanceled marks a caller-initiated cancellation; it never demotes a credential.
	ErrCanceled = errors.New("canceled")
	// ErrInvalidJSON means the generation service answered but the payload was not JSON.
	ErrInvalidJSON = errors.New("response was not valid JSON")
)

// Video is the subset of video metadata the extractor needs.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	Duration     string    `json:"duration,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
}

// SearchResult is a single hit from a video search.
type SearchResult struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// Ingredient is one line of a recipe ingredient list.
type Ingredient struct {
	Name     string `json:"name" validate:"required"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Recipe is the structured result of an extraction.
// Invariants: Title non-empty; at least one ingredient and one step.
type Recipe struct {
	VideoID     string       `json:"video_id"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description,omitempty"`
	Servings    int          `json:"servings,omitempty" validate:"gte=0"`
	Ingredients []Ingredient `json:"ingredients" validate:"required,min=1,dive"`
	Steps       []string     `json:"steps" validate:"required,min=1,dive,required"`
	Tags        []string     `json:"tags,omitempty"`
}

// Ports

// VideoMetadataClient fetches video metadata from the video platform.
type VideoMetadataClient interface {
	Video(ctx Context, id string) (Video, error)
	Search(ctx Context, query string, maxResults int) ([]SearchResult, error)
}

// TextGenerator asks the generation service for a JSON document.
type TextGenerator interface {
	GenerateJSON(ctx Context, prompt string) (json.RawMessage, error)
}

// VideoCache stores video metadata between lookups.
type VideoCache interface {
	Get(ctx Context, id string) (Video, bool, error)
	Set(ctx Context, v Video) error
}

// Context is an alias so ports can be declared without importing context everywhere.
type Context = context.Context

// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	obsctx "github.com/fairyhunter13/recipe-extractor/internal/observability"
	"github.com/fairyhunter13/recipe-extractor/pkg/textx"
)

const maxDescriptionChars = 6000

// RecipeService turns a video into a structured recipe.
type RecipeService struct {
	Videos    domain.VideoMetadataClient
	Generator domain.TextGenerator
	// Cache is optional.
	Cache    domain.VideoCache
	validate *validator.Validate
}

// NewRecipeService constructs a RecipeService with its dependencies.
func NewRecipeService(v domain.VideoMetadataClient, g domain.TextGenerator, c domain.VideoCache) RecipeService {
	return RecipeService{Videos: v, Generator: g, Cache: c, validate: validator.New()}
}

// Video returns metadata for id, consulting the cache first. Cache failures
// are logged and never fail the lookup.
func (s RecipeService) Video(ctx domain.Context, id string) (domain.Video, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Video{}, fmt.Errorf("%w: video id required", domain.ErrInvalidArgument)
	}
	lg := obsctx.LoggerFromContext(ctx)
	if s.Cache != nil {
		v, ok, err := s.Cache.Get(ctx, id)
		observability.ObserveCacheLookup(ok, err)
		if err != nil {
			lg.Warn("video cache lookup failed", slog.String("video_id", id), slog.Any("error", err))
		} else if ok {
			return v, nil
		}
	}
	v, err := s.Videos.Video(ctx, id)
	if err != nil {
		return domain.Video{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, v); err != nil {
			lg.Warn("video cache store failed", slog.String("video_id", id), slog.Any("error", err))
		}
	}
	return v, nil
}

// Search lists videos matching query.
func (s RecipeService) Search(ctx domain.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query required", domain.ErrInvalidArgument)
	}
	return s.Videos.Search(ctx, query, maxResults)
}

// Extract fetches the video's metadata, asks the generator for a recipe and
// validates the answer.
func (s RecipeService) Extract(ctx domain.Context, videoID string) (domain.Recipe, error) {
	v, err := s.Video(ctx, videoID)
	if err != nil {
		return domain.Recipe{}, err
	}
	raw, err := s.Generator.GenerateJSON(ctx, BuildPrompt(v))
	if err != nil {
		return domain.Recipe{}, err
	}
	var r domain.Recipe
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Recipe{}, fmt.Errorf("op=usecase.Extract: %w: %v", domain.ErrInvalidJSON, err)
	}
	r.VideoID = v.ID
	if r.Title == "" {
		r.Title = v.Title
	}
	if err := s.validator().Struct(r); err != nil {
		return domain.Recipe{}, fmt.Errorf("op=usecase.Extract: %w: no usable recipe in video: %v", domain.ErrNotFound, err)
	}
	obsctx.LoggerFromContext(ctx).Info("recipe extracted",
		slog.String("video_id", v.ID),
		slog.Int("ingredients", len(r.Ingredients)),
		slog.Int("steps", len(r.Steps)))
	return r, nil
}

func (s RecipeService) validator() *validator.Validate {
	if s.validate == nil {
		return validator.New()
	}
	return s.validate
}

// BuildPrompt renders the extraction prompt for a video.
func BuildPrompt(v domain.Video) string {
	desc := textx.Truncate(textx.SanitizeText(v.Description), maxDescriptionChars)
	var b strings.Builder
	b.WriteString("Extract the cooking recipe described by this video.\n")
	b.WriteString("Answer with a single JSON object with the fields ")
	b.WriteString(`"title" (string), "description" (string), "servings" (integer, 0 if unknown), `)
	b.WriteString(`"ingredients" (array of {"name","quantity","unit"}), "steps" (array of strings), "tags" (array of strings).`)
	b.WriteString("\nIf the video contains no recipe, answer {\"title\":\"\",\"ingredients\":[],\"steps\":[]}.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", textx.SanitizeText(v.Title))
	fmt.Fprintf(&b, "Channel: %s\n", v.ChannelTitle)
	if len(v.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(v.Tags, ", "))
	}
	fmt.Fprintf(&b, "Description:\n%s\n", desc)
	return b.String()
}

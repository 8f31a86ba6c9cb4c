package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/recipe-extractor/internal/domain"
)

type fakeVideos struct {
	video    domain.Video
	err      error
	calls    int
	searchQ  string
	searchN  int
	searched []domain.SearchResult
}

func (f *fakeVideos) Video(_ domain.Context, id string) (domain.Video, error) {
	f.calls++
	if f.err != nil {
		return domain.Video{}, f.err
	}
	v := f.video
	v.ID = id
	return v, nil
}

func (f *fakeVideos) Search(_ domain.Context, q string, n int) ([]domain.SearchResult, error) {
	f.searchQ, f.searchN = q, n
	return f.searched, f.err
}

type fakeGenerator struct {
	out    string
	err    error
	prompt string
}

func (f *fakeGenerator) GenerateJSON(_ domain.Context, prompt string) (json.RawMessage, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.out), nil
}

type fakeCache struct {
	items  map[string]domain.Video
	getErr error
	setErr error
	sets   int
}

func (f *fakeCache) Get(_ domain.Context, id string) (domain.Video, bool, error) {
	if f.getErr != nil {
		return domain.Video{}, false, f.getErr
	}
	v, ok := f.items[id]
	return v, ok, nil
}

func (f *fakeCache) Set(_ domain.Context, v domain.Video) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	if f.items == nil {
		f.items = map[string]domain.Video{}
	}
	f.items[v.ID] = v
	return nil
}

const recipeJSON = `{"title":"Fluffy Pancakes","servings":4,"ingredients":[{"name":"flour","quantity":"2","unit":"cups"},{"name":"milk"}],"steps":["mix","fry"]}`

func TestVideo_CacheMissThenHit(t *testing.T) {
	videos := &fakeVideos{video: domain.Video{Title: "Pancakes"}}
	cache := &fakeCache{}
	svc := NewRecipeService(videos, &fakeGenerator{}, cache)
	ctx := context.Background()

	v, err := svc.Video(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Pancakes", v.Title)
	assert.Equal(t, 1, videos.calls)
	assert.Equal(t, 1, cache.sets)

	_, err = svc.Video(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, videos.calls)
}

func TestVideo_CacheErrorsAreNotFatal(t *testing.T) {
	videos := &fakeVideos{video: domain.Video{Title: "Soup"}}
	cache := &fakeCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	svc := NewRecipeService(videos, &fakeGenerator{}, cache)

	v, err := svc.Video(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Soup", v.Title)
}

func TestVideo_NoCache(t *testing.T) {
	svc := NewRecipeService(&fakeVideos{}, &fakeGenerator{}, nil)
	_, err := svc.Video(context.Background(), "abc")
	assert.NoError(t, err)
}

func TestVideo_Validation(t *testing.T) {
	videos := &fakeVideos{}
	svc := NewRecipeService(videos, &fakeGenerator{}, nil)
	_, err := svc.Video(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 0, videos.calls)
}

func TestVideo_UpstreamErrorPropagates(t *testing.T) {
	svc := NewRecipeService(&fakeVideos{err: domain.ErrNoCredential}, &fakeGenerator{}, &fakeCache{})
	_, err := svc.Video(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestSearch(t *testing.T) {
	videos := &fakeVideos{searched: []domain.SearchResult{{VideoID: "v1"}}}
	svc := NewRecipeService(videos, &fakeGenerator{}, nil)

	res, err := svc.Search(context.Background(), "pasta", 3)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, "pasta", videos.searchQ)
	assert.Equal(t, 3, videos.searchN)

	_, err = svc.Search(context.Background(), "", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestExtract_Success(t *testing.T) {
	videos := &fakeVideos{video: domain.Video{Title: "Pancakes!", ChannelTitle: "Chef", Description: "2 cups flour", Tags: []string{"breakfast"}}}
	gen := &fakeGenerator{out: recipeJSON}
	svc := NewRecipeService(videos, gen, nil)

	r, err := svc.Extract(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", r.VideoID)
	assert.Equal(t, "Fluffy Pancakes", r.Title)
	assert.Equal(t, 4, r.Servings)
	assert.Len(t, r.Ingredients, 2)
	assert.Equal(t, []string{"mix", "fry"}, r.Steps)

	assert.Contains(t, gen.prompt, "Title: Pancakes!")
	assert.Contains(t, gen.prompt, "Tags: breakfast")
	assert.Contains(t, gen.prompt, "2 cups flour")
}

func TestExtract_FallsBackToVideoTitle(t *testing.T) {
	gen := &fakeGenerator{out: `{"ingredients":[{"name":"egg"}],"steps":["boil"]}`}
	svc := NewRecipeService(&fakeVideos{video: domain.Video{Title: "Boiled Egg"}}, gen, nil)

	r, err := svc.Extract(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Boiled Egg", r.Title)
}

func TestExtract_NoRecipe(t *testing.T) {
	gen := &fakeGenerator{out: `{"title":"","ingredients":[],"steps":[]}`}
	svc := NewRecipeService(&fakeVideos{video: domain.Video{Title: "Vlog"}}, gen, nil)

	_, err := svc.Extract(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExtract_WrongShape(t *testing.T) {
	gen := &fakeGenerator{out: `[1,2,3]`}
	svc := NewRecipeService(&fakeVideos{}, gen, nil)

	_, err := svc.Extract(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidJSON)
}

func TestExtract_GeneratorErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{err: domain.ErrUpstreamExhausted}
	svc := NewRecipeService(&fakeVideos{}, gen, nil)

	_, err := svc.Extract(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrUpstreamExhausted)
}

func TestBuildPrompt_TruncatesDescription(t *testing.T) {
	p := BuildPrompt(domain.Video{Title: "t", Description: strings.Repeat("z", maxDescriptionChars+500)})
	assert.Equal(t, maxDescriptionChars, strings.Count(p, "z"))
}

func TestBuildPrompt_SanitizesText(t *testing.T) {
	p := BuildPrompt(domain.Video{Title: "Soup\x00", Description: "step one\x07\n\n\n\n\nstep two"})
	assert.Contains(t, p, "Title: Soup\n")
	assert.Contains(t, p, "step one\n\nstep two")
	assert.NotContains(t, p, "\x07")
}

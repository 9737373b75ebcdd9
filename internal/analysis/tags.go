package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

const maxTagLength = 64

var tagFolder = cases.Lower(language.Und)

// NormalizeTagName lowercases, strips a leading '#', and collapses whitespace
func NormalizeTagName(name string) string {
	name = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(name), "#"))
	name = strings.Join(strings.Fields(tagFolder.String(name)), " ")
	if runes := []rune(name); len(runes) > maxTagLength {
		name = strings.TrimSpace(string(runes[:maxTagLength]))
	}
	return name
}

// TagCache is the tag vocabulary of one analysis run. It is owned by the run
// that created it and is not safe for concurrent use.
type TagCache struct {
	byName map[string]models.Tag
	names  []string
}

// NewTagCache loads the current vocabulary
func NewTagCache(ctx context.Context, store TagStore) (*TagCache, error) {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag vocabulary: %w", err)
	}

	cache := &TagCache{byName: make(map[string]models.Tag, len(tags))}
	for _, tag := range tags {
		cache.add(tag)
	}
	return cache, nil
}

func (c *TagCache) add(tag models.Tag) {
	if _, exists := c.byName[tag.Name]; exists {
		return
	}
	c.byName[tag.Name] = tag
	c.names = append(c.names, tag.Name)
}

// Lookup returns a cached tag by normalized name
func (c *TagCache) Lookup(name string) (models.Tag, bool) {
	tag, ok := c.byName[NormalizeTagName(name)]
	return tag, ok
}

// Names returns the full vocabulary
func (c *TagCache) Names() []string {
	return c.names
}

// Len returns the vocabulary size
func (c *TagCache) Len() int {
	return len(c.names)
}

// TagDeduplicator maps AI-suggested tag names onto the vocabulary
type TagDeduplicator struct {
	ai     TagAI
	store  TagStore
	logger zerolog.Logger
}

// NewTagDeduplicator creates a tag deduplicator
func NewTagDeduplicator(backend TagAI, store TagStore, logger zerolog.Logger) *TagDeduplicator {
	return &TagDeduplicator{
		ai:     backend,
		store:  store,
		logger: logger.With().Str("component", "tag_dedupe").Logger(),
	}
}

// Resolve returns the tag a suggestion maps to. An exact name match is used
// as-is; otherwise the AI compares it with the whole vocabulary and either a
// merge target or a newly created tag is returned.
func (d *TagDeduplicator) Resolve(ctx context.Context, cache *TagCache, suggested string) (tag models.Tag, created bool, err error) {
	name := NormalizeTagName(suggested)
	if name == "" {
		return models.Tag{}, false, fmt.Errorf("empty tag name")
	}
	if existing, ok := cache.Lookup(name); ok {
		return existing, false, nil
	}

	if cache.Len() > 0 {
		decision, err := d.ai.DeduplicateTag(ctx, name, cache.Names())
		if err != nil {
			return models.Tag{}, false, fmt.Errorf("failed to deduplicate tag %q: %w", name, err)
		}
		if decision.ShouldMerge && decision.SimilarTag != nil {
			if existing, ok := cache.Lookup(*decision.SimilarTag); ok {
				return existing, false, nil
			}
		}
	}

	return d.create(ctx, cache, name)
}

// create inserts a new tag; losing a race to another run reuses the winner
func (d *TagDeduplicator) create(ctx context.Context, cache *TagCache, name string) (models.Tag, bool, error) {
	tag, err := d.store.CreateTag(ctx, name)
	if err == nil {
		cache.add(*tag)
		return *tag, true, nil
	}
	if !errors.Is(err, database.ErrDuplicate) {
		return models.Tag{}, false, err
	}

	existing, err := d.store.GetTagByName(ctx, name)
	if err != nil {
		return models.Tag{}, false, fmt.Errorf("failed to reload tag %q after conflict: %w", name, err)
	}
	cache.add(*existing)
	return *existing, false, nil
}

// AttachSuggested resolves every suggestion and links each distinct tag to
// the issue once. It returns how many tags were newly created.
func (d *TagDeduplicator) AttachSuggested(ctx context.Context, cache *TagCache, issueID int64, suggestions []string) int {
	attached := make(map[int64]struct{})
	created := 0

	for _, suggestion := range suggestions {
		tag, isNew, err := d.Resolve(ctx, cache, suggestion)
		if err != nil {
			d.logger.Warn().Err(err).Int64("issue_id", issueID).Str("tag", suggestion).Msg("Skipping suggested tag")
			continue
		}
		if isNew {
			created++
		}
		if _, done := attached[tag.ID]; done {
			continue
		}

		if _, err := d.store.AttachTag(ctx, issueID, tag.ID); err != nil {
			d.logger.Warn().Err(err).Int64("issue_id", issueID).Str("tag", tag.Name).Msg("Failed to attach tag")
			continue
		}
		attached[tag.ID] = struct{}{}
	}
	return created
}

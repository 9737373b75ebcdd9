package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportwatch/internal/ai"
)

func TestNormalizeTagName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Billing", "billing"},
		{"  billing  ", "billing"},
		{"#Billing", "billing"},
		{"##login issue", "login issue"},
		{"Login   Issue", "login issue"},
		{"ÄNDERUNG", "änderung"},
		{"#", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTagName(tt.in))
		})
	}
}

func TestNormalizeTagName_Truncates(t *testing.T) {
	name := NormalizeTagName(strings.Repeat("a", 100))
	assert.Len(t, name, maxTagLength)
}

func TestTagDeduplicator_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("empty vocabulary creates without asking", func(t *testing.T) {
		store := newMemStore()
		backend := &fakeAI{}
		d := NewTagDeduplicator(backend, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		tag, created, err := d.Resolve(ctx, cache, "Shipping")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "shipping", tag.Name)
		assert.Zero(t, backend.dedupeCalls)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("exact match skips the AI", func(t *testing.T) {
		store := newMemStore()
		_, err := store.CreateTag(ctx, "shipping")
		require.NoError(t, err)
		backend := &fakeAI{}
		d := NewTagDeduplicator(backend, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		_, created, err := d.Resolve(ctx, cache, "SHIPPING")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Zero(t, backend.dedupeCalls)
	})

	t.Run("AI sees the whole vocabulary", func(t *testing.T) {
		store := newMemStore()
		for _, name := range []string{"shipping", "billing", "login"} {
			_, err := store.CreateTag(ctx, name)
			require.NoError(t, err)
		}
		var seen []string
		backend := &fakeAI{dedupe: func(_ string, vocabulary []string) (ai.TagDecision, error) {
			seen = vocabulary
			similar := "billing"
			return ai.TagDecision{SimilarTag: &similar, ShouldMerge: true}, nil
		}}
		d := NewTagDeduplicator(backend, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		tag, created, err := d.Resolve(ctx, cache, "payments")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "billing", tag.Name)
		assert.ElementsMatch(t, []string{"shipping", "billing", "login"}, seen)
	})

	t.Run("no merge creates a new tag", func(t *testing.T) {
		store := newMemStore()
		_, err := store.CreateTag(ctx, "shipping")
		require.NoError(t, err)
		d := NewTagDeduplicator(&fakeAI{}, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		tag, created, err := d.Resolve(ctx, cache, "refunds")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "refunds", tag.Name)
		assert.ElementsMatch(t, []string{"shipping", "refunds"}, cache.Names())
	})

	t.Run("creation race reuses the existing tag", func(t *testing.T) {
		store := newMemStore()
		d := NewTagDeduplicator(&fakeAI{}, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		// a concurrent run creates the tag after our cache was loaded
		winner, err := store.CreateTag(ctx, "refunds")
		require.NoError(t, err)

		tag, created, err := d.Resolve(ctx, cache, "Refunds")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, winner.ID, tag.ID)
	})

	t.Run("AI failure surfaces", func(t *testing.T) {
		store := newMemStore()
		_, err := store.CreateTag(ctx, "shipping")
		require.NoError(t, err)
		d := NewTagDeduplicator(&fakeAI{dedupe: func(string, []string) (ai.TagDecision, error) {
			return ai.TagDecision{}, ai.ErrMalformedResponse
		}}, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		_, _, err = d.Resolve(ctx, cache, "refunds")
		assert.True(t, errors.Is(err, ai.ErrMalformedResponse))
	})

	t.Run("empty name", func(t *testing.T) {
		store := newMemStore()
		d := NewTagDeduplicator(&fakeAI{}, store, zerolog.Nop())
		cache, err := NewTagCache(ctx, store)
		require.NoError(t, err)

		_, _, err = d.Resolve(ctx, cache, "  # ")
		assert.Error(t, err)
	})
}

func TestTagDeduplicator_AttachSuggested(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	d := NewTagDeduplicator(&fakeAI{dedupe: func(candidate string, _ []string) (ai.TagDecision, error) {
		if candidate == "charges" {
			similar := "billing"
			return ai.TagDecision{SimilarTag: &similar, ShouldMerge: true}, nil
		}
		return ai.TagDecision{}, nil
	}}, store, zerolog.Nop())
	cache, err := NewTagCache(ctx, store)
	require.NoError(t, err)

	created := d.AttachSuggested(ctx, cache, 1, []string{"billing", "Billing", "charges", "", "refunds"})
	assert.Equal(t, 2, created)
	assert.Len(t, store.tagsOf(1), 2)

	// a later pass over the same issue adds nothing
	created = d.AttachSuggested(ctx, cache, 1, []string{"charges", "refunds"})
	assert.Zero(t, created)
	assert.Len(t, store.tagsOf(1), 2)
}

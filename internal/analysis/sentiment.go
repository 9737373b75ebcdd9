package analysis

import (
	"context"
	"fmt"
)

// DefaultSentimentWindow is how many recent messages feed the rollup
const DefaultSentimentWindow = 20

// SentimentAggregator recomputes a customer's sentiment from recent messages
type SentimentAggregator struct {
	ai     SentimentAI
	store  CustomerStore
	window int
}

// NewSentimentAggregator creates a sentiment aggregator
func NewSentimentAggregator(backend SentimentAI, store CustomerStore, window int) *SentimentAggregator {
	if window <= 0 {
		window = DefaultSentimentWindow
	}
	return &SentimentAggregator{ai: backend, store: store, window: window}
}

// Refresh replaces the stored sentiment of one external party. A party with
// no qualifying messages keeps its current value and updated is false.
func (a *SentimentAggregator) Refresh(ctx context.Context, externalPartyID string) (sentiment string, updated bool, err error) {
	texts, err := a.store.RecentExternalTexts(ctx, externalPartyID, a.window)
	if err != nil {
		return "", false, err
	}
	if len(texts) == 0 {
		return "", false, nil
	}

	result, err := a.ai.AggregateSentiment(ctx, texts)
	if err != nil {
		return "", false, fmt.Errorf("failed to aggregate sentiment for %s: %w", externalPartyID, err)
	}

	if err := a.store.ReplaceCustomerSentiment(ctx, externalPartyID, result.Sentiment); err != nil {
		return "", false, err
	}
	return result.Sentiment, true, nil
}

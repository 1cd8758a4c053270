package web_search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepsearch/internal/helpers"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/cache"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/models"
	"go.uber.org/zap"
)

// Retriever adapts a WebSearcher to the agent's retrieval contract: one query
// in, one human-readable text blob out, "" when nothing was found.
type Retriever struct {
	searcher   WebSearcher
	provider   Provider
	maxResults int
	cache      cache.Cache
	ttl        time.Duration
	logger     *zap.SugaredLogger
}

type RetrieverOption func(*Retriever)

// WithCache stores non-empty results in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) RetrieverOption {
	return func(r *Retriever) {
		r.cache = c
		r.ttl = ttl
	}
}

func WithLogger(l *zap.SugaredLogger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRetriever(searcher WebSearcher, provider Provider, maxResults int, opts ...RetrieverOption) *Retriever {
	if maxResults <= 0 {
		maxResults = 10
	}
	r := &Retriever{
		searcher:   searcher,
		provider:   provider,
		maxResults: maxResults,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve implements core.RetrievalProvider. Cache failures are logged and
// ignored; only backend failures are returned.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	key := cache.Key(string(r.provider), query)
	if r.cache != nil {
		if hit, ok, err := r.cache.Get(ctx, key); err != nil {
			r.logger.Warnw("search cache get failed", "error", err)
		} else if ok {
			r.logger.Debugw("search cache hit", "provider", r.provider, "query", query)
			return hit, nil
		}
	}

	results, err := r.searcher.Discover(ctx, query, r.maxResults)
	if err != nil {
		return "", fmt.Errorf("%s search: %w", r.provider, err)
	}
	blob := FormatResults(Dedupe(results))
	r.logger.Infow("search completed", "provider", r.provider, "query", query, "results", len(results))

	if blob != "" && r.cache != nil {
		if err := r.cache.Set(ctx, key, blob, r.ttl); err != nil {
			r.logger.Warnw("search cache set failed", "error", err)
		}
	}
	return blob, nil
}

// Dedupe drops results whose canonical URL was already seen, keeping the
// first occurrence, and cleans HTML out of titles and snippets.
func Dedupe(results []models.Result) []models.Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]models.Result, 0, len(results))
	for _, res := range results {
		res.Title = helpers.PlainText(res.Title)
		res.Snippet = helpers.PlainText(res.Snippet)
		res.URL = strings.TrimSpace(res.URL)
		if res.Title == "" && res.Snippet == "" && res.URL == "" {
			continue
		}
		if res.URL != "" {
			key, err := helpers.CanonicalURL(res.URL)
			if err != nil {
				key = res.URL
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, res)
	}
	return out
}

// FormatResults renders results as numbered source blocks:
//
//	[Source 1] title
//	snippet
//	link
//	date (when known)
//	---
func FormatResults(results []models.Result) string {
	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "[Source %d] %s\n%s\n%s\n", i+1, res.Title, res.Snippet, res.URL)
		if d := strings.TrimSpace(res.Date); d != "" {
			b.WriteString(d)
			b.WriteString("\n")
		}
		b.WriteString("---\n")
	}
	return b.String()
}

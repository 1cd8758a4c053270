package web_search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepsearch/config"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/jina"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/models"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/serper"
	"github.com/mohammad-safakhou/deepsearch/utils"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	AutoProvider   Provider = "auto"
	SerperProvider Provider = "serper"
	JinaProvider   Provider = "jina"
	BraveProvider  Provider = "brave"
)

// Error is a configuration error raised while building a searcher.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "web_search: " + e.Msg }

var (
	ErrUnsupportedProvider = &Error{"unsupported provider"}
	ErrMissingAPIKey       = &Error{"missing api key"}
)

// NewWebSearcher builds the searcher selected by cfg.Provider. "auto" prefers
// Jina, then Serper, then Brave, depending on which key is configured.
func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, Provider, error) {
	provider := Provider(strings.ToLower(strings.TrimSpace(cfg.Provider)))
	if provider == "" || provider == AutoProvider {
		switch {
		case cfg.JinaAPIKey != "":
			provider = JinaProvider
		case cfg.SerperAPIKey != "":
			provider = SerperProvider
		case cfg.BraveAPIKey != "":
			provider = BraveProvider
		default:
			return nil, "", ErrMissingAPIKey
		}
	}

	client := utils.NewHTTPClient(cfg.Timeout, cfg.Retries, 500*time.Millisecond)
	var key string
	var searcher WebSearcher
	switch provider {
	case SerperProvider:
		key = cfg.SerperAPIKey
		searcher = serper.Search{ApiKey: key, Country: cfg.Country, Client: client}
	case JinaProvider:
		key = cfg.JinaAPIKey
		searcher = jina.Search{ApiKey: key, Client: client}
	case BraveProvider:
		key = cfg.BraveAPIKey
		searcher = brave.Search{ApiKey: key, Client: client}
	default:
		return nil, "", ErrUnsupportedProvider
	}
	if key == "" {
		return nil, "", ErrMissingAPIKey
	}
	return searcher, provider, nil
}

// IsConfigError reports whether err came from NewWebSearcher validation.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

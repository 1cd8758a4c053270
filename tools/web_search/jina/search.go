package jina

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/deepsearch/tools/web_search/models"
	"github.com/mohammad-safakhou/deepsearch/utils"
)

const DefaultEndpoint = "https://s.jina.ai/"

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *utils.HTTPClient
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://jina.ai/reader/#apiform (search endpoint)
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	url := fmt.Sprintf("%s?q=%s", endpoint, utils.UrlQuery(q))
	client := s.Client
	if client == nil {
		client = utils.NewHTTPClient(0, 0, 0)
	}

	var raw struct {
		Data []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Date        string `json:"date"`
		} `json:"data"`
	}
	headers := map[string]string{
		"Authorization":   authorization(s.ApiKey),
		"Accept":          "application/json",
		"X-Return-Format": "markdown",
	}
	if err := client.DoJSON(ctx, http.MethodGet, url, headers, nil, &raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.Data {
		if k > 0 && i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Description, Date: r.Date})
	}
	return out, nil
}

// legacy keys were configured with the scheme already included
func authorization(key string) string {
	key = strings.TrimSpace(key)
	if len(key) >= 7 && strings.EqualFold(key[:7], "bearer ") {
		key = strings.TrimSpace(key[7:])
	}
	return "Bearer " + key
}

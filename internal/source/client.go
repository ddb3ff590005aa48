// Package source implements the paginated GraphQL client for the
// upstream OpenCTI instance the connector imports from.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashfaaq98/opencti-sync/internal/retry"
)

// ErrSourceUnavailable is returned once transport or auth failures have
// exhausted the retry budget. The orchestrator aborts the run on it.
var ErrSourceUnavailable = errors.New("source platform unavailable")

// Config holds the source client settings.
type Config struct {
	URL          string
	Token        string
	Timeout      time.Duration
	PageSize     int
	Cooldown     time.Duration
	RateLimitRPS int
	BurstLimit   int
	Retry        retry.Policy
}

// Client issues the two named GraphQL operations with cursor pagination.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *RateLimiter
	retry      retry.Policy
	pageSize   int
	cooldown   time.Duration
	logger     zerolog.Logger
}

// NewClient creates a source client. URL and token are required.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("source token is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = cfg.RateLimitRPS * 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		limiter:    NewRateLimiter(cfg.RateLimitRPS, cfg.BurstLimit),
		retry:      cfg.Retry,
		pageSize:   cfg.PageSize,
		cooldown:   cfg.Cooldown,
		logger:     logger,
	}, nil
}

// Close releases the client's rate limiter.
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Close()
	}
}

// Cooldown returns the configured delay between page fetches.
func (c *Client) Cooldown() time.Duration {
	return c.cooldown
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// entityTypeFilter builds the equality filter group on entity_type the
// source API expects.
func entityTypeFilter(entityType string) map[string]interface{} {
	return map[string]interface{}{
		"mode": "and",
		"filters": []map[string]interface{}{
			{
				"key":      "entity_type",
				"values":   []string{entityType},
				"operator": "eq",
				"mode":     "or",
			},
		},
		"filterGroups": []interface{}{},
	}
}

// FetchObservables fetches one page of observables starting after cursor.
// An empty cursor fetches the first page. Ordering is newest-first so
// partial runs prioritize recent data.
func (c *Client) FetchObservables(ctx context.Context, cursor string) (ObservablePage, error) {
	variables := map[string]interface{}{
		"count":     c.pageSize,
		"orderBy":   "created_at",
		"orderMode": "desc",
		"filters":   entityTypeFilter("Stix-Cyber-Observable"),
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	var payload struct {
		StixCyberObservables struct {
			Edges []struct {
				Node RawObservable `json:"node"`
			} `json:"edges"`
			PageInfo PageInfo `json:"pageInfo"`
		} `json:"stixCyberObservables"`
	}

	if err := c.query(ctx, "StixCyberObservablesWithDetails", observablesQuery, variables, &payload); err != nil {
		return ObservablePage{}, err
	}

	page := ObservablePage{
		Records:     make([]RawObservable, 0, len(payload.StixCyberObservables.Edges)),
		EndCursor:   payload.StixCyberObservables.PageInfo.EndCursor,
		HasNextPage: payload.StixCyberObservables.PageInfo.HasNextPage,
		GlobalCount: payload.StixCyberObservables.PageInfo.GlobalCount,
	}
	for _, edge := range payload.StixCyberObservables.Edges {
		page.Records = append(page.Records, edge.Node)
	}

	c.logger.Info().
		Int("count", len(page.Records)).
		Bool("has_next_page", page.HasNextPage).
		Msg("Fetched observables page")

	return page, nil
}

// FetchIndicators fetches one page of indicators starting after cursor.
func (c *Client) FetchIndicators(ctx context.Context, cursor string) (IndicatorPage, error) {
	variables := map[string]interface{}{
		"count":     c.pageSize,
		"orderBy":   "created",
		"orderMode": "desc",
		"filters":   entityTypeFilter("Indicator"),
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	var payload struct {
		Indicators struct {
			Edges []struct {
				Node RawIndicator `json:"node"`
			} `json:"edges"`
			PageInfo PageInfo `json:"pageInfo"`
		} `json:"indicators"`
	}

	if err := c.query(ctx, "IndicatorsWithDetails", indicatorsQuery, variables, &payload); err != nil {
		return IndicatorPage{}, err
	}

	page := IndicatorPage{
		Records:     make([]RawIndicator, 0, len(payload.Indicators.Edges)),
		EndCursor:   payload.Indicators.PageInfo.EndCursor,
		HasNextPage: payload.Indicators.PageInfo.HasNextPage,
		GlobalCount: payload.Indicators.PageInfo.GlobalCount,
	}
	for _, edge := range payload.Indicators.Edges {
		page.Records = append(page.Records, edge.Node)
	}

	c.logger.Info().
		Int("count", len(page.Records)).
		Bool("has_next_page", page.HasNextPage).
		Msg("Fetched indicators page")

	return page, nil
}

// query posts a GraphQL operation and decodes data into out, retrying
// transient failures per the client's policy.
func (c *Client) query(ctx context.Context, operation, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	err = c.retry.Do(ctx, func() error {
		return c.post(ctx, operation, body, out)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, operation, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, operation string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return retry.Permanent(fmt.Errorf("%s: authentication rejected with status %d", operation, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s: transient error: status %d", operation, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(resp.Body)
		return retry.Permanent(fmt.Errorf("%s: status %d: %s", operation, resp.StatusCode, string(data)))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", operation, err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return retry.Permanent(fmt.Errorf("%s: GraphQL errors: %s", operation, strings.Join(messages, "; ")))
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", operation, err)
	}
	return nil
}

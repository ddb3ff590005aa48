// Package destination implements the bulk-ingest client for the OpenCTI
// platform the connector imports into.
package destination

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

	"github.com/Ashfaaq98/opencti-sync/internal/stix"
)

// ErrDestinationRejected is returned when the platform refuses a bundle
// or a work mutation. The dispatcher retries it; exhaustion fails the
// current phase.
var ErrDestinationRejected = errors.New("destination platform rejected request")

// Ack acknowledges a successfully ingested bundle.
type Ack struct {
	BundleID string
	Objects  int
}

// Config holds the destination client settings.
type Config struct {
	URL         string
	Token       string
	ConnectorID string
	Timeout     time.Duration
}

// Client submits STIX bundles and tracks work units on the destination
// platform through its GraphQL API.
type Client struct {
	baseURL     string
	token       string
	connectorID string
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewClient creates a destination client. URL and token are required.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("destination URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("destination token is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		token:       cfg.Token,
		connectorID: cfg.ConnectorID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

const initiateWorkMutation = `
mutation ConnectorWorkAdd($connectorId: String!, $friendlyName: String) {
  workAdd(connectorId: $connectorId, friendlyName: $friendlyName) {
    id
  }
}
`

// InitiateWork registers a named work unit for this run and returns its id.
func (c *Client) InitiateWork(ctx context.Context, friendlyName string) (string, error) {
	var payload struct {
		WorkAdd struct {
			ID string `json:"id"`
		} `json:"workAdd"`
	}

	variables := map[string]interface{}{
		"connectorId":  c.connectorID,
		"friendlyName": friendlyName,
	}
	if err := c.mutate(ctx, "workAdd", initiateWorkMutation, variables, &payload); err != nil {
		return "", err
	}

	c.logger.Info().Str("work_id", payload.WorkAdd.ID).Msg("Initiated work")
	return payload.WorkAdd.ID, nil
}

const completeWorkMutation = `
mutation ConnectorWorkToProcessed($id: ID!, $message: String, $inError: Boolean) {
  workEdit(id: $id) {
    toProcessed(message: $message, inError: $inError)
  }
}
`

// CompleteWork marks the work unit processed with a summary message.
func (c *Client) CompleteWork(ctx context.Context, workID, message string, inError bool) error {
	variables := map[string]interface{}{
		"id":      workID,
		"message": message,
		"inError": inError,
	}
	var payload json.RawMessage
	return c.mutate(ctx, "workEdit", completeWorkMutation, variables, &payload)
}

const pushBundleMutation = `
mutation ConnectorBundlePush($connectorId: String!, $bundle: String!, $work_id: String) {
  stixBundlePush(connectorId: $connectorId, bundle: $bundle, work_id: $work_id)
}
`

// PushBundle submits one bundle for ingestion. Callers enforce the
// 100-object ceiling; the platform acknowledges per bundle.
func (c *Client) PushBundle(ctx context.Context, workID string, bundle stix.Bundle) (Ack, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to marshal bundle: %w", err)
	}

	variables := map[string]interface{}{
		"connectorId": c.connectorID,
		"bundle":      string(raw),
	}
	if workID != "" {
		variables["work_id"] = workID
	}

	var payload struct {
		StixBundlePush bool `json:"stixBundlePush"`
	}
	if err := c.mutate(ctx, "stixBundlePush", pushBundleMutation, variables, &payload); err != nil {
		return Ack{}, err
	}
	if !payload.StixBundlePush {
		return Ack{}, fmt.Errorf("%w: bundle %s not accepted", ErrDestinationRejected, bundle.ID)
	}

	c.logger.Info().
		Str("bundle_id", bundle.ID).
		Int("objects", len(bundle.Objects)).
		Msg("Pushed bundle")

	return Ack{BundleID: bundle.ID, Objects: len(bundle.Objects)}, nil
}

type graphQLError struct {
	Message string `json:"message"`
}

func (c *Client) mutate(ctx context.Context, operation, mutation string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query":     mutation,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDestinationRejected, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s: status %d: %s", ErrDestinationRejected, operation, resp.StatusCode, string(data))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: failed to decode response: %v", ErrDestinationRejected, operation, err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("%w: %s: %s", ErrDestinationRejected, operation, strings.Join(messages, "; "))
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", operation, err)
	}
	return nil
}

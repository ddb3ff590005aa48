package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashfaaq98/opencti-sync/internal/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		URL:          url,
		Token:        "test-token",
		PageSize:     2,
		Cooldown:     time.Millisecond,
		RateLimitRPS: 1000,
		Retry:        fastRetry(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// observablesPage builds one GraphQL page response with n observables.
func observablesPage(n int, cursor string, hasNext bool) map[string]interface{} {
	edges := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		edges = append(edges, map[string]interface{}{
			"node": map[string]interface{}{
				"id":               fmt.Sprintf("internal-%s-%d", cursor, i),
				"standard_id":      fmt.Sprintf("ipv4-addr--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c%04d", i),
				"entity_type":      "IPv4-Addr",
				"observable_value": fmt.Sprintf("10.0.0.%d", i),
			},
		})
	}
	return map[string]interface{}{
		"data": map[string]interface{}{
			"stixCyberObservables": map[string]interface{}{
				"edges": edges,
				"pageInfo": map[string]interface{}{
					"endCursor":   cursor,
					"hasNextPage": hasNext,
					"globalCount": n,
				},
			},
		},
	}
}

func TestFetchObservablesSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(observablesPage(1, "c1", false))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.FetchObservables(context.Background(), ""); err != nil {
		t.Fatalf("FetchObservables failed: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestFetchObservablesPaginates(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Variables map[string]interface{} `json:"variables"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		cursor, _ := body.Variables["cursor"].(string)
		requests = append(requests, cursor)

		switch cursor {
		case "":
			json.NewEncoder(w).Encode(observablesPage(2, "page-1", true))
		case "page-1":
			json.NewEncoder(w).Encode(observablesPage(2, "page-2", true))
		default:
			json.NewEncoder(w).Encode(observablesPage(1, "page-3", false))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	var total int
	cursor := ""
	for {
		page, err := client.FetchObservables(ctx, cursor)
		if err != nil {
			t.Fatalf("FetchObservables failed: %v", err)
		}
		total += len(page.Records)
		if !page.HasNextPage {
			break
		}
		cursor = page.EndCursor
	}

	if total != 5 {
		t.Errorf("expected 5 records across pages, got %d", total)
	}
	if len(requests) != 3 {
		t.Errorf("expected exactly 3 page requests, got %d (%v)", len(requests), requests)
	}
	if requests[1] != "page-1" || requests[2] != "page-2" {
		t.Errorf("cursor not threaded through requests: %v", requests)
	}
}

func TestFetchObservablesDecodesFileName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"stixCyberObservables": map[string]interface{}{
					"edges": []map[string]interface{}{
						{"node": map[string]interface{}{
							"id":               "internal-1",
							"standard_id":      "file--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001",
							"entity_type":      "StixFile",
							"observable_value": "d41d8cd98f00b204e9800998ecf8427e",
							"name":             "dropper.exe",
						}},
					},
					"pageInfo": map[string]interface{}{
						"endCursor":   "end",
						"hasNextPage": false,
						"globalCount": 1,
					},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.FetchObservables(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchObservables failed: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}
	if page.Records[0].Name != "dropper.exe" {
		t.Errorf("file name not decoded: %+v", page.Records[0])
	}
}

func TestFetchIndicatorsDecodesEmbeddedObservables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"indicators": map[string]interface{}{
					"edges": []map[string]interface{}{
						{
							"node": map[string]interface{}{
								"id":           "internal-1",
								"standard_id":  "indicator--6a3f32c7-5cf6-4f06-8a1f-08b9e41c5e01",
								"name":         "Malicious IP",
								"pattern":      "[ipv4-addr:value = '10.0.0.1']",
								"pattern_type": "stix",
								"observables": map[string]interface{}{
									"edges": []map[string]interface{}{
										{"node": map[string]interface{}{
											"id":          "internal-2",
											"standard_id": "ipv4-addr--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001",
											"entity_type": "IPv4-Addr",
										}},
									},
								},
							},
						},
					},
					"pageInfo": map[string]interface{}{
						"endCursor":   "end",
						"hasNextPage": false,
						"globalCount": 1,
					},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.FetchIndicators(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchIndicators failed: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 indicator, got %d", len(page.Records))
	}
	edges := page.Records[0].Observables.Edges
	if len(edges) != 1 || edges[0].Node.StandardID != "ipv4-addr--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001" {
		t.Errorf("embedded observable edges not decoded: %+v", edges)
	}
}

func TestFetchObservablesRetriesTransientFailures(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(observablesPage(1, "c1", false))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.FetchObservables(context.Background(), "")
	if err != nil {
		t.Fatalf("expected recovery after transient failures, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(page.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(page.Records))
	}
}

func TestFetchObservablesExhaustionReturnsSourceUnavailable(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchObservables(context.Background(), "")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected retries to stop at 3 attempts, got %d", attempts)
	}
}

func TestFetchObservablesAuthFailureIsNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchObservables(context.Background(), "")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt on auth rejection, got %d", attempts)
	}
}

func TestFetchObservablesGraphQLErrorIsNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{
				{"message": "You must be logged in to do this."},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchObservables(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for GraphQL error payload")
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt on GraphQL errors, got %d", attempts)
	}
}

func TestNewClientRequiresURLAndToken(t *testing.T) {
	if _, err := NewClient(Config{Token: "t"}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := NewClient(Config{URL: "http://localhost"}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing token")
	}
}

package misp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/playbook"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-api-key"
	return cfg
}

// =============================================================================
// Client Creation Tests
// =============================================================================

// TestNewClient_MissingBaseURL verifies construction fails without a URL.
func TestNewClient_MissingBaseURL(t *testing.T) {
	_, err := NewClient(Config{APIKey: "key"}, zap.NewNop())
	if err == nil {
		t.Error("NewClient should fail without a base URL")
	}
}

// TestNewClient_MissingAPIKey verifies construction fails without a key.
func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://misp.example.org"}, zap.NewNop())
	if err == nil {
		t.Error("NewClient should fail without an API key")
	}
}

// =============================================================================
// Submission Tests
// =============================================================================

// TestSubmitEvent_WireShape verifies the wrapper shape, the auth header
// and the string-encoded numeric identifiers.
func TestSubmitEvent_WireShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("expected path /events, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("expected API key in Authorization header, got %q", r.Header.Get("Authorization"))
		}

		var payload map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("undecodable request body: %v", err)
		}
		inner, ok := payload["Event"]
		if !ok {
			t.Fatal(`request body must be wrapped as {"Event": ...}`)
		}

		var ev map[string]interface{}
		if err := json.Unmarshal(inner, &ev); err != nil {
			t.Fatalf("undecodable Event: %v", err)
		}
		if ev["threat_level_id"] != "1" {
			t.Errorf("threat_level_id must be a string, got %v", ev["threat_level_id"])
		}
		if ev["distribution"] != "1" {
			t.Errorf("distribution must be a string, got %v", ev["distribution"])
		}
		if ev["published"] != false {
			t.Errorf("events must submit unpublished, got %v", ev["published"])
		}

		w.Write([]byte(`{"Event":{"id":"4217","info":"created"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient should succeed: %v", err)
	}

	ev := playbook.Event{
		Info:         "SYN flood",
		Date:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ThreatLevel:  playbook.ThreatLevelHigh,
		Analysis:     playbook.AnalysisComplete,
		Distribution: playbook.DistributionCommunity,
	}

	id, err := client.SubmitEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("SubmitEvent should succeed: %v", err)
	}
	if id != "4217" {
		t.Errorf("expected platform-assigned id 4217, got %q", id)
	}
}

// TestSubmitEvent_Rejection verifies a non-200 response surfaces as a
// SubmissionError with the status preserved.
func TestSubmitEvent_Rejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL), zap.NewNop())

	_, err := client.SubmitEvent(context.Background(), playbook.Event{Info: "x"})
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SubmissionError, got %v", err)
	}
	if se.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", se.StatusCode)
	}
}

// =============================================================================
// Fetch and Adapter Tests
// =============================================================================

// TestFetchEvents_AdaptsWireShape verifies the response adapter: string
// ids decoded, tags carried over, clusters recovered from galaxy tags.
func TestFetchEvents_AdaptsWireShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/restSearch" {
			t.Errorf("expected path /events/restSearch, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"response":[{"Event":{
			"id":"11","info":"DNS amplification","date":"2026-02-03",
			"threat_level_id":"2","analysis":"2","distribution":"1","published":true,
			"Attribute":[{"category":"Network activity","type":"ip-src","value":"1.2.3.4","to_ids":true}],
			"Tag":[
				{"name":"tlp:green"},
				{"name":"misp-galaxy:mitre-attack-pattern=\"Reflection Amplification - T1498.002\""}
			]}}]}`))
	}))
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL), zap.NewNop())

	events, err := client.FetchEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchEvents should succeed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.ThreatLevel != playbook.ThreatLevelMedium {
		t.Errorf("expected threat level 2, got %d", ev.ThreatLevel)
	}
	if !ev.Published {
		t.Error("published flag should carry over")
	}
	if ev.Date.Format("2006-01-02") != "2026-02-03" {
		t.Errorf("date should decode, got %v", ev.Date)
	}
	if len(ev.Attributes) != 1 || ev.Attributes[0].Value != "1.2.3.4" {
		t.Errorf("attributes should adapt, got %v", ev.Attributes)
	}
	if !ev.HasCluster(playbook.ClusterAmplification) {
		t.Errorf("cluster should be recovered from the galaxy tag, got %v", ev.GalaxyClusters)
	}
}

// TestGetEvent_CacheHit verifies a fetched event is served from cache
// without a second request.
func TestGetEvent_CacheHit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"Event":{"id":"5","info":"cached","threat_level_id":"3","analysis":"2","distribution":"1"}}`))
	}))
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL), zap.NewNop())

	for i := 0; i < 3; i++ {
		ev, err := client.GetEvent(context.Background(), "5")
		if err != nil {
			t.Fatalf("GetEvent should succeed: %v", err)
		}
		if ev.Info != "cached" {
			t.Errorf("unexpected event: %+v", ev)
		}
	}

	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits.Load())
	}
}

// TestGetEvent_NotFound verifies 404 maps to a nil event without error.
func TestGetEvent_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL), zap.NewNop())

	ev, err := client.GetEvent(context.Background(), "missing")
	if err != nil {
		t.Errorf("404 should not be an error: %v", err)
	}
	if ev != nil {
		t.Errorf("expected nil event, got %+v", ev)
	}
}

// =============================================================================
// Polling Tests
// =============================================================================

// TestAwaitPublished_Success verifies polling stops once the remote
// event reports published.
func TestAwaitPublished_Success(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		published := "false"
		if polls.Add(1) >= 3 {
			published = "true"
		}
		w.Write([]byte(`{"Event":{"id":"9","info":"x","threat_level_id":"1","analysis":"2","distribution":"1","published":` + published + `}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.PollInterval = 5 * time.Millisecond
	client, _ := NewClient(cfg, zap.NewNop())

	if err := client.AwaitPublished(context.Background(), "9"); err != nil {
		t.Errorf("AwaitPublished should succeed once published: %v", err)
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
}

// TestAwaitPublished_AttemptCeiling verifies the bounded retry gives up
// with a SubmissionError.
func TestAwaitPublished_AttemptCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Event":{"id":"9","info":"x","threat_level_id":"1","analysis":"2","distribution":"1","published":false}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.PollInterval = time.Millisecond
	cfg.PollAttempts = 4
	client, _ := NewClient(cfg, zap.NewNop())

	err := client.AwaitPublished(context.Background(), "9")
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SubmissionError after the attempt ceiling, got %v", err)
	}
}

// TestAwaitPublished_ContextCancel verifies cancellation stops polling.
func TestAwaitPublished_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Event":{"id":"9","info":"x","threat_level_id":"1","analysis":"2","distribution":"1","published":false}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.PollInterval = time.Hour // cancellation must not wait for the tick
	client, _ := NewClient(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.AwaitPublished(ctx, "9") }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitPublished did not return after cancellation")
	}
}

// Package misp is the client for the incident-sharing platform. It
// submits compiled events, reads back the platform's wrapped event
// shape and adapts it into the domain model, and polls with a bounded
// attempt ceiling for long-running remote processing.
package misp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/playbook"
)

const eventCacheSize = 512

// Config holds the platform connection settings. The API key is an
// explicit value threaded in by the process entry point; the client
// never reads credentials from ambient state.
type Config struct {
	BaseURL      string
	APIKey       string
	VerifySSL    bool
	Timeout      time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// DefaultConfig returns sensible defaults. Polling is bounded: a fixed
// interval and a hard attempt ceiling give a multi-minute timeout.
func DefaultConfig() Config {
	return Config{
		VerifySSL:    true,
		Timeout:      30 * time.Second,
		PollInterval: 10 * time.Second,
		PollAttempts: 60,
	}
}

// SubmissionError is an external-boundary failure: the platform was
// unreachable or rejected the request. Retrying is the caller's
// decision; recompilation is idempotent but duplicate remote
// submission is not the pipeline's concern.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform submission failed: %v", e.Err)
	}
	return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Client talks to the sharing platform.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *lru.Cache[string, playbook.Event]
	logger     *zap.Logger
}

// NewClient creates a platform client. BaseURL and APIKey are required.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("platform API key is required")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.PollAttempts == 0 {
		config.PollAttempts = DefaultConfig().PollAttempts
	}

	transport := http.DefaultTransport
	if !config.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	cache, err := lru.New[string, playbook.Event](eventCacheSize)
	if err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		cache:  cache,
		logger: logger,
	}, nil
}

// HealthCheck verifies connectivity and credentials.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/servers/getVersion", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform returned status %d", resp.StatusCode)
	}
	return nil
}

// SubmitEvent posts one compiled event and returns the platform-assigned
// event ID.
func (c *Client) SubmitEvent(ctx context.Context, ev playbook.Event) (string, error) {
	body, err := json.Marshal(wireWrapper{Event: toWire(ev)})
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/events", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var created wireWrapper
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("undecodable response: %w", err)}
	}

	c.logger.Info("event submitted",
		zap.String("event_id", created.Event.ID),
		zap.String("info", ev.Info))
	return created.Event.ID, nil
}

// FetchEvents retrieves the shared DDoS events from the platform and
// adapts the wire shape into the domain model.
func (c *Client) FetchEvents(ctx context.Context) ([]playbook.Event, error) {
	searchReq := searchRequest{Tags: playbook.TagIncidentType}
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/events/restSearch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("platform returned %d: %s", resp.StatusCode, string(respBody))
	}

	var search searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	events := make([]playbook.Event, 0, len(search.Response))
	for _, w := range search.Response {
		ev := fromWire(w.Event)
		events = append(events, ev)
		if ev.ID != "" {
			c.cache.Add(ev.ID, ev)
		}
	}
	return events, nil
}

// GetEvent returns one event by ID, served from the LRU cache when
// possible.
func (c *Client) GetEvent(ctx context.Context, id string) (*playbook.Event, error) {
	if ev, ok := c.cache.Get(id); ok {
		return &ev, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/events/view/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform returned status %d", resp.StatusCode)
	}

	var w wireWrapper
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, err
	}

	ev := fromWire(w.Event)
	c.cache.Add(id, ev)
	return &ev, nil
}

// AwaitPublished polls until the remote event reports published, the
// attempt ceiling is hit, or the context is cancelled. Cancellation is
// advisory: it stops local tracking only, the remote event persists.
func (c *Client) AwaitPublished(ctx context.Context, id string) error {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.config.PollAttempts; attempt++ {
		// Bypass the cache: polling wants the live remote state.
		c.cache.Remove(id)
		ev, err := c.GetEvent(ctx, id)
		if err == nil && ev != nil && ev.Published {
			return nil
		}
		if err != nil {
			c.logger.Warn("poll attempt failed",
				zap.String("event_id", id),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return &SubmissionError{Err: fmt.Errorf("event %s not processed after %d attempts", id, c.config.PollAttempts)}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Wire types: the platform wraps every event as {"Event": {...}} and
// encodes numeric identifiers as strings.

type wireWrapper struct {
	Event wireEvent `json:"Event"`
}

type searchRequest struct {
	Tags      string `json:"tags,omitempty"`
	Published *bool  `json:"published,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Response []wireWrapper `json:"response"`
}

type wireEvent struct {
	ID            string          `json:"id,omitempty"`
	Info          string          `json:"info"`
	Date          string          `json:"date,omitempty"`
	ThreatLevelID string          `json:"threat_level_id"`
	Analysis      string          `json:"analysis"`
	Distribution  string          `json:"distribution"`
	Published     bool            `json:"published"`
	Attribute     []wireAttribute `json:"Attribute,omitempty"`
	Tag           []wireTag       `json:"Tag,omitempty"`
}

type wireAttribute struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	ToIDS    bool   `json:"to_ids"`
	Comment  string `json:"comment,omitempty"`
}

type wireTag struct {
	Name   string `json:"name"`
	Colour string `json:"colour,omitempty"`
}

func toWire(ev playbook.Event) wireEvent {
	w := wireEvent{
		ID:            ev.ID,
		Info:          ev.Info,
		ThreatLevelID: strconv.Itoa(ev.ThreatLevel),
		Analysis:      strconv.Itoa(ev.Analysis),
		Distribution:  strconv.Itoa(ev.Distribution),
		Published:     ev.Published,
	}
	if !ev.Date.IsZero() {
		w.Date = ev.Date.UTC().Format("2006-01-02")
	}
	for _, a := range ev.Attributes {
		w.Attribute = append(w.Attribute, wireAttribute(a))
	}
	for _, t := range ev.Tags {
		w.Tag = append(w.Tag, wireTag(t))
	}
	return w
}

func fromWire(w wireEvent) playbook.Event {
	ev := playbook.Event{
		ID:           w.ID,
		Info:         w.Info,
		ThreatLevel:  atoiOr(w.ThreatLevelID, playbook.ThreatLevelUndefined),
		Analysis:     atoiOr(w.Analysis, playbook.AnalysisInitial),
		Distribution: atoiOr(w.Distribution, playbook.DistributionCommunity),
		Published:    w.Published,
	}
	if w.Date != "" {
		if d, err := time.Parse("2006-01-02", w.Date); err == nil {
			ev.Date = d
		}
	}
	for _, a := range w.Attribute {
		ev.Attributes = append(ev.Attributes, playbook.Attribute(a))
	}
	for _, t := range w.Tag {
		ev.Tags = append(ev.Tags, playbook.Tag(t))
		// Galaxy membership rides on tags in the wire shape; recover
		// the cluster identifiers from the technique tags.
		if strings.Contains(t.Name, "mitre-attack-pattern") {
			for _, id := range []string{playbook.ClusterDirectFlood, playbook.ClusterAmplification, playbook.ClusterNetworkDoS} {
				if strings.Contains(t.Name, id) {
					ev.GalaxyClusters = append(ev.GalaxyClusters, id)
					break
				}
			}
		}
	}
	return ev
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

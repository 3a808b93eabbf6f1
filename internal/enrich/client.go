// Package enrich is a best-effort client for profile enrichment through an
// OpenAI-compatible chat completions API. Every failure degrades to an empty
// result: enrichment output is advisory and never blocks profile writes or
// reconciliation.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/observability"
)

const (
	defaultTimeout = 15 * time.Second
	maxTags        = 5
)

// Client calls the chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates an enrichment client. An empty apiKey disables all
// requests; calls then return empty results immediately.
func NewClient(baseURL, apiKey string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   "openai/gpt-3.5-turbo",
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// SuggestTags generates up to 5 descriptive tags for a creator profile.
// Returns nil on any failure, including a missing API key.
func (c *Client) SuggestTags(ctx context.Context, bio, category string) []string {
	if c.apiKey == "" {
		return nil
	}
	if c.metrics != nil {
		c.metrics.EnrichmentRequests.WithLabelValues("tags").Inc()
	}

	content, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are an AI assistant that analyzes creator profiles and generates relevant tags. Based on the bio and category, generate 3-5 relevant tags that describe the person's skills, interests, or specializations. Return only a JSON array of strings, no additional text.",
			},
			{
				Role:    "user",
				Content: fmt.Sprintf("Category: %s\nBio: %s\n\nGenerate relevant tags for this creator profile.", category, bio),
			},
		},
		MaxTokens:   100,
		Temperature: 0.7,
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.EnrichmentFailures.WithLabelValues("tags").Inc()
		}
		c.logger.Warn("tag enrichment failed", zap.Error(err))
		return nil
	}

	return parseTags(content)
}

// RankOpportunities filters and orders opportunities by relevance to a
// creator profile. Returns nil on any failure; callers fall back to the
// unranked list.
func (c *Client) RankOpportunities(ctx context.Context, creator *domain.Creator, opportunities []*domain.Opportunity) []*domain.Opportunity {
	if c.apiKey == "" || len(opportunities) == 0 {
		return nil
	}
	if c.metrics != nil {
		c.metrics.EnrichmentRequests.WithLabelValues("match").Inc()
	}

	var b strings.Builder
	for _, o := range opportunities {
		fmt.Fprintf(&b, "ID: %s, Title: %s, Category: %s, Tags: %s\n",
			o.ID, o.Title, o.Category, strings.Join(o.Tags, ", "))
	}

	content, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are an AI that matches creators to opportunities. Analyze the creator profile and available opportunities, then return a JSON array of opportunity IDs that best match the creator's skills and interests, sorted by relevance.",
			},
			{
				Role: "user",
				Content: fmt.Sprintf(
					"Creator Profile:\nCategory: %s\nBio: %s\nSkills: %s\nAI Tags: %s\n\nAvailable Opportunities:\n%s\nReturn only a JSON array of opportunity IDs that match this creator, ordered by relevance.",
					creator.Category, creator.Bio,
					strings.Join(creator.Skills, ", "),
					strings.Join(creator.AITags, ", "),
					b.String(),
				),
			},
		},
		MaxTokens:   200,
		Temperature: 0.3,
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.EnrichmentFailures.WithLabelValues("match").Inc()
		}
		c.logger.Warn("opportunity ranking failed", zap.Error(err))
		return nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(content), &ids); err != nil {
		// Prose instead of JSON is useless here; no comma fallback for ids
		return nil
	}

	byID := make(map[string]*domain.Opportunity, len(opportunities))
	for _, o := range opportunities {
		byID[o.ID] = o
	}

	var ranked []*domain.Opportunity
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			ranked = append(ranked, o)
		}
	}
	return ranked
}

// complete sends one chat completion request and returns the first choice.
func (c *Client) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "TalentLink DAO")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completions API returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseTags decodes a JSON array of tags, falling back to comma-splitting
// prose responses. The fallback caps output at 5 tags.
func parseTags(content string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(content), &tags); err == nil {
		return tags
	}

	var out []string
	for _, part := range strings.Split(content, ",") {
		tag := strings.Trim(strings.TrimSpace(part), `'"`)
		if tag == "" {
			continue
		}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

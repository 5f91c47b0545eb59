package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"secretary-backend/internal/config"
	"secretary-backend/internal/model"
)

const publishEndpointFormat = "/api/secretary/sessions/%s/publish"

// PublishClient triggers the backend's one-click CMS publish pipeline for a
// processed file. The tracker is driven by the result of this call, not by
// polling the pipeline.
type PublishClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPublishClient(cfg *config.Config, client *http.Client) *PublishClient {
	return &PublishClient{
		baseURL: strings.TrimSuffix(cfg.Backend.BaseURL, "/"),
		apiKey:  cfg.Backend.APIKey,
		client:  client,
	}
}

// Publish posts the file id to the per-session pipeline endpoint and returns
// the CMS coordinates. Backend failures are returned with the most specific
// error text available.
func (p *PublishClient) Publish(ctx context.Context, sessionID, fileID string) (*model.PublishResponse, error) {
	data, err := json.Marshal(model.PublishRequest{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode publish request: %w", err)
	}

	endpoint := fmt.Sprintf(publishEndpointFormat, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read publish response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("publish failed with status %d: %s", resp.StatusCode, ExtractErrorDetail(body))
	}

	var result model.PublishResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse publish response: %w", err)
	}

	return &result, nil
}

// ExtractErrorDetail pulls the most useful error text out of a backend error
// body: detail.message, then detail.error, then the raw text.
func ExtractErrorDetail(body []byte) string {
	var payload model.ErrorDetail
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail.Message != "" {
			return payload.Detail.Message
		}
		if payload.Detail.Error != "" {
			return payload.Detail.Error
		}
	}
	return strings.TrimSpace(string(body))
}

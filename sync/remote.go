package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteAPI is the server-side collaborator the queue replays actions
// against, one operation per (entity type, operation kind) pair.
type RemoteAPI interface {
	Create(ctx context.Context, entityType string, payload json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, entityType, entityID string, payload json.RawMessage) error
	Delete(ctx context.Context, entityType, entityID string) error
	List(ctx context.Context, entityType string) ([]CacheItem, error)
}

// HTTPRemote maps queue operations onto the SafeTrack REST API.
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPRemote) Create(ctx context.Context, entityType string, payload json.RawMessage) (json.RawMessage, error) {
	body, err := r.do(ctx, http.MethodPost, fmt.Sprintf("%s/api/v1/%s", r.baseURL, entityType), payload)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (r *HTTPRemote) Update(ctx context.Context, entityType, entityID string, payload json.RawMessage) error {
	_, err := r.do(ctx, http.MethodPut, fmt.Sprintf("%s/api/v1/%s/%s", r.baseURL, entityType, entityID), payload)
	return err
}

func (r *HTTPRemote) Delete(ctx context.Context, entityType, entityID string) error {
	_, err := r.do(ctx, http.MethodDelete, fmt.Sprintf("%s/api/v1/%s/%s", r.baseURL, entityType, entityID), nil)
	return err
}

func (r *HTTPRemote) List(ctx context.Context, entityType string) ([]CacheItem, error) {
	body, err := r.do(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/%s", r.baseURL, entityType), nil)
	if err != nil {
		return nil, err
	}

	var listing []struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode %s listing: %w", entityType, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s listing: %w", entityType, err)
	}

	items := make([]CacheItem, 0, len(raw))
	for i, entry := range listing {
		items = append(items, CacheItem{
			EntityID: trimJSONString(entry.ID),
			Payload:  raw[i],
		})
	}
	return items, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, url string, payload json.RawMessage) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote returned %d for %s %s", resp.StatusCode, method, url)
	}

	return respBody, nil
}

// trimJSONString renders a raw JSON id (string or number) as a plain string.
func trimJSONString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

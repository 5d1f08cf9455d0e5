package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/api/idtoken"
)

// ErrProviderNotFound marks a 404 answer from a provider.
var ErrProviderNotFound = eris.New("provider returned not found")

// ProviderClient posts JSON payloads to a discovery provider and decodes the
// {"data": ..., "error": ...} envelope it answers with.
type ProviderClient struct {
	client  *http.Client
	baseURL string
}

// NewProviderClient builds a provider client. When client is nil an ID token
// client for the base URL is tried first so calls to private Cloud Run
// services authenticate; a plain client is used when no credentials exist.
func NewProviderClient(client *http.Client, baseURL string) (*ProviderClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, eris.New("provider base url must not be empty")
	}
	if client == nil {
		idc, err := idtoken.NewClient(context.Background(), baseURL)
		if err != nil {
			client = &http.Client{Timeout: 10 * time.Second}
		} else {
			client = idc
		}
	}
	return &ProviderClient{client: client, baseURL: baseURL}, nil
}

// PostJSON posts payload to path and decodes the envelope's data into out.
// A nil out discards the data.
func (c *ProviderClient) PostJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "marshal provider payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "create provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "provider request %s failed", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return eris.Wrap(ErrProviderNotFound, extractProviderError(resp.Body))
	}
	if resp.StatusCode >= 400 {
		return eris.Errorf("provider error (%d): %s", resp.StatusCode, extractProviderError(resp.Body))
	}

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && err != io.EOF {
		return eris.Wrap(err, "decode provider response")
	}
	if envelope.Error != "" {
		return eris.Errorf("provider error: %s", envelope.Error)
	}
	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return eris.Wrap(err, "decode provider data")
	}
	return nil
}

func extractProviderError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "provider returned an error"
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}

// HTTPSearchClient is a SearchClient backed by a provider's /search endpoint.
type HTTPSearchClient struct {
	provider *ProviderClient
}

// NewHTTPSearchClient wraps a provider client.
func NewHTTPSearchClient(provider *ProviderClient) *HTTPSearchClient {
	return &HTTPSearchClient{provider: provider}
}

// Search implements SearchClient.
func (c *HTTPSearchClient) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	var data struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.provider.PostJSON(ctx, "/search", query, &data); err != nil {
		if eris.Is(err, ErrProviderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return data.Results, nil
}

// HTTPIdentityResolver is an IdentityResolver backed by a provider's /resolve endpoint.
type HTTPIdentityResolver struct {
	provider *ProviderClient
}

// NewHTTPIdentityResolver wraps a provider client.
func NewHTTPIdentityResolver(provider *ProviderClient) *HTTPIdentityResolver {
	return &HTTPIdentityResolver{provider: provider}
}

// Resolve implements IdentityResolver.
func (r *HTTPIdentityResolver) Resolve(ctx context.Context, query IdentityQuery) (*Identity, error) {
	var identity Identity
	if err := r.provider.PostJSON(ctx, "/resolve", query, &identity); err != nil {
		if eris.Is(err, ErrProviderNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return &identity, nil
}

var (
	_ SearchClient     = (*HTTPSearchClient)(nil)
	_ IdentityResolver = (*HTTPIdentityResolver)(nil)
	_ Adapter          = (*DirectoryAdapter)(nil)
	_ Adapter          = (*WebSearchAdapter)(nil)
	_ Adapter          = (*EnrichmentAdapter)(nil)
)

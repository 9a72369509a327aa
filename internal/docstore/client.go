// Package docstore reads and writes the catalog database: a single
// JSON document kept in one file of a GitHub Gist. The gist is the
// entire persistence layer, so every write replaces the whole document.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"galley/api/internal/catalog"
)

const (
	// DefaultBaseURL is the gist REST endpoint.
	DefaultBaseURL = "https://api.github.com/gists"
	// DatabaseFileName is the gist file holding the document.
	DatabaseFileName = "database.json"
	// DefaultCacheTTL bounds how stale a cached read may be.
	DefaultCacheTTL = 5 * time.Second
)

var (
	ErrNoCredentials = errors.New("document id and access token are not configured")
	ErrNotFound      = errors.New("document not found")
	ErrInvalidToken  = errors.New("access token rejected")
	ErrDuplicateID   = errors.New("restaurant id already exists")
	ErrConflict      = errors.New("document changed since it was read")
)

// Credentials gate write access to the remote document. They live in
// local storage only and are sent solely as the auth header.
type Credentials struct {
	DocumentID  string `json:"document_id"`
	AccessToken string `json:"access_token"`
}

// Client is the remote document store with a short-TTL read cache.
type Client struct {
	httpClient *http.Client
	baseURL    string
	ttl        time.Duration

	mu        sync.Mutex
	creds     Credentials
	cached    *catalog.Document
	fetchedAt time.Time
}

// New creates a client against the real gist API.
func New() *Client {
	return NewWithBaseURL(DefaultBaseURL)
}

// NewWithBaseURL creates a client against an alternate endpoint.
// Tests point this at an httptest server.
func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		ttl:        DefaultCacheTTL,
	}
}

// SetCacheTTL overrides the read cache TTL.
func (c *Client) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// SetCredentials installs the document id and access token.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.cached = nil
}

// HasCredentials reports whether both document id and token are set.
func (c *Client) HasCredentials() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.DocumentID != "" && c.creds.AccessToken != ""
}

// ClearCache forces the next GetData to refetch.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

// GetData returns the current document, served from cache while it is
// fresher than the TTL. The restaurant slice is copied so callers can
// stage edits without them leaking into the cache before a save lands.
func (c *Client) GetData(ctx context.Context) (catalog.Document, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		doc := detach(*c.cached)
		c.mu.Unlock()
		return doc, nil
	}
	c.mu.Unlock()

	doc, err := c.fetch(ctx)
	if err != nil {
		return catalog.Document{}, err
	}

	c.mu.Lock()
	c.cached = &doc
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return detach(doc), nil
}

// detach copies the restaurant slice so the cached backing array is
// never shared with callers.
func detach(doc catalog.Document) catalog.Document {
	doc.Restaurants = append([]catalog.Restaurant(nil), doc.Restaurants...)
	return doc
}

// RawContent fetches the document file as text without decoding it.
// The repair tool uses this to see corrupted payloads.
func (c *Client) RawContent(ctx context.Context) (string, error) {
	return c.fetchRaw(ctx)
}

// SaveRestaurants replaces the restaurant list in one write. The live
// document is re-read first: if its version no longer matches the
// version the caller's read was based on, the write fails with
// ErrConflict instead of clobbering a concurrent change. On success
// the cache is updated in place, saving a round trip.
func (c *Client) SaveRestaurants(ctx context.Context, restaurants []catalog.Restaurant) (catalog.Document, error) {
	c.mu.Lock()
	var base *catalog.Document
	if c.cached != nil {
		snapshot := *c.cached
		base = &snapshot
	}
	c.mu.Unlock()

	live, err := c.fetch(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	if base != nil && live.Version != base.Version {
		return catalog.Document{}, fmt.Errorf("base version %d, live version %d: %w", base.Version, live.Version, ErrConflict)
	}

	next := catalog.Document{
		Restaurants: restaurants,
		LastUpdated: time.Now().UnixMilli(),
		Version:     live.Version + 1,
	}
	if err := c.writeDocument(ctx, next); err != nil {
		return catalog.Document{}, err
	}

	c.mu.Lock()
	snapshot := detach(next)
	c.cached = &snapshot
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return next, nil
}

// AddRestaurant appends a restaurant, rejecting duplicate ids.
func (c *Client) AddRestaurant(ctx context.Context, restaurant catalog.Restaurant) (catalog.Document, error) {
	doc, err := c.GetData(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	if doc.FindRestaurant(restaurant.ID) >= 0 {
		return catalog.Document{}, fmt.Errorf("id %q: %w", restaurant.ID, ErrDuplicateID)
	}
	return c.SaveRestaurants(ctx, append(doc.Restaurants, restaurant))
}

// UpdateRestaurant replaces the restaurant with the same id.
func (c *Client) UpdateRestaurant(ctx context.Context, restaurant catalog.Restaurant) (catalog.Document, error) {
	doc, err := c.GetData(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	idx := doc.FindRestaurant(restaurant.ID)
	if idx < 0 {
		return catalog.Document{}, fmt.Errorf("id %q: %w", restaurant.ID, ErrNotFound)
	}
	doc.Restaurants[idx] = restaurant
	return c.SaveRestaurants(ctx, doc.Restaurants)
}

// DeleteRestaurant removes the restaurant with the given id.
func (c *Client) DeleteRestaurant(ctx context.Context, id string) (catalog.Document, error) {
	doc, err := c.GetData(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	idx := doc.FindRestaurant(id)
	if idx < 0 {
		return catalog.Document{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	remaining := append(doc.Restaurants[:idx:idx], doc.Restaurants[idx+1:]...)
	return c.SaveRestaurants(ctx, remaining)
}

// CreateDatabase creates a fresh empty document under a new gist and
// returns its id and URL. The client is not repointed at it; the
// caller decides whether to adopt the new credentials.
func (c *Client) CreateDatabase(ctx context.Context, token string) (documentID, url string, err error) {
	initial := catalog.Document{
		Restaurants: []catalog.Restaurant{},
		LastUpdated: time.Now().UnixMilli(),
		Version:     1,
	}
	content, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal initial document: %w", err)
	}

	payload := map[string]any{
		"description": "Galley catering database",
		"public":      false,
		"files": map[string]any{
			DatabaseFileName: map[string]string{"content": string(content)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal create payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("create document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", "", ErrInvalidToken
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("create document: unexpected status %s", resp.Status)
	}

	var created struct {
		ID      string `json:"id"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", "", fmt.Errorf("decode create response: %w", err)
	}
	return created.ID, created.HTMLURL, nil
}

// WriteRaw replaces the document file with already-serialized content.
// Used by the repair tool after it has re-validated the payload.
func (c *Client) WriteRaw(ctx context.Context, content string) error {
	if err := c.patchContent(ctx, content); err != nil {
		return err
	}
	c.ClearCache()
	return nil
}

func (c *Client) fetch(ctx context.Context) (catalog.Document, error) {
	raw, err := c.fetchRaw(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	var doc catalog.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return catalog.Document{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.Restaurants == nil {
		doc.Restaurants = []catalog.Restaurant{}
	}
	return doc, nil
}

func (c *Client) fetchRaw(ctx context.Context) (string, error) {
	creds, err := c.requireCredentials()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+creds.DocumentID, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrInvalidToken
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("fetch document: unexpected status %s", resp.Status)
	}

	var container struct {
		Files map[string]struct {
			Content string `json:"content"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		return "", fmt.Errorf("decode container: %w", err)
	}
	file, ok := container.Files[DatabaseFileName]
	if !ok {
		return "", fmt.Errorf("file %s missing from document container: %w", DatabaseFileName, ErrNotFound)
	}
	return file.Content, nil
}

func (c *Client) writeDocument(ctx context.Context, doc catalog.Document) error {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return c.patchContent(ctx, string(content))
}

func (c *Client) patchContent(ctx context.Context, content string) error {
	creds, err := c.requireCredentials()
	if err != nil {
		return err
	}

	payload := map[string]any{
		"files": map[string]any{
			DatabaseFileName: map[string]string{"content": content},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal patch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/"+creds.DocumentID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build patch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidToken
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("write document: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *Client) requireCredentials() (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds.DocumentID == "" || c.creds.AccessToken == "" {
		return Credentials{}, ErrNoCredentials
	}
	return c.creds, nil
}

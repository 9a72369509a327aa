// Package mediasync copies restaurant images out of a shared Drive
// folder into the public storage bucket, one file at a time.
package mediasync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

// DefaultDriveBaseURL is the folder-listing / file-download endpoint.
const DefaultDriveBaseURL = "https://www.googleapis.com/drive/v3"

// File describes one image in the shared folder.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// folderIDPatterns are tried in order; first match wins.
var folderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`^([A-Za-z0-9_-]{10,})$`),
}

// ExtractFolderID pulls a Drive folder id out of a shared-folder URL,
// an `?id=` style link, or a bare id.
func ExtractFolderID(input string) (string, bool) {
	for _, pattern := range folderIDPatterns {
		if match := pattern.FindStringSubmatch(input); match != nil {
			return match[1], true
		}
	}
	return "", false
}

// DriveClient lists and downloads files from the folder service.
type DriveClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewDriveClient creates a client against the real endpoint.
func NewDriveClient(apiKey string) *DriveClient {
	return NewDriveClientWithBaseURL(DefaultDriveBaseURL, apiKey)
}

// NewDriveClientWithBaseURL creates a client against an alternate
// endpoint. Tests point this at an httptest server.
func NewDriveClientWithBaseURL(baseURL, apiKey string) *DriveClient {
	return &DriveClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// ListFiles returns the non-trashed images directly inside a folder.
func (c *DriveClient) ListFiles(ctx context.Context, folderID string) ([]File, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed=false", folderID))
	query.Set("fields", "files(id,name,mimeType)")
	query.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("list folder: unexpected status %s", resp.Status)
	}

	var payload struct {
		Files []File `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode folder listing: %w", err)
	}
	return payload.Files, nil
}

// Download streams one file's raw bytes.
func (c *DriveClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/files/%s?alt=media&key=%s", c.baseURL, url.PathEscape(fileID), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download file: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file bytes: %w", err)
	}
	return data, nil
}

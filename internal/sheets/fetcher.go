// Package sheets pulls raw tabular data from the spreadsheet service:
// one metadata call to enumerate tabs, then one values call per tab.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the spreadsheet REST endpoint.
const DefaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

var (
	ErrMissingAPIKey   = errors.New("spreadsheet API key is not configured; add one before importing")
	ErrBadAPIKey       = errors.New("spreadsheet request rejected; the API key looks invalid, regenerate it")
	ErrAccessDenied    = errors.New("spreadsheet access denied; share the sheet as viewable by link and check the key's restrictions")
	ErrServiceDisabled = errors.New("the spreadsheet API is disabled for this key's project; enable it in the console")
	ErrNotFound        = errors.New("spreadsheet not found; check the spreadsheet id")
)

// Sheet is one tab's raw contents: formatted cell values row by row.
type Sheet struct {
	Title string     `json:"title"`
	Rows  [][]string `json:"rows"`
}

// Fetcher is the spreadsheet service client.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a fetcher against the real spreadsheet API.
func New() *Fetcher {
	return NewWithBaseURL(DefaultBaseURL)
}

// NewWithBaseURL creates a fetcher against an alternate endpoint.
func NewWithBaseURL(baseURL string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// FetchAllSheets enumerates every tab and fetches its full value
// range. A failure on one tab is logged and that tab is skipped; the
// rest of the import proceeds.
func (f *Fetcher) FetchAllSheets(ctx context.Context, spreadsheetID, apiKey string) ([]Sheet, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	titles, err := f.fetchSheetTitles(ctx, spreadsheetID, apiKey)
	if err != nil {
		return nil, err
	}

	sheets := make([]Sheet, 0, len(titles))
	for _, title := range titles {
		rows, err := f.fetchValues(ctx, spreadsheetID, title, apiKey)
		if err != nil {
			log.Printf("sheets: skipping tab %q: %v", title, err)
			continue
		}
		sheets = append(sheets, Sheet{Title: title, Rows: rows})
	}
	return sheets, nil
}

func (f *Fetcher) fetchSheetTitles(ctx context.Context, spreadsheetID, apiKey string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s?key=%s&fields=sheets.properties.title", f.baseURL, url.PathEscape(spreadsheetID), url.QueryEscape(apiKey))
	var payload struct {
		Sheets []struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := f.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(payload.Sheets))
	for _, sheet := range payload.Sheets {
		titles = append(titles, sheet.Properties.Title)
	}
	return titles, nil
}

func (f *Fetcher) fetchValues(ctx context.Context, spreadsheetID, title, apiKey string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s?key=%s&valueRenderOption=FORMATTED_VALUE",
		f.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(title), url.QueryEscape(apiKey))
	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := f.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Values, nil
}

func (f *Fetcher) getJSON(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spreadsheet service unreachable, check the network: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode spreadsheet response: %w", err)
	}
	return nil
}

// classifyStatus maps the service's failure statuses onto actionable
// errors rather than passing raw HTTP statuses upward.
func classifyStatus(resp *http.Response) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	message := body.Error.Message

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", message, ErrBadAPIKey)
	case http.StatusForbidden:
		lower := strings.ToLower(message)
		if strings.Contains(lower, "disabled") || strings.Contains(lower, "has not been used") {
			return fmt.Errorf("%s: %w", message, ErrServiceDisabled)
		}
		return fmt.Errorf("%s: %w", message, ErrAccessDenied)
	case http.StatusNotFound:
		return ErrNotFound
	}
	return fmt.Errorf("spreadsheet request failed: %s", resp.Status)
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"galley/api/internal/backup"
	"galley/api/internal/catalog"
	"galley/api/internal/docstore"
	"galley/api/internal/order"
	"galley/api/internal/search"
	"galley/api/internal/sheets"
	"galley/api/internal/snapshot"
)

const (
	testGistToken  = "gist-token"
	testAdminToken = "admin-secret"
)

// fakeGist emulates the remote document service used by the store.
type fakeGist struct {
	mu      sync.Mutex
	content string
}

func (f *fakeGist) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testGistToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/" {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":       "gist-new",
				"html_url": "https://gist.example.com/gist-new",
			})
			return
		}
		if strings.TrimPrefix(r.URL.Path, "/") != "gist-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			f.mu.Lock()
			content := f.content
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"files": map[string]any{
					docstore.DatabaseFileName: map[string]string{"content": content},
				},
			})
		case http.MethodPatch:
			var body struct {
				Files map[string]struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.content = body.Files[docstore.DatabaseFileName].Content
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

type testStack struct {
	handler http.Handler
	service *Service
	backups *backup.Recorder
	archive *snapshot.Archive
}

func seedDocument() catalog.Document {
	return catalog.Document{
		Restaurants: []catalog.Restaurant{
			{ID: "rest_1", Name: "Blue Anchor", MenuType: catalog.MenuVisual, MenuItems: []catalog.MenuItem{
				{ID: "item_1", Name: "Ceviche", Price: 18.5, Category: "Starters"},
			}},
			{ID: "rest_2", Name: "Hidden Galley", MenuType: catalog.MenuVisual, IsHidden: true},
		},
		LastUpdated: time.Now().UnixMilli(),
		Version:     3,
	}
}

func newStack(t *testing.T, sheetsURL string) *testStack {
	t.Helper()

	payload, _ := json.Marshal(seedDocument())
	gist := &fakeGist{content: string(payload)}
	gistServer := httptest.NewServer(gist.handler())
	t.Cleanup(gistServer.Close)

	store := docstore.NewWithBaseURL(gistServer.URL)
	store.SetCredentials(docstore.Credentials{DocumentID: "gist-1", AccessToken: testGistToken})
	store.SetCacheTTL(0) // tests always want fresh reads

	mini := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	recorder := backup.NewWithClient(redisClient)
	credStore := docstore.NewCredentialStoreWithClient(redisClient)

	archive, err := snapshot.New(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot archive: %v", err)
	}

	if sheetsURL == "" {
		sheetsURL = "http://127.0.0.1:0"
	}

	service := NewService(Options{
		Store:        store,
		Credentials:  credStore,
		Backups:      recorder,
		Archive:      archive,
		Sheets:       sheets.NewWithBaseURL(sheetsURL),
		Search:       search.NewService(nil, search.NewMemory()),
		Orders:       order.NewBuilder("306941234567"),
		SheetsAPIKey: "sheets-key",
	})

	server := NewHTTPServer(service, "*", testAdminToken)
	return &testStack{handler: server.Handler(), service: service, backups: recorder, archive: archive}
}

func (ts *testStack) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return payload
}

func TestHealthAndReady(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodGet, "/api/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/ready", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPublicListHidesRestaurants(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodGet, "/api/restaurants", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	restaurants := payload["restaurants"].([]any)
	if len(restaurants) != 1 {
		t.Fatalf("public list should hide hidden restaurants, got %d", len(restaurants))
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/restaurants", nil, true)
	payload = decodeMap(t, rec)
	if got := len(payload["restaurants"].([]any)); got != 2 {
		t.Fatalf("admin list should include hidden restaurants, got %d", got)
	}
}

func TestGetRestaurant(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodGet, "/api/restaurants/rest_1", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// Hidden restaurants look absent to the storefront.
	rec = ts.do(t, http.MethodGet, "/api/restaurants/rest_2", nil, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("hidden restaurant status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/restaurants/nope", nil, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing restaurant status = %d", rec.Code)
	}
}

func TestAdminAuthRequired(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodGet, "/api/admin/restaurants", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/restaurants", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec2 := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec2.Code)
	}
}

func TestCreateRestaurantRecordsAuditAndSnapshot(t *testing.T) {
	ts := newStack(t, "")
	ctx := context.Background()

	body := map[string]any{"restaurant": catalog.Restaurant{ID: "rest_3", Name: "Galley West", MenuType: catalog.MenuVisual}}
	rec := ts.do(t, http.MethodPost, "/api/admin/restaurants", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if payload["version"].(float64) != 4 {
		t.Fatalf("version = %v, want 4", payload["version"])
	}

	entries, err := ts.backups.ListAll(ctx)
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != backup.ActionCreate || entries[0].EntityID != "rest_3" {
		t.Fatalf("unexpected audit trail: %+v", entries)
	}

	history, err := ts.archive.History(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) == 0 {
		t.Fatal("write should have produced a snapshot commit")
	}
}

func TestCreateRestaurantValidation(t *testing.T) {
	ts := newStack(t, "")

	body := map[string]any{"restaurant": catalog.Restaurant{Name: "   "}}
	rec := ts.do(t, http.MethodPost, "/api/admin/restaurants", body, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}

	// Audit must not be polluted by validation rejects.
	entries, _ := ts.backups.ListAll(context.Background())
	if len(entries) != 0 {
		t.Fatalf("validation failure must not record audit entries: %+v", entries)
	}
}

func TestUpdateAndDeleteRestaurant(t *testing.T) {
	ts := newStack(t, "")

	body := map[string]any{"restaurant": catalog.Restaurant{Name: "Blue Anchor Revisited", MenuType: catalog.MenuVisual}}
	rec := ts.do(t, http.MethodPut, "/api/admin/restaurants/rest_1", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPut, "/api/admin/restaurants/ghost", body, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, "/api/admin/restaurants/rest_2", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if got := len(payload["restaurants"].([]any)); got != 1 {
		t.Fatalf("restaurants after delete = %d, want 1", got)
	}

	entries, _ := ts.backups.ListAll(context.Background())
	actions := map[backup.Action]int{}
	for _, e := range entries {
		actions[e.Action]++
	}
	if actions[backup.ActionUpdate] != 1 || actions[backup.ActionDelete] != 1 {
		t.Fatalf("audit actions = %v", actions)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodGet, "/api/search?q=ceviche", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	if payload["total"].(float64) != 1 {
		t.Fatalf("total = %v: %s", payload["total"], rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/search?q=x&limit=abc", nil, false)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/search?q=ceviche&limit=-5", nil, false)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative limit status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/api/search?q=ceviche&offset=-1", nil, false)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative offset status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderLinkEndpoint(t *testing.T) {
	ts := newStack(t, "")

	cart := order.Cart{Lines: []order.Line{
		{RestaurantID: "rest_1", RestaurantName: "Blue Anchor", ItemName: "Ceviche", Quantity: 2, Price: 18.5},
	}}
	rec := ts.do(t, http.MethodPost, "/api/orders/link", cart, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	link := payload["link"].(string)
	if !strings.HasPrefix(link, "https://wa.me/306941234567?text=") {
		t.Fatalf("link = %q", link)
	}

	rec = ts.do(t, http.MethodPost, "/api/orders/link", order.Cart{}, false)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty cart status = %d", rec.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	sheetsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/values/") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"values": [][]string{
					{"item name", "description", "price"},
					{"Lobster Roll", "fresh lobster", "29.00"},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sheets": []map[string]any{
				{"properties": map[string]string{"title": "Dockside Deli"}},
			},
		})
	}))
	defer sheetsServer.Close()

	ts := newStack(t, sheetsServer.URL)

	rec := ts.do(t, http.MethodPost, "/api/admin/import", map[string]string{"spreadsheetId": "sheet-1"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if payload["addedCount"].(float64) != 1 {
		t.Fatalf("addedCount = %v: %s", payload["addedCount"], rec.Body.String())
	}
	if payload["version"].(float64) != 4 {
		t.Fatalf("version = %v, want 4 after one merged write", payload["version"])
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/restaurants", nil, true)
	listing := decodeMap(t, rec)
	if got := len(listing["restaurants"].([]any)); got != 3 {
		t.Fatalf("restaurants after import = %d, want 3", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/import", map[string]string{"spreadsheetId": "  "}, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank id status = %d", rec.Code)
	}
}

func TestRepairEndpoint(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodPost, "/api/admin/repair", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	if payload["success"] != true {
		t.Fatalf("repair of a healthy document should succeed: %s", rec.Body.String())
	}
}

func TestBackupsEndpoints(t *testing.T) {
	ts := newStack(t, "")

	body := map[string]any{"restaurant": catalog.Restaurant{ID: "rest_9", Name: "Night Market", MenuType: catalog.MenuVisual}}
	ts.do(t, http.MethodPost, "/api/admin/restaurants", body, true)

	rec := ts.do(t, http.MethodGet, "/api/admin/backups", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	if got := len(payload["backups"].([]any)); got != 1 {
		t.Fatalf("backups = %d, want 1", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/backups/purge", map[string]int{"days": 0}, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("purge with days=0 status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/backups/purge", map[string]int{"days": 30}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("purge status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDatabaseAndCredentialsEndpoints(t *testing.T) {
	ts := newStack(t, "")

	rec := ts.do(t, http.MethodGet, "/api/admin/database", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	if !strings.Contains(payload["content"].(string), "Blue Anchor") {
		t.Fatal("raw database content missing seeded data")
	}

	rec = ts.do(t, http.MethodPut, "/api/admin/credentials", map[string]string{"documentId": "", "accessToken": ""}, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank credentials status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/database", map[string]string{"accessToken": testGistToken}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create database status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeMap(t, rec)
	if created["documentId"] != "gist-new" {
		t.Fatalf("documentId = %v", created["documentId"])
	}
}

func TestSnapshotsEndpoints(t *testing.T) {
	ts := newStack(t, "")

	body := map[string]any{"restaurant": catalog.Restaurant{ID: "rest_4", Name: "Pier Nine", MenuType: catalog.MenuVisual}}
	ts.do(t, http.MethodPost, "/api/admin/restaurants", body, true)

	rec := ts.do(t, http.MethodGet, "/api/admin/snapshots", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	snapshots := payload["snapshots"].([]any)
	if len(snapshots) == 0 {
		t.Fatal("expected at least one snapshot")
	}
	hash := snapshots[0].(map[string]any)["hash"].(string)

	rec = ts.do(t, http.MethodGet, "/api/admin/snapshots/"+hash, nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("content status = %d: %s", rec.Code, rec.Body.String())
	}
	content := decodeMap(t, rec)
	if !strings.Contains(content["content"].(string), "Pier Nine") {
		t.Fatal("snapshot content missing committed data")
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/snapshots/deadbeef", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot status = %d", rec.Code)
	}
}

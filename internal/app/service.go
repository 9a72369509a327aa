package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"galley/api/internal/backup"
	"galley/api/internal/catalog"
	"galley/api/internal/docstore"
	"galley/api/internal/importer"
	"galley/api/internal/mediasync"
	"galley/api/internal/order"
	"galley/api/internal/repair"
	"galley/api/internal/search"
	"galley/api/internal/sheets"
	"galley/api/internal/snapshot"
)

// Options carries the collaborators the service is assembled from.
// Archive, Syncer and Search are optional; nil disables the feature.
type Options struct {
	Store        *docstore.Client
	Credentials  *docstore.CredentialStore
	Backups      *backup.Recorder
	Archive      *snapshot.Archive
	Sheets       *sheets.Fetcher
	Syncer       *mediasync.Syncer
	Search       *search.Service
	Orders       *order.Builder
	SheetsAPIKey string
}

// Service implements the application operations behind the HTTP layer.
type Service struct {
	store        *docstore.Client
	credentials  *docstore.CredentialStore
	backups      *backup.Recorder
	archive      *snapshot.Archive
	sheets       *sheets.Fetcher
	syncer       *mediasync.Syncer
	search       *search.Service
	orders       *order.Builder
	reconciler   *importer.Reconciler
	sheetsAPIKey string
}

func NewService(opts Options) *Service {
	return &Service{
		store:        opts.Store,
		credentials:  opts.Credentials,
		backups:      opts.Backups,
		archive:      opts.Archive,
		sheets:       opts.Sheets,
		syncer:       opts.Syncer,
		search:       opts.Search,
		orders:       opts.Orders,
		reconciler:   importer.New(opts.Backups),
		sheetsAPIKey: opts.SheetsAPIKey,
	}
}

// Ping checks the local key-value substrate used for credentials and
// the audit trail.
func (s *Service) Ping(ctx context.Context) error {
	if s.credentials == nil {
		return nil
	}
	return s.credentials.Ping(ctx)
}

// ── Storefront reads ──

// ListRestaurants returns the catalog; hidden restaurants are filtered
// out unless the caller is the admin surface.
func (s *Service) ListRestaurants(ctx context.Context, includeHidden bool) ([]catalog.Restaurant, int64, error) {
	doc, err := s.store.GetData(ctx)
	if err != nil {
		return nil, 0, err
	}
	if includeHidden {
		return doc.Restaurants, doc.Version, nil
	}
	visible := make([]catalog.Restaurant, 0, len(doc.Restaurants))
	for _, r := range doc.Restaurants {
		if !r.IsHidden {
			visible = append(visible, r)
		}
	}
	return visible, doc.Version, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id string, includeHidden bool) (catalog.Restaurant, error) {
	doc, err := s.store.GetData(ctx)
	if err != nil {
		return catalog.Restaurant{}, err
	}
	at := doc.FindRestaurant(id)
	if at == -1 || (doc.Restaurants[at].IsHidden && !includeHidden) {
		return catalog.Restaurant{}, domainError(http.StatusNotFound, "NOT_FOUND", "Restaurant not found", nil)
	}
	return doc.Restaurants[at], nil
}

// Search runs a catalog query, refreshing the fallback index from the
// store so results never lag more than one cache window.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	if doc, err := s.store.GetData(ctx); err == nil {
		s.search.Reindex(doc)
	}
	return s.search.Search(q), nil
}

// OrderLink builds the checkout deep link for a cart.
func (s *Service) OrderLink(cart order.Cart) (map[string]any, error) {
	if s.orders == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ORDERS_UNAVAILABLE", "Order link building is not configured", nil)
	}
	link, err := s.orders.BuildLink(cart)
	if err != nil {
		return nil, err
	}
	message, _ := order.BuildMessage(cart)
	return map[string]any{"link": link, "message": message}, nil
}

// ── Admin mutations ──

// CreateRestaurant records a pre-image audit entry, then writes. The
// audit entry exists even if the remote write fails afterwards.
func (s *Service) CreateRestaurant(ctx context.Context, r catalog.Restaurant) (catalog.Document, error) {
	if strings.TrimSpace(r.Name) == "" {
		return catalog.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	s.backups.Record(ctx, backup.ActionCreate, r, nil)
	doc, err := s.store.AddRestaurant(ctx, r)
	if err != nil {
		return catalog.Document{}, err
	}
	s.afterWrite(doc)
	return doc, nil
}

func (s *Service) UpdateRestaurant(ctx context.Context, r catalog.Restaurant) (catalog.Document, error) {
	current, err := s.store.GetData(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	at := current.FindRestaurant(r.ID)
	if at == -1 {
		return catalog.Document{}, docstore.ErrNotFound
	}
	s.backups.Record(ctx, backup.ActionUpdate, r, &current.Restaurants[at])
	doc, err := s.store.UpdateRestaurant(ctx, r)
	if err != nil {
		return catalog.Document{}, err
	}
	s.afterWrite(doc)
	return doc, nil
}

func (s *Service) DeleteRestaurant(ctx context.Context, id string) (catalog.Document, error) {
	current, err := s.store.GetData(ctx)
	if err != nil {
		return catalog.Document{}, err
	}
	at := current.FindRestaurant(id)
	if at == -1 {
		return catalog.Document{}, docstore.ErrNotFound
	}
	previous := catalog.CloneRestaurant(current.Restaurants[at])
	s.backups.Record(ctx, backup.ActionDelete, previous, &previous)
	doc, err := s.store.DeleteRestaurant(ctx, id)
	if err != nil {
		return catalog.Document{}, err
	}
	if s.search != nil {
		itemIDs := make([]string, 0, len(previous.MenuItems))
		for _, item := range previous.MenuItems {
			itemIDs = append(itemIDs, item.ID)
		}
		s.search.RemoveRestaurant(id, itemIDs)
	}
	s.afterWrite(doc)
	return doc, nil
}

// ImportResult is the spreadsheet import response payload.
type ImportResult struct {
	AddedCount      int      `json:"addedCount"`
	UpdatedCount    int      `json:"updatedCount"`
	ItemsAddedCount int      `json:"itemsAddedCount"`
	Errors          []string `json:"errors"`
	Version         int64    `json:"version"`
}

// Import fetches every tab of the spreadsheet, reconciles against the
// current catalog, and performs one write covering all changes.
func (s *Service) Import(ctx context.Context, spreadsheetID string) (ImportResult, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return ImportResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "spreadsheetId is required", nil)
	}
	tabs, err := s.sheets.FetchAllSheets(ctx, spreadsheetID, s.sheetsAPIKey)
	if err != nil {
		return ImportResult{}, err
	}

	current, err := s.store.GetData(ctx)
	if err != nil {
		return ImportResult{}, err
	}

	outcome := s.reconciler.Reconcile(ctx, tabs, current.Restaurants)
	result := ImportResult{
		AddedCount:      outcome.AddedCount,
		UpdatedCount:    outcome.UpdatedCount,
		ItemsAddedCount: outcome.ItemsAddedCount,
		Errors:          outcome.Errors,
		Version:         current.Version,
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	if outcome.AddedCount == 0 && outcome.UpdatedCount == 0 {
		return result, nil
	}

	merged := mergeImport(current.Restaurants, outcome)
	doc, err := s.store.SaveRestaurants(ctx, merged)
	if err != nil {
		return ImportResult{}, err
	}
	result.Version = doc.Version
	s.afterWrite(doc)
	return result, nil
}

func mergeImport(existing []catalog.Restaurant, outcome importer.Result) []catalog.Restaurant {
	updatedByID := make(map[string]catalog.Restaurant, len(outcome.UpdatedRestaurants))
	for _, r := range outcome.UpdatedRestaurants {
		updatedByID[r.ID] = r
	}
	merged := make([]catalog.Restaurant, 0, len(existing)+len(outcome.NewRestaurants))
	for _, r := range existing {
		if updated, ok := updatedByID[r.ID]; ok {
			merged = append(merged, updated)
			continue
		}
		merged = append(merged, r)
	}
	return append(merged, outcome.NewRestaurants...)
}

// MediaSync mirrors a Drive folder into media storage.
func (s *Service) MediaSync(ctx context.Context, folderLink, destPath string) (mediasync.Result, error) {
	if s.syncer == nil {
		return mediasync.Result{}, domainError(http.StatusServiceUnavailable, "MEDIA_SYNC_UNAVAILABLE", "Media sync is not configured", nil)
	}
	folderID, ok := mediasync.ExtractFolderID(folderLink)
	if !ok {
		return mediasync.Result{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "folder link is not a recognizable Drive folder", nil)
	}
	if destPath == "" {
		destPath = "restaurants"
	}
	return s.syncer.SyncFolderToStorage(ctx, folderID, destPath, nil)
}

// Repair runs the self-healing pass over the remote document.
func (s *Service) Repair(ctx context.Context) repair.Report {
	report := repair.Run(ctx, s.store)
	if report.Success {
		s.store.ClearCache()
		if doc, err := s.store.GetData(ctx); err == nil {
			s.afterWrite(doc)
		}
	}
	return report
}

// ── Audit trail ──

func (s *Service) Backups(ctx context.Context) ([]backup.Entry, error) {
	return s.backups.ListAll(ctx)
}

func (s *Service) PurgeBackups(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "days must be positive", nil)
	}
	return s.backups.PurgeOlderThan(ctx, days)
}

// ── Credentials and raw document ──

func (s *Service) RawDatabase(ctx context.Context) (string, int64, error) {
	raw, err := s.store.RawContent(ctx)
	if err != nil {
		return "", 0, err
	}
	doc, err := s.store.GetData(ctx)
	if err != nil {
		return "", 0, err
	}
	return raw, doc.Version, nil
}

// SetCredentials persists the document id and access token and points
// the live client at them.
func (s *Service) SetCredentials(ctx context.Context, documentID, accessToken string) error {
	documentID = strings.TrimSpace(documentID)
	accessToken = strings.TrimSpace(accessToken)
	if documentID == "" || accessToken == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "documentId and accessToken are required", nil)
	}
	creds := docstore.Credentials{DocumentID: documentID, AccessToken: accessToken}
	if s.credentials != nil {
		if err := s.credentials.Save(ctx, creds); err != nil {
			return fmt.Errorf("persist credentials: %w", err)
		}
	}
	s.store.SetCredentials(creds)
	return nil
}

// CreateDatabase provisions a fresh remote document and stores the
// resulting credentials.
func (s *Service) CreateDatabase(ctx context.Context, accessToken string) (map[string]any, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "accessToken is required", nil)
	}
	id, url, err := s.store.CreateDatabase(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := s.SetCredentials(ctx, id, accessToken); err != nil {
		return nil, err
	}
	return map[string]any{"documentId": id, "url": url}, nil
}

// ── Snapshots ──

func (s *Service) Snapshots(limit int) ([]snapshot.CommitInfo, error) {
	if s.archive == nil {
		return []snapshot.CommitInfo{}, nil
	}
	return s.archive.History(limit)
}

func (s *Service) SnapshotContent(hash string) (string, error) {
	if s.archive == nil {
		return "", domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot archive is not configured", nil)
	}
	content, err := s.archive.ContentAt(hash)
	if err != nil {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found", nil)
	}
	return content, nil
}

// afterWrite runs the post-write hooks shared by every mutation:
// search reindex and a snapshot commit. Both are best effort.
func (s *Service) afterWrite(doc catalog.Document) {
	if s.search != nil {
		s.search.Reindex(doc)
	}
	if s.archive != nil {
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return
		}
		message := fmt.Sprintf("catalog v%d", doc.Version)
		if _, err := s.archive.Commit(string(raw), "galley-api", message); err != nil {
			log.Printf("snapshot: commit failed: %v", err)
		}
	}
}

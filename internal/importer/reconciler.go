// Package importer reconciles spreadsheet rows against the current
// catalog: each tab is one restaurant, each data row one menu item.
// The merge is additive and idempotent: items missing from the sheet
// survive, and re-importing an unchanged sheet is a no-op.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"galley/api/internal/backup"
	"galley/api/internal/catalog"
	"galley/api/internal/diff"
	"galley/api/internal/sanitize"
	"galley/api/internal/sheets"
	"galley/api/internal/util"
)

// Fixed column layout of a data row.
const (
	colName          = 0
	colDescription   = 1
	colPrice         = 2
	colCategory      = 3
	colWeight        = 4
	colImage         = 5
	colNameRu        = 6
	colDescriptionRu = 7
	colCategoryRu    = 8
)

// Sentinel first-cell values marking metadata blocks in the first
// three rows of a sheet.
const (
	sentinelDescription = "restaurant description"
	sentinelPhoto       = "restaurant photo"
)

// Auditor records one audit entry per created or updated restaurant.
// *backup.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, action backup.Action, current catalog.Restaurant, previous *catalog.Restaurant)
}

// Result aggregates one reconciliation run. The caller merges
// UpdatedRestaurants into the existing list by id, appends
// NewRestaurants, and performs a single remote write for the batch.
type Result struct {
	NewRestaurants     []catalog.Restaurant `json:"newRestaurants"`
	UpdatedRestaurants []catalog.Restaurant `json:"updatedRestaurants"`
	AddedCount         int                  `json:"addedCount"`
	UpdatedCount       int                  `json:"updatedCount"`
	ItemsAddedCount    int                  `json:"itemsAddedCount"`
	Errors             []string             `json:"errors"`
}

// Reconciler computes the create/update/no-op decision per sheet.
type Reconciler struct {
	auditor Auditor
	now     func() time.Time
	newID   func(prefix string) string
}

// New creates a reconciler. auditor may be nil to skip audit entries.
func New(auditor Auditor) *Reconciler {
	return &Reconciler{
		auditor: auditor,
		now:     time.Now,
		newID:   util.NewID,
	}
}

// Reconcile processes sheets strictly sequentially against the current
// restaurant list. Row-level problems are accumulated as errors and
// never abort the run.
func (r *Reconciler) Reconcile(ctx context.Context, tabs []sheets.Sheet, existing []catalog.Restaurant) Result {
	result := Result{
		NewRestaurants:     []catalog.Restaurant{},
		UpdatedRestaurants: []catalog.Restaurant{},
		Errors:             []string{},
	}

	for _, tab := range tabs {
		r.reconcileSheet(ctx, tab, existing, &result)
	}
	return result
}

func (r *Reconciler) reconcileSheet(ctx context.Context, tab sheets.Sheet, existing []catalog.Restaurant, result *Result) {
	name := strings.TrimSpace(tab.Title)
	if name == "" {
		result.Errors = append(result.Errors, "sheet with an empty name was skipped")
		return
	}

	meta, consumed := scanMetadata(tab.Rows)
	if len(tab.Rows) > 0 && !consumed[0] && isHeaderRow(tab.Rows[0]) {
		consumed[0] = true
	}

	items, rowErrors := r.parseItems(name, tab.Rows, consumed)
	result.Errors = append(result.Errors, rowErrors...)

	if len(items) == 0 {
		if len(rowErrors) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("restaurant %q: every row had errors, nothing imported", name))
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("restaurant %q: sheet had no data", name))
		}
		return
	}

	if idx := catalog.FindByName(existing, name); idx >= 0 {
		r.mergeExisting(ctx, existing[idx], items, meta, result)
		return
	}
	r.createNew(ctx, name, items, meta, result)
}

// metadata holds the optional sentinel-block values of a sheet.
type metadata struct {
	description   string
	descriptionRu string
	photoURL      string
}

// scanMetadata looks through the first three rows for sentinel blocks.
// The row after each sentinel carries the values.
func scanMetadata(rows [][]string) (metadata, map[int]bool) {
	meta := metadata{}
	consumed := make(map[int]bool)
	limit := 3
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		if consumed[i] {
			continue
		}
		sentinel := strings.ToLower(strings.TrimSpace(cell(rows[i], 0)))
		switch sentinel {
		case sentinelDescription:
			consumed[i] = true
			if i+1 < len(rows) {
				consumed[i+1] = true
				meta.description = sanitize.Text(cell(rows[i+1], 0))
				meta.descriptionRu = sanitize.Text(cell(rows[i+1], 1))
			}
		case sentinelPhoto:
			consumed[i] = true
			if i+1 < len(rows) {
				consumed[i+1] = true
				if url, ok := sanitize.URL(cell(rows[i+1], 0)); ok {
					meta.photoURL = url
				}
			}
		}
	}
	return meta, consumed
}

func isHeaderRow(row []string) bool {
	first := strings.ToLower(strings.TrimSpace(cell(row, 0)))
	return first == "item name" || first == "name" || first == "item"
}

func (r *Reconciler) parseItems(restaurant string, rows [][]string, consumed map[int]bool) ([]catalog.MenuItem, []string) {
	items := make([]catalog.MenuItem, 0, len(rows))
	errs := make([]string, 0)

	for i, row := range rows {
		if consumed[i] || isEmptyRow(row) {
			continue
		}
		rowNum := i + 1

		name := sanitize.Text(cell(row, colName))
		if name == "" {
			errs = append(errs, fmt.Sprintf("%s row %d: missing item name", restaurant, rowNum))
			continue
		}

		priceRaw := strings.TrimSpace(cell(row, colPrice))
		if priceRaw == "" {
			errs = append(errs, fmt.Sprintf("%s row %d: missing price for %q", restaurant, rowNum, name))
			continue
		}
		price, ok := sanitize.Price(priceRaw)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s row %d: invalid price %q for %q", restaurant, rowNum, priceRaw, name))
			continue
		}

		image, ok := sanitize.URL(cell(row, colImage))
		if !ok {
			errs = append(errs, fmt.Sprintf("%s row %d: image URL %q does not start with http, dropped", restaurant, rowNum, cell(row, colImage)))
			image = ""
		}

		category := sanitize.Text(cell(row, colCategory))
		if category == "" {
			category = "Uncategorized"
		}

		items = append(items, catalog.MenuItem{
			Name:          name,
			NameRu:        sanitize.Text(cell(row, colNameRu)),
			Description:   sanitize.Text(cell(row, colDescription)),
			DescriptionRu: sanitize.Text(cell(row, colDescriptionRu)),
			Price:         price,
			Image:         image,
			Category:      category,
			CategoryRu:    sanitize.Text(cell(row, colCategoryRu)),
			WeightGrams:   sanitize.Weight(cell(row, colWeight)),
		})
	}
	return items, errs
}

// mergeExisting merges imported items into a known restaurant. Items
// are matched by case-insensitive trimmed name: a matched item keeps
// its id but takes every imported scalar, an unmatched imported item
// is appended as new, and existing items absent from the sheet are
// retained unchanged. A renamed sheet row therefore shows up as a new
// item, not an update of the old one; that is the intended semantic.
func (r *Reconciler) mergeExisting(ctx context.Context, current catalog.Restaurant, imported []catalog.MenuItem, meta metadata, result *Result) {
	matchedByExisting := make(map[int]catalog.MenuItem, len(imported))
	appended := make([]catalog.MenuItem, 0)
	updatedNames := make([]string, 0)

	for _, item := range imported {
		idx := findItemByName(current.MenuItems, item.Name)
		if idx < 0 {
			item.ID = r.newID("item")
			appended = append(appended, item)
			continue
		}
		// Two sheet rows collapsing onto one existing item: the later
		// row wins, mirroring last-writer-wins elsewhere.
		existing := current.MenuItems[idx]
		if diff.MenuItemScalarsEqual(existing, item) {
			matchedByExisting[idx] = existing
			continue
		}
		// Keep the stable id and stored name; take every imported
		// scalar.
		item.ID = existing.ID
		item.Name = existing.Name
		matchedByExisting[idx] = item
		updatedNames = append(updatedNames, item.Name)
	}

	merged := make([]catalog.MenuItem, 0, len(current.MenuItems)+len(appended))
	for i, existing := range current.MenuItems {
		if replacement, ok := matchedByExisting[i]; ok {
			merged = append(merged, replacement)
			continue
		}
		merged = append(merged, existing)
	}
	merged = append(merged, appended...)

	updated := catalog.CloneRestaurant(current)
	updated.MenuItems = merged

	metadataChanged := false
	if meta.description != "" && meta.description != current.Description {
		updated.Description = meta.description
		metadataChanged = true
	}
	if meta.descriptionRu != "" && meta.descriptionRu != current.DescriptionRu {
		updated.DescriptionRu = meta.descriptionRu
		metadataChanged = true
	}
	if meta.photoURL != "" && meta.photoURL != current.CoverImage {
		updated.CoverImage = meta.photoURL
		metadataChanged = true
	}

	if len(appended) == 0 && len(updatedNames) == 0 && !metadataChanged {
		result.Errors = append(result.Errors, fmt.Sprintf("restaurant %q: no changes detected", current.Name))
		return
	}

	if r.auditor != nil {
		previous := catalog.CloneRestaurant(current)
		r.auditor.Record(ctx, backup.ActionUpdate, updated, &previous)
	}
	result.UpdatedRestaurants = append(result.UpdatedRestaurants, updated)
	result.UpdatedCount++
	result.ItemsAddedCount += len(appended)
}

func (r *Reconciler) createNew(ctx context.Context, name string, items []catalog.MenuItem, meta metadata, result *Result) {
	for i := range items {
		items[i].ID = r.newID("item")
	}
	restaurant := catalog.Restaurant{
		ID:            r.newID("rest"),
		Name:          name,
		Description:   meta.description,
		DescriptionRu: meta.descriptionRu,
		CoverImage:    meta.photoURL,
		Story:         fmt.Sprintf("Imported from spreadsheet on %s", r.now().Format("2006-01-02 15:04")),
		MenuType:      catalog.MenuVisual,
		MenuItems:     items,
		Categories:    catalog.DistinctCategories(items),
		IsHidden:      false,
	}

	if r.auditor != nil {
		r.auditor.Record(ctx, backup.ActionCreate, restaurant, nil)
	}
	result.NewRestaurants = append(result.NewRestaurants, restaurant)
	result.AddedCount++
	result.ItemsAddedCount += len(items)
}

func findItemByName(items []catalog.MenuItem, name string) int {
	needle := strings.ToLower(strings.TrimSpace(name))
	for i := range items {
		if strings.ToLower(strings.TrimSpace(items[i].Name)) == needle {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

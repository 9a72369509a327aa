package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"galley/api/internal/backup"
	"galley/api/internal/catalog"
	"galley/api/internal/sheets"
)

type recordedAudit struct {
	action   backup.Action
	entity   catalog.Restaurant
	previous *catalog.Restaurant
}

type fakeAuditor struct {
	records []recordedAudit
}

func (f *fakeAuditor) Record(_ context.Context, action backup.Action, current catalog.Restaurant, previous *catalog.Restaurant) {
	f.records = append(f.records, recordedAudit{action: action, entity: current, previous: previous})
}

func newTestReconciler(auditor Auditor) *Reconciler {
	r := New(auditor)
	r.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	seq := 0
	r.newID = func(prefix string) string {
		seq++
		return fmt.Sprintf("%s_%03d", prefix, seq)
	}
	return r
}

func hasError(errs []string, fragments ...string) bool {
	for _, err := range errs {
		all := true
		for _, fragment := range fragments {
			if !strings.Contains(err, fragment) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func TestImportNewRestaurantScenario(t *testing.T) {
	auditor := &fakeAuditor{}
	r := newTestReconciler(auditor)

	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Item Name", "Desc", "Price", "Cat"},
			{"Salmon", "Fresh catch", "25", "Mains"},
		},
	}
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	if result.AddedCount != 1 || result.ItemsAddedCount != 1 || result.UpdatedCount != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.NewRestaurants) != 1 {
		t.Fatalf("expected one new restaurant, got %d", len(result.NewRestaurants))
	}
	restaurant := result.NewRestaurants[0]
	if restaurant.Name != "Test Bistro" || restaurant.MenuType != catalog.MenuVisual || restaurant.IsHidden {
		t.Fatalf("unexpected restaurant: %+v", restaurant)
	}
	if !strings.Contains(restaurant.Story, "2026-08-01") {
		t.Fatalf("story should note the import time: %q", restaurant.Story)
	}
	if len(restaurant.MenuItems) != 1 {
		t.Fatalf("expected one item, got %+v", restaurant.MenuItems)
	}
	item := restaurant.MenuItems[0]
	if item.Name != "Salmon" || item.Price != 25 || item.Category != "Mains" || item.Description != "Fresh catch" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.ID == "" || restaurant.ID == "" {
		t.Fatal("generated ids must be assigned")
	}
	if len(restaurant.Categories) != 1 || restaurant.Categories[0] != "Mains" {
		t.Fatalf("unexpected categories: %v", restaurant.Categories)
	}

	if len(auditor.records) != 1 || auditor.records[0].action != backup.ActionCreate {
		t.Fatalf("expected one create audit record, got %+v", auditor.records)
	}
}

func TestAdditiveItemMerge(t *testing.T) {
	existing := []catalog.Restaurant{{
		ID:       "rest_1",
		Name:     "Test Bistro",
		MenuType: catalog.MenuVisual,
		MenuItems: []catalog.MenuItem{
			{ID: "item_a", Name: "Salmon", Price: 25, Category: "Mains"},
			{ID: "item_b", Name: "Oysters", Price: 18, Category: "Starters"},
		},
	}}
	tab := sheets.Sheet{
		Title: "test bistro",
		Rows: [][]string{
			{"Salmon", "", "30", "Mains"},
			{"Ceviche", "", "22", "Starters"},
		},
	}
	auditor := &fakeAuditor{}
	r := newTestReconciler(auditor)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, existing)

	if result.UpdatedCount != 1 || result.AddedCount != 0 || result.ItemsAddedCount != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.UpdatedRestaurants) != 1 {
		t.Fatalf("expected one updated restaurant, got %+v", result.UpdatedRestaurants)
	}
	items := result.UpdatedRestaurants[0].MenuItems
	if len(items) != 3 {
		t.Fatalf("expected {Salmon, Oysters, Ceviche}, got %+v", items)
	}
	if items[0].ID != "item_a" || items[0].Price != 30 {
		t.Fatalf("Salmon should keep its id and take the new price: %+v", items[0])
	}
	if items[1].ID != "item_b" || items[1].Price != 18 {
		t.Fatalf("Oysters must survive unchanged despite being absent from the sheet: %+v", items[1])
	}
	if items[2].Name != "Ceviche" || items[2].ID == "" {
		t.Fatalf("Ceviche should be appended with a fresh id: %+v", items[2])
	}

	if len(auditor.records) != 1 || auditor.records[0].action != backup.ActionUpdate || auditor.records[0].previous == nil {
		t.Fatalf("expected one update audit record with pre-image, got %+v", auditor.records)
	}
}

func TestIdempotentReimport(t *testing.T) {
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Item Name", "Desc", "Price", "Cat"},
			{"Salmon", "Fresh catch", "25", "Mains"},
		},
	}
	r := newTestReconciler(nil)
	first := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	second := r.Reconcile(context.Background(), []sheets.Sheet{tab}, first.NewRestaurants)
	if second.AddedCount != 0 || second.UpdatedCount != 0 || second.ItemsAddedCount != 0 {
		t.Fatalf("re-importing an unchanged sheet must be a no-op: %+v", second)
	}
	if !hasError(second.Errors, "Test Bistro", "no changes detected") {
		t.Fatalf("expected a no-changes notice, got %v", second.Errors)
	}
}

func TestRowLevelIsolation(t *testing.T) {
	rows := make([][]string, 0, 10)
	for i := 1; i <= 10; i++ {
		price := "10"
		if i == 5 {
			price = "abc"
		}
		rows = append(rows, []string{fmt.Sprintf("Dish %d", i), "", price, "Mains"})
	}
	tab := sheets.Sheet{Title: "Test Bistro", Rows: rows}

	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	if len(result.NewRestaurants) != 1 {
		t.Fatalf("expected one restaurant, got %+v", result.NewRestaurants)
	}
	if got := len(result.NewRestaurants[0].MenuItems); got != 9 {
		t.Fatalf("expected 9 valid items, got %d", got)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %v", result.Errors)
	}
	if !hasError(result.Errors, "row 5", `"abc"`) {
		t.Fatalf("error should reference row 5 and the offending value: %v", result.Errors)
	}
}

func TestMissingNameAndPriceErrors(t *testing.T) {
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"", "", "10", ""},
			{"Tuna", "", "", ""},
			{"Salmon", "", "25", ""},
		},
	}
	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	if !hasError(result.Errors, "row 1", "missing item name") {
		t.Errorf("expected missing-name error for row 1, got %v", result.Errors)
	}
	if !hasError(result.Errors, "row 2", "missing price") {
		t.Errorf("expected missing-price error for row 2, got %v", result.Errors)
	}
	if len(result.NewRestaurants) != 1 || len(result.NewRestaurants[0].MenuItems) != 1 {
		t.Fatalf("valid row should still import: %+v", result.NewRestaurants)
	}
}

func TestSheetLevelErrors(t *testing.T) {
	r := newTestReconciler(nil)

	empty := sheets.Sheet{Title: "Empty Bistro", Rows: nil}
	allBad := sheets.Sheet{Title: "Bad Bistro", Rows: [][]string{{"", "", "x", ""}}}
	unnamed := sheets.Sheet{Title: "   ", Rows: [][]string{{"Salmon", "", "25", ""}}}

	result := r.Reconcile(context.Background(), []sheets.Sheet{empty, allBad, unnamed}, nil)
	if len(result.NewRestaurants) != 0 {
		t.Fatalf("no restaurant should be created: %+v", result.NewRestaurants)
	}
	if !hasError(result.Errors, "Empty Bistro", "no data") {
		t.Errorf("expected no-data error, got %v", result.Errors)
	}
	if !hasError(result.Errors, "Bad Bistro", "every row had errors") {
		t.Errorf("expected all-rows-bad error, got %v", result.Errors)
	}
	if !hasError(result.Errors, "empty name") {
		t.Errorf("expected empty-name error, got %v", result.Errors)
	}
}

func TestMetadataBlocks(t *testing.T) {
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Restaurant Description", ""},
			{"Seafood on deck", "Морепродукты на палубе"},
			{"Restaurant Photo", ""},
			{"https://cdn.example.com/cover.jpg", ""},
			{"Salmon", "Fresh", "25", "Mains"},
		},
	}
	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	if len(result.NewRestaurants) != 1 {
		t.Fatalf("expected one restaurant, got %v / errors %v", result.NewRestaurants, result.Errors)
	}
	restaurant := result.NewRestaurants[0]
	if restaurant.Description != "Seafood on deck" || restaurant.DescriptionRu != "Морепродукты на палубе" {
		t.Fatalf("unexpected descriptions: %+v", restaurant)
	}
	if restaurant.CoverImage != "https://cdn.example.com/cover.jpg" {
		t.Fatalf("unexpected cover image: %q", restaurant.CoverImage)
	}
	if len(restaurant.MenuItems) != 1 || restaurant.MenuItems[0].Name != "Salmon" {
		t.Fatalf("metadata rows must not be parsed as items: %+v", restaurant.MenuItems)
	}
}

func TestMetadataPhotoRejectsNonHTTP(t *testing.T) {
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Restaurant Photo", ""},
			{"ftp://cdn.example.com/cover.jpg", ""},
			{"Salmon", "Fresh", "25", "Mains"},
		},
	}
	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)
	if result.NewRestaurants[0].CoverImage != "" {
		t.Fatalf("non-http photo URL must be discarded, got %q", result.NewRestaurants[0].CoverImage)
	}
}

func TestMetadataUpdateOnlyWhenDifferent(t *testing.T) {
	existing := []catalog.Restaurant{{
		ID:          "rest_1",
		Name:        "Test Bistro",
		Description: "Seafood on deck",
		MenuItems: []catalog.MenuItem{
			{ID: "item_a", Name: "Salmon", Price: 25, Category: "Mains"},
		},
	}}
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Restaurant Description", ""},
			{"Seafood on deck", ""},
			{"Salmon", "", "25", "Mains"},
		},
	}
	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, existing)
	if result.UpdatedCount != 0 {
		t.Fatalf("identical metadata must not count as a change: %+v", result)
	}
	if !hasError(result.Errors, "no changes detected") {
		t.Fatalf("expected a no-changes notice, got %v", result.Errors)
	}
}

func TestInvalidImageURLIsRowErrorNotFatal(t *testing.T) {
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Salmon", "", "25", "Mains", "", "ftp://bad.jpg"},
		},
	}
	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	if len(result.NewRestaurants) != 1 || len(result.NewRestaurants[0].MenuItems) != 1 {
		t.Fatalf("item must still import without its image: %+v", result)
	}
	if result.NewRestaurants[0].MenuItems[0].Image != "" {
		t.Fatalf("invalid image must be dropped, got %q", result.NewRestaurants[0].MenuItems[0].Image)
	}
	if !hasError(result.Errors, "row 1", "does not start with http") {
		t.Fatalf("expected an image URL row error, got %v", result.Errors)
	}
}

func TestCategoriesFirstOccurrenceOrder(t *testing.T) {
	tab := sheets.Sheet{
		Title: "Test Bistro",
		Rows: [][]string{
			{"Salmon", "", "25", "Mains"},
			{"Oysters", "", "18", "Starters"},
			{"Tuna", "", "28", "Mains"},
			{"Crudo", "", "20", ""},
		},
	}
	r := newTestReconciler(nil)
	result := r.Reconcile(context.Background(), []sheets.Sheet{tab}, nil)

	got := result.NewRestaurants[0].Categories
	want := []string{"Mains", "Starters", "Uncategorized"}
	if len(got) != len(want) {
		t.Fatalf("unexpected categories: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("categories must keep first-occurrence order: %v", got)
		}
	}
}

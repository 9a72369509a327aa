package search

import (
	"testing"

	"galley/api/internal/catalog"
)

func fixtureDoc() catalog.Document {
	return catalog.Document{
		Restaurants: []catalog.Restaurant{
			{
				ID:      "rest_1",
				Name:    "Blue Anchor",
				Tagline: "Fresh Aegean seafood",
				MenuItems: []catalog.MenuItem{
					{ID: "item_1", Name: "Sea Bass Ceviche", Description: "citrus cured", Category: "Starters", Price: 18.5},
					{ID: "item_2", Name: "Grilled Octopus", Category: "Mains", Price: 24},
				},
			},
			{
				ID:       "rest_2",
				Name:     "Harbor Grill",
				IsHidden: true,
				MenuItems: []catalog.MenuItem{
					{ID: "item_3", Name: "Ribeye", Category: "Mains", Price: 42},
				},
			},
		},
		Version: 3,
	}
}

func TestMemorySearchMatchesBothTypes(t *testing.T) {
	m := NewMemory()
	m.Load(fixtureDoc())

	results, total, err := m.Search(Query{Text: "sea"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2 (restaurant tagline + item name)", total)
	}
	types := map[ResultType]bool{}
	for _, r := range results {
		types[r.Type] = true
	}
	if !types[ResultRestaurant] || !types[ResultItem] {
		t.Fatalf("expected both result types, got %+v", results)
	}
}

func TestMemorySearchHiddenRestaurants(t *testing.T) {
	m := NewMemory()
	m.Load(fixtureDoc())

	if _, total, _ := m.Search(Query{Text: "ribeye"}); total != 0 {
		t.Fatalf("hidden restaurant's items leaked: total = %d", total)
	}
	if _, total, _ := m.Search(Query{Text: "ribeye", IncludeHidden: true}); total != 1 {
		t.Fatalf("admin query should see hidden items: total = %d", total)
	}
}

func TestMemorySearchFilters(t *testing.T) {
	m := NewMemory()
	m.Load(fixtureDoc())

	results, _, _ := m.Search(Query{Text: "grill", FilterType: ResultItem, IncludeHidden: true})
	for _, r := range results {
		if r.Type != ResultItem {
			t.Fatalf("type filter violated: %+v", r)
		}
	}

	results, total, _ := m.Search(Query{Text: "a", FilterType: ResultItem, FilterRestaurantID: "rest_1"})
	if total != 2 {
		t.Fatalf("restaurant filter: total = %d, want 2", total)
	}
	for _, r := range results {
		if r.RestaurantID != "rest_1" {
			t.Fatalf("restaurant filter violated: %+v", r)
		}
	}
}

func TestMemorySearchPagination(t *testing.T) {
	m := NewMemory()
	m.Load(fixtureDoc())

	page, total, _ := m.Search(Query{Text: "a", IncludeHidden: true, Limit: 2})
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if total < 4 {
		t.Fatalf("total = %d, want all matches counted", total)
	}

	rest, _, _ := m.Search(Query{Text: "a", IncludeHidden: true, Limit: 2, Offset: 2})
	if len(rest)+2 != total && len(rest) != 2 {
		t.Fatalf("offset page wrong size: %d of %d", len(rest), total)
	}

	empty, _, _ := m.Search(Query{Text: "a", Offset: 100})
	if len(empty) != 0 {
		t.Fatal("offset past end must return empty page")
	}
}

func TestMemorySearchNegativePaging(t *testing.T) {
	m := NewMemory()
	m.Load(fixtureDoc())

	page, total, err := m.Search(Query{Text: "a", IncludeHidden: true, Limit: -5})
	if err != nil {
		t.Fatalf("negative limit: %v", err)
	}
	if len(page) == 0 || len(page) > total {
		t.Fatalf("negative limit should fall back to the default page: %d of %d", len(page), total)
	}

	page, _, err = m.Search(Query{Text: "a", IncludeHidden: true, Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("negative offset: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("negative offset should read from the start: got %d results", len(page))
	}
}

func TestMemorySearchEmptyQuery(t *testing.T) {
	m := NewMemory()
	m.Load(fixtureDoc())
	results, total, _ := m.Search(Query{Text: "   "})
	if total != 0 || len(results) != 0 {
		t.Fatal("blank query must return nothing")
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, NewMemory())
	svc.Reindex(fixtureDoc())

	resp := svc.Search(Query{Text: "octopus"})
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1", resp.Total)
	}
	if resp.Results[0].Title != "Grilled Octopus" {
		t.Fatalf("unexpected hit: %+v", resp.Results[0])
	}
	if resp.Query != "octopus" {
		t.Fatalf("query echo = %q", resp.Query)
	}
}

func TestFlattenMarksHiddenItems(t *testing.T) {
	restaurants, items := Flatten(fixtureDoc())
	if len(restaurants) != 2 || len(items) != 3 {
		t.Fatalf("flatten sizes: %d restaurants, %d items", len(restaurants), len(items))
	}
	for _, item := range items {
		if item.RestaurantID == "rest_2" && !item.Hidden {
			t.Fatal("items of hidden restaurants must be marked hidden")
		}
	}
}

package search

import (
	"sort"
	"strings"
	"sync"

	"galley/api/internal/catalog"
)

// Memory is a substring-match fallback searcher over the last catalog
// snapshot it was handed. It is always healthy; quality is worse than
// Meilisearch but the storefront keeps working when Meili is down.
type Memory struct {
	mu          sync.RWMutex
	restaurants []RestaurantRecord
	items       []ItemRecord
}

// NewMemory builds an empty fallback searcher.
func NewMemory() *Memory {
	return &Memory{}
}

// Load replaces the snapshot the searcher matches against.
func (m *Memory) Load(doc catalog.Document) {
	restaurants, items := Flatten(doc)
	m.mu.Lock()
	m.restaurants = restaurants
	m.items = items
	m.mu.Unlock()
}

// Healthy always reports true; the in-memory index has no remote parts.
func (m *Memory) Healthy() bool { return true }

// Search runs a case-insensitive substring match over names, taglines,
// descriptions and categories.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return []Result{}, 0, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Result
	if q.FilterType == "" || q.FilterType == ResultRestaurant {
		for _, r := range m.restaurants {
			if r.IsHidden && !q.IncludeHidden {
				continue
			}
			if containsFold(needle, r.Name, r.NameRu, r.Tagline, r.Description) {
				matches = append(matches, Result{
					Type:         ResultRestaurant,
					ID:           r.ID,
					RestaurantID: r.ID,
					Title:        r.Name,
					Snippet:      firstNonBlank(r.Tagline, r.Description),
				})
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultItem {
		for _, item := range m.items {
			if item.Hidden && !q.IncludeHidden {
				continue
			}
			if q.FilterRestaurantID != "" && item.RestaurantID != q.FilterRestaurantID {
				continue
			}
			if containsFold(needle, item.Name, item.NameRu, item.Description, item.Category) {
				matches = append(matches, Result{
					Type:         ResultItem,
					ID:           item.ID,
					RestaurantID: item.RestaurantID,
					Title:        item.Name,
					Snippet:      item.Description,
					Category:     item.Category,
					Price:        item.Price,
				})
			}
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		// Title-prefix matches rank above body matches.
		ap := strings.HasPrefix(strings.ToLower(matches[a].Title), needle)
		bp := strings.HasPrefix(strings.ToLower(matches[b].Title), needle)
		if ap != bp {
			return ap
		}
		return false
	})

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Result{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matches[offset:end], total, nil
}

func containsFold(needle string, haystacks ...string) bool {
	for _, haystack := range haystacks {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

// Flatten converts a catalog document into index records. Items of a
// hidden restaurant are marked hidden so storefront queries skip them.
func Flatten(doc catalog.Document) ([]RestaurantRecord, []ItemRecord) {
	restaurants := make([]RestaurantRecord, 0, len(doc.Restaurants))
	var items []ItemRecord
	for _, r := range doc.Restaurants {
		restaurants = append(restaurants, RestaurantRecord{
			ID:          r.ID,
			Name:        r.Name,
			NameRu:      r.NameRu,
			Tagline:     r.Tagline,
			Description: r.Description,
			IsHidden:    r.IsHidden,
		})
		for _, item := range r.MenuItems {
			items = append(items, ItemRecord{
				ID:             item.ID,
				Name:           item.Name,
				NameRu:         item.NameRu,
				Description:    item.Description,
				Category:       item.Category,
				Price:          item.Price,
				RestaurantID:   r.ID,
				RestaurantName: r.Name,
				Hidden:         r.IsHidden,
			})
		}
	}
	return restaurants, items
}

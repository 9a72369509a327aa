// Package catalog defines the restaurant catalog entities stored in
// the remote database document.
package catalog

import "strings"

// MenuType selects how a restaurant's menu is presented.
type MenuType string

const (
	MenuVisual  MenuType = "visual"
	MenuTasting MenuType = "tasting"
	MenuBoth    MenuType = "both"
)

// MenuItem is a single dish. It is owned by exactly one Restaurant.
type MenuItem struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	NameRu        string   `json:"name_ru,omitempty"`
	Description   string   `json:"description,omitempty"`
	DescriptionRu string   `json:"description_ru,omitempty"`
	Price         float64  `json:"price"`
	Image         string   `json:"image,omitempty"`
	Category      string   `json:"category"`
	CategoryRu    string   `json:"category_ru,omitempty"`
	WeightGrams   *float64 `json:"weight,omitempty"`
}

// Restaurant is a catering vendor with its menu.
type Restaurant struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	NameRu                 string     `json:"name_ru,omitempty"`
	Tagline                string     `json:"tagline,omitempty"`
	Tags                   []string   `json:"tags,omitempty"`
	Description            string     `json:"description,omitempty"`
	DescriptionRu          string     `json:"description_ru,omitempty"`
	Story                  string     `json:"story,omitempty"`
	MenuType               MenuType   `json:"menuType"`
	CoverImage             string     `json:"coverImage,omitempty"`
	GalleryImages          []string   `json:"galleryImages,omitempty"`
	MenuItems              []MenuItem `json:"menuItems"`
	TastingMenuDescription string     `json:"tastingMenuDescription,omitempty"`
	Categories             []string   `json:"categories,omitempty"`
	MinimumOrderAmount     *float64   `json:"minimumOrderAmount,omitempty"`
	OrderDeadlineHours     *float64   `json:"orderDeadlineHours,omitempty"`
	ChefServicePrice       *float64   `json:"chefServicePrice,omitempty"`
	WaiterServicePrice     *float64   `json:"waiterServicePrice,omitempty"`
	IsHidden               bool       `json:"isHidden"`
}

// Document is the entire remote database: one JSON blob replaced
// atomically on every write.
type Document struct {
	Restaurants []Restaurant `json:"restaurants"`
	LastUpdated int64        `json:"lastUpdated"`
	Version     int64        `json:"version"`
}

// FindRestaurant returns the index of the restaurant with the given id,
// or -1.
func (d *Document) FindRestaurant(id string) int {
	for i := range d.Restaurants {
		if d.Restaurants[i].ID == id {
			return i
		}
	}
	return -1
}

// FindByName matches a restaurant by case-insensitive exact name.
func FindByName(list []Restaurant, name string) int {
	needle := strings.ToLower(strings.TrimSpace(name))
	for i := range list {
		if strings.ToLower(strings.TrimSpace(list[i].Name)) == needle {
			return i
		}
	}
	return -1
}

// DistinctCategories collects item categories preserving the order of
// first occurrence.
func DistinctCategories(items []MenuItem) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		category := item.Category
		if category == "" {
			category = "Uncategorized"
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}

// CloneRestaurant makes a deep copy so audit snapshots cannot alias
// live slices.
func CloneRestaurant(r Restaurant) Restaurant {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.GalleryImages = append([]string(nil), r.GalleryImages...)
	out.Categories = append([]string(nil), r.Categories...)
	out.MenuItems = make([]MenuItem, len(r.MenuItems))
	for i, item := range r.MenuItems {
		out.MenuItems[i] = item
		if item.WeightGrams != nil {
			w := *item.WeightGrams
			out.MenuItems[i].WeightGrams = &w
		}
	}
	copyFloat := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	out.MinimumOrderAmount = copyFloat(r.MinimumOrderAmount)
	out.OrderDeadlineHours = copyFloat(r.OrderDeadlineHours)
	out.ChefServicePrice = copyFloat(r.ChefServicePrice)
	out.WaiterServicePrice = copyFloat(r.WaiterServicePrice)
	return out
}

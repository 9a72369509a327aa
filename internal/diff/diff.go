// Package diff computes field-level changes between two versions of a
// catalog entity and renders them as short human-readable summaries.
package diff

import (
	"fmt"
	"strings"

	"galley/api/internal/catalog"
)

type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Detail is one changed field.
type Detail struct {
	Field      string     `json:"field"`
	OldValue   any        `json:"oldValue,omitempty"`
	NewValue   any        `json:"newValue,omitempty"`
	ChangeType ChangeType `json:"changeType"`
}

// Restaurants compares two versions of a restaurant field by field.
// Menu items are summarized by count rather than diffed element by
// element, to keep audit summaries short.
func Restaurants(old, updated catalog.Restaurant) []Detail {
	type pair struct {
		field  string
		before string
		after  string
	}
	pairs := []pair{
		{"name", old.Name, updated.Name},
		{"name_ru", old.NameRu, updated.NameRu},
		{"tagline", old.Tagline, updated.Tagline},
		{"description", old.Description, updated.Description},
		{"description_ru", old.DescriptionRu, updated.DescriptionRu},
		{"story", old.Story, updated.Story},
		{"menuType", string(old.MenuType), string(updated.MenuType)},
		{"coverImage", old.CoverImage, updated.CoverImage},
		{"tastingMenuDescription", old.TastingMenuDescription, updated.TastingMenuDescription},
		{"tags", strings.Join(old.Tags, ", "), strings.Join(updated.Tags, ", ")},
		{"galleryImages", strings.Join(old.GalleryImages, ", "), strings.Join(updated.GalleryImages, ", ")},
		{"categories", strings.Join(old.Categories, ", "), strings.Join(updated.Categories, ", ")},
	}

	details := make([]Detail, 0)
	for _, p := range pairs {
		if d, changed := stringChange(p.field, p.before, p.after); changed {
			details = append(details, d)
		}
	}

	numbers := []struct {
		field  string
		before *float64
		after  *float64
	}{
		{"minimumOrderAmount", old.MinimumOrderAmount, updated.MinimumOrderAmount},
		{"orderDeadlineHours", old.OrderDeadlineHours, updated.OrderDeadlineHours},
		{"chefServicePrice", old.ChefServicePrice, updated.ChefServicePrice},
		{"waiterServicePrice", old.WaiterServicePrice, updated.WaiterServicePrice},
	}
	for _, n := range numbers {
		if d, changed := numberChange(n.field, n.before, n.after); changed {
			details = append(details, d)
		}
	}

	if old.IsHidden != updated.IsHidden {
		details = append(details, Detail{Field: "isHidden", OldValue: old.IsHidden, NewValue: updated.IsHidden, ChangeType: Modified})
	}

	if d, changed := menuItemsChange(old.MenuItems, updated.MenuItems); changed {
		details = append(details, d)
	}
	return details
}

// Summarize renders an audit summary line for one mutation.
func Summarize(action string, details []Detail, name string) string {
	switch action {
	case "create":
		return fmt.Sprintf("Created %q", name)
	case "delete":
		return fmt.Sprintf("Deleted %q", name)
	}
	if len(details) == 0 {
		return fmt.Sprintf("No changes to %q", name)
	}
	clauses := make([]string, 0, len(details))
	for _, d := range details {
		clauses = append(clauses, clause(d))
	}
	return fmt.Sprintf("Updated %q: %s", name, strings.Join(clauses, ", "))
}

func clause(d Detail) string {
	switch d.ChangeType {
	case Added:
		return d.Field + " added"
	case Removed:
		return d.Field + " removed"
	}
	if d.Field == "menuItems" {
		return fmt.Sprintf("menu items %v -> %v", d.OldValue, d.NewValue)
	}
	return fmt.Sprintf("%s changed", d.Field)
}

func stringChange(field, before, after string) (Detail, bool) {
	if before == after {
		return Detail{}, false
	}
	switch {
	case before == "":
		return Detail{Field: field, NewValue: after, ChangeType: Added}, true
	case after == "":
		return Detail{Field: field, OldValue: before, ChangeType: Removed}, true
	default:
		return Detail{Field: field, OldValue: before, NewValue: after, ChangeType: Modified}, true
	}
}

func numberChange(field string, before, after *float64) (Detail, bool) {
	switch {
	case before == nil && after == nil:
		return Detail{}, false
	case before == nil:
		return Detail{Field: field, NewValue: *after, ChangeType: Added}, true
	case after == nil:
		return Detail{Field: field, OldValue: *before, ChangeType: Removed}, true
	case *before != *after:
		return Detail{Field: field, OldValue: *before, NewValue: *after, ChangeType: Modified}, true
	}
	return Detail{}, false
}

func menuItemsChange(before, after []catalog.MenuItem) (Detail, bool) {
	if len(before) != len(after) {
		return Detail{Field: "menuItems", OldValue: len(before), NewValue: len(after), ChangeType: Modified}, true
	}
	for i := range before {
		if !menuItemEqual(before[i], after[i]) {
			return Detail{Field: "menuItems", OldValue: len(before), NewValue: len(after), ChangeType: Modified}, true
		}
	}
	return Detail{}, false
}

func menuItemEqual(a, b catalog.MenuItem) bool {
	if a.ID != b.ID || a.Name != b.Name || a.NameRu != b.NameRu ||
		a.Description != b.Description || a.DescriptionRu != b.DescriptionRu ||
		a.Price != b.Price || a.Image != b.Image ||
		a.Category != b.Category || a.CategoryRu != b.CategoryRu {
		return false
	}
	switch {
	case a.WeightGrams == nil && b.WeightGrams == nil:
		return true
	case a.WeightGrams == nil || b.WeightGrams == nil:
		return false
	}
	return *a.WeightGrams == *b.WeightGrams
}

// MenuItemScalarsEqual compares the imported scalar values of two
// items, ignoring id and primary name (the merge key). Used by the
// import reconciler's update decision.
func MenuItemScalarsEqual(a, b catalog.MenuItem) bool {
	stripped := func(m catalog.MenuItem) catalog.MenuItem {
		m.ID = ""
		m.Name = ""
		return m
	}
	return menuItemEqual(stripped(a), stripped(b))
}

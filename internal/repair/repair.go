// Package repair attempts best-effort self-healing of a corrupted
// remote database document: textual JSON fixes first, then schema
// defaulting. Nothing is written back unless the final result
// re-validates.
package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"galley/api/internal/catalog"
	"galley/api/internal/sanitize"
	"galley/api/internal/util"
)

// DocumentSource is the slice of the document store the repair tool
// needs. *docstore.Client satisfies it.
type DocumentSource interface {
	RawContent(ctx context.Context) (string, error)
	WriteRaw(ctx context.Context, content string) error
}

// Report describes one repair run.
type Report struct {
	Success      bool     `json:"success"`
	Errors       []string `json:"errors"`
	Fixed        []string `json:"fixed"`
	OriginalSize int      `json:"originalSize"`
	RepairedSize int      `json:"repairedSize"`
}

var (
	controlChars    = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	strayOpenQuote  = regexp.MustCompile(`([,{\[:]\s*)"{2,}`)
	strayCloseQuote = regexp.MustCompile(`"{2,}(\s*[,:}\]])`)
	trailingComma   = regexp.MustCompile(`,(\s*[}\]])`)
)

// Run fetches the raw document, heals it, and writes the result back
// only when it re-validates. Unrepairable corruption is terminal.
func Run(ctx context.Context, source DocumentSource) Report {
	report := Report{Errors: []string{}, Fixed: []string{}}

	raw, err := source.RawContent(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("fetch document: %v", err))
		return report
	}
	report.OriginalSize = len(raw)

	parsed, textFixes, ok := parseWithTextRepairs(raw)
	report.Fixed = append(report.Fixed, textFixes...)
	if !ok {
		report.Errors = append(report.Errors, "document is not valid JSON even after textual repairs")
		return report
	}

	doc := applySchemaDefaults(parsed, &report)

	repaired, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("marshal repaired document: %v", err))
		return report
	}

	// Final gate: the repaired payload must survive a decode round
	// trip before it may replace the remote document.
	var verify catalog.Document
	if err := json.Unmarshal(repaired, &verify); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("repaired document failed re-validation, write aborted: %v", err))
		return report
	}

	if err := source.WriteRaw(ctx, string(repaired)); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("write repaired document: %v", err))
		return report
	}
	report.RepairedSize = len(repaired)
	report.Success = true
	return report
}

// parseWithTextRepairs tries a straight parse, then applies the three
// textual fixes in strict order and re-parses exactly once.
func parseWithTextRepairs(raw string) (map[string]any, []string, bool) {
	if parsed, ok := parseObject(raw); ok {
		return parsed, nil, true
	}

	fixes := make([]string, 0, 3)
	healed := raw
	if cleaned := controlChars.ReplaceAllString(healed, ""); cleaned != healed {
		healed = cleaned
		fixes = append(fixes, "stripped control characters")
	}
	if cleaned := strayCloseQuote.ReplaceAllString(strayOpenQuote.ReplaceAllString(healed, `$1"`), `"$1`); cleaned != healed {
		healed = cleaned
		fixes = append(fixes, "normalized stray quotes adjacent to delimiters")
	}
	if cleaned := trailingComma.ReplaceAllString(healed, "$1"); cleaned != healed {
		healed = cleaned
		fixes = append(fixes, "removed trailing commas")
	}

	parsed, ok := parseObject(healed)
	if !ok {
		return nil, fixes, false
	}
	return parsed, fixes, true
}

func parseObject(raw string) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// applySchemaDefaults rebuilds a valid document from whatever survived
// parsing, backfilling ids and dropping unusable menu items.
func applySchemaDefaults(parsed map[string]any, report *Report) catalog.Document {
	doc := catalog.Document{Restaurants: []catalog.Restaurant{}}

	rawList, ok := parsed["restaurants"].([]any)
	if !ok {
		report.Fixed = append(report.Fixed, "restaurants was not an array, reset to empty")
		rawList = nil
	}
	for i, rawEntry := range rawList {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("restaurant %d: not an object, dropped", i+1))
			continue
		}
		doc.Restaurants = append(doc.Restaurants, repairRestaurant(entry, i, report))
	}

	if version, ok := asFloat(parsed["version"]); ok && version >= 1 {
		doc.Version = int64(version)
	} else {
		doc.Version = 1
		report.Fixed = append(report.Fixed, "backfilled document version")
	}
	if updated, ok := asFloat(parsed["lastUpdated"]); ok && updated > 0 {
		doc.LastUpdated = int64(updated)
	} else {
		doc.LastUpdated = time.Now().UnixMilli()
		report.Fixed = append(report.Fixed, "backfilled lastUpdated")
	}
	return doc
}

func repairRestaurant(entry map[string]any, index int, report *Report) catalog.Restaurant {
	restaurant := catalog.Restaurant{
		ID:                     asText(entry["id"]),
		Name:                   sanitize.Text(asText(entry["name"])),
		NameRu:                 sanitize.Text(asText(entry["name_ru"])),
		Tagline:                sanitize.Text(asText(entry["tagline"])),
		Description:            sanitize.Text(asText(entry["description"])),
		DescriptionRu:          sanitize.Text(asText(entry["description_ru"])),
		Story:                  sanitize.Text(asText(entry["story"])),
		TastingMenuDescription: sanitize.Text(asText(entry["tastingMenuDescription"])),
		MenuType:               repairMenuType(asText(entry["menuType"])),
		Tags:                   asStringSlice(entry["tags"]),
		GalleryImages:          repairImageList(asStringSlice(entry["galleryImages"])),
		Categories:             asStringSlice(entry["categories"]),
		MenuItems:              []catalog.MenuItem{},
	}
	if hidden, ok := entry["isHidden"].(bool); ok {
		restaurant.IsHidden = hidden
	}
	restaurant.MinimumOrderAmount = positiveFloat(entry["minimumOrderAmount"])
	restaurant.OrderDeadlineHours = positiveFloat(entry["orderDeadlineHours"])
	restaurant.ChefServicePrice = positiveFloat(entry["chefServicePrice"])
	restaurant.WaiterServicePrice = positiveFloat(entry["waiterServicePrice"])

	if restaurant.ID == "" {
		restaurant.ID = util.NewID("rest")
		report.Fixed = append(report.Fixed, fmt.Sprintf("restaurant %d: backfilled missing id", index+1))
	}
	if restaurant.Name == "" {
		restaurant.Name = fmt.Sprintf("Restaurant %d", index+1)
		report.Fixed = append(report.Fixed, fmt.Sprintf("restaurant %d: backfilled missing name", index+1))
	}
	if raw := asText(entry["coverImage"]); raw != "" {
		if url, ok := sanitize.URL(raw); ok {
			restaurant.CoverImage = url
		} else {
			report.Fixed = append(report.Fixed, fmt.Sprintf("restaurant %q: cleared invalid cover image URL", restaurant.Name))
		}
	}

	rawItems, ok := entry["menuItems"].([]any)
	if !ok && entry["menuItems"] != nil {
		report.Fixed = append(report.Fixed, fmt.Sprintf("restaurant %q: menuItems was not an array, reset to empty", restaurant.Name))
		rawItems = nil
	}
	for i, rawItem := range rawItems {
		itemEntry, ok := rawItem.(map[string]any)
		if !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("restaurant %q item %d: not an object, dropped", restaurant.Name, i+1))
			continue
		}
		item, ok := repairMenuItem(itemEntry, restaurant.Name, i, report)
		if !ok {
			continue
		}
		restaurant.MenuItems = append(restaurant.MenuItems, item)
	}
	return restaurant
}

func repairMenuItem(entry map[string]any, restaurantName string, index int, report *Report) (catalog.MenuItem, bool) {
	price, ok := asFloat(entry["price"])
	if !ok || price <= 0 {
		report.Errors = append(report.Errors, fmt.Sprintf("restaurant %q item %d: missing or non-positive price, dropped", restaurantName, index+1))
		return catalog.MenuItem{}, false
	}

	item := catalog.MenuItem{
		ID:            asText(entry["id"]),
		Name:          sanitize.Text(asText(entry["name"])),
		NameRu:        sanitize.Text(asText(entry["name_ru"])),
		Description:   sanitize.Text(asText(entry["description"])),
		DescriptionRu: sanitize.Text(asText(entry["description_ru"])),
		Price:         price,
		Category:      sanitize.Text(asText(entry["category"])),
		CategoryRu:    sanitize.Text(asText(entry["category_ru"])),
		WeightGrams:   positiveFloat(entry["weight"]),
	}
	if item.ID == "" {
		item.ID = util.NewID("item")
		report.Fixed = append(report.Fixed, fmt.Sprintf("restaurant %q item %d: backfilled missing id", restaurantName, index+1))
	}
	if item.Category == "" {
		item.Category = "Uncategorized"
	}
	if raw := asText(entry["image"]); raw != "" {
		if url, ok := sanitize.URL(raw); ok {
			item.Image = url
		} else {
			report.Fixed = append(report.Fixed, fmt.Sprintf("restaurant %q item %d: cleared invalid image URL", restaurantName, index+1))
		}
	}
	return item, true
}

func repairMenuType(value string) catalog.MenuType {
	switch catalog.MenuType(value) {
	case catalog.MenuVisual, catalog.MenuTasting, catalog.MenuBoth:
		return catalog.MenuType(value)
	}
	return catalog.MenuVisual
}

func repairImageList(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if url, ok := sanitize.URL(raw); ok && url != "" {
			out = append(out, url)
		}
	}
	return out
}

func asText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		return sanitize.Price(strings.TrimSpace(v))
	default:
		return 0, false
	}
}

func positiveFloat(value any) *float64 {
	if v, ok := asFloat(value); ok && v > 0 {
		return &v
	}
	return nil
}

func asStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, sanitize.Text(s))
		}
	}
	return out
}

package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultRestaurant ResultType = "restaurant"
	ResultItem       ResultType = "item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	RestaurantID string     `json:"restaurantId"`
	Category     string     `json:"category,omitempty"`
	Price        float64    `json:"price,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text               string
	FilterType         ResultType // empty = both types
	FilterRestaurantID string
	Limit              int
	Offset             int
	IncludeHidden      bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// RestaurantRecord is the data we index for a restaurant.
type RestaurantRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	NameRu      string `json:"name_ru"`
	Tagline     string `json:"tagline"`
	Description string `json:"description"`
	IsHidden    bool   `json:"isHidden"`
}

// ItemRecord is the data we index for a menu item.
type ItemRecord struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	NameRu         string  `json:"name_ru"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Price          float64 `json:"price"`
	RestaurantID   string  `json:"restaurantId"`
	RestaurantName string  `json:"restaurantName"`
	Hidden         bool    `json:"hidden"`
}

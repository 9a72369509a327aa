package search

import (
	"log"

	"galley/api/internal/catalog"
)

// Service is the facade that tries Meilisearch first and falls back to
// the in-memory substring searcher.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, memory *Memory) *Service {
	if memory == nil {
		memory = NewMemory()
	}
	return &Service{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise the in-memory index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to memory index: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: memory index error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Reindex replaces both indexes with the given catalog snapshot.
// Called after every successful document write; the Meilisearch push
// is fire-and-forget.
func (s *Service) Reindex(doc catalog.Document) {
	s.memory.Load(doc)

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	restaurants, items := Flatten(doc)
	go func() {
		if err := s.meili.IndexRestaurants(restaurants); err != nil {
			log.Printf("search: reindex restaurants: %v", err)
		}
		if err := s.meili.IndexItems(items); err != nil {
			log.Printf("search: reindex items: %v", err)
		}
	}()
}

// RemoveRestaurant drops a restaurant and its items from Meilisearch.
// The in-memory index is rebuilt by the Reindex that follows a delete.
func (s *Service) RemoveRestaurant(restaurantID string, itemIDs []string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRestaurant(restaurantID); err != nil {
			log.Printf("search: delete restaurant %s: %v", restaurantID, err)
		}
		if err := s.meili.DeleteItems(itemIDs); err != nil {
			log.Printf("search: delete items for %s: %v", restaurantID, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

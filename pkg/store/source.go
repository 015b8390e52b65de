package store

import (
	"context"

	"github.com/tripnest/tripsync/pkg/models"
)

// Query selects one page of a list or search endpoint.
type Query struct {
	Params map[string]string
	Page   int

	// Search routes the query to the search endpoint and keys it as a search.
	Search bool

	// Reset replaces the accumulated id list even when Page > 1.
	Reset bool
}

type Page[E models.Entity] struct {
	Items   []E
	Total   int
	HasMore bool
}

// Source is the network side of a Store.
type Source[E models.Entity] interface {
	Get(ctx context.Context, id string) (E, error)
	List(ctx context.Context, q Query) (Page[E], error)
	Update(ctx context.Context, id string, patch models.Patch) (E, error)
}

// CallFunc performs the network half of a mutation and returns the server's
// copy of the entity.
type CallFunc[E models.Entity] func(ctx context.Context) (E, error)

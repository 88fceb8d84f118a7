package fetcher

import (
	"context"

	"github.com/foofork/riptide/internal/types"
)

// Fetcher is the interface every fetch engine backend implements: the
// plain HTTP client and, via the browser pool, the headless renderer.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.FetchRequest) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

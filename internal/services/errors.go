// Package services defines the business logic of the gif catalog. This file
// centralizes the service-level error taxonomy so that failures can be
// consistently returned by service methods and checked by callers.
//
// The sentinels decouple the core's error surface from any specific store
// client: repository and blob errors are wrapped with %w onto one of these,
// so callers branch with errors.Is and never see gorm or filesystem error
// types. Translation into user-facing replies or HTTP status codes is
// performed at the router/handler layer.
package services

import "errors"

var (
	// ErrContentStore indicates a blob write or read failure. It is terminal
	// for the call; no catalog mutation is attempted after a failed write.
	ErrContentStore = errors.New("content store failure")

	// ErrCatalogStore indicates a catalog record probe, create, update, or
	// read failure. Note that a blob written before the catalog failure is
	// left in place; callers cannot assume blob and catalog are consistent
	// after this error.
	ErrCatalogStore = errors.New("catalog store failure")

	// ErrNameNotFound is the expected, recoverable condition for a lookup of
	// a name that is not registered: the community has no record, or the
	// record has no such name. Presentation layers should render this as
	// "not found" rather than a service failure.
	ErrNameNotFound = errors.New("gif name not found")
)

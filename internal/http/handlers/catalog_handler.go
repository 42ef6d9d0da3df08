// Package handlers: catalog endpoints
//
// Read-only operator API over the gif catalog: list a community's registered
// names and resolve one name to its clip address. Registration happens only
// through the chat command surface; there is deliberately no write endpoint
// here.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-gif-bot/internal/services"
)

// Catalog is the slice of the gif service the HTTP layer consumes.
type Catalog interface {
	Names(ctx context.Context, community string) ([]string, error)
	Address(ctx context.Context, community, name string) (string, error)
}

// CatalogHandler serves the read-only catalog API.
type CatalogHandler struct {
	Svc Catalog
}

// NamesResponse is the body returned by ListNames.
type NamesResponse struct {
	Community string   `json:"community"`
	Names     []string `json:"names"`
}

// AddressResponse is the body returned by Resolve.
type AddressResponse struct {
	Community string `json:"community"`
	Name      string `json:"name"`
	Address   string `json:"address"`
}

// ListNames handles GET /communities/:community/gifs. A community with no
// registered gifs yields an empty list, not an error.
func (h *CatalogHandler) ListNames(c *gin.Context) {
	community := c.Param("community")

	names, err := h.Svc.Names(c.Request.Context(), community)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list gifs")
		return
	}
	ok(c, http.StatusOK, NamesResponse{Community: community, Names: names})
}

// Resolve handles GET /communities/:community/gifs/:name. An unregistered
// name (or unknown community) is a 404 with code not_found; store failures
// are 500s so clients can tell the two apart.
func (h *CatalogHandler) Resolve(c *gin.Context) {
	community := c.Param("community")
	name := c.Param("name")

	addr, err := h.Svc.Address(c.Request.Context(), community, name)
	switch {
	case errors.Is(err, services.ErrNameNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "gif not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeResolveFailed, "could not resolve gif")
	default:
		ok(c, http.StatusOK, AddressResponse{Community: community, Name: name, Address: addr})
	}
}

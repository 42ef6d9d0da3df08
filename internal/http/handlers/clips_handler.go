// Package handlers: clip serving
//
// Streams stored clip bytes back under the same base URL the catalog hands
// out, which is what makes registered addresses resolvable when the bot
// serves its own content store.
package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// clipContentType is the fixed media type clips are served under.
const clipContentType = "image/gif"

// BlobOpener opens stored clip bytes by storage key.
type BlobOpener interface {
	Open(key string) (*os.File, error)
}

// ClipHandler serves GET /clips/:community/:file.
type ClipHandler struct {
	Store BlobOpener
}

// Serve streams one clip. Keys are two-segment (community/file); anything
// the store rejects or cannot find is a plain 404; the handler does not
// distinguish bad keys from absent ones to avoid turning the blob store
// into a path oracle.
func (h *ClipHandler) Serve(c *gin.Context) {
	key := c.Param("community") + "/" + c.Param("file")

	f, err := h.Store.Open(key)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "clip not found")
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read clip")
		return
	}

	c.Header("Content-Type", clipContentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(c.Writer, c.Request, st.Name(), st.ModTime(), f)
}

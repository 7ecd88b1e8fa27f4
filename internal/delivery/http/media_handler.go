package http

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sanderdlm/betascrubber/internal/storage"
)

// MediaHandler serves frame images from the local store. Only image files
// one directory below the root are reachable.
type MediaHandler struct {
	root string
}

func NewMediaHandler(root string) *MediaHandler {
	return &MediaHandler{root: root}
}

// Serve handles GET {media path}/:dir/:file
func (h *MediaHandler) Serve(c *gin.Context) {
	dir, file := c.Param("dir"), c.Param("file")
	if !validSegment(dir) || !strings.Contains(dir, storage.TitleSeparator) || !storage.ValidFrameName(file) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("Content-Type", storage.ContentType(file))
	c.File(filepath.Join(h.root, dir, file))
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

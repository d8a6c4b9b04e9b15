package ops

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/imgpipe/image-deriver/internal/api/respond"
	"github.com/imgpipe/image-deriver/internal/model"
)

// Handler serves the operational endpoints: liveness and a read-only view of
// the derivative configuration this instance runs with.
type Handler struct {
	originalSuffix string
	sizes          map[string]model.SizeSpec
}

// NewHandler creates a Handler exposing the given derivative configuration.
func NewHandler(originalSuffix string, sizes map[string]model.SizeSpec) *Handler {
	return &Handler{
		originalSuffix: originalSuffix,
		sizes:          sizes,
	}
}

// Health reports liveness.
func (h *Handler) Health(c *ginext.Context) {
	respond.OK(c, "ok")
}

// Sizes returns the original marker and the configured size specs.
func (h *Handler) Sizes(c *ginext.Context) {
	respond.OK(c, map[string]interface{}{
		"original_suffix": h.originalSuffix,
		"sizes":           h.sizes,
	})
}

package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/imgpipe/image-deriver/internal/api/handlers/ops"
)

// Setup builds the ops router. This service has no user-facing object API:
// objects arrive through storage events, not HTTP.
func Setup(h *ops.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/sizes", h.Sizes)

	return r
}

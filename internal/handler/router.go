package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

// NewRouter builds the gin engine with recovery and request logging.
func NewRouter(logger zerolog.Logger, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	h.RegisterRoutes(r)
	return r
}
